//go:build linux

package cycle

import "golang.org/x/sys/unix"

type monotonicClock struct{}

// MonotonicClock reads CLOCK_MONOTONIC and sleeps with clock_nanosleep(TIMER_ABSTIME).
func MonotonicClock() Clock { return monotonicClock{} }

func (monotonicClock) Now() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		panic("clock_gettime(CLOCK_MONOTONIC): " + err.Error())
	}
	return ts.Nano()
}

func (monotonicClock) SleepUntil(deadline int64) {
	ts := unix.NsecToTimespec(deadline)
	for {
		// absolute target: an interrupted sleep is simply restarted
		err := unix.ClockNanosleep(unix.CLOCK_MONOTONIC, unix.TIMER_ABSTIME, &ts, nil)
		if err != unix.EINTR {
			return
		}
	}
}
