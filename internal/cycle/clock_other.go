//go:build !linux

package cycle

import "time"

type runtimeClock struct {
	base time.Time
}

// MonotonicClock falls back to the runtime's monotonic reading. Deadlines are
// still absolute, but timer resolution is whatever the platform offers.
func MonotonicClock() Clock { return &runtimeClock{base: time.Now()} }

func (c *runtimeClock) Now() int64 {
	return int64(time.Since(c.base))
}

func (c *runtimeClock) SleepUntil(deadline int64) {
	if d := deadline - c.Now(); d > 0 {
		time.Sleep(time.Duration(d))
	}
}
