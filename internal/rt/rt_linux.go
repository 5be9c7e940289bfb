//go:build linux

package rt

import (
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Guard holds the real-time resources of the calling thread.
type Guard struct {
	realtime     bool
	memoryLocked bool
	affinity     *unix.CPUSet // vor dem Pinning, nil wenn nicht gepinnt
	logger       *zap.Logger
}

// Setup locks the goroutine to its OS thread, locks memory and switches the
// thread to SCHED_FIFO. It must be called from the goroutine that runs the loop.
func Setup(opts Options, logger *zap.Logger) (*Guard, error) {
	runtime.LockOSThread()
	g := &Guard{logger: logger}

	if opts.Disabled {
		logger.Info("Real-time setup disabled")
		return g, nil
	}

	attr := &unix.SchedAttr{
		Size:     unix.SizeofSchedAttr,
		Policy:   unix.SCHED_FIFO,
		Priority: uint32(opts.priority()),
	}
	if err := unix.SchedSetAttr(0, attr, 0); err != nil {
		// runs on, just without real-time guarantees
		logger.Warn("Failed to set SCHED_FIFO",
			zap.Int("priority", opts.priority()),
			zap.Error(err))
	} else {
		g.realtime = true
		logger.Info("Real-time scheduling enabled", zap.Int("priority", opts.priority()))
	}

	if opts.LockMemory {
		if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
			g.Release()
			return nil, fmt.Errorf("failed to lock memory: %w", err)
		}
		g.memoryLocked = true
	}

	if opts.CPU >= 0 {
		var prev unix.CPUSet
		if err := unix.SchedGetaffinity(0, &prev); err != nil {
			logger.Warn("Failed to read CPU affinity", zap.Error(err))
		}
		var set unix.CPUSet
		set.Set(opts.CPU)
		if err := unix.SchedSetaffinity(0, &set); err != nil {
			logger.Warn("Failed to set CPU affinity", zap.Int("cpu", opts.CPU), zap.Error(err))
		} else if prev.Count() > 0 {
			g.affinity = &prev
		}
	}

	return g, nil
}

// Release undoes Setup. Must run on the same goroutine. The thread only
// returns to the Go scheduler once it is back on SCHED_OTHER; otherwise it
// stays locked and exits with the goroutine.
func (g *Guard) Release() {
	if g.memoryLocked {
		if err := unix.Munlockall(); err != nil {
			g.logger.Warn("Failed to unlock memory", zap.Error(err))
		}
		g.memoryLocked = false
	}

	if g.affinity != nil {
		if err := unix.SchedSetaffinity(0, g.affinity); err != nil {
			g.logger.Warn("Failed to restore CPU affinity", zap.Error(err))
		}
		g.affinity = nil
	}

	if g.realtime {
		attr := &unix.SchedAttr{Size: unix.SizeofSchedAttr, Policy: unix.SCHED_NORMAL}
		if err := unix.SchedSetAttr(0, attr, 0); err != nil {
			g.logger.Error("Failed to leave SCHED_FIFO, keeping thread locked", zap.Error(err))
			return
		}
		g.realtime = false
	}

	runtime.UnlockOSThread()
}
