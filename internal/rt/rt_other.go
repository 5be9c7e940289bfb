//go:build !linux

package rt

import (
	"errors"
	"runtime"

	"go.uber.org/zap"
)

type Guard struct{}

func Setup(opts Options, logger *zap.Logger) (*Guard, error) {
	if opts.LockMemory && !opts.Disabled {
		return nil, errors.New("memory locking is only supported on linux")
	}
	runtime.LockOSThread()
	logger.Warn("Real-time scheduling is not supported on this platform", zap.String("os", runtime.GOOS))
	return &Guard{}, nil
}

func (g *Guard) Release() {
	runtime.UnlockOSThread()
}
