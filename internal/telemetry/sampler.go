package telemetry

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Sampler polls a Source at a fixed interval and broadcasts the result.
type Sampler struct {
	source   Source
	streamer *Streamer
	interval time.Duration
	logger   *zap.Logger
	latest   atomic.Pointer[Snapshot]
}

func NewSampler(source Source, streamer *Streamer, interval time.Duration, logger *zap.Logger) *Sampler {
	return &Sampler{
		source:   source,
		streamer: streamer,
		interval: interval,
		logger:   logger,
	}
}

// Sample takes one snapshot, stores it as latest and broadcasts it.
func (s *Sampler) Sample() Snapshot {
	snap := s.source.Snapshot()
	if snap.Time.IsZero() {
		snap.Time = time.Now()
	}
	s.latest.Store(&snap)
	s.streamer.Broadcast(SnapshotMessage(snap))
	return snap
}

// Latest returns the most recent snapshot, or a fresh one if none was taken yet.
func (s *Sampler) Latest() Snapshot {
	if snap := s.latest.Load(); snap != nil {
		return *snap
	}
	return s.Sample()
}

// Run samples immediately, then every interval until ctx is done. A last
// sample is taken on the way out so subscribers see the final state.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Debug("Telemetry sampler started", zap.Duration("interval", s.interval))
	defer s.logger.Debug("Telemetry sampler stopped")

	s.Sample()
	for {
		select {
		case <-ctx.Done():
			s.Sample()
			return
		case <-ticker.C:
			s.Sample()
		}
	}
}
