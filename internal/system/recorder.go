package system

import (
	"context"
	"time"

	"github.com/KevinKickass/OpenMotionCore/internal/bus"
	"github.com/KevinKickass/OpenMotionCore/internal/cycle"
	"github.com/KevinKickass/OpenMotionCore/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Recorder persists bus sessions and loop events. *storage.PostgresClient
// implements it.
type Recorder interface {
	StartSession(ctx context.Context, s *storage.BusSession) error
	FinishSession(ctx context.Context, id uuid.UUID, cycles, faults, overruns uint64, reason string) error
	RecordFault(ctx context.Context, f *storage.BusFault) error
	Close()
}

const recordTimeout = 2 * time.Second

func (lm *LifecycleManager) recordStart(session *bus.Session) {
	if lm.recorder == nil {
		return
	}

	rec := &storage.BusSession{
		ID:          lm.SessionID(),
		MasterIndex: int(lm.config.Bus.MasterIndex),
		ImageBytes:  session.Image().Size(),
	}
	for _, sc := range session.Slaves() {
		rec.Slaves = append(rec.Slaves, storage.SlaveRecord{
			Name:     sc.Spec.Name,
			Address:  sc.Spec.Address.String(),
			Identity: sc.Spec.Identity.String(),
			Template: sc.Spec.Template,
		})
	}
	for _, ex := range session.Excluded() {
		rec.Excluded = append(rec.Excluded, storage.SlaveRecord{
			Name:     ex.Spec.Name,
			Address:  ex.Spec.Address.String(),
			Identity: ex.Spec.Identity.String(),
			Template: ex.Spec.Template,
			Error:    ex.Err.Error(),
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := lm.recorder.StartSession(ctx, rec); err != nil {
		lm.logger.Warn("Failed to persist bus session", zap.Error(err))
	}
}

// recordEvent stores everything but start and stop; those are covered by
// the session row.
func (lm *LifecycleManager) recordEvent(ev cycle.Event) {
	if lm.recorder == nil || ev.Kind == cycle.EventStarted || ev.Kind == cycle.EventStopped {
		return
	}

	f := &storage.BusFault{
		SessionID:         lm.SessionID(),
		Kind:              ev.Kind.String(),
		Cycle:             ev.Cycle,
		ConsecutiveFaults: ev.ConsecutiveFaults,
		WorkingCounter:    ev.WorkingCounter,
		ExpectedCounter:   ev.ExpectedCounter,
	}
	if ev.Err != nil {
		f.Message = ev.Err.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := lm.recorder.RecordFault(ctx, f); err != nil {
		lm.logger.Warn("Failed to persist bus event", zap.Stringer("event", ev.Kind), zap.Error(err))
	}
}

func (lm *LifecycleManager) recordFinish(stats cycle.Stats, runErr error) {
	if lm.recorder == nil {
		return
	}

	reason := "stopped"
	if runErr != nil {
		reason = runErr.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := lm.recorder.FinishSession(ctx, lm.SessionID(), stats.Cycles, stats.Faults, stats.Overruns, reason); err != nil {
		lm.logger.Warn("Failed to finish bus session", zap.Error(err))
	}
}
