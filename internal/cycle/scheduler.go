// Package cycle runs the fixed-period exchange of the process image with the bus.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/KevinKickass/OpenMotionCore/internal/fieldbus"
	"github.com/KevinKickass/OpenMotionCore/internal/image"
	"go.uber.org/zap"
)

var (
	ErrBusFault     = errors.New("bus fault: too many consecutive faulted cycles")
	ErrInvalidState = errors.New("invalid scheduler state")
)

const (
	DefaultMaxConsecutiveFaults = 10
	defaultEventBuffer          = 64
)

// Transport is the part of the master the loop talks to.
type Transport interface {
	Receive() error
	Send() error
}

// Domain is the part of the process image handle the loop talks to.
type Domain interface {
	Process() error
	Queue() error
	State() fieldbus.DomainState
}

// Application is the per-cycle control step. It runs between receive and
// send and must neither block nor allocate.
type Application interface {
	Step(img *image.Image)
}

// TimeBase is the distributed-clock epoch handed to the transport.
type TimeBase interface {
	Epoch() (int64, bool)
}

type Options struct {
	PeriodNs             int64
	MaxConsecutiveFaults int
	EventBuffer          int
}

// Scheduler is the real-time loop. Run must be called from the thread that
// was prepared for real-time execution; everything else is safe from any goroutine.
type Scheduler struct {
	transport Transport
	domain    Domain
	img       *image.Image
	app       Application
	clock     Clock

	period    int64
	maxFaults uint64
	cc        CycleClock

	state  atomic.Int32
	stop   atomic.Bool
	stats  counters
	events chan Event
	logger *zap.Logger
}

func NewScheduler(
	transport Transport,
	domain Domain,
	img *image.Image,
	app Application,
	clock Clock,
	opts Options,
	logger *zap.Logger,
) *Scheduler {
	if opts.MaxConsecutiveFaults <= 0 {
		opts.MaxConsecutiveFaults = DefaultMaxConsecutiveFaults
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}

	return &Scheduler{
		transport: transport,
		domain:    domain,
		img:       img,
		app:       app,
		clock:     clock,
		period:    opts.PeriodNs,
		maxFaults: uint64(opts.MaxConsecutiveFaults),
		events:    make(chan Event, opts.EventBuffer),
		logger:    logger,
	}
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) transition(to State) error {
	from := s.State()
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, from, to)
	}
	if !s.state.CompareAndSwap(int32(from), int32(to)) {
		return fmt.Errorf("%w: concurrent transition from %s", ErrInvalidState, from)
	}
	return nil
}

// Arm initializes the cycle clock to the current monotonic time. The process
// image must be finalized and the time base established before.
func (s *Scheduler) Arm(tb TimeBase) error {
	if s.img == nil {
		return fmt.Errorf("%w: no process image", ErrInvalidState)
	}
	if tb == nil {
		return fmt.Errorf("%w: no time base", ErrInvalidState)
	}
	if _, ok := tb.Epoch(); !ok {
		return fmt.Errorf("%w: time base not established", ErrInvalidState)
	}
	if s.period <= 0 {
		return fmt.Errorf("%w: period must be positive", ErrInvalidState)
	}
	if err := s.transition(StateArmed); err != nil {
		return err
	}
	s.cc = NewCycleClock(s.clock.Now(), s.period)

	s.logger.Info("Cyclic scheduler armed",
		zap.Int64("period_ns", s.period),
		zap.Uint64("max_consecutive_faults", s.maxFaults))
	return nil
}

// Stop requests termination. The loop finishes the cycle in progress,
// including its send, and does not start another one.
func (s *Scheduler) Stop() {
	s.stop.Store(true)
}

func (s *Scheduler) stopRequested(ctx context.Context) bool {
	return s.stop.Load() || ctx.Err() != nil
}

// Events delivers loop events to a non real-time consumer.
func (s *Scheduler) Events() <-chan Event {
	return s.events
}

func (s *Scheduler) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.stats.droppedEvents.Add(1)
	}
}

// Run executes cycles until Stop, context cancellation or fail-safe stop.
// A requested stop returns nil, the fail-safe stop returns ErrBusFault.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.transition(StateRunning); err != nil {
		return err
	}
	s.emit(Event{Kind: EventStarted, Time: s.clock.Now()})

	err := s.loop(ctx)

	s.state.Store(int32(StateTerminating))
	s.emit(Event{Kind: EventStopped, Cycle: s.stats.cycles.Load(), Time: s.clock.Now(), Err: err})
	close(s.events)

	s.logger.Info("Cyclic scheduler stopped",
		zap.Uint64("cycles", s.stats.cycles.Load()),
		zap.Uint64("faults", s.stats.faults.Load()),
		zap.Uint64("overruns", s.stats.overruns.Load()),
		zap.Error(err))
	return err
}

func (s *Scheduler) loop(ctx context.Context) error {
	for {
		if s.stopRequested(ctx) {
			return nil
		}

		// 1. absolute wait
		deadline := s.cc.Next()
		s.clock.SleepUntil(deadline)
		woke := s.clock.Now()
		if s.stopRequested(ctx) {
			return nil
		}

		latency := woke - deadline
		s.stats.latency(latency)
		cycle := s.stats.cycles.Load()
		if latency >= s.period {
			s.stats.overruns.Add(1)
			s.emit(Event{Kind: EventOverrun, Cycle: cycle, Time: woke, LatencyNs: latency})
		}

		// 2. pull the frame
		faultErr := s.transport.Receive()
		if faultErr == nil {
			faultErr = s.domain.Process()
		}
		ds := s.domain.State()
		s.stats.wkc.Store(uint32(ds.ExpectedCounter)<<16 | uint32(ds.WorkingCounter))

		// 3. application step, skipped on a bad frame so the last command is held
		faulted := faultErr != nil || !ds.Complete()
		if !faulted {
			s.app.Step(s.img)
		}

		// 4. queue and send as one unit
		if err := s.domain.Queue(); err != nil {
			faulted = true
			faultErr = err
		} else if err := s.transport.Send(); err != nil {
			faulted = true
			faultErr = err
		}

		// 5.
		s.cc.Advance()
		s.stats.cycles.Add(1)

		if faulted {
			s.stats.faults.Add(1)
			n := s.stats.consecutive.Add(1)
			if n == 1 {
				s.emit(Event{Kind: EventFault, Cycle: cycle, Time: woke, ConsecutiveFaults: n,
					WorkingCounter: ds.WorkingCounter, ExpectedCounter: ds.ExpectedCounter, Err: faultErr})
			}
			if n > s.maxFaults {
				s.emit(Event{Kind: EventFailSafe, Cycle: cycle, Time: woke, ConsecutiveFaults: n,
					WorkingCounter: ds.WorkingCounter, ExpectedCounter: ds.ExpectedCounter, Err: faultErr})
				return fmt.Errorf("%w: %d cycles", ErrBusFault, n)
			}
		} else if n := s.stats.consecutive.Swap(0); n > 0 {
			s.emit(Event{Kind: EventRecovered, Cycle: cycle, Time: woke, ConsecutiveFaults: n,
				WorkingCounter: ds.WorkingCounter, ExpectedCounter: ds.ExpectedCounter})
		}
	}
}

func (s *Scheduler) Stats() Stats {
	wkc := s.stats.wkc.Load()
	return Stats{
		State:             s.State(),
		Cycles:            s.stats.cycles.Load(),
		Faults:            s.stats.faults.Load(),
		ConsecutiveFaults: s.stats.consecutive.Load(),
		Overruns:          s.stats.overruns.Load(),
		DroppedEvents:     s.stats.droppedEvents.Load(),
		LastLatencyNs:     s.stats.lastLatency.Load(),
		MaxLatencyNs:      s.stats.maxLatency.Load(),
		WorkingCounter:    uint16(wkc),
		ExpectedCounter:   uint16(wkc >> 16),
		PeriodNs:          s.period,
	}
}
