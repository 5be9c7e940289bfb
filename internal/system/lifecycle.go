package system

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/KevinKickass/OpenMotionCore/internal/api/rest"
	telemetryrpc "github.com/KevinKickass/OpenMotionCore/internal/api/telemetry"
	"github.com/KevinKickass/OpenMotionCore/internal/api/websocket"
	"github.com/KevinKickass/OpenMotionCore/internal/auth"
	"github.com/KevinKickass/OpenMotionCore/internal/bus"
	"github.com/KevinKickass/OpenMotionCore/internal/config"
	"github.com/KevinKickass/OpenMotionCore/internal/cycle"
	"github.com/KevinKickass/OpenMotionCore/internal/devices"
	"github.com/KevinKickass/OpenMotionCore/internal/drive"
	"github.com/KevinKickass/OpenMotionCore/internal/fieldbus"
	"github.com/KevinKickass/OpenMotionCore/internal/interfaces"
	"github.com/KevinKickass/OpenMotionCore/internal/rt"
	"github.com/KevinKickass/OpenMotionCore/internal/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

type LifecycleManager struct {
	config   *config.Config
	driver   fieldbus.Driver
	recorder Recorder
	clock    cycle.Clock
	logger   *zap.Logger

	registry    *devices.Registry
	authService *auth.AuthService
	streamer    *telemetry.Streamer
	sampler     *telemetry.Sampler
	wsHub       *websocket.Hub

	restServer *rest.Server
	grpcServer *grpc.Server

	stateMu      sync.RWMutex
	currentState SystemState
	lastErr      error
	session      *bus.Session
	controller   *drive.Controller
	scheduler    *cycle.Scheduler
	sessionID    uuid.UUID

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup

	runMu   sync.Mutex
	runDone chan struct{}

	shutdownOnce sync.Once
}

type Option func(*LifecycleManager)

// WithRecorder persists sessions and loop events.
func WithRecorder(r Recorder) Option {
	return func(lm *LifecycleManager) { lm.recorder = r }
}

// WithClock replaces the monotonic clock of the cyclic loop.
func WithClock(c cycle.Clock) Option {
	return func(lm *LifecycleManager) { lm.clock = c }
}

func NewLifecycleManager(cfg *config.Config, driver fieldbus.Driver, logger *zap.Logger, opts ...Option) (*LifecycleManager, error) {
	registry, err := devices.NewRegistry(cfg.Devices.SearchPaths, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create template registry: %w", err)
	}

	lm := &LifecycleManager{
		config:       cfg,
		driver:       driver,
		clock:        cycle.MonotonicClock(),
		logger:       logger,
		registry:     registry,
		authService:  auth.NewAuthService(cfg.Auth, logger),
		streamer:     telemetry.NewStreamer(),
		currentState: StateInitializing,
	}
	for _, opt := range opts {
		opt(lm)
	}

	lm.sampler = telemetry.NewSampler(telemetry.SourceFunc(lm.Snapshot), lm.streamer, cfg.Telemetry.Interval, logger)
	lm.wsHub = websocket.NewHub(lm.streamer, lm.authService, logger)
	return lm, nil
}

// Start configures the bus and starts the servers. The cyclic loop is
// started separately with Run.
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting OpenMotionCore", zap.Int("slaves", len(lm.config.Slaves)))

	if err := lm.setState(StateConfiguring); err != nil {
		return err
	}

	if err := lm.openBus(); err != nil {
		lm.setError(err)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	lm.bgCancel = cancel
	lm.bgWG.Add(2)
	go func() {
		defer lm.bgWG.Done()
		lm.sampler.Run(ctx)
	}()
	go func() {
		defer lm.bgWG.Done()
		lm.wsHub.Run(ctx)
	}()

	if err := lm.startGRPCServer(); err != nil {
		err = fmt.Errorf("failed to start gRPC: %w", err)
		lm.setError(err)
		return err
	}

	if err := lm.startRESTServer(); err != nil {
		err = fmt.Errorf("failed to start REST API: %w", err)
		lm.setError(err)
		return err
	}

	if err := lm.setState(StateOperational); err != nil {
		return err
	}

	lm.logger.Info("System started successfully",
		zap.Int("grpc_port", lm.config.Server.GRPCPort),
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.String("session_id", lm.sessionID.String()))
	return nil
}

func (lm *LifecycleManager) openBus() error {
	bindings := make([]devices.SlaveBinding, 0, len(lm.config.Slaves))
	for _, s := range lm.config.Slaves {
		bindings = append(bindings, devices.SlaveBinding{
			Name:        s.Name,
			Alias:       s.Alias,
			Position:    s.Position,
			VendorID:    s.VendorID,
			ProductCode: s.ProductCode,
			Template:    s.Template,
		})
	}

	specs, err := devices.NewComposer(lm.registry, lm.logger).Compose(bindings)
	if err != nil {
		return fmt.Errorf("failed to compose slaves: %w", err)
	}

	session, err := bus.Open(lm.driver, specs, bus.Options{
		MasterIndex:  lm.config.Bus.MasterIndex,
		AllowPartial: lm.config.Bus.AllowPartial,
		Reference:    lm.config.Bus.Reference,
	}, lm.logger)
	if err != nil {
		return fmt.Errorf("failed to open bus session: %w", err)
	}

	axes := make([]*drive.Axis, 0, len(session.Slaves()))
	for _, sc := range session.Slaves() {
		axis, err := drive.NewAxis(session.Image().Layout(), sc.Spec)
		if errors.Is(err, drive.ErrNotAnAxis) {
			lm.logger.Info("Slave is not driven by the controller", zap.String("slave", sc.Spec.Name))
			continue
		}
		if err != nil {
			session.Release()
			return err
		}
		axes = append(axes, axis)
	}

	controller := drive.NewController(axes)
	scheduler := cycle.NewScheduler(
		session.Master(),
		session.Domain(),
		session.Image(),
		controller,
		lm.clock,
		cycle.Options{
			PeriodNs:             bus.PeriodNs,
			MaxConsecutiveFaults: lm.config.Bus.MaxConsecutiveFaults,
		},
		lm.logger,
	)

	lm.stateMu.Lock()
	lm.session = session
	lm.controller = controller
	lm.scheduler = scheduler
	lm.sessionID = uuid.New()
	lm.stateMu.Unlock()

	lm.recordStart(session)
	return nil
}

// Run executes the cyclic loop on the calling goroutine until ctx is done,
// RequestStop is called or the loop fails safe. The bus session is released
// on every path.
func (lm *LifecycleManager) Run(ctx context.Context) (err error) {
	session, _, scheduler := lm.components()
	if state := lm.State(); state != StateOperational || scheduler == nil {
		return fmt.Errorf("cannot run: system in state %s", state)
	}

	lm.runMu.Lock()
	if lm.runDone != nil {
		lm.runMu.Unlock()
		return errors.New("cannot run: loop already started")
	}
	done := make(chan struct{})
	lm.runDone = done
	lm.runMu.Unlock()

	defer close(done)
	defer lm.releaseSession()
	defer func() {
		if err != nil {
			lm.setError(err)
		}
	}()

	guard, err := rt.Setup(lm.config.Bus.Realtime, lm.logger)
	if err != nil {
		return fmt.Errorf("failed to set up real-time execution: %w", err)
	}
	defer guard.Release()

	if err := session.Clock().EstablishTimeBase(lm.clock.Now()); err != nil {
		return fmt.Errorf("failed to establish time base: %w", err)
	}
	if err := scheduler.Arm(session.Clock()); err != nil {
		return fmt.Errorf("failed to arm scheduler: %w", err)
	}

	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		lm.consumeEvents(scheduler.Events())
	}()

	err = scheduler.Run(ctx)
	<-consumed
	lm.recordFinish(scheduler.Stats(), err)
	return err
}

func (lm *LifecycleManager) consumeEvents(events <-chan cycle.Event) {
	for ev := range events {
		lm.logEvent(ev)
		lm.streamer.Broadcast(telemetry.EventMessage(ev))
		lm.recordEvent(ev)
	}
}

func (lm *LifecycleManager) logEvent(ev cycle.Event) {
	fields := []zap.Field{
		zap.Stringer("event", ev.Kind),
		zap.Uint64("cycle", ev.Cycle),
	}

	switch ev.Kind {
	case cycle.EventFault:
		lm.logger.Warn("Bus fault",
			append(fields,
				zap.Uint16("working_counter", ev.WorkingCounter),
				zap.Uint16("expected_counter", ev.ExpectedCounter),
				zap.Error(ev.Err))...)
	case cycle.EventOverrun:
		lm.logger.Warn("Cycle overrun", append(fields, zap.Int64("latency_ns", ev.LatencyNs))...)
	case cycle.EventFailSafe:
		lm.logger.Error("Fail-safe stop",
			append(fields, zap.Uint64("consecutive_faults", ev.ConsecutiveFaults), zap.Error(ev.Err))...)
	case cycle.EventRecovered:
		lm.logger.Info("Bus recovered", append(fields, zap.Uint64("faulted_cycles", ev.ConsecutiveFaults))...)
	default:
		lm.logger.Info("Cyclic loop event", fields...)
	}
}

// RequestStop asks the loop to terminate after the cycle in progress.
func (lm *LifecycleManager) RequestStop() {
	if _, _, scheduler := lm.components(); scheduler != nil {
		lm.logger.Info("Stop of cyclic loop requested")
		scheduler.Stop()
	}
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")
		if err := lm.setState(StateStopping); err != nil {
			lm.logger.Warn("Unexpected state on shutdown", zap.Error(err))
		}

		lm.RequestStop()
		lm.runMu.Lock()
		done := lm.runDone
		lm.runMu.Unlock()
		if done != nil {
			select {
			case <-done:
			case <-ctx.Done():
				lm.logger.Warn("Cyclic loop did not stop in time")
			}
		}
		lm.releaseSession()

		// Sampler und Hub zuerst, dann den Feed schließen: WatchAxes-Streams
		// enden erst mit ihm und GracefulStop wartet auf sie.
		if lm.bgCancel != nil {
			lm.bgCancel()
		}
		lm.bgWG.Wait()
		lm.streamer.Close()

		shutdownErr = lm.gracefulShutdown(ctx)

		if lm.recorder != nil {
			lm.recorder.Close()
		}

		if shutdownErr == nil {
			if err := lm.setState(StateStopped); err != nil {
				lm.logger.Warn("Unexpected state on shutdown", zap.Error(err))
			}
		}
	})

	return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var wg sync.WaitGroup
	errChan := make(chan error, 2)

	if lm.restServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
				errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
			}
		}()
	}

	if lm.grpcServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lm.logger.Info("Stopping gRPC server")
			lm.grpcServer.GracefulStop()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		lm.logger.Info("Graceful shutdown completed")
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		if lm.grpcServer != nil {
			lm.grpcServer.Stop()
		}
		return fmt.Errorf("shutdown timeout exceeded")
	}

	select {
	case err := <-errChan:
		return err
	default:
		return nil
	}
}

func (lm *LifecycleManager) releaseSession() {
	session, _, _ := lm.components()
	if session == nil {
		return
	}
	if err := session.Release(); err != nil {
		lm.logger.Error("Failed to release bus session", zap.Error(err))
	}
}

func (lm *LifecycleManager) startGRPCServer() error {
	if lm.config.Server.GRPCPort <= 0 {
		return nil
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", lm.config.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	svc := telemetryrpc.NewService(lm, lm.logger)
	lm.grpcServer = telemetryrpc.NewServer(svc, lm.authService, lm.logger)

	go func() {
		lm.logger.Info("gRPC server listening",
			zap.Int("port", lm.config.Server.GRPCPort),
			zap.String("services", telemetryrpc.ServiceName))
		if err := lm.grpcServer.Serve(lis); err != nil {
			lm.logger.Error("gRPC server failed", zap.Error(err))
		}
	}()

	return nil
}

func (lm *LifecycleManager) startRESTServer() error {
	if lm.config.Server.HTTPPort <= 0 {
		return nil
	}
	lm.restServer = rest.NewServer(lm.config, lm, lm.wsHub, lm.authService, lm.logger)
	return lm.restServer.Start()
}

func (lm *LifecycleManager) setState(to SystemState) error {
	lm.stateMu.Lock()
	from := lm.currentState
	if err := ValidateTransition(from, to); err != nil {
		lm.stateMu.Unlock()
		return err
	}
	lm.currentState = to
	lm.stateMu.Unlock()

	lm.logger.Info("System state changed",
		zap.Stringer("from", from),
		zap.Stringer("to", to))
	lm.streamer.Broadcast(telemetry.StatusMessage(to.String()))
	return nil
}

func (lm *LifecycleManager) setError(err error) {
	lm.stateMu.Lock()
	lm.currentState = StateError
	lm.lastErr = err
	lm.stateMu.Unlock()

	lm.logger.Error("System error", zap.Error(err))
	lm.streamer.Broadcast(telemetry.StatusMessage(StateError.String()))
}

func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

func (lm *LifecycleManager) components() (*bus.Session, *drive.Controller, *cycle.Scheduler) {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.session, lm.controller, lm.scheduler
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	status := interfaces.SystemStatus{
		State:     lm.currentState.String(),
		Scheduler: cycle.StateIdle.String(),
		Timestamp: time.Now().Unix(),
	}
	if lm.lastErr != nil {
		status.Error = lm.lastErr.Error()
	}
	session, controller, scheduler := lm.session, lm.controller, lm.scheduler
	if session != nil {
		status.SessionID = lm.sessionID.String()
	}
	lm.stateMu.RUnlock()

	if session != nil {
		status.Slaves = len(session.Slaves())
		status.Excluded = len(session.Excluded())
		if ref := session.Clock().Reference(); ref != nil {
			status.Reference = ref.Spec.Name
		}
	}
	if controller != nil {
		status.Axes = len(controller.Axes())
	}
	if scheduler != nil {
		status.Scheduler = scheduler.State().String()
	}
	return status
}

// Slaves lists configured slaves followed by excluded ones.
func (lm *LifecycleManager) Slaves() []interfaces.SlaveInfo {
	session, _, _ := lm.components()
	out := make([]interfaces.SlaveInfo, 0)
	if session == nil {
		return out
	}

	var reference string
	if ref := session.Clock().Reference(); ref != nil {
		reference = ref.Spec.Name
	}

	for _, sc := range session.Slaves() {
		out = append(out, interfaces.SlaveInfo{
			Name:      sc.Spec.Name,
			Address:   sc.Spec.Address,
			Identity:  sc.Spec.Identity,
			Template:  sc.Spec.Template,
			Entries:   len(sc.Spec.Syncs.Entries()),
			DC:        sc.Spec.DC.Enabled(),
			Reference: sc.Spec.Name == reference,
			Active:    true,
		})
	}
	for _, ex := range session.Excluded() {
		out = append(out, interfaces.SlaveInfo{
			Name:     ex.Spec.Name,
			Address:  ex.Spec.Address,
			Identity: ex.Spec.Identity,
			Template: ex.Spec.Template,
			Entries:  len(ex.Spec.Syncs.Entries()),
			DC:       ex.Spec.DC.Enabled(),
			Error:    ex.Err.Error(),
		})
	}
	return out
}

func (lm *LifecycleManager) Stats() cycle.Stats {
	if _, _, scheduler := lm.components(); scheduler != nil {
		return scheduler.Stats()
	}
	return cycle.Stats{State: cycle.StateIdle, PeriodNs: bus.PeriodNs}
}

func (lm *LifecycleManager) Axes() []drive.AxisState {
	if _, controller, _ := lm.components(); controller != nil {
		return controller.States()
	}
	return []drive.AxisState{}
}

func (lm *LifecycleManager) Snapshot() telemetry.Snapshot {
	stats := lm.Stats()
	snap := telemetry.Snapshot{
		Time:      time.Now(),
		System:    lm.State().String(),
		Scheduler: stats.State,
		Stats:     stats,
		Axes:      lm.Axes(),
	}
	if session, _, _ := lm.components(); session != nil {
		snap.SessionID = lm.SessionID().String()
	}
	return snap
}

func (lm *LifecycleManager) SessionID() uuid.UUID {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.sessionID
}

func (lm *LifecycleManager) Config() *config.Config        { return lm.config }
func (lm *LifecycleManager) Registry() *devices.Registry   { return lm.registry }
func (lm *LifecycleManager) Streamer() *telemetry.Streamer { return lm.streamer }
