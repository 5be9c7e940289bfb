package system

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	telemetryrpc "github.com/KevinKickass/OpenMotionCore/internal/api/telemetry"
	"github.com/KevinKickass/OpenMotionCore/internal/auth"
	"github.com/KevinKickass/OpenMotionCore/internal/config"
	"github.com/KevinKickass/OpenMotionCore/internal/cycle"
	"github.com/KevinKickass/OpenMotionCore/internal/devices"
	"github.com/KevinKickass/OpenMotionCore/internal/fieldbus/sim"
	"github.com/KevinKickass/OpenMotionCore/internal/rt"
	"github.com/KevinKickass/OpenMotionCore/internal/storage"
	"github.com/KevinKickass/OpenMotionCore/internal/telemetry"
	"github.com/KevinKickass/OpenMotionCore/internal/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// jumpClock never sleeps; every wake happens exactly at its deadline.
type jumpClock struct {
	now atomic.Int64
}

func (c *jumpClock) Now() int64 { return c.now.Load() }

func (c *jumpClock) SleepUntil(deadline int64) {
	if deadline > c.now.Load() {
		c.now.Store(deadline)
	}
	time.Sleep(50 * time.Microsecond)
}

type memRecorder struct {
	mu       sync.Mutex
	sessions []*storage.BusSession
	faults   []*storage.BusFault
	finished map[uuid.UUID]string
	closed   bool
}

func newMemRecorder() *memRecorder {
	return &memRecorder{finished: make(map[uuid.UUID]string)}
}

func (r *memRecorder) StartSession(_ context.Context, s *storage.BusSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, s)
	return nil
}

func (r *memRecorder) FinishSession(_ context.Context, id uuid.UUID, cycles, faults, overruns uint64, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished[id] = reason
	return nil
}

func (r *memRecorder) RecordFault(_ context.Context, f *storage.BusFault) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faults = append(r.faults, f)
	return nil
}

func (r *memRecorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func (r *memRecorder) faultKinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]string, 0, len(r.faults))
	for _, f := range r.faults {
		kinds = append(kinds, f.Kind)
	}
	return kinds
}

var (
	addr0 = types.BusAddress{Position: 0}
	addr1 = types.BusAddress{Position: 1}
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{JWTSecretEnv: "OMC_SYSTEM_TEST_JWT_SECRET", AccessTokenTTL: time.Hour},
		Bus: config.BusConfig{
			Transport:            "sim",
			MaxConsecutiveFaults: 3,
			Realtime:             rt.Options{Disabled: true, CPU: -1},
		},
		Slaves: []config.SlaveConfig{
			{Name: "axis0", Position: 0, Template: devices.EROBTemplateID},
			{Name: "axis1", Position: 1, Template: devices.EROBTemplateID},
		},
		Devices:   config.DevicesConfig{SearchPaths: []string{t.TempDir()}},
		Telemetry: config.TelemetryConfig{Interval: 10 * time.Millisecond},
	}
}

func newTestManager(t *testing.T, cfg *config.Config, simBus *sim.Bus) (*LifecycleManager, *memRecorder) {
	t.Helper()
	rec := newMemRecorder()
	clock := &jumpClock{}
	clock.now.Store(1_000_000_000)

	lm, err := NewLifecycleManager(cfg, simBus, zap.NewNop(), WithRecorder(rec), WithClock(clock))
	require.NoError(t, err)
	return lm, rec
}

func twoServos() *sim.Bus {
	return sim.NewBus(
		sim.NewServo(addr0, devices.EROBIdentity),
		sim.NewServo(addr1, devices.EROBIdentity),
	)
}

func TestLifecycleRunAndStop(t *testing.T) {
	simBus := twoServos()
	simBus.SetObject(addr0, sim.ObjActualPosition, 0, 12345)

	lm, rec := newTestManager(t, testConfig(t), simBus)
	subID, feed := lm.Streamer().Subscribe()
	defer lm.Streamer().Unsubscribe(subID)

	require.NoError(t, lm.Start())
	assert.Equal(t, StateOperational, lm.State())

	status := lm.GetCurrentStatus()
	assert.Equal(t, "OPERATIONAL", status.State)
	assert.Equal(t, 2, status.Slaves)
	assert.Equal(t, 2, status.Axes)
	assert.Equal(t, "axis0", status.Reference)
	assert.Equal(t, "idle", status.Scheduler)

	slaves := lm.Slaves()
	require.Len(t, slaves, 2)
	assert.True(t, slaves[0].Reference)
	assert.True(t, slaves[1].Active)
	assert.Equal(t, 8, slaves[1].Entries)

	runErr := make(chan error, 1)
	go func() { runErr <- lm.Run(context.Background()) }()

	require.Eventually(t, func() bool { return lm.Stats().Cycles >= 5 }, 5*time.Second, time.Millisecond)
	lm.RequestStop()

	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}

	axes := lm.Axes()
	require.Len(t, axes, 2)
	assert.Equal(t, int32(12345), axes[0].ActualPosition)
	assert.Equal(t, int32(12345), axes[0].TargetPosition)
	assert.Equal(t, uint64(12345), simBus.Object(addr0, sim.ObjTargetPosition, 0))

	stats := lm.Stats()
	assert.Equal(t, cycle.StateTerminating, stats.State)
	assert.Zero(t, stats.Faults)

	counters := simBus.Counters()
	assert.Equal(t, 1, counters.Releases)
	assert.Equal(t, 1, counters.AppTimeCalls)

	require.Len(t, rec.sessions, 1)
	assert.Equal(t, lm.SessionID(), rec.sessions[0].ID)
	assert.Len(t, rec.sessions[0].Slaves, 2)
	assert.Equal(t, "stopped", rec.finished[lm.SessionID()])

	require.NoError(t, lm.Shutdown(context.Background()))
	assert.Equal(t, StateStopped, lm.State())
	assert.True(t, rec.closed)
	assert.Equal(t, 1, simBus.Counters().Releases)

	// second shutdown is a no-op
	require.NoError(t, lm.Shutdown(context.Background()))

	var sawSnapshot, sawEvent bool
	for msg := range feed {
		switch msg.Kind {
		case telemetry.KindSnapshot:
			sawSnapshot = true
		case telemetry.KindBusEvent:
			sawEvent = true
		}
	}
	assert.True(t, sawSnapshot)
	assert.True(t, sawEvent)
}

func TestLifecycleFailSafe(t *testing.T) {
	simBus := twoServos()
	lm, rec := newTestManager(t, testConfig(t), simBus)
	require.NoError(t, lm.Start())

	simBus.SetOnline(addr1, false)

	err := lm.Run(context.Background())
	require.ErrorIs(t, err, cycle.ErrBusFault)

	assert.Equal(t, StateError, lm.State())
	assert.Contains(t, lm.GetCurrentStatus().Error, "bus fault")
	assert.Equal(t, 1, simBus.Counters().Releases)

	stats := lm.Stats()
	assert.Equal(t, uint64(4), stats.Faults)
	assert.Equal(t, []string{"fault", "fail_safe"}, rec.faultKinds())
	assert.Contains(t, rec.finished[lm.SessionID()], "bus fault")

	require.NoError(t, lm.Shutdown(context.Background()))
	assert.Equal(t, StateStopped, lm.State())
}

func TestLifecycleStopBeforeRun(t *testing.T) {
	lm, _ := newTestManager(t, testConfig(t), twoServos())
	require.NoError(t, lm.Start())

	lm.RequestStop()
	require.NoError(t, lm.Run(context.Background()))
	assert.Zero(t, lm.Stats().Cycles)

	err := lm.Run(context.Background())
	assert.Error(t, err)
}

func TestLifecycleStartFailsOnMissingSlave(t *testing.T) {
	simBus := sim.NewBus(sim.NewServo(addr0, devices.EROBIdentity))
	lm, rec := newTestManager(t, testConfig(t), simBus)

	err := lm.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrSlaveUnavailable)
	assert.Equal(t, StateError, lm.State())
	assert.Equal(t, 1, simBus.Counters().Releases)
	assert.Empty(t, rec.sessions)

	assert.Error(t, lm.Run(context.Background()))
	require.NoError(t, lm.Shutdown(context.Background()))
	assert.Equal(t, StateStopped, lm.State())
}

func TestLifecyclePartialBus(t *testing.T) {
	cfg := testConfig(t)
	cfg.Bus.AllowPartial = true
	simBus := sim.NewBus(sim.NewServo(addr0, devices.EROBIdentity))

	lm, rec := newTestManager(t, cfg, simBus)
	require.NoError(t, lm.Start())
	defer lm.Shutdown(context.Background())

	slaves := lm.Slaves()
	require.Len(t, slaves, 2)
	assert.True(t, slaves[0].Active)
	assert.False(t, slaves[1].Active)
	assert.NotEmpty(t, slaves[1].Error)
	assert.Len(t, lm.Axes(), 1)

	require.Len(t, rec.sessions, 1)
	assert.Len(t, rec.sessions[0].Excluded, 1)
}

func TestLifecycleUnknownTemplate(t *testing.T) {
	cfg := testConfig(t)
	cfg.Slaves[1].Template = "does-not-exist"
	simBus := twoServos()

	lm, _ := newTestManager(t, cfg, simBus)
	require.Error(t, lm.Start())
	assert.Equal(t, StateError, lm.State())
	assert.Zero(t, simBus.Counters().Releases)
}

func TestValidateTransition(t *testing.T) {
	assert.NoError(t, ValidateTransition(StateInitializing, StateConfiguring))
	assert.NoError(t, ValidateTransition(StateConfiguring, StateOperational))
	assert.NoError(t, ValidateTransition(StateOperational, StateStopping))
	assert.NoError(t, ValidateTransition(StateError, StateStopping))
	assert.NoError(t, ValidateTransition(StateStopping, StateStopped))

	assert.Error(t, ValidateTransition(StateInitializing, StateOperational))
	assert.Error(t, ValidateTransition(StateStopped, StateOperational))
	assert.ErrorIs(t, ValidateTransition(StateOperational, StateConfiguring), ErrInvalidTransition)
	assert.ErrorIs(t, ValidateTransition(StateStopped, StateInitializing), ErrInvalidTransition)
	assert.Equal(t, "UNKNOWN", SystemState(42).String())
}

func freePort(t *testing.T) int {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := lis.Addr().(*net.TCPAddr).Port
	require.NoError(t, lis.Close())
	return port
}

func TestShutdownEndsOpenTelemetryStreams(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.GRPCPort = freePort(t)
	lm, _ := newTestManager(t, cfg, twoServos())
	require.NoError(t, lm.Start())

	conn, err := grpc.NewClient(fmt.Sprintf("127.0.0.1:%d", cfg.Server.GRPCPort),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	token, _, err := auth.NewJWTHandler(cfg.Auth.GetJWTSecret(), time.Hour).GenerateAccessToken("hmi", "operator")
	require.NoError(t, err)
	ctx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)

	stream, err := telemetryrpc.NewClient(conn).WatchAxes(ctx)
	require.NoError(t, err)
	first, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "OPERATIONAL", first.AsMap()["system"])

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, lm.Shutdown(shutdownCtx))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, StateStopped, lm.State())

	// the stream ends cleanly once the feed is closed
	for {
		if _, err := stream.Recv(); err != nil {
			break
		}
	}
}
