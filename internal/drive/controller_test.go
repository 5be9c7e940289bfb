package drive

import (
	"runtime"
	"testing"
	"time"

	"github.com/KevinKickass/OpenMotionCore/internal/bus"
	"github.com/KevinKickass/OpenMotionCore/internal/devices"
	"github.com/KevinKickass/OpenMotionCore/internal/fieldbus/sim"
	"github.com/KevinKickass/OpenMotionCore/internal/image"
	"github.com/KevinKickass/OpenMotionCore/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func spec(name string, pos uint16) types.SlaveSpec {
	tmpl := devices.EROBTemplate()
	return types.SlaveSpec{
		Name:     name,
		Address:  types.BusAddress{Position: pos},
		Identity: tmpl.Identity,
		Syncs:    tmpl.Syncs,
		DC:       tmpl.DC,
	}
}

func openAxes(t *testing.T) (*image.Image, *Controller) {
	t.Helper()
	simBus := sim.NewBus(
		sim.NewServo(types.BusAddress{Position: 0}, devices.EROBIdentity),
		sim.NewServo(types.BusAddress{Position: 1}, devices.EROBIdentity),
	)
	specs := []types.SlaveSpec{spec("axis0", 0), spec("axis1", 1)}
	s, err := bus.Open(simBus, specs, bus.Options{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Release() })

	axes := make([]*Axis, 0, len(specs))
	for _, sp := range specs {
		a, err := NewAxis(s.Image().Layout(), sp)
		require.NoError(t, err)
		axes = append(axes, a)
	}
	return s.Image(), NewController(axes)
}

func TestStepCopiesActualPositionToTarget(t *testing.T) {
	img, ctrl := openAxes(t)
	a0, a1 := ctrl.Axes()[0], ctrl.Axes()[1]

	a0.actualPosition.Write(img, 12345)
	a1.actualPosition.Write(img, -98765)
	a0.actualTorque.Write(img, -300)
	a0.controlword.Write(img, 0x000f)

	ctrl.Step(img)

	assert.Equal(t, int32(12345), a0.targetPosition.Read(img))
	assert.Equal(t, int32(-98765), a1.targetPosition.Read(img))
	assert.Equal(t, int16(-300), a0.targetTorque.Read(img))
	assert.Equal(t, uint16(0x000f), a0.controlword.Read(img), "controlword is held")
}

func TestStepIsIdempotentForConstantActual(t *testing.T) {
	img, ctrl := openAxes(t)
	a := ctrl.Axes()[0]
	a.actualPosition.Write(img, 4242)
	a.actualVelocity.Write(img, 17)

	for i := 0; i < 5; i++ {
		ctrl.Step(img)
		assert.Equal(t, int32(4242), a.targetPosition.Read(img))
		assert.Equal(t, int32(17), a.targetVelocity.Read(img))
	}

	st := a.State()
	assert.Equal(t, uint64(5), st.Updates)
	assert.Equal(t, int32(4242), st.ActualPosition)
	assert.Equal(t, int32(4242), st.TargetPosition)
	assert.Equal(t, "axis0", st.Name)
}

func TestStatesBeforeFirstStep(t *testing.T) {
	_, ctrl := openAxes(t)
	states := ctrl.States()
	require.Len(t, states, 2)
	assert.Zero(t, states[1].Updates)
	assert.Equal(t, types.BusAddress{Position: 1}, states[1].Address)
}

func TestNewAxisRejectsNonServo(t *testing.T) {
	l := image.NewLayout()
	sp := spec("io", 5)
	_, err := l.Add(image.Key{Address: sp.Address, Identity: sp.Identity, Index: devices.Statusword}, 16, types.DirectionInput)
	require.NoError(t, err)

	_, err = NewAxis(l, sp)
	assert.ErrorIs(t, err, ErrNotAnAxis)
}

func TestStateWaitsForPublishInProgress(t *testing.T) {
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(1))

	a := &Axis{Name: "axis0"}
	a.state.publish(0x27, 0x0f, 10, 10, 0, 0, 0, 0)

	// writer preempted halfway through the next publish
	a.state.seq.Add(1)
	a.state.actualPosition.Store(20)

	got := make(chan AxisState, 1)
	go func() { got <- a.State() }()

	select {
	case <-got:
		t.Fatal("read a half-published state")
	case <-time.After(20 * time.Millisecond):
	}

	a.state.targetPosition.Store(20)
	a.state.seq.Add(1)

	select {
	case st := <-got:
		assert.Equal(t, int32(20), st.ActualPosition)
		assert.Equal(t, int32(20), st.TargetPosition)
		assert.Equal(t, uint64(2), st.Updates)
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not finish after the publish completed")
	}
}
