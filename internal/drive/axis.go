// Package drive holds the per-slave application logic run inside the cycle.
package drive

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/KevinKickass/OpenMotionCore/internal/devices"
	"github.com/KevinKickass/OpenMotionCore/internal/image"
	"github.com/KevinKickass/OpenMotionCore/internal/types"
)

var ErrNotAnAxis = errors.New("slave does not map the CiA402 axis objects")

// Axis is the set of typed CiA402 slots of one servo slave.
type Axis struct {
	Name    string
	Address types.BusAddress

	controlword    image.Uint16
	targetPosition image.Int32
	targetVelocity image.Int32
	targetTorque   image.Int16

	statusword     image.Uint16
	actualPosition image.Int32
	actualVelocity image.Int32
	actualTorque   image.Int16

	state axisState
}

// NewAxis resolves the axis slots from a finalized or still open layout.
func NewAxis(layout *image.Layout, spec types.SlaveSpec) (*Axis, error) {
	a := &Axis{Name: spec.Name, Address: spec.Address}
	key := func(index uint16) image.Key {
		return image.Key{Address: spec.Address, Identity: spec.Identity, Index: index}
	}

	var err error
	resolve16 := func(dst *image.Uint16, index uint16) {
		if err == nil {
			*dst, err = layout.Uint16(key(index))
		}
	}
	resolveI16 := func(dst *image.Int16, index uint16) {
		if err == nil {
			*dst, err = layout.Int16(key(index))
		}
	}
	resolve32 := func(dst *image.Int32, index uint16) {
		if err == nil {
			*dst, err = layout.Int32(key(index))
		}
	}

	resolve16(&a.controlword, devices.Controlword)
	resolve32(&a.targetPosition, devices.TargetPosition)
	resolve32(&a.targetVelocity, devices.TargetVelocity)
	resolveI16(&a.targetTorque, devices.TargetTorque)
	resolve16(&a.statusword, devices.Statusword)
	resolve32(&a.actualPosition, devices.PositionActual)
	resolve32(&a.actualVelocity, devices.VelocityActual)
	resolveI16(&a.actualTorque, devices.TorqueActual)

	if err != nil {
		if errors.Is(err, image.ErrUnknownEntry) {
			return nil, fmt.Errorf("%w: %s: %v", ErrNotAnAxis, spec.Name, err)
		}
		return nil, fmt.Errorf("failed to resolve axis %s: %w", spec.Name, err)
	}
	return a, nil
}

// AxisState is a consistent copy of the values exchanged with one axis in a cycle.
type AxisState struct {
	Name           string           `json:"name"`
	Address        types.BusAddress `json:"address"`
	Statusword     uint16           `json:"statusword"`
	Controlword    uint16           `json:"controlword"`
	ActualPosition int32            `json:"actual_position"`
	TargetPosition int32            `json:"target_position"`
	ActualVelocity int32            `json:"actual_velocity"`
	TargetVelocity int32            `json:"target_velocity"`
	ActualTorque   int16            `json:"actual_torque"`
	TargetTorque   int16            `json:"target_torque"`
	Updates        uint64           `json:"updates"`
}

// axisState is written by the cycle thread only and read by anyone. The
// sequence counter is odd while a write is in progress.
type axisState struct {
	seq            atomic.Uint64
	statusword     atomic.Uint32
	controlword    atomic.Uint32
	actualPosition atomic.Int32
	targetPosition atomic.Int32
	actualVelocity atomic.Int32
	targetVelocity atomic.Int32
	actualTorque   atomic.Int32
	targetTorque   atomic.Int32
}

func (s *axisState) publish(sw, cw uint16, ap, tp, av, tv int32, at, tt int16) {
	s.seq.Add(1)
	s.statusword.Store(uint32(sw))
	s.controlword.Store(uint32(cw))
	s.actualPosition.Store(ap)
	s.targetPosition.Store(tp)
	s.actualVelocity.Store(av)
	s.targetVelocity.Store(tv)
	s.actualTorque.Store(int32(at))
	s.targetTorque.Store(int32(tt))
	s.seq.Add(1)
}

// State returns the values published by the last application step.
func (a *Axis) State() AxisState {
	for {
		before := a.state.seq.Load()
		if before%2 == 1 {
			// Schreiber mitten im publish; ohne RT kann er verdrängt sein
			runtime.Gosched()
			continue
		}
		st := AxisState{
			Name:           a.Name,
			Address:        a.Address,
			Statusword:     uint16(a.state.statusword.Load()),
			Controlword:    uint16(a.state.controlword.Load()),
			ActualPosition: a.state.actualPosition.Load(),
			TargetPosition: a.state.targetPosition.Load(),
			ActualVelocity: a.state.actualVelocity.Load(),
			TargetVelocity: a.state.targetVelocity.Load(),
			ActualTorque:   int16(a.state.actualTorque.Load()),
			TargetTorque:   int16(a.state.targetTorque.Load()),
			Updates:        before / 2,
		}
		if a.state.seq.Load() == before {
			return st
		}
	}
}
