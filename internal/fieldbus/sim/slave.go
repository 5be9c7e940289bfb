package sim

import "github.com/KevinKickass/OpenMotionCore/internal/types"

// CiA402 objects of the simulated servo
const (
	ObjControlword    uint16 = 0x6040
	ObjStatusword     uint16 = 0x6041
	ObjModeOfOp       uint16 = 0x6060
	ObjActualPosition uint16 = 0x6064
	ObjActualVelocity uint16 = 0x606C
	ObjTargetTorque   uint16 = 0x6071
	ObjActualTorque   uint16 = 0x6077
	ObjTargetPosition uint16 = 0x607A
	ObjTargetVelocity uint16 = 0x60FF
)

func objKey(index uint16, sub uint8) uint32 {
	return uint32(index)<<8 | uint32(sub)
}

// Slave is one simulated device on the bus. Fields are guarded by the owning Bus.
type Slave struct {
	Address  types.BusAddress
	Identity types.DeviceIdentity
	DC       bool

	// Step runs after every frame that carried outputs to this slave.
	Step func(s *Slave)

	objects map[uint32]uint64
	online  bool
}

// NewSlave creates a slave exposing the given mappable objects (all zero).
func NewSlave(addr types.BusAddress, id types.DeviceIdentity, objects ...uint16) *Slave {
	s := &Slave{
		Address:  addr,
		Identity: id,
		objects:  make(map[uint32]uint64, len(objects)),
		online:   true,
	}
	for _, idx := range objects {
		s.objects[objKey(idx, 0)] = 0
	}
	return s
}

// NewServo creates a CiA402 drive that follows its targets immediately.
func NewServo(addr types.BusAddress, id types.DeviceIdentity) *Slave {
	s := NewSlave(addr, id,
		ObjControlword, ObjStatusword, ObjModeOfOp,
		ObjTargetPosition, ObjTargetVelocity, ObjTargetTorque,
		ObjActualPosition, ObjActualVelocity, ObjActualTorque,
	)
	s.DC = true
	s.Step = FollowTargets
	return s
}

// FollowTargets copies targets to actual values and derives a statusword from the controlword.
func FollowTargets(s *Slave) {
	s.objects[objKey(ObjActualPosition, 0)] = s.objects[objKey(ObjTargetPosition, 0)]
	s.objects[objKey(ObjActualVelocity, 0)] = s.objects[objKey(ObjTargetVelocity, 0)]
	s.objects[objKey(ObjActualTorque, 0)] = s.objects[objKey(ObjTargetTorque, 0)]

	var sw uint64
	switch s.objects[objKey(ObjControlword, 0)] & 0x8f {
	case 0x06:
		sw = 0x21 // ready to switch on
	case 0x07:
		sw = 0x23 // switched on
	case 0x0f:
		sw = 0x27 // operation enabled
	default:
		sw = 0x40 // switch on disabled
	}
	s.objects[objKey(ObjStatusword, 0)] = sw
}

func (s *Slave) has(index uint16, sub uint8) bool {
	_, ok := s.objects[objKey(index, sub)]
	return ok
}

// Object returns the raw value of an object. Only call from Step or via Bus.
func (s *Slave) Object(index uint16, sub uint8) uint64 {
	return s.objects[objKey(index, sub)]
}

func (s *Slave) SetObject(index uint16, sub uint8, v uint64) {
	s.objects[objKey(index, sub)] = v
}

func putBits(buf []byte, bit uint64, width uint8, v uint64) {
	for i := uint64(0); i < uint64(width); i++ {
		pos := bit + i
		mask := byte(1) << (pos % 8)
		if v&(1<<i) != 0 {
			buf[pos/8] |= mask
		} else {
			buf[pos/8] &^= mask
		}
	}
}

func getBits(buf []byte, bit uint64, width uint8) uint64 {
	var v uint64
	for i := uint64(0); i < uint64(width); i++ {
		pos := bit + i
		if buf[pos/8]&(byte(1)<<(pos%8)) != 0 {
			v |= 1 << i
		}
	}
	return v
}
