package devices

import "github.com/KevinKickass/OpenMotionCore/internal/types"

// EROBTemplateID names the built-in mapping for ZeroErr eRob joint actuators.
const EROBTemplateID = "erob-cia402"

// EROBIdentity is the vendor/product pair reported by eRob drives.
var EROBIdentity = types.DeviceIdentity{VendorID: 0x5a65726f, ProductCode: 0x00029252}

// CiA402 objects mapped by the eRob template
const (
	Controlword       uint16 = 0x6040
	Statusword        uint16 = 0x6041
	PositionActual    uint16 = 0x6064
	VelocityActual    uint16 = 0x606C
	TargetTorque      uint16 = 0x6071
	TorqueActual      uint16 = 0x6077
	TargetPosition    uint16 = 0x607A
	TargetVelocity    uint16 = 0x60FF
	assignActivateDC0 uint16 = 0x0300
)

// EROBTemplate returns a fresh copy of the built-in eRob mapping.
func EROBTemplate() *Template {
	return &Template{
		ID:          EROBTemplateID,
		Vendor:      "ZeroErr",
		Model:       "eRob",
		Description: "CiA402 servo, cyclic synchronous position with velocity and torque feed-forward",
		Identity:    EROBIdentity,
		Builtin:     true,
		DC:          types.DCConfig{AssignActivate: assignActivateDC0},
		Syncs: types.SyncManagerTable{
			{Index: 0, Direction: types.DirectionOutput, Watchdog: types.WatchdogDisable},
			{Index: 1, Direction: types.DirectionInput, Watchdog: types.WatchdogDisable},
			{Index: 2, Direction: types.DirectionOutput, Watchdog: types.WatchdogEnable, Pdos: []types.Pdo{{
				Index: 0x1600,
				Entries: []types.PdoEntry{
					{Index: Controlword, BitLength: 16, Name: "controlword"},
					{Index: TargetPosition, BitLength: 32, Name: "target_position"},
					{Index: TargetVelocity, BitLength: 32, Name: "target_velocity"},
					{Index: TargetTorque, BitLength: 16, Name: "target_torque"},
				},
			}}},
			{Index: 3, Direction: types.DirectionInput, Watchdog: types.WatchdogDisable, Pdos: []types.Pdo{{
				Index: 0x1A00,
				Entries: []types.PdoEntry{
					{Index: Statusword, BitLength: 16, Name: "statusword"},
					{Index: PositionActual, BitLength: 32, Name: "position_actual"},
					{Index: VelocityActual, BitLength: 32, Name: "velocity_actual"},
					{Index: TorqueActual, BitLength: 16, Name: "torque_actual"},
				},
			}}},
		},
	}
}
