package types

import "fmt"

// DeviceIdentity identifies the logical type of a slave.
type DeviceIdentity struct {
	VendorID    uint32 `json:"vendor_id" mapstructure:"vendor_id"`
	ProductCode uint32 `json:"product_code" mapstructure:"product_code"`
}

func (d DeviceIdentity) String() string {
	return fmt.Sprintf("0x%08x:0x%08x", d.VendorID, d.ProductCode)
}

// BusAddress identifies the physical location of a slave on the bus.
type BusAddress struct {
	Alias    uint16 `json:"alias" mapstructure:"alias"`
	Position uint16 `json:"position" mapstructure:"position"`
}

func (a BusAddress) String() string {
	return fmt.Sprintf("%d:%d", a.Alias, a.Position)
}

// DCConfig holds the distributed clock activation parameters of one slave.
type DCConfig struct {
	AssignActivate uint16 `json:"assign_activate"`
	Sync0Cycle     uint32 `json:"sync0_cycle_ns"`
	Sync0Shift     int32  `json:"sync0_shift_ns"`
	Sync1Cycle     uint32 `json:"sync1_cycle_ns"`
	Sync1Shift     int32  `json:"sync1_shift_ns"`
}

// Enabled reports whether any sync signal is activated.
func (d DCConfig) Enabled() bool {
	return d.AssignActivate != 0
}

// SlaveSpec describes one physical slave as configured for a deployment
type SlaveSpec struct {
	Name     string
	Address  BusAddress
	Identity DeviceIdentity
	Syncs    SyncManagerTable
	DC       DCConfig
	Template string
}
