// Package fieldbus defines the narrow surface the motion core consumes from the
// bus transport (master driver). Implementations own frames, slave discovery
// and the domain memory.
package fieldbus

import (
	"errors"

	"github.com/KevinKickass/OpenMotionCore/internal/types"
)

var ErrReleased = errors.New("master already released")

// Driver hands out master sessions.
type Driver interface {
	RequestMaster(index uint) (Master, error)
}

// Master is one acquired bus session.
type Master interface {
	SlaveConfig(addr types.BusAddress, id types.DeviceIdentity) (SlaveConfig, error)
	CreateDomain() (Domain, error)
	SelectReferenceClock(sc SlaveConfig) error
	Activate() error
	SetApplicationTime(epochNs uint64)

	// Receive pulls the latest frames, Send transmits queued domains.
	Receive() error
	Send() error

	Release() error
}

// SlaveConfig is the transport-owned configuration handle of one slave.
type SlaveConfig interface {
	Address() types.BusAddress
	Identity() types.DeviceIdentity
	ConfigPDOs(syncs types.SyncManagerTable) error
	ConfigDC(dc types.DCConfig)
}

// EntryRequest asks the transport to place one PDO entry into a domain.
type EntryRequest struct {
	Address  types.BusAddress
	Identity types.DeviceIdentity
	Index    uint16
	SubIndex uint8
}

// EntryLocation is where the transport placed an entry.
type EntryLocation struct {
	ByteOffset  uint32
	BitPosition uint8
}

// DomainState reports the working counter of the last exchange.
type DomainState struct {
	WorkingCounter  uint16
	ExpectedCounter uint16
}

// Complete reports whether every slave answered.
func (s DomainState) Complete() bool {
	return s.ExpectedCounter > 0 && s.WorkingCounter == s.ExpectedCounter
}

// Domain is the transport's handle on one process image.
type Domain interface {
	// RegisterEntries returns one location per request, in request order.
	RegisterEntries(reqs []EntryRequest) ([]EntryLocation, error)
	// Data returns the image buffer; nil before the master is activated.
	Data() []byte
	Process() error
	Queue() error
	State() DomainState
}
