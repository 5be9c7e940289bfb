package types

import "fmt"

// PdoEntry describes one addressable value inside a PDO.
type PdoEntry struct {
	Index     uint16 `json:"index"`
	SubIndex  uint8  `json:"subindex"`
	BitLength uint8  `json:"bits"`
	Name      string `json:"name,omitempty"`
}

// Pdo is one mapped process data object.
type Pdo struct {
	Index   uint16     `json:"index"`
	Entries []PdoEntry `json:"entries"`
}

type Direction int

const (
	DirectionOutput Direction = iota // master -> slave (RxPDO)
	DirectionInput                   // slave -> master (TxPDO)
)

func (d Direction) String() string {
	switch d {
	case DirectionOutput:
		return "output"
	case DirectionInput:
		return "input"
	default:
		return "unknown"
	}
}

type WatchdogMode int

const (
	WatchdogDefault WatchdogMode = iota
	WatchdogEnable
	WatchdogDisable
)

func (w WatchdogMode) String() string {
	switch w {
	case WatchdogEnable:
		return "enable"
	case WatchdogDisable:
		return "disable"
	default:
		return "default"
	}
}

// SyncManager maps PDOs onto one sync manager slot. Pdos may be empty.
type SyncManager struct {
	Index     uint8        `json:"index"`
	Direction Direction    `json:"direction"`
	Watchdog  WatchdogMode `json:"watchdog"`
	Pdos      []Pdo        `json:"pdos"`
}

// SyncManagerTable is the complete sync manager assignment of one slave.
type SyncManagerTable []SyncManager

const maxSyncManagers = 16

// PDO mapping object ranges
const (
	rxPdoFirst uint16 = 0x1600
	rxPdoLast  uint16 = 0x17FF
	txPdoFirst uint16 = 0x1A00
	txPdoLast  uint16 = 0x1BFF
)

// Validate checks the table for structural consistency.
func (t SyncManagerTable) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("sync manager table is empty")
	}

	seenSM := make(map[uint8]bool, len(t))
	seenPdo := make(map[uint16]bool)
	seenEntry := make(map[uint32]bool)

	for _, sm := range t {
		if sm.Index >= maxSyncManagers {
			return fmt.Errorf("sync manager index %d out of range", sm.Index)
		}
		if seenSM[sm.Index] {
			return fmt.Errorf("sync manager %d assigned twice", sm.Index)
		}
		seenSM[sm.Index] = true

		if sm.Direction != DirectionOutput && sm.Direction != DirectionInput {
			return fmt.Errorf("sync manager %d: invalid direction %d", sm.Index, sm.Direction)
		}

		for _, pdo := range sm.Pdos {
			if err := checkPdoRange(sm.Direction, pdo.Index); err != nil {
				return fmt.Errorf("sync manager %d: %w", sm.Index, err)
			}
			if seenPdo[pdo.Index] {
				return fmt.Errorf("pdo 0x%04x mapped twice", pdo.Index)
			}
			seenPdo[pdo.Index] = true

			if len(pdo.Entries) == 0 {
				return fmt.Errorf("pdo 0x%04x has no entries", pdo.Index)
			}

			for _, e := range pdo.Entries {
				if e.BitLength == 0 || e.BitLength > 64 {
					return fmt.Errorf("pdo 0x%04x entry 0x%04x:%02x: invalid bit length %d",
						pdo.Index, e.Index, e.SubIndex, e.BitLength)
				}
				// Padding-Einträge (index 0) dürfen mehrfach vorkommen
				if e.Index == 0 {
					continue
				}
				key := uint32(e.Index)<<8 | uint32(e.SubIndex)
				if seenEntry[key] {
					return fmt.Errorf("entry 0x%04x:%02x mapped twice", e.Index, e.SubIndex)
				}
				seenEntry[key] = true
			}
		}
	}

	return nil
}

func checkPdoRange(dir Direction, index uint16) error {
	switch dir {
	case DirectionOutput:
		if index < rxPdoFirst || index > rxPdoLast {
			return fmt.Errorf("pdo 0x%04x is not a receive pdo", index)
		}
	case DirectionInput:
		if index < txPdoFirst || index > txPdoLast {
			return fmt.Errorf("pdo 0x%04x is not a transmit pdo", index)
		}
	}
	return nil
}

// Entries returns every non-padding entry in mapping order together with its direction.
func (t SyncManagerTable) Entries() []MappedEntry {
	out := make([]MappedEntry, 0)
	for _, sm := range t {
		for _, pdo := range sm.Pdos {
			for _, e := range pdo.Entries {
				if e.Index == 0 {
					continue
				}
				out = append(out, MappedEntry{PdoEntry: e, Pdo: pdo.Index, Direction: sm.Direction})
			}
		}
	}
	return out
}

// MappedEntry is a PdoEntry with the PDO and direction it belongs to.
type MappedEntry struct {
	PdoEntry
	Pdo       uint16
	Direction Direction
}
