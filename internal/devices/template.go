package devices

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/KevinKickass/OpenMotionCore/internal/types"
)

// Template is a validated PDO mapping for one device type.
type Template struct {
	ID          string                 `json:"id"`
	Vendor      string                 `json:"vendor"`
	Model       string                 `json:"model"`
	Description string                 `json:"description,omitempty"`
	Identity    types.DeviceIdentity   `json:"identity"`
	Syncs       types.SyncManagerTable `json:"sync_managers"`
	DC          types.DCConfig         `json:"dc"`
	Builtin     bool                   `json:"builtin"`
}

// Names maps (index<<8 | subindex) to the entry name given in the template.
func (t *Template) Names() map[uint32]string {
	names := make(map[uint32]string)
	for _, e := range t.Syncs.Entries() {
		if e.Name != "" {
			names[uint32(e.Index)<<8|uint32(e.SubIndex)] = e.Name
		}
	}
	return names
}

// hexValue accepts "0x1600" as well as plain JSON numbers.
type hexValue uint64

func (h *hexValue) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n uint64
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("invalid numeric value %s", b)
		}
		*h = hexValue(n)
		return nil
	}

	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 64)
	if err != nil {
		return fmt.Errorf("invalid hex value %q: %w", s, err)
	}
	*h = hexValue(v)
	return nil
}

// template file layout
type templateDocument struct {
	Template struct {
		ID          string `json:"id"`
		Vendor      string `json:"vendor"`
		Model       string `json:"model"`
		Version     string `json:"version"`
		Description string `json:"description"`
	} `json:"template"`
	Identity struct {
		VendorID    hexValue `json:"vendor_id"`
		ProductCode hexValue `json:"product_code"`
	} `json:"identity"`
	DC struct {
		AssignActivate hexValue `json:"assign_activate"`
		Sync0Shift     int32    `json:"sync0_shift_ns"`
		Sync1Cycle     uint32   `json:"sync1_cycle_ns"`
		Sync1Shift     int32    `json:"sync1_shift_ns"`
	} `json:"dc"`
	SyncManagers []struct {
		Index     uint8  `json:"index"`
		Direction string `json:"direction"`
		Watchdog  string `json:"watchdog"`
		Pdos      []struct {
			Index   hexValue `json:"index"`
			Entries []struct {
				Index    hexValue `json:"index"`
				SubIndex uint8    `json:"subindex"`
				Bits     uint8    `json:"bits"`
				Name     string   `json:"name"`
			} `json:"entries"`
		} `json:"pdos"`
	} `json:"sync_managers"`
}

func (doc *templateDocument) toTemplate() (*Template, error) {
	t := &Template{
		ID:          doc.Template.ID,
		Vendor:      doc.Template.Vendor,
		Model:       doc.Template.Model,
		Description: doc.Template.Description,
		Identity: types.DeviceIdentity{
			VendorID:    uint32(doc.Identity.VendorID),
			ProductCode: uint32(doc.Identity.ProductCode),
		},
		DC: types.DCConfig{
			AssignActivate: uint16(doc.DC.AssignActivate),
			Sync0Shift:     doc.DC.Sync0Shift,
			Sync1Cycle:     doc.DC.Sync1Cycle,
			Sync1Shift:     doc.DC.Sync1Shift,
		},
	}

	for _, sm := range doc.SyncManagers {
		dir, err := parseDirection(sm.Direction)
		if err != nil {
			return nil, fmt.Errorf("sync manager %d: %w", sm.Index, err)
		}

		out := types.SyncManager{
			Index:     sm.Index,
			Direction: dir,
			Watchdog:  parseWatchdog(sm.Watchdog),
		}
		for _, p := range sm.Pdos {
			pdo := types.Pdo{Index: uint16(p.Index)}
			for _, e := range p.Entries {
				pdo.Entries = append(pdo.Entries, types.PdoEntry{
					Index:     uint16(e.Index),
					SubIndex:  e.SubIndex,
					BitLength: e.Bits,
					Name:      e.Name,
				})
			}
			out.Pdos = append(out.Pdos, pdo)
		}
		t.Syncs = append(t.Syncs, out)
	}

	if err := t.Syncs.Validate(); err != nil {
		return nil, fmt.Errorf("template %s: %w", t.ID, err)
	}
	return t, nil
}

func parseDirection(s string) (types.Direction, error) {
	switch s {
	case "output":
		return types.DirectionOutput, nil
	case "input":
		return types.DirectionInput, nil
	default:
		return 0, fmt.Errorf("unknown direction %q", s)
	}
}

func parseWatchdog(s string) types.WatchdogMode {
	switch s {
	case "enable":
		return types.WatchdogEnable
	case "disable":
		return types.WatchdogDisable
	default:
		return types.WatchdogDefault
	}
}
