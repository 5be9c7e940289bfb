package interfaces

import (
	"context"

	"github.com/KevinKickass/OpenMotionCore/internal/config"
	"github.com/KevinKickass/OpenMotionCore/internal/cycle"
	"github.com/KevinKickass/OpenMotionCore/internal/devices"
	"github.com/KevinKickass/OpenMotionCore/internal/drive"
	"github.com/KevinKickass/OpenMotionCore/internal/telemetry"
	"github.com/KevinKickass/OpenMotionCore/internal/types"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State     string `json:"state"`
	SessionID string `json:"session_id,omitempty"`
	Scheduler string `json:"scheduler"`
	Slaves    int    `json:"slaves"`
	Excluded  int    `json:"excluded"`
	Axes      int    `json:"axes"`
	Reference string `json:"reference_clock,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// SlaveInfo describes one configured slave, active or excluded.
type SlaveInfo struct {
	Name      string               `json:"name"`
	Address   types.BusAddress     `json:"address"`
	Identity  types.DeviceIdentity `json:"identity"`
	Template  string               `json:"template"`
	Entries   int                  `json:"entries"`
	DC        bool                 `json:"dc"`
	Reference bool                 `json:"reference_clock"`
	Active    bool                 `json:"active"`
	Error     string               `json:"error,omitempty"`
}

type LifecycleManager interface {
	Config() *config.Config
	Registry() *devices.Registry
	Streamer() *telemetry.Streamer
	GetCurrentStatus() SystemStatus
	Slaves() []SlaveInfo
	Stats() cycle.Stats
	Axes() []drive.AxisState
	Snapshot() telemetry.Snapshot
	// RequestStop asks the cyclic loop to terminate after the current cycle.
	RequestStop()
	Shutdown(ctx context.Context) error
}
