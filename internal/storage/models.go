package storage

import (
	"time"

	"github.com/google/uuid"
)

// SlaveRecord is the persisted view of one configured slave.
type SlaveRecord struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	Identity string `json:"identity"`
	Template string `json:"template"`
	Error    string `json:"error,omitempty"`
}

type BusSession struct {
	ID          uuid.UUID     `json:"id"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
	MasterIndex int           `json:"master_index"`
	Slaves      []SlaveRecord `json:"slaves"`
	Excluded    []SlaveRecord `json:"excluded"`
	ImageBytes  int           `json:"image_bytes"`
	Cycles      uint64        `json:"cycles"`
	Faults      uint64        `json:"faults"`
	Overruns    uint64        `json:"overruns"`
	ExitReason  *string       `json:"exit_reason,omitempty"`
}

type BusFault struct {
	ID                int64     `json:"id"`
	SessionID         uuid.UUID `json:"session_id"`
	RecordedAt        time.Time `json:"recorded_at"`
	Kind              string    `json:"kind"`
	Cycle             uint64    `json:"cycle"`
	ConsecutiveFaults uint64    `json:"consecutive_faults"`
	WorkingCounter    uint16    `json:"working_counter"`
	ExpectedCounter   uint16    `json:"expected_counter"`
	Message           string    `json:"message,omitempty"`
}
