package telemetry

import (
	"time"

	"github.com/KevinKickass/OpenMotionCore/internal/cycle"
	"github.com/KevinKickass/OpenMotionCore/internal/drive"
)

// Snapshot is the externally visible state of the running system.
type Snapshot struct {
	Time      time.Time         `json:"time"`
	System    string            `json:"system"`
	SessionID string            `json:"session_id,omitempty"`
	Scheduler cycle.State       `json:"scheduler"`
	Stats     cycle.Stats       `json:"stats"`
	Axes      []drive.AxisState `json:"axes"`
}

// Source produces snapshots on demand. It is called from the sampler
// goroutine, never from the cyclic loop.
type Source interface {
	Snapshot() Snapshot
}

type SourceFunc func() Snapshot

func (f SourceFunc) Snapshot() Snapshot { return f() }

type Kind string

const (
	KindSnapshot Kind = "snapshot"
	KindBusEvent Kind = "bus_event"
	KindStatus   Kind = "system_status"
)

// Message is what subscribers receive. Exactly one of Snapshot, Event or
// Status is set, depending on Kind.
type Message struct {
	Kind     Kind         `json:"kind"`
	Time     time.Time    `json:"time"`
	Snapshot *Snapshot    `json:"snapshot,omitempty"`
	Event    *cycle.Event `json:"event,omitempty"`
	Status   string       `json:"status,omitempty"`
	Error    string       `json:"error,omitempty"`
}

func SnapshotMessage(s Snapshot) *Message {
	return &Message{Kind: KindSnapshot, Time: s.Time, Snapshot: &s}
}

func EventMessage(ev cycle.Event) *Message {
	msg := &Message{Kind: KindBusEvent, Time: time.Now(), Event: &ev}
	if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}
	return msg
}

func StatusMessage(status string) *Message {
	return &Message{Kind: KindStatus, Time: time.Now(), Status: status}
}
