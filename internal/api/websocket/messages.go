package websocket

import (
	"time"

	"github.com/KevinKickass/OpenMotionCore/internal/cycle"
	"github.com/KevinKickass/OpenMotionCore/internal/drive"
	"github.com/KevinKickass/OpenMotionCore/internal/telemetry"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	MessageTypeAxisState    MessageType = "axis_state"
	MessageTypeBusEvent     MessageType = "bus_event"
	MessageTypeSystemStatus MessageType = "system_status"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

type AxisStateData struct {
	System string            `json:"system"`
	Cycle  uint64            `json:"cycle"`
	Stats  cycle.Stats       `json:"stats"`
	Axes   []drive.AxisState `json:"axes"`
}

type BusEventData struct {
	Kind              cycle.EventKind `json:"kind"`
	Cycle             uint64          `json:"cycle"`
	ConsecutiveFaults uint64          `json:"consecutive_faults"`
	WorkingCounter    uint16          `json:"working_counter"`
	ExpectedCounter   uint16          `json:"expected_counter"`
	Error             string          `json:"error,omitempty"`
}

type SystemStatusData struct {
	State string `json:"state"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// fromTelemetry maps a streamer message to its wire form.
func fromTelemetry(m *telemetry.Message) (Message, bool) {
	switch m.Kind {
	case telemetry.KindSnapshot:
		if m.Snapshot == nil {
			return Message{}, false
		}
		return Message{
			Type:      MessageTypeAxisState,
			Timestamp: m.Time,
			Data: AxisStateData{
				System: m.Snapshot.System,
				Cycle:  m.Snapshot.Stats.Cycles,
				Stats:  m.Snapshot.Stats,
				Axes:   m.Snapshot.Axes,
			},
		}, true
	case telemetry.KindBusEvent:
		if m.Event == nil {
			return Message{}, false
		}
		return Message{
			Type:      MessageTypeBusEvent,
			Timestamp: m.Time,
			Data: BusEventData{
				Kind:              m.Event.Kind,
				Cycle:             m.Event.Cycle,
				ConsecutiveFaults: m.Event.ConsecutiveFaults,
				WorkingCounter:    m.Event.WorkingCounter,
				ExpectedCounter:   m.Event.ExpectedCounter,
				Error:             m.Error,
			},
		}, true
	case telemetry.KindStatus:
		return Message{
			Type:      MessageTypeSystemStatus,
			Timestamp: m.Time,
			Data:      SystemStatusData{State: m.Status},
		}, true
	default:
		return Message{}, false
	}
}
