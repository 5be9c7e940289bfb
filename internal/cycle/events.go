package cycle

type EventKind int

const (
	EventStarted EventKind = iota
	EventFault
	EventRecovered
	EventOverrun
	EventFailSafe
	EventStopped
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventFault:
		return "fault"
	case EventRecovered:
		return "recovered"
	case EventOverrun:
		return "overrun"
	case EventFailSafe:
		return "fail_safe"
	case EventStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Event is reported by the loop on state changes. The loop never blocks on
// delivery; events that don't fit the channel are counted and dropped.
type Event struct {
	Kind  EventKind `json:"kind"`
	Cycle uint64    `json:"cycle"`
	// Time is the monotonic clock reading in ns.
	Time int64 `json:"time_ns"`
	// ConsecutiveFaults at the time of the event.
	ConsecutiveFaults uint64 `json:"consecutive_faults,omitempty"`
	WorkingCounter    uint16 `json:"working_counter"`
	ExpectedCounter   uint16 `json:"expected_counter"`
	LatencyNs         int64  `json:"latency_ns,omitempty"`
	Err               error  `json:"-"`
}
