package cycle

import "sync/atomic"

// Stats is a point-in-time copy of the loop counters.
type Stats struct {
	State             State  `json:"state"`
	Cycles            uint64 `json:"cycles"`
	Faults            uint64 `json:"faults"`
	ConsecutiveFaults uint64 `json:"consecutive_faults"`
	Overruns          uint64 `json:"overruns"`
	DroppedEvents     uint64 `json:"dropped_events"`
	LastLatencyNs     int64  `json:"last_latency_ns"`
	MaxLatencyNs      int64  `json:"max_latency_ns"`
	WorkingCounter    uint16 `json:"working_counter"`
	ExpectedCounter   uint16 `json:"expected_counter"`
	PeriodNs          int64  `json:"period_ns"`
}

type counters struct {
	cycles        atomic.Uint64
	faults        atomic.Uint64
	consecutive   atomic.Uint64
	overruns      atomic.Uint64
	droppedEvents atomic.Uint64
	lastLatency   atomic.Int64
	maxLatency    atomic.Int64
	// working counter in the low 16 bits, expected in the next 16
	wkc atomic.Uint32
}

func (c *counters) latency(ns int64) {
	c.lastLatency.Store(ns)
	if ns > c.maxLatency.Load() {
		c.maxLatency.Store(ns)
	}
}
