// Package rt prepares the calling thread and process for the cyclic loop.
package rt

type Options struct {
	// Disabled skips scheduling policy, memory locking and affinity. The
	// thread is still locked.
	Disabled bool `mapstructure:"disabled"`
	// Priority is the SCHED_FIFO priority; 0 selects the maximum.
	Priority int `mapstructure:"priority"`
	// LockMemory locks all current and future pages. Failure is fatal.
	LockMemory bool `mapstructure:"lock_memory"`
	// CPU pins the thread to one core; negative leaves the affinity alone.
	CPU int `mapstructure:"cpu"`
}

const maxFIFOPriority = 99

func (o Options) priority() int {
	if o.Priority <= 0 || o.Priority > maxFIFOPriority {
		return maxFIFOPriority
	}
	return o.Priority
}
