package cycle

// Clock is the monotonic time source of the loop. SleepUntil blocks until the
// absolute deadline (ns on the same scale as Now) has passed and returns
// immediately if it already has.
type Clock interface {
	Now() int64
	SleepUntil(deadline int64)
}

// CycleClock is the absolute wake-up schedule. Every target is the previous
// target plus one period; "now" never enters the computation.
type CycleClock struct {
	next   int64
	period int64
}

func NewCycleClock(start, period int64) CycleClock {
	return CycleClock{next: start, period: period}
}

// Next returns the current wake-up target.
func (c *CycleClock) Next() int64 { return c.next }

// Advance moves the target by exactly one period.
func (c *CycleClock) Advance() { c.next += c.period }

func (c *CycleClock) Period() int64 { return c.period }
