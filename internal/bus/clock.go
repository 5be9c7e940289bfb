package bus

import (
	"errors"
	"sync"

	"github.com/KevinKickass/OpenMotionCore/internal/fieldbus"
	"github.com/KevinKickass/OpenMotionCore/internal/types"
	"go.uber.org/zap"
)

var ErrTimeBaseEstablished = errors.New("application time base already established")

// ClockSync selects the distributed clock reference and hands the initial
// application time to the transport.
type ClockSync struct {
	master    fieldbus.Master
	mu        sync.Mutex
	reference *SlaveConfig
	epochNs   int64
	done      bool
	logger    *zap.Logger
}

func NewClockSync(master fieldbus.Master, logger *zap.Logger) *ClockSync {
	return &ClockSync{master: master, logger: logger}
}

func (c *ClockSync) SelectReference(sc *SlaveConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	addr := sc.Spec.Address
	if err := c.master.SelectReferenceClock(sc.handle); err != nil {
		return types.NewConfigError(types.KindReferenceClockFailed, sc.Spec.Name, &addr, err)
	}
	c.reference = sc

	c.logger.Info("Reference clock selected",
		zap.String("slave", sc.Spec.Name),
		zap.Stringer("address", addr))
	return nil
}

// EstablishTimeBase sets the application time epoch. It may be called once.
func (c *ClockSync) EstablishTimeBase(nowNs int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done {
		return ErrTimeBaseEstablished
	}
	c.master.SetApplicationTime(uint64(nowNs))
	c.epochNs = nowNs
	c.done = true

	c.logger.Info("Application time base established", zap.Int64("epoch_ns", nowNs))
	return nil
}

func (c *ClockSync) Reference() *SlaveConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reference
}

// Epoch returns the established epoch and whether it was set.
func (c *ClockSync) Epoch() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epochNs, c.done
}
