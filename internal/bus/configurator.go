// Package bus opens and configures a bus session: slave configuration, entry
// registration into the shared process image, reference clock selection and
// activation.
package bus

import (
	"github.com/KevinKickass/OpenMotionCore/internal/fieldbus"
	"github.com/KevinKickass/OpenMotionCore/internal/types"
	"go.uber.org/zap"
)

// PeriodNs is the fixed cycle period (1 kHz).
const PeriodNs = 1_000_000

// SlaveConfig binds a SlaveSpec to the transport's configuration handle.
type SlaveConfig struct {
	Spec   types.SlaveSpec
	handle fieldbus.SlaveConfig
}

func (c *SlaveConfig) Handle() fieldbus.SlaveConfig { return c.handle }

type Configurator struct {
	master fieldbus.Master
	logger *zap.Logger
}

func NewConfigurator(master fieldbus.Master, logger *zap.Logger) *Configurator {
	return &Configurator{
		master: master,
		logger: logger,
	}
}

// Configure creates the slave's configuration handle, submits its PDO mapping
// and, if the template enables it, the distributed clock parameters.
func (c *Configurator) Configure(spec types.SlaveSpec) (*SlaveConfig, error) {
	addr := spec.Address

	handle, err := c.master.SlaveConfig(addr, spec.Identity)
	if err != nil {
		return nil, types.NewConfigError(types.KindSlaveUnavailable, spec.Name, &addr, err)
	}

	if err := handle.ConfigPDOs(spec.Syncs); err != nil {
		return nil, types.NewConfigError(types.KindPdoMappingRejected, spec.Name, &addr, err)
	}

	if spec.DC.Enabled() {
		dc := spec.DC
		dc.Sync0Cycle = PeriodNs
		handle.ConfigDC(dc)
	}

	c.logger.Info("Slave configured",
		zap.String("slave", spec.Name),
		zap.Stringer("address", addr),
		zap.Stringer("identity", spec.Identity),
		zap.Int("entries", len(spec.Syncs.Entries())),
		zap.Bool("dc", spec.DC.Enabled()))

	return &SlaveConfig{Spec: spec, handle: handle}, nil
}
