package devices

import (
	"errors"
	"fmt"

	"github.com/KevinKickass/OpenMotionCore/internal/types"
	"go.uber.org/zap"
)

// SlaveBinding is one configured slave before its template is resolved.
// Zero VendorID/ProductCode means "use the template identity".
type SlaveBinding struct {
	Name        string
	Alias       uint16
	Position    uint16
	VendorID    uint32
	ProductCode uint32
	Template    string
}

type Composer struct {
	registry *Registry
	logger   *zap.Logger
}

func NewComposer(registry *Registry, logger *zap.Logger) *Composer {
	return &Composer{
		registry: registry,
		logger:   logger,
	}
}

// Compose resolves every binding into a SlaveSpec. All bindings are checked;
// the returned error joins every problem found.
func (c *Composer) Compose(bindings []SlaveBinding) ([]types.SlaveSpec, error) {
	if len(bindings) == 0 {
		return nil, errors.New("no slaves configured")
	}

	specs := make([]types.SlaveSpec, 0, len(bindings))
	names := make(map[string]bool, len(bindings))
	addrs := make(map[types.BusAddress]string, len(bindings))
	var errs []error

	for i, b := range bindings {
		name := b.Name
		if name == "" {
			name = fmt.Sprintf("slave%d", i)
		}
		addr := types.BusAddress{Alias: b.Alias, Position: b.Position}

		if names[name] {
			errs = append(errs, fmt.Errorf("slave name %q used twice", name))
			continue
		}
		names[name] = true

		if other, dup := addrs[addr]; dup {
			errs = append(errs, fmt.Errorf("slave %s: address %s already used by %s", name, addr, other))
			continue
		}
		addrs[addr] = name

		tmplName := b.Template
		if tmplName == "" {
			tmplName = EROBTemplateID
		}
		tmpl, err := c.registry.Lookup(tmplName)
		if err != nil {
			errs = append(errs, fmt.Errorf("slave %s: %w", name, err))
			continue
		}

		id := tmpl.Identity
		if b.VendorID != 0 || b.ProductCode != 0 {
			id = types.DeviceIdentity{VendorID: b.VendorID, ProductCode: b.ProductCode}
			if id != tmpl.Identity {
				c.logger.Warn("Slave identity differs from template",
					zap.String("slave", name),
					zap.String("identity", id.String()),
					zap.String("template_identity", tmpl.Identity.String()))
			}
		}

		specs = append(specs, types.SlaveSpec{
			Name:     name,
			Address:  addr,
			Identity: id,
			Syncs:    tmpl.Syncs,
			DC:       tmpl.DC,
			Template: tmpl.ID,
		})

		c.logger.Debug("Slave composed",
			zap.String("slave", name),
			zap.Stringer("address", addr),
			zap.String("template", tmpl.ID))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return specs, nil
}
