package bus

import (
	"errors"
	"fmt"
	"sync"

	"github.com/KevinKickass/OpenMotionCore/internal/fieldbus"
	"github.com/KevinKickass/OpenMotionCore/internal/image"
	"github.com/KevinKickass/OpenMotionCore/internal/types"
	"go.uber.org/zap"
)

type Options struct {
	MasterIndex uint
	// AllowPartial keeps the session running without slaves that failed to configure.
	AllowPartial bool
	// Reference names the reference clock slave. Empty selects the first DC capable slave.
	Reference string
}

// Exclusion records a slave that is not part of the process image.
type Exclusion struct {
	Spec types.SlaveSpec
	Err  error
}

// Session is an activated bus master with its finalized process image.
type Session struct {
	master   fieldbus.Master
	domain   fieldbus.Domain
	clock    *ClockSync
	slaves   []*SlaveConfig
	excluded []Exclusion
	image    *image.Image
	logger   *zap.Logger

	releaseOnce sync.Once
	releaseErr  error
}

// Open runs the whole configuration phase. On error every acquired resource is released.
func Open(driver fieldbus.Driver, specs []types.SlaveSpec, opts Options, logger *zap.Logger) (*Session, error) {
	master, err := driver.RequestMaster(opts.MasterIndex)
	if err != nil {
		return nil, types.NewConfigError(types.KindSessionUnavailable, "", nil, err)
	}

	s := &Session{
		master: master,
		clock:  NewClockSync(master, logger),
		logger: logger,
	}

	if err := s.configure(specs, opts); err != nil {
		s.Release()
		return nil, err
	}

	return s, nil
}

func (s *Session) configure(specs []types.SlaveSpec, opts Options) error {
	configurator := NewConfigurator(s.master, s.logger)

	var configured []*SlaveConfig
	for _, spec := range specs {
		sc, err := configurator.Configure(spec)
		if err != nil {
			s.exclude(spec, err)
			continue
		}
		configured = append(configured, sc)
	}

	domain, err := s.master.CreateDomain()
	if err != nil {
		return types.NewConfigError(types.KindDomainUnavailable, "", nil, err)
	}
	s.domain = domain

	layout := image.NewLayout()
	for _, sc := range configured {
		if err := s.register(layout, sc); err != nil {
			s.exclude(sc.Spec, err)
			continue
		}
		s.slaves = append(s.slaves, sc)
	}

	if len(s.excluded) > 0 && !opts.AllowPartial {
		errs := make([]error, 0, len(s.excluded))
		for _, ex := range s.excluded {
			errs = append(errs, ex.Err)
		}
		return fmt.Errorf("failed to configure %d of %d slaves: %w",
			len(s.excluded), len(specs), errors.Join(errs...))
	}
	if len(s.slaves) == 0 {
		return types.NewConfigError(types.KindDomainUnavailable, "", nil, errors.New("no slave registered"))
	}

	ref, err := s.pickReference(opts.Reference)
	if err != nil {
		return err
	}
	if ref != nil {
		if err := s.clock.SelectReference(ref); err != nil {
			return err
		}
	}

	if err := s.master.Activate(); err != nil {
		return types.NewConfigError(types.KindActivationFailed, "", nil, err)
	}

	data := s.domain.Data()
	if data == nil {
		return types.NewConfigError(types.KindDomainUnavailable, "", nil, errors.New("domain has no data"))
	}
	img, err := layout.Finalize(data)
	if err != nil {
		return types.NewConfigError(types.KindDomainUnavailable, "", nil, err)
	}
	s.image = img

	s.logger.Info("Bus session active",
		zap.Int("slaves", len(s.slaves)),
		zap.Int("excluded", len(s.excluded)),
		zap.Int("image_bytes", img.Size()),
		zap.Int("entries", layout.Len()))

	return nil
}

// register places all entries of one slave. The layout is only touched once
// the transport accepted every entry.
func (s *Session) register(layout *image.Layout, sc *SlaveConfig) error {
	spec := sc.Spec
	addr := spec.Address
	entries := spec.Syncs.Entries()

	reqs := make([]fieldbus.EntryRequest, len(entries))
	for i, e := range entries {
		reqs[i] = fieldbus.EntryRequest{
			Address:  addr,
			Identity: spec.Identity,
			Index:    e.Index,
			SubIndex: e.SubIndex,
		}
	}

	locs, err := s.domain.RegisterEntries(reqs)
	if err != nil {
		return types.NewConfigError(types.KindEntryRegistrationFailed, spec.Name, &addr, err)
	}
	if len(locs) != len(reqs) {
		return types.NewConfigError(types.KindEntryRegistrationFailed, spec.Name, &addr,
			fmt.Errorf("transport returned %d locations for %d entries", len(locs), len(reqs)))
	}

	for i, e := range entries {
		key := image.Key{Address: addr, Identity: spec.Identity, Index: e.Index, SubIndex: e.SubIndex}
		entry, err := layout.Add(key, e.BitLength, e.Direction)
		if err != nil {
			return types.NewConfigError(types.KindEntryRegistrationFailed, spec.Name, &addr, err)
		}
		if err := layout.Bind(entry, locs[i].ByteOffset, locs[i].BitPosition); err != nil {
			return types.NewConfigError(types.KindEntryRegistrationFailed, spec.Name, &addr, err)
		}
	}
	return nil
}

func (s *Session) exclude(spec types.SlaveSpec, err error) {
	s.logger.Error("Slave configuration failed",
		zap.String("slave", spec.Name),
		zap.Stringer("address", spec.Address),
		zap.Error(err))
	s.excluded = append(s.excluded, Exclusion{Spec: spec, Err: err})
}

func (s *Session) pickReference(name string) (*SlaveConfig, error) {
	if name != "" {
		for _, sc := range s.slaves {
			if sc.Spec.Name == name {
				return sc, nil
			}
		}
		return nil, types.NewConfigError(types.KindReferenceClockFailed, name, nil,
			errors.New("reference slave is not part of the session"))
	}

	for _, sc := range s.slaves {
		if sc.Spec.DC.Enabled() {
			return sc, nil
		}
	}

	// DC war verlangt, aber keiner der Slaves ist übrig geblieben
	for _, ex := range s.excluded {
		if ex.Spec.DC.Enabled() {
			return nil, types.NewConfigError(types.KindReferenceClockFailed, ex.Spec.Name, &ex.Spec.Address,
				errors.New("every slave using distributed clocks was excluded"))
		}
	}
	s.logger.Warn("No slave uses distributed clocks, running without reference clock")
	return nil, nil
}

func (s *Session) Master() fieldbus.Master { return s.master }
func (s *Session) Domain() fieldbus.Domain { return s.domain }
func (s *Session) Image() *image.Image     { return s.image }
func (s *Session) Clock() *ClockSync       { return s.clock }
func (s *Session) Slaves() []*SlaveConfig  { return s.slaves }
func (s *Session) Excluded() []Exclusion   { return s.excluded }

// Release gives the master back to the transport. Safe to call more than once.
func (s *Session) Release() error {
	s.releaseOnce.Do(func() {
		if err := s.master.Release(); err != nil {
			s.releaseErr = fmt.Errorf("failed to release master: %w", err)
			s.logger.Error("Bus session release failed", zap.Error(err))
			return
		}
		s.logger.Info("Bus session released")
	})
	return s.releaseErr
}
