// Package sim owns the state of one simulation: the unit system, catalog,
// force field, box, particle stores, component registry, random pool and
// Widom estimators. It applies accepted moves to every piece of state
// together and checks the invariants that span them.
package sim

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/pthm-cable/gomc/box"
	"github.com/pthm-cable/gomc/catalog"
	"github.com/pthm-cable/gomc/components"
	"github.com/pthm-cable/gomc/config"
	"github.com/pthm-cable/gomc/device"
	"github.com/pthm-cable/gomc/forcefield"
	"github.com/pthm-cable/gomc/kernel"
	"github.com/pthm-cable/gomc/moves"
	"github.com/pthm-cable/gomc/particles"
	"github.com/pthm-cable/gomc/rng"
	"github.com/pthm-cable/gomc/telemetry"
	"github.com/pthm-cable/gomc/units"
	"github.com/pthm-cable/gomc/widom"
)

// gasConstant is R in J/(mol K).
const gasConstant = 8.314464919

// ErrNoWidom is returned for a Widom batch on a component without an estimator.
var ErrNoWidom = errors.New("component has no widom estimator")

// Options configures a session beyond the loaded configuration.
type Options struct {
	Seed uint64
	Perf *telemetry.PerfCollector // nil disables phase timing
}

// species is the rigid template of a component's molecules.
type species struct {
	types   []int
	charges []float64
	sites   []box.Vec3 // relative to the centroid, absolute for frameworks
}

// Session holds all state of a simulation. It is driven by one goroutine;
// kernels run on the device pool and join before any state changes.
type Session struct {
	cfg      *config.Config
	units    units.Units
	catalog  *catalog.Catalog
	ff       *forcefield.Table
	box      *box.Box
	registry *components.Registry
	stores   []*particles.Store
	species  []species
	random   *rng.Pool
	pool     *device.Pool
	widom    []*widom.Estimator // nil for components without Widom moves
	model    kernel.Model
	tuning   forcefield.Tuning
	perf     *telemetry.PerfCollector

	pressure   float64 // internal units
	block      int
	tuneMark   [][moves.NumClasses]moves.Counter
	adsorbates []int

	beads    []kernel.Bead
	energies []float64
}

// New builds a session from cfg. Initial molecules of every adsorbate are
// placed at random; framework sites are placed as given.
func New(cfg *config.Config, opts Options) (*Session, error) {
	atoms := make([]catalog.PseudoAtom, len(cfg.PseudoAtoms))
	types := make([]forcefield.TypeParams, len(cfg.PseudoAtoms))
	for i, a := range cfg.PseudoAtoms {
		atoms[i] = catalog.PseudoAtom{
			Name:           a.Name,
			Oxidation:      a.Oxidation,
			Mass:           a.Mass,
			Charge:         a.Charge,
			Polarizability: a.Polarizability,
		}
		law, err := forcefield.ParseLaw(a.Law)
		if err != nil {
			return nil, fmt.Errorf("pseudo atom %q: %w", a.Name, err)
		}
		types[i] = forcefield.TypeParams{Epsilon: a.Epsilon, Sigma: a.Sigma, Z: a.Z, Law: law}
	}
	cat, err := catalog.New(atoms)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	ncomp := len(cfg.Components)
	ff, err := forcefield.New(types, forcefield.Params{
		CutoffVDW:     cfg.ForceField.CutoffVDW,
		CutoffCoulomb: cfg.ForceField.CutoffCoulomb,
	}, cfg.Units, cfg.Box.Temperature, ncomp)
	if err != nil {
		return nil, fmt.Errorf("force field: %w", err)
	}
	ff.NoCharges = cfg.ForceField.NoCharges

	l, a := cfg.Derived.Lengths, cfg.Derived.Angles
	b, err := box.New(box.FromLengths(l[0], l[1], l[2], a[0], a[1], a[2]), cfg.Box.Temperature, cfg.Box.Pressure)
	if err != nil {
		return nil, fmt.Errorf("box: %w", err)
	}
	w := b.Widths()
	halfWidth := 0.5 * math.Min(w[0], math.Min(w[1], w[2]))
	if cfg.ForceField.CutoffVDW > halfWidth || (!ff.NoCharges && cfg.ForceField.CutoffCoulomb > halfWidth) {
		return nil, fmt.Errorf("cutoff exceeds half the shortest cell width %.3f", halfWidth)
	}

	random, err := rng.NewPool(cfg.Random.Size, opts.Seed)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:      cfg,
		units:    cfg.Units,
		catalog:  cat,
		ff:       ff,
		box:      b,
		stores:   make([]*particles.Store, ncomp),
		species:  make([]species, ncomp),
		random:   random,
		pool:     device.NewPool(cfg.Device.Workers),
		widom:    make([]*widom.Estimator, ncomp),
		tuning:   forcefield.DefaultTuning(halfWidth),
		perf:     opts.Perf,
		pressure: cfg.Box.Pressure * math.Pow(cfg.Units.LengthUnit, 3) / cfg.Units.EnergyUnit(),
		tuneMark: make([][moves.NumClasses]moves.Counter, ncomp),
	}
	s.tuning.Target = cfg.Run.TargetAcceptance
	s.model = kernel.Model{FF: ff, Box: b, Coulomb: cfg.Units.CoulombConversion(), Pool: s.pool}

	comps := make([]components.Component, ncomp)
	for i, cc := range cfg.Components {
		sp, err := s.buildSpecies(cc)
		if err != nil {
			return nil, fmt.Errorf("component %q: %w", cc.Name, err)
		}
		s.species[i] = sp
		stats, err := moves.NewStatistics(cc.Moves, cfg.Run.Blocks)
		if err != nil {
			return nil, fmt.Errorf("component %q: %w", cc.Name, err)
		}
		if cc.Framework {
			stats.Prob = moves.Probabilities{}
		}
		comps[i] = components.Component{
			Name:                  cc.Name,
			MoleculeSize:          len(sp.types),
			MolFraction:           cc.MolFraction,
			IdealRosenbluthWeight: cc.IdealRosenbluthWeight,
			FugacityCoeff:         cc.FugacityCoeff,
			Tc:                    cc.Tc,
			Pc:                    cc.Pc,
			Accentric:             cc.Accentric,
			Framework:             cc.Framework,
			Moves:                 stats,
		}
		if cc.Framework {
			comps[i].Molecules = 1
		}
		s.stores[i] = particles.NewStore(len(sp.types)*max(cc.Molecules, 1), len(sp.types))
	}
	s.registry, err = components.NewRegistry(comps)
	if err != nil {
		return nil, err
	}

	for i, cc := range cfg.Components {
		comp, _ := s.registry.Component(i)
		if cc.Framework {
			if err := s.placeFramework(i); err != nil {
				return nil, err
			}
			continue
		}
		s.adsorbates = append(s.adsorbates, i)
		if cc.Moves.WidomProb > 0 {
			s.widom[i], err = widom.New(cfg.Widom, cfg.Derived.Beta, comp.IdealRosenbluthWeight, s.pool)
			if err != nil {
				return nil, fmt.Errorf("component %q: %w", cc.Name, err)
			}
		}
		for m := 0; m < cc.Molecules; m++ {
			pos, err := s.randomPlacement(i)
			if err != nil {
				return nil, err
			}
			if _, err := s.InsertMolecule(i, pos); err != nil {
				return nil, fmt.Errorf("initial molecule %d of %q: %w", m, cc.Name, err)
			}
		}
	}

	s.pool.Start()
	if err := s.sync(); err != nil {
		s.pool.Stop()
		return nil, err
	}
	return s, nil
}

func (s *Session) buildSpecies(cc config.ComponentConfig) (species, error) {
	sp := species{
		types:   make([]int, len(cc.Sites)),
		charges: make([]float64, len(cc.Sites)),
		sites:   make([]box.Vec3, len(cc.Sites)),
	}
	for j, site := range cc.Sites {
		t, err := s.catalog.TypeOf(site.Type)
		if err != nil {
			return species{}, err
		}
		sp.types[j] = t
		sp.charges[j] = s.catalog.Charge(t)
		sp.sites[j] = box.Vec3{site.Position[0], site.Position[1], site.Position[2]}
	}
	if !cc.Framework {
		c := centroid(sp.sites)
		for j := range sp.sites {
			sp.sites[j] = sub(sp.sites[j], c)
		}
	}
	return sp, nil
}

// placeFramework writes the fixed framework atoms of component c.
func (s *Session) placeFramework(c int) error {
	sp := s.species[c]
	for j, p := range sp.sites {
		p = s.box.WrapPosition(p)
		if err := s.stores[c].Append(particles.Record{
			X: p[0], Y: p[1], Z: p[2],
			Scale: 1, ScaleCoul: 1,
			Charge: sp.charges[j], Type: sp.types[j],
			MolID: 0, Component: c,
		}); err != nil {
			return fmt.Errorf("framework atom %d: %w", j, err)
		}
	}
	return nil
}

// Close stops the kernel workers.
func (s *Session) Close() {
	s.pool.Stop()
}

// Config returns the configuration the session was built from.
func (s *Session) Config() *config.Config { return s.cfg }

// Registry returns the component registry.
func (s *Session) Registry() *components.Registry { return s.registry }

// Store returns the particle store of component c.
func (s *Session) Store(c int) *particles.Store { return s.stores[c] }

// ForceField returns the force field table.
func (s *Session) ForceField() *forcefield.Table { return s.ff }

// Box returns the simulation box.
func (s *Session) Box() *box.Box { return s.box }

// Random returns the random number pool.
func (s *Session) Random() *rng.Pool { return s.random }

// Estimator returns the Widom estimator of component c, or nil.
func (s *Session) Estimator(c int) *widom.Estimator { return s.widom[c] }

// Block returns the index of the averaging block in progress.
func (s *Session) Block() int { return s.block }

// Adsorbates returns the indices of the non-framework components.
func (s *Session) Adsorbates() []int { return s.adsorbates }

// sync brings every device mirror up to date with the host.
func (s *Session) sync() error {
	for c, st := range s.stores {
		if err := st.Sync(); err != nil {
			return fmt.Errorf("sync component %d: %w", c, err)
		}
	}
	s.random.Sync()
	return nil
}

// views synchronizes the stores and returns their device views for a kernel.
func (s *Session) views() ([]particles.View, error) {
	if err := s.sync(); err != nil {
		return nil, err
	}
	vs := make([]particles.View, len(s.stores))
	for c, st := range s.stores {
		v, err := st.DeviceView()
		if err != nil {
			return nil, fmt.Errorf("component %d: %w", c, err)
		}
		vs[c] = v
	}
	return vs, nil
}

// InsertMolecule appends a molecule of component c with its atoms at
// positions and counts it in the registry. Both happen or neither does.
// It returns the new molecule id.
func (s *Session) InsertMolecule(c int, positions []box.Vec3) (int, error) {
	comp, err := s.registry.Component(c)
	if err != nil {
		return 0, err
	}
	if comp.Framework {
		return 0, &components.ConsistencyError{Invariant: "framework is fixed", Component: c, Detail: "insertion into a framework"}
	}
	sp := s.species[c]
	if len(positions) != len(sp.types) {
		return 0, fmt.Errorf("component %d: %d positions for %d sites", c, len(positions), len(sp.types))
	}

	st := s.stores[c]
	need := st.Len() + len(positions)
	if err := st.CapacityFor(need); errors.Is(err, particles.ErrSyncPending) {
		if err := st.Sync(); err != nil {
			return 0, err
		}
		err = st.CapacityFor(need)
		if err != nil {
			return 0, err
		}
	} else if err != nil {
		return 0, err
	}

	molID := comp.Molecules
	for j, p := range positions {
		p = s.box.WrapPosition(p)
		r := particles.Record{
			X: p[0], Y: p[1], Z: p[2],
			Scale: 1, ScaleCoul: 1,
			Charge: sp.charges[j], Type: sp.types[j],
			MolID: molID, Component: c,
		}
		if err := st.Append(r); err != nil {
			err = fmt.Errorf("insert molecule %d of component %d: %w", molID, c, err)
			return 0, rollback(st, c, molID, err)
		}
	}
	if err := s.registry.OnInsertionAccepted(c); err != nil {
		return 0, rollback(st, c, molID, err)
	}
	return molID, nil
}

// rollback removes the partly inserted molecule molID after cause.
func rollback(st *particles.Store, c, molID int, cause error) error {
	if _, err := st.RemoveMolecule(c, molID); err != nil {
		return errors.Join(cause, fmt.Errorf("rollback molecule %d of component %d: %w", molID, c, err))
	}
	return cause
}

// DeleteMolecule removes molecule molID of component c from the store and
// the registry. The last molecule of the component takes over molID so
// molecule ids stay dense.
func (s *Session) DeleteMolecule(c, molID int) error {
	comp, err := s.registry.Component(c)
	if err != nil {
		return err
	}
	if comp.Framework {
		return &components.ConsistencyError{Invariant: "framework is fixed", Component: c,
			Detail: "deletion from a framework"}
	}
	n := comp.Molecules
	if molID < 0 || molID >= n {
		return fmt.Errorf("component %d: molecule %d not in [0,%d)", c, molID, n)
	}
	st := s.stores[c]
	// The registry follows the store so a failed removal can be retried.
	removed, err := st.RemoveMolecule(c, molID)
	if err != nil {
		return fmt.Errorf("delete molecule %d of component %d: %w", molID, c, err)
	}
	if removed != s.species[c].size() {
		return &components.ConsistencyError{Invariant: "atoms per molecule", Component: c,
			Detail: fmt.Sprintf("molecule %d had %d atoms, want %d", molID, removed, s.species[c].size())}
	}
	if err := s.registry.OnDeletionAccepted(c); err != nil {
		return err
	}
	if _, err := st.RelabelMolecule(c, n-1, molID); err != nil {
		return fmt.Errorf("relabel molecule %d of component %d: %w", n-1, c, err)
	}
	return nil
}

func (sp species) size() int { return len(sp.types) }

// Trial runs one trial move of class for component c. The outcome is
// recorded only once fn has decided it; an error records nothing.
func (s *Session) Trial(c int, class moves.Class, fn func() (bool, error)) error {
	stats, err := s.registry.Stats(c)
	if err != nil {
		return err
	}
	accepted, err := fn()
	if err != nil {
		return fmt.Errorf("%s move of component %d: %w", class, c, err)
	}
	stats.RecordOutcome(class, accepted)
	return nil
}

// Widom adds a batch of trial energies to the estimator of component c.
func (s *Session) Widom(c int, energies []float64) (widom.BatchResult, error) {
	if c < 0 || c >= len(s.widom) || s.widom[c] == nil {
		return widom.BatchResult{}, fmt.Errorf("%w: %d", ErrNoWidom, c)
	}
	stats, err := s.registry.Stats(c)
	if err != nil {
		return widom.BatchResult{}, err
	}
	res, err := s.widom[c].AddTrials(energies)
	if err != nil {
		return res, fmt.Errorf("widom component %d: %w", c, err)
	}
	stats.RecordAttempt(moves.Widom)
	return res, nil
}

// CloseBlock finalizes the current averaging block of every estimator.
func (s *Session) CloseBlock() error {
	for c, e := range s.widom {
		if e == nil {
			continue
		}
		if err := e.CloseBlock(); err != nil {
			return fmt.Errorf("close block %d of component %d: %w", s.block, c, err)
		}
	}
	s.block++
	return nil
}

// CheckInvariants verifies the state shared between the registry, the
// stores, the force field, the box and the estimators.
func (s *Session) CheckInvariants() error {
	s.perf.StartPhase(telemetry.PhaseCheck)
	if err := s.registry.Validate(); err != nil {
		return err
	}
	ncomp := s.registry.Len()
	if err := s.ff.Validate(ncomp); err != nil {
		return err
	}
	if v := s.box.Volume(); !(v > 0) {
		return fmt.Errorf("%w: volume %v", box.ErrDegenerateCell, v)
	}
	for c, st := range s.stores {
		if err := st.Validate(s.catalog.Len(), ncomp); err != nil {
			return fmt.Errorf("component %d: %w", c, err)
		}
		n, _ := s.registry.MoleculeCountOf(c)
		if want := n * s.species[c].size(); st.Len() != want {
			return &components.ConsistencyError{Invariant: "atoms == molecules * size", Component: c,
				Detail: fmt.Sprintf("%d atoms for %d molecules of %d", st.Len(), n, s.species[c].size())}
		}
	}
	if off := s.random.Offset(); off < 0 || off > s.random.Size() {
		return fmt.Errorf("random offset %d outside [0,%d]", off, s.random.Size())
	}
	return nil
}

// fugacity returns the fugacity of component c in internal units.
func (s *Session) fugacity(c int) float64 {
	comp, _ := s.registry.Component(c)
	return comp.FugacityCoeff * comp.MolFraction * s.pressure
}

// BlockStates returns the per-component state read by the telemetry collector.
func (s *Session) BlockStates() []telemetry.ComponentState {
	states := make([]telemetry.ComponentState, s.registry.Len())
	for c := range states {
		comp, _ := s.registry.Component(c)
		st := telemetry.ComponentState{
			Name:           comp.Name,
			EnergyToKelvin: s.units.EnergyToKelvin,
			MaxTranslation: s.ff.MaxTranslation[c],
			MaxRotation:    s.ff.MaxRotation[c],
		}
		if comp.Moves != nil {
			st.Counters = comp.Moves.Counters()
		}
		if e := s.widom[c]; e != nil && e.Block() > 0 {
			blk := e.BlockAt(e.Block() - 1)
			st.Widom = &blk
		}
		states[c] = st
	}
	return states
}

// Reports returns the block-averaged Widom results of every component
// with an estimator.
func (s *Session) Reports() []telemetry.WidomReport {
	var frameworkMass float64
	for c, sp := range s.species {
		if comp, _ := s.registry.Component(c); comp.Framework {
			m, _ := s.catalog.MolecularMass(sp.types)
			frameworkMass += m
		}
	}
	// kg/m^3
	density := frameworkMass * s.units.MassUnit / (s.box.Volume() * math.Pow(s.units.LengthUnit, 3))

	var out []telemetry.WidomReport
	for c, e := range s.widom {
		if e == nil {
			continue
		}
		comp, _ := s.registry.Component(c)
		sum := e.Summary()
		r := telemetry.WidomReport{
			Component:     comp.Name,
			Blocks:        sum.Blocks,
			Trials:        sum.Trials,
			Rosenbluth:    sum.RosenbluthWeight,
			RosenbluthErr: sum.RosenbluthWeightStdErr,
			ExcessMu:      sum.ExcessMu,
			ExcessMuErr:   sum.ExcessMuStdErr,
			ExcessMuK:     sum.ExcessMu * s.units.EnergyToKelvin,
			ExcessMuErrK:  sum.ExcessMuStdErr * s.units.EnergyToKelvin,
		}
		if density > 0 {
			r.HenryCoefficient = sum.RosenbluthWeight / comp.IdealRosenbluthWeight /
				(gasConstant * s.box.Temperature() * density)
		}
		out = append(out, r)
	}
	return out
}

// LogValue implements slog.LogValuer for structured logging.
func (s *Session) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("block", s.block),
		slog.Any("molecules", s.registry.Snapshot()),
		slog.Float64("volume", s.box.Volume()),
		slog.Int("random_generation", s.random.Generation()),
	)
}
