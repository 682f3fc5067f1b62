package sim

import (
	"fmt"

	"github.com/pthm-cable/gomc/box"
	"github.com/pthm-cable/gomc/checkpoint"
	"github.com/pthm-cable/gomc/moves"
	"github.com/pthm-cable/gomc/particles"
	"github.com/pthm-cable/gomc/rng"
)

// Checkpoint captures the mutable state of the session at cycle.
func (s *Session) Checkpoint(cycle int) (*checkpoint.Checkpoint, error) {
	snap, err := s.random.Snapshot()
	if err != nil {
		return nil, err
	}
	cp := &checkpoint.Checkpoint{
		Cycle:       cycle,
		Block:       s.block,
		Cell:        s.box.Cell(),
		Temperature: s.box.Temperature(),
		Pressure:    s.box.Pressure(),
		Components:  make([]checkpoint.ComponentState, s.registry.Len()),
		Random:      snap,
	}
	for c := range cp.Components {
		comp, _ := s.registry.Component(c)
		st := s.stores[c]
		recs := make([]particles.Record, st.Len())
		for i := range recs {
			recs[i], _ = st.At(i)
		}
		cs := checkpoint.ComponentState{
			Name:           comp.Name,
			Molecules:      comp.Molecules,
			MaxTranslation: s.ff.MaxTranslation[c],
			MaxRotation:    s.ff.MaxRotation[c],
			Particles:      recs,
		}
		if comp.Moves != nil {
			cs.Counters = comp.Moves.Counters()
		}
		if e := s.widom[c]; e != nil {
			ws := e.State()
			cs.Widom = &ws
		}
		cp.Components[c] = cs
	}
	return cp, nil
}

// Restore replaces the mutable state with cp. The session must have been
// built from the configuration cp was taken under. On error the session is
// left unchanged.
func (s *Session) Restore(cp *checkpoint.Checkpoint) error {
	if len(cp.Components) != s.registry.Len() {
		return fmt.Errorf("checkpoint has %d components, session has %d", len(cp.Components), s.registry.Len())
	}
	random, err := rng.Restore(cp.Random)
	if err != nil {
		return err
	}
	if _, err := box.New(cp.Cell, cp.Temperature, cp.Pressure); err != nil {
		return fmt.Errorf("checkpoint cell: %w", err)
	}

	stores := make([]*particles.Store, len(cp.Components))
	counts := make([]int, len(cp.Components))
	for c, cs := range cp.Components {
		comp, _ := s.registry.Component(c)
		if cs.Name != comp.Name {
			return fmt.Errorf("checkpoint component %d is %q, session has %q", c, cs.Name, comp.Name)
		}
		size := s.species[c].size()
		if len(cs.Particles) != cs.Molecules*size {
			return fmt.Errorf("component %q: %d particles for %d molecules of %d",
				cs.Name, len(cs.Particles), cs.Molecules, size)
		}
		if e := s.widom[c]; e != nil {
			if cs.Widom == nil {
				return fmt.Errorf("component %q: checkpoint has no widom state", cs.Name)
			}
			if err := cs.Widom.Validate(e.Config().NumberOfBlocks); err != nil {
				return fmt.Errorf("component %q: %w", cs.Name, err)
			}
		}
		st := particles.NewStore(len(cs.Particles), size)
		for i, r := range cs.Particles {
			if r.Component != c || r.MolID < 0 || r.MolID >= cs.Molecules {
				return fmt.Errorf("component %q: particle %d belongs to %d/%d", cs.Name, i, r.Component, r.MolID)
			}
			if err := st.Append(r); err != nil {
				return err
			}
		}
		if err := st.Validate(s.catalog.Len(), len(cp.Components)); err != nil {
			return fmt.Errorf("component %q: %w", cs.Name, err)
		}
		stores[c] = st
		counts[c] = cs.Molecules
	}
	if err := s.registry.SetCounts(counts); err != nil {
		return err
	}
	if err := s.box.SetCell(cp.Cell); err != nil {
		return err
	}
	for c, cs := range cp.Components {
		if e := s.widom[c]; e != nil {
			_ = e.Restore(*cs.Widom)
		}
	}
	s.box.SetState(cp.Temperature, cp.Pressure)
	for c, cs := range cp.Components {
		s.ff.MaxTranslation[c] = cs.MaxTranslation
		s.ff.MaxRotation[c] = cs.MaxRotation
		if stats, err := s.registry.Stats(c); err == nil {
			stats.Restore(cs.Counters)
		}
		s.tuneMark[c] = cs.Counters
	}
	s.stores = stores
	s.random = random
	s.block = cp.Block
	return s.sync()
}

// Tune adjusts the translation and rotation step sizes of every adsorbate
// from the acceptance since the previous call.
func (s *Session) Tune() error {
	for _, c := range s.adsorbates {
		stats, err := s.registry.Stats(c)
		if err != nil {
			return err
		}
		now := stats.Counters()
		for _, class := range []moves.Class{moves.Translation, moves.Rotation} {
			d := moves.Counter{
				Attempted: now[class].Attempted - s.tuneMark[c][class].Attempted,
				Accepted:  now[class].Accepted - s.tuneMark[c][class].Accepted,
			}
			if d.Attempted == 0 {
				continue
			}
			if err := s.ff.Tune(c, class, d.Ratio(), s.tuning); err != nil {
				return err
			}
		}
		s.tuneMark[c] = now
	}
	return nil
}

// ResetCounters zeroes the move counters and Widom accumulators of every
// component and reopens block 0, e.g. after equilibration.
func (s *Session) ResetCounters() {
	for c := range s.tuneMark {
		if stats, err := s.registry.Stats(c); err == nil {
			stats.Reset()
		}
		s.tuneMark[c] = [moves.NumClasses]moves.Counter{}
	}
	for _, e := range s.widom {
		if e != nil {
			e.Reset()
		}
	}
	s.block = 0
}
