package sim

import (
	"fmt"
	"math"

	"github.com/pthm-cable/gomc/box"
	"github.com/pthm-cable/gomc/kernel"
	"github.com/pthm-cable/gomc/moves"
	"github.com/pthm-cable/gomc/telemetry"
)

var classPhase = [moves.NumClasses]string{
	moves.Translation: telemetry.PhaseTranslation,
	moves.Rotation:    telemetry.PhaseRotation,
	moves.Insertion:   telemetry.PhaseSwap,
	moves.Deletion:    telemetry.PhaseSwap,
	moves.Reinsertion: telemetry.PhaseReinsertion,
	moves.Widom:       telemetry.PhaseWidom,
}

// Cycle runs one Monte Carlo cycle: at least MinStepsPerCycle steps and
// at least one per adsorbate molecule. Device mirrors are in sync on return.
func (s *Session) Cycle() error {
	steps := s.registry.TotalMolecules() - s.registry.NumberOfFrameworks()
	if steps < s.cfg.Run.MinStepsPerCycle {
		steps = s.cfg.Run.MinStepsPerCycle
	}
	for i := 0; i < steps; i++ {
		if err := s.Step(); err != nil {
			return err
		}
	}
	s.perf.StartPhase(telemetry.PhaseSync)
	return s.sync()
}

// Step picks an adsorbate and a move class at random and performs the move.
func (s *Session) Step() error {
	if len(s.adsorbates) == 0 {
		return nil
	}
	c := s.adsorbates[pick(s.random.Next(), len(s.adsorbates))]
	stats, err := s.registry.Stats(c)
	if err != nil {
		return err
	}
	class, ok := stats.Select(s.random.Next())
	if !ok {
		return nil
	}
	s.perf.StartPhase(classPhase[class])

	switch class {
	case moves.Translation:
		return s.Trial(c, class, func() (bool, error) { return s.translate(c) })
	case moves.Rotation:
		if s.species[c].size() < 2 {
			return nil
		}
		return s.Trial(c, class, func() (bool, error) { return s.rotate(c) })
	case moves.Insertion:
		return s.Trial(c, class, func() (bool, error) { return s.insert(c) })
	case moves.Deletion:
		return s.Trial(c, class, func() (bool, error) { return s.delete(c) })
	case moves.Reinsertion:
		return s.Trial(c, class, func() (bool, error) { return s.reinsert(c) })
	case moves.Widom:
		_, err := s.widomTrials(c)
		return err
	}
	return fmt.Errorf("unknown move class %d", class)
}

// pick maps u in [0,1) onto [0,n).
func pick(u float64, n int) int {
	i := int(u * float64(n))
	if i >= n {
		i = n - 1
	}
	return i
}

// accept applies the Metropolis rule to a change from uOld to uNew with
// the given prefactor. Leaving an overlap is always accepted and entering
// one never is.
func (s *Session) accept(prefactor, uOld, uNew float64) bool {
	if math.IsInf(uNew, 1) {
		return false
	}
	if math.IsInf(uOld, 1) {
		return true
	}
	ratio := prefactor * math.Exp(-s.ff.Beta*(uNew-uOld))
	if math.IsNaN(ratio) {
		return false
	}
	return s.random.Next() < ratio
}

// molecule returns the store indices and contiguous positions of a
// molecule. Positions after the first are the minimum images relative to it.
func (s *Session) molecule(c, molID int) ([]int, []box.Vec3, error) {
	idx := s.stores[c].MoleculeIndices(c, molID)
	if len(idx) != s.species[c].size() {
		return nil, nil, fmt.Errorf("component %d molecule %d has %d atoms, want %d",
			c, molID, len(idx), s.species[c].size())
	}
	pos := make([]box.Vec3, len(idx))
	for j, i := range idx {
		r, err := s.stores[c].At(i)
		if err != nil {
			return nil, nil, err
		}
		pos[j] = box.Vec3{r.X, r.Y, r.Z}
		if j > 0 {
			pos[j] = add(pos[0], s.box.Wrap(sub(pos[j], pos[0])))
		}
	}
	return idx, pos, nil
}

func (s *Session) beadsAt(c int, pos []box.Vec3) []kernel.Bead {
	sp := s.species[c]
	beads := make([]kernel.Bead, len(pos))
	for j, p := range pos {
		beads[j] = kernel.Bead{Pos: p, Type: sp.types[j], Charge: sp.charges[j]}
	}
	return beads
}

// energy returns the energy of molecule positions pos of component c with
// everything except molecule self of c.
func (s *Session) energy(c, self int, pos []box.Vec3) (float64, error) {
	views, err := s.views()
	if err != nil {
		return 0, err
	}
	return s.model.MoleculeEnergy(views, s.beadsAt(c, pos), kernel.Molecule{Component: c, MolID: self})
}

// move evaluates replacing molecule molID of c with positions next and
// writes them if the move is accepted.
func (s *Session) move(c, molID int, idx []int, prev, next []box.Vec3) (bool, error) {
	uOld, err := s.energy(c, molID, prev)
	if err != nil {
		return false, err
	}
	uNew, err := s.energy(c, molID, next)
	if err != nil {
		return false, err
	}
	if !s.accept(1, uOld, uNew) {
		return false, nil
	}
	st := s.stores[c]
	for j, i := range idx {
		r, err := st.At(i)
		if err != nil {
			return false, err
		}
		p := s.box.WrapPosition(next[j])
		r.X, r.Y, r.Z = p[0], p[1], p[2]
		if err := st.Set(i, r); err != nil {
			return false, err
		}
	}
	return true, nil
}

// randomMolecule picks a molecule of c, or returns false if there is none.
func (s *Session) randomMolecule(c int) (int, bool) {
	n, _ := s.registry.MoleculeCountOf(c)
	if n == 0 {
		return 0, false
	}
	return pick(s.random.Next(), n), true
}

func (s *Session) translate(c int) (bool, error) {
	molID, ok := s.randomMolecule(c)
	if !ok {
		return false, nil
	}
	idx, prev, err := s.molecule(c, molID)
	if err != nil {
		return false, err
	}
	u, err := s.random.NextBatch(3)
	if err != nil {
		return false, err
	}
	step := s.ff.MaxTranslation[c]
	d := box.Vec3{step * (2*u[0] - 1), step * (2*u[1] - 1), step * (2*u[2] - 1)}
	next := make([]box.Vec3, len(prev))
	for j, p := range prev {
		next[j] = add(p, d)
	}
	return s.move(c, molID, idx, prev, next)
}

func (s *Session) rotate(c int) (bool, error) {
	molID, ok := s.randomMolecule(c)
	if !ok {
		return false, nil
	}
	idx, prev, err := s.molecule(c, molID)
	if err != nil {
		return false, err
	}
	u, err := s.random.NextBatch(3)
	if err != nil {
		return false, err
	}
	rot := axisRotation(randomAxis(u[0], u[1]), s.ff.MaxRotation[c]*(2*u[2]-1))
	center := centroid(prev)
	next := make([]box.Vec3, len(prev))
	for j, p := range prev {
		next[j] = add(center, rot.apply(sub(p, center)))
	}
	return s.move(c, molID, idx, prev, next)
}

func (s *Session) reinsert(c int) (bool, error) {
	molID, ok := s.randomMolecule(c)
	if !ok {
		return false, nil
	}
	idx, prev, err := s.molecule(c, molID)
	if err != nil {
		return false, err
	}
	next, err := s.randomPlacement(c)
	if err != nil {
		return false, err
	}
	return s.move(c, molID, idx, prev, next)
}

func (s *Session) insert(c int) (bool, error) {
	pos, err := s.randomPlacement(c)
	if err != nil {
		return false, err
	}
	u, err := s.energy(c, -1, pos)
	if err != nil {
		return false, err
	}
	n, _ := s.registry.MoleculeCountOf(c)
	pre := s.ff.Beta * s.fugacity(c) * s.box.Volume() / float64(n+1)
	if !s.accept(pre, 0, u) {
		return false, nil
	}
	if _, err := s.InsertMolecule(c, pos); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Session) delete(c int) (bool, error) {
	molID, ok := s.randomMolecule(c)
	if !ok {
		return false, nil
	}
	_, pos, err := s.molecule(c, molID)
	if err != nil {
		return false, err
	}
	u, err := s.energy(c, molID, pos)
	if err != nil {
		return false, err
	}
	n, _ := s.registry.MoleculeCountOf(c)
	bfv := s.ff.Beta * s.fugacity(c) * s.box.Volume()
	if !(bfv > 0) {
		return false, nil
	}
	// removing an overlapping molecule is always accepted
	if !s.accept(float64(n)/bfv, u, 0) {
		return false, nil
	}
	if err := s.DeleteMolecule(c, molID); err != nil {
		return false, err
	}
	return true, nil
}

// randomPlacement returns the positions of a molecule of c with a uniform
// random center and orientation.
func (s *Session) randomPlacement(c int) ([]box.Vec3, error) {
	u, err := s.random.NextBatch(6)
	if err != nil {
		return nil, err
	}
	return s.place(c, u[:3], u[3:]), nil
}

// place puts the sites of c around the fractional center uc with the
// rotation drawn from ur.
func (s *Session) place(c int, uc, ur []float64) []box.Vec3 {
	center := s.box.Cartesian(box.Vec3{uc[0], uc[1], uc[2]})
	rot := randomRotation(ur[0], ur[1], ur[2])
	sites := s.species[c].sites
	pos := make([]box.Vec3, len(sites))
	for j, site := range sites {
		pos[j] = add(center, rot.apply(site))
	}
	return pos
}

// widomTrials performs one batch of Widom test insertions for c. Trial
// centers and orientations are read from the device copy of the random
// pool and every orientation is evaluated as one kernel group.
func (s *Session) widomTrials(c int) (int, error) {
	e := s.widom[c]
	if e == nil {
		return 0, fmt.Errorf("%w: %d", ErrNoWidom, c)
	}
	cfg := e.Config()
	trials, orient := cfg.NumberWidomTrials, cfg.NumberWidomTrialsOrientations
	size := s.species[c].size()
	n := trials * orient

	need := 3*trials + 3*n
	start, err := s.random.Reserve(need)
	if err != nil {
		return 0, err
	}
	s.random.Sync()
	u, err := s.random.DeviceSlice(start, need)
	if err != nil {
		return 0, err
	}

	if cap(s.beads) < n*size {
		s.beads = make([]kernel.Bead, n*size)
	}
	if cap(s.energies) < n {
		s.energies = make([]float64, n)
	}
	beads, energies := s.beads[:n*size], s.energies[:n]

	sp := s.species[c]
	for t := 0; t < trials; t++ {
		uc := u[3*t : 3*t+3]
		for o := 0; o < orient; o++ {
			k := t*orient + o
			ur := u[3*trials+3*k : 3*trials+3*k+3]
			for j, p := range s.place(c, uc, ur) {
				beads[k*size+j] = kernel.Bead{Pos: p, Type: sp.types[j], Charge: sp.charges[j]}
			}
		}
	}

	views, err := s.views()
	if err != nil {
		return 0, err
	}
	if err := s.model.TrialEnergies(views, beads, size, energies); err != nil {
		return 0, err
	}
	res, err := s.Widom(c, energies)
	if err != nil {
		return 0, err
	}
	return res.Trials, nil
}

// Counts returns the molecule count of every component.
func (s *Session) Counts() []int {
	counts := make([]int, s.registry.Len())
	for c := range counts {
		counts[c], _ = s.registry.MoleculeCountOf(c)
	}
	return counts
}
