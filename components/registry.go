// Package components is the registry of molecular species in a system:
// molecule counts, mole fractions and thermodynamic constants per component,
// and each component's move statistics.
package components

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pthm-cable/gomc/moves"
)

var (
	// ErrInconsistent is the root of every consistency error.
	ErrInconsistent = errors.New("component registry inconsistent")
	// ErrUnknownComponent is returned for a component index out of range.
	ErrUnknownComponent = errors.New("unknown component")
)

// ConsistencyError reports a violated registry invariant. Component is -1
// when the invariant is not tied to a single component.
type ConsistencyError struct {
	Invariant string
	Component int
	Detail    string
}

func (e *ConsistencyError) Error() string {
	if e.Component < 0 {
		return fmt.Sprintf("%v: %s: %s", ErrInconsistent, e.Invariant, e.Detail)
	}
	return fmt.Sprintf("%v: %s (component %d): %s", ErrInconsistent, e.Invariant, e.Component, e.Detail)
}

func (e *ConsistencyError) Unwrap() error { return ErrInconsistent }

// Component describes one species. Framework components are the host
// structure and are never inserted or deleted.
type Component struct {
	Name                  string
	MoleculeSize          int // pseudo-atoms per molecule
	Molecules             int // molecule instances in the system
	MolFraction           float64
	IdealRosenbluthWeight float64
	FugacityCoeff         float64
	Tc                    float64 // critical temperature, K
	Pc                    float64 // critical pressure, Pa
	Accentric             float64
	Framework             bool

	Moves *moves.Statistics
}

// Registry holds the components. The per-component counts and the total
// are updated together under one lock so a reporter never reads them torn.
type Registry struct {
	mu         sync.RWMutex
	comps      []Component
	total      int
	frameworks int
}

// NewRegistry builds a registry. The total molecule count is derived from
// the components. Mole fractions of the non-framework components are
// normalized to sum to one when any is set.
func NewRegistry(comps []Component) (*Registry, error) {
	r := &Registry{comps: make([]Component, len(comps))}
	copy(r.comps, comps)

	var fracSum float64
	for i := range r.comps {
		c := &r.comps[i]
		if c.Name == "" {
			return nil, &ConsistencyError{Invariant: "named component", Component: i, Detail: "empty name"}
		}
		if c.MoleculeSize < 1 {
			return nil, &ConsistencyError{Invariant: "molecule size", Component: i,
				Detail: fmt.Sprintf("%d atoms per molecule", c.MoleculeSize)}
		}
		if c.Molecules < 0 {
			return nil, &ConsistencyError{Invariant: "molecule count", Component: i,
				Detail: fmt.Sprintf("negative count %d", c.Molecules)}
		}
		if c.MolFraction < 0 {
			return nil, &ConsistencyError{Invariant: "mole fraction", Component: i,
				Detail: fmt.Sprintf("negative fraction %v", c.MolFraction)}
		}
		if c.IdealRosenbluthWeight == 0 {
			c.IdealRosenbluthWeight = 1
		}
		if c.FugacityCoeff == 0 {
			c.FugacityCoeff = 1
		}
		if c.Framework {
			r.frameworks++
			c.MolFraction = 0
		} else {
			fracSum += c.MolFraction
		}
		r.total += c.Molecules
	}
	if fracSum > 0 {
		for i := range r.comps {
			r.comps[i].MolFraction /= fracSum
		}
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Len returns the number of components, frameworks included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.comps)
}

// NumberOfFrameworks returns the number of framework components.
func (r *Registry) NumberOfFrameworks() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frameworks
}

// TotalMolecules returns the total molecule count.
func (r *Registry) TotalMolecules() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}

func (r *Registry) check(c int) error {
	if c < 0 || c >= len(r.comps) {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrUnknownComponent, c, len(r.comps))
	}
	return nil
}

// MoleculeCountOf returns the molecule count of component c.
func (r *Registry) MoleculeCountOf(c int) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.check(c); err != nil {
		return 0, err
	}
	return r.comps[c].Molecules, nil
}

// MolFractionOf returns the mole fraction of component c.
func (r *Registry) MolFractionOf(c int) (float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.check(c); err != nil {
		return 0, err
	}
	return r.comps[c].MolFraction, nil
}

// Component returns a copy of component c. The Moves pointer is shared.
func (r *Registry) Component(c int) (Component, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.check(c); err != nil {
		return Component{}, err
	}
	return r.comps[c], nil
}

// Stats returns the move statistics of component c.
func (r *Registry) Stats(c int) (*moves.Statistics, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.check(c); err != nil {
		return nil, err
	}
	if r.comps[c].Moves == nil {
		return nil, fmt.Errorf("component %d (%s) has no move statistics", c, r.comps[c].Name)
	}
	return r.comps[c].Moves, nil
}

// OnInsertionAccepted adds one molecule to component c and to the total.
func (r *Registry) OnInsertionAccepted(c int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(c); err != nil {
		return err
	}
	if r.comps[c].Framework {
		return &ConsistencyError{Invariant: "framework is fixed", Component: c, Detail: "insertion into a framework"}
	}
	r.comps[c].Molecules++
	r.total++
	return nil
}

// OnDeletionAccepted removes one molecule from component c and from the total.
func (r *Registry) OnDeletionAccepted(c int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(c); err != nil {
		return err
	}
	if r.comps[c].Framework {
		return &ConsistencyError{Invariant: "framework is fixed", Component: c, Detail: "deletion from a framework"}
	}
	if r.comps[c].Molecules == 0 || r.total == 0 {
		return &ConsistencyError{Invariant: "non-negative count", Component: c,
			Detail: fmt.Sprintf("deletion with %d molecules (total %d)", r.comps[c].Molecules, r.total)}
	}
	r.comps[c].Molecules--
	r.total--
	return nil
}

// SetCounts replaces every molecule count at once, e.g. when restoring a checkpoint.
func (r *Registry) SetCounts(counts []int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(counts) != len(r.comps) {
		return &ConsistencyError{Invariant: "count per component", Component: -1,
			Detail: fmt.Sprintf("%d counts for %d components", len(counts), len(r.comps))}
	}
	total := 0
	for i, n := range counts {
		if n < 0 {
			return &ConsistencyError{Invariant: "non-negative count", Component: i, Detail: fmt.Sprintf("count %d", n)}
		}
		total += n
	}
	for i, n := range counts {
		r.comps[i].Molecules = n
	}
	r.total = total
	return nil
}

// Validate checks that the counts sum to the total and that there are at
// least as many components as frameworks.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sum := 0
	frameworks := 0
	for _, c := range r.comps {
		sum += c.Molecules
		if c.Framework {
			frameworks++
		}
	}
	if sum != r.total {
		return &ConsistencyError{Invariant: "sum(molecules) == total", Component: -1,
			Detail: fmt.Sprintf("sum %d, total %d", sum, r.total)}
	}
	if frameworks != r.frameworks || len(r.comps) < r.frameworks {
		return &ConsistencyError{Invariant: "components >= frameworks", Component: -1,
			Detail: fmt.Sprintf("%d components, %d frameworks", len(r.comps), r.frameworks)}
	}
	return nil
}

// Snapshot is a read-only copy of the counts for reporting.
type Snapshot struct {
	Total     int
	Names     []string
	Molecules []int
}

// Snapshot copies the counts under the lock.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Snapshot{
		Total:     r.total,
		Names:     make([]string, len(r.comps)),
		Molecules: make([]int, len(r.comps)),
	}
	for i, c := range r.comps {
		s.Names[i] = c.Name
		s.Molecules[i] = c.Molecules
	}
	return s
}

// LogValue implements slog.LogValuer for structured logging.
func (s Snapshot) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(s.Names)+1)
	attrs = append(attrs, slog.Int("total", s.Total))
	for i, n := range s.Names {
		attrs = append(attrs, slog.Int(n, s.Molecules[i]))
	}
	return slog.GroupValue(attrs...)
}
