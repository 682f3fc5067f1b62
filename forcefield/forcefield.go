// Package forcefield holds the interaction parameter tables read by energy kernels
// and the per-component step sizes tuned during equilibration.
package forcefield

import (
	"errors"
	"fmt"
	"math"

	"github.com/pthm-cable/gomc/units"
)

// ErrShape is returned when parameter slices disagree in length.
var ErrShape = errors.New("force field shape mismatch")

// Law selects the interaction form of a type pair.
type Law int32

const (
	LawNone Law = iota
	LawLennardJones
	LawShiftedLennardJones
)

// String returns the configuration name of the law.
func (l Law) String() string {
	switch l {
	case LawNone:
		return "none"
	case LawLennardJones:
		return "lennard_jones"
	case LawShiftedLennardJones:
		return "shifted_lennard_jones"
	}
	return fmt.Sprintf("Law(%d)", int32(l))
}

// ParseLaw returns the law with the given configuration name.
func ParseLaw(name string) (Law, error) {
	switch name {
	case "none":
		return LawNone, nil
	case "lennard_jones", "lj":
		return LawLennardJones, nil
	case "shifted_lennard_jones", "shifted_lj":
		return LawShiftedLennardJones, nil
	}
	return LawNone, fmt.Errorf("unknown interaction law %q", name)
}

// TypeParams are the per-type inputs to the pair table.
type TypeParams struct {
	Epsilon float64 // K
	Sigma   float64 // Angstrom
	Z       float64
	Law     Law
}

// Params are the global parameters (FFParams in kernel terms).
type Params struct {
	CutoffVDW     float64
	CutoffCoulomb float64
}

// Table is the force field in kernel layout: every pair slice has
// Size*Size entries indexed by PairIndex.
type Table struct {
	Epsilon []float64
	Sigma   []float64
	Z       []float64
	Shift   []float64
	FFType  []Law

	FFParams    Params
	OtherParams []int32

	MaxTranslation []float64 // per component
	MaxRotation    []float64 // per component

	NoCharges bool
	Size      int
	Beta      float64
}

// New builds the pair table from per-type parameters with Lorentz-Berthelot
// mixing. Epsilon is given in kelvin and stored in internal energy units.
// A pair uses the law of its first type unless either type is LawNone.
func New(types []TypeParams, p Params, u units.Units, temperature float64, components int) (*Table, error) {
	if len(types) == 0 {
		return nil, fmt.Errorf("%w: no atom types", ErrShape)
	}
	if p.CutoffVDW <= 0 {
		return nil, fmt.Errorf("vdw cutoff must be positive, got %v", p.CutoffVDW)
	}
	beta := u.Beta(temperature)
	if beta <= 0 {
		return nil, fmt.Errorf("temperature must be positive, got %v", temperature)
	}

	n := len(types)
	t := &Table{
		Epsilon:        make([]float64, n*n),
		Sigma:          make([]float64, n*n),
		Z:              make([]float64, n*n),
		Shift:          make([]float64, n*n),
		FFType:         make([]Law, n*n),
		FFParams:       p,
		MaxTranslation: make([]float64, components),
		MaxRotation:    make([]float64, components),
		Size:           n,
		Beta:           beta,
	}

	kelvinToEnergy := 1.0 / u.EnergyToKelvin
	for i, a := range types {
		for j, b := range types {
			k := i*n + j
			law := a.Law
			if a.Law == LawNone || b.Law == LawNone {
				law = LawNone
			}
			eps := math.Sqrt(a.Epsilon*b.Epsilon) * kelvinToEnergy
			sig := 0.5 * (a.Sigma + b.Sigma)
			t.Epsilon[k] = eps
			t.Sigma[k] = sig
			t.Z[k] = 0.5 * (a.Z + b.Z)
			t.FFType[k] = law
			if law == LawShiftedLennardJones {
				t.Shift[k] = lennardJones(eps, sig, p.CutoffVDW*p.CutoffVDW)
			}
		}
	}
	for c := 0; c < components; c++ {
		t.MaxTranslation[c] = 1.0
		t.MaxRotation[c] = 0.5 * math.Pi
	}
	return t, nil
}

// PairIndex returns the pair-table index of types i and j.
func (t *Table) PairIndex(i, j int) int {
	return i*t.Size + j
}

// Validate checks that every slice matches the declared size.
func (t *Table) Validate(components int) error {
	want := t.Size * t.Size
	for name, got := range map[string]int{
		"epsilon": len(t.Epsilon),
		"sigma":   len(t.Sigma),
		"z":       len(t.Z),
		"shift":   len(t.Shift),
		"fftype":  len(t.FFType),
	} {
		if got != want {
			return fmt.Errorf("%w: %s has %d entries, want %d", ErrShape, name, got, want)
		}
	}
	if len(t.MaxTranslation) != components || len(t.MaxRotation) != components {
		return fmt.Errorf("%w: step sizes for %d/%d components, want %d",
			ErrShape, len(t.MaxTranslation), len(t.MaxRotation), components)
	}
	return nil
}

// PairEnergy returns the van der Waals energy of types i and j at squared distance r2.
func (t *Table) PairEnergy(i, j int, r2 float64) float64 {
	if r2 >= t.FFParams.CutoffVDW*t.FFParams.CutoffVDW {
		return 0
	}
	k := t.PairIndex(i, j)
	switch t.FFType[k] {
	case LawLennardJones:
		return lennardJones(t.Epsilon[k], t.Sigma[k], r2)
	case LawShiftedLennardJones:
		return lennardJones(t.Epsilon[k], t.Sigma[k], r2) - t.Shift[k]
	}
	return 0
}

func lennardJones(eps, sigma, r2 float64) float64 {
	if r2 == 0 {
		return math.Inf(1)
	}
	s2 := sigma * sigma / r2
	s6 := s2 * s2 * s2
	return 4 * eps * (s6*s6 - s6)
}
