// Package catalog is the host-side table of pseudo-atom definitions.
//
// Type ids are indices into the catalog. The force field and the particle
// store both refer to atoms by type id.
package catalog

import (
	"errors"
	"fmt"
)

// ErrUnknownType is returned for a name or id that is not in the catalog.
var ErrUnknownType = errors.New("unknown pseudo-atom type")

// PseudoAtom describes one atom type.
type PseudoAtom struct {
	Name           string  `yaml:"name" toml:"name"`
	Oxidation      float64 `yaml:"oxidation" toml:"oxidation"`
	Mass           float64 `yaml:"mass" toml:"mass"`
	Charge         float64 `yaml:"charge" toml:"charge"`
	Polarizability float64 `yaml:"polarizability" toml:"polarizability"`
}

// Catalog holds the pseudo-atom definitions as parallel slices.
// It is read-only after New returns.
type Catalog struct {
	name      []string
	oxidation []float64
	mass      []float64
	charge    []float64
	polar     []float64

	index map[string]int
}

// New builds a catalog. Names must be unique and non-empty, masses non-negative.
func New(atoms []PseudoAtom) (*Catalog, error) {
	c := &Catalog{
		name:      make([]string, 0, len(atoms)),
		oxidation: make([]float64, 0, len(atoms)),
		mass:      make([]float64, 0, len(atoms)),
		charge:    make([]float64, 0, len(atoms)),
		polar:     make([]float64, 0, len(atoms)),
		index:     make(map[string]int, len(atoms)),
	}
	for i, a := range atoms {
		if a.Name == "" {
			return nil, fmt.Errorf("pseudo-atom %d: empty name", i)
		}
		if _, dup := c.index[a.Name]; dup {
			return nil, fmt.Errorf("pseudo-atom %d: duplicate name %q", i, a.Name)
		}
		if a.Mass < 0 {
			return nil, fmt.Errorf("pseudo-atom %q: negative mass %v", a.Name, a.Mass)
		}
		c.index[a.Name] = i
		c.name = append(c.name, a.Name)
		c.oxidation = append(c.oxidation, a.Oxidation)
		c.mass = append(c.mass, a.Mass)
		c.charge = append(c.charge, a.Charge)
		c.polar = append(c.polar, a.Polarizability)
	}
	return c, nil
}

// Len returns the number of types.
func (c *Catalog) Len() int {
	return len(c.name)
}

// TypeOf returns the type id for name.
func (c *Catalog) TypeOf(name string) (int, error) {
	id, ok := c.index[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	return id, nil
}

// Atom returns the definition of type id.
func (c *Catalog) Atom(id int) (PseudoAtom, error) {
	if id < 0 || id >= c.Len() {
		return PseudoAtom{}, fmt.Errorf("%w: id %d", ErrUnknownType, id)
	}
	return PseudoAtom{
		Name:           c.name[id],
		Oxidation:      c.oxidation[id],
		Mass:           c.mass[id],
		Charge:         c.charge[id],
		Polarizability: c.polar[id],
	}, nil
}

// Name returns the name of type id. Panics if id is out of range.
func (c *Catalog) Name(id int) string { return c.name[id] }

// Mass returns the mass of type id. Panics if id is out of range.
func (c *Catalog) Mass(id int) float64 { return c.mass[id] }

// Charge returns the charge of type id. Panics if id is out of range.
func (c *Catalog) Charge(id int) float64 { return c.charge[id] }

// MolecularMass sums the masses of the given types.
func (c *Catalog) MolecularMass(types []int) (float64, error) {
	var m float64
	for _, t := range types {
		if t < 0 || t >= c.Len() {
			return 0, fmt.Errorf("%w: id %d", ErrUnknownType, t)
		}
		m += c.mass[t]
	}
	return m, nil
}
