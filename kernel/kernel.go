// Package kernel evaluates trial-bead energies against the particle store.
// It is the reference energy kernel: truncated Lennard-Jones from the force
// field table plus an optional bare Coulomb term, under minimum image.
package kernel

import (
	"errors"
	"fmt"
	"math"

	"github.com/pthm-cable/gomc/box"
	"github.com/pthm-cable/gomc/device"
	"github.com/pthm-cable/gomc/forcefield"
	"github.com/pthm-cable/gomc/particles"
)

// ErrOutputSize is returned when the output slice does not match the beads.
var ErrOutputSize = errors.New("output size mismatch")

// Bead is a trial atom position.
type Bead struct {
	Pos    box.Vec3
	Type   int
	Charge float64
}

// Model bundles the read-only inputs of the kernel.
type Model struct {
	FF      *forcefield.Table
	Box     *box.Box
	Coulomb float64 // 1/(4*pi*eps0) in internal units
	Pool    *device.Pool
}

// Molecule identifies a molecule excluded from its own energy.
type Molecule struct {
	Component int
	MolID     int
}

// none matches no particle.
var none = Molecule{Component: -1, MolID: -1}

// TrialEnergies writes into out[g] the energy of beads[g*group:(g+1)*group]
// against every live particle of views. A group is one trial orientation of
// a molecule with group sites. Groups are split across the pool workers;
// views must not change until it returns.
func (m Model) TrialEnergies(views []particles.View, beads []Bead, group int, out []float64) error {
	if group < 1 || len(beads)%group != 0 {
		return fmt.Errorf("%w: %d beads in groups of %d", ErrOutputSize, len(beads), group)
	}
	if len(out) != len(beads)/group {
		return fmt.Errorf("%w: %d outputs for %d groups", ErrOutputSize, len(out), len(beads)/group)
	}
	if err := m.checkTypes(beads); err != nil {
		return err
	}
	cell, inv := m.Box.Cells()
	m.Pool.Run(len(out), func(start, end, _ int) {
		for g := start; g < end; g++ {
			var e float64
			for _, b := range beads[g*group : (g+1)*group] {
				e += m.beadEnergy(cell, inv, views, b, none)
			}
			out[g] = e
		}
	})
	return nil
}

// MoleculeEnergy returns the energy of beads placed as molecule self
// against every other live particle of views.
func (m Model) MoleculeEnergy(views []particles.View, beads []Bead, self Molecule) (float64, error) {
	if err := m.checkTypes(beads); err != nil {
		return 0, err
	}
	cell, inv := m.Box.Cells()
	var e float64
	for _, b := range beads {
		e += m.beadEnergy(cell, inv, views, b, self)
	}
	return e, nil
}

// BeadEnergy returns the energy of a single bead against every live particle.
func (m Model) BeadEnergy(views []particles.View, b Bead) float64 {
	cell, inv := m.Box.Cells()
	return m.beadEnergy(cell, inv, views, b, none)
}

func (m Model) checkTypes(beads []Bead) error {
	for _, b := range beads {
		if b.Type < 0 || b.Type >= m.FF.Size {
			return fmt.Errorf("bead type %d not in [0,%d)", b.Type, m.FF.Size)
		}
	}
	return nil
}

func (m Model) beadEnergy(cell, inv box.Matrix, views []particles.View, b Bead, self Molecule) float64 {
	rcVDW := m.FF.FFParams.CutoffVDW * m.FF.FFParams.CutoffVDW
	rcCoul := m.FF.FFParams.CutoffCoulomb * m.FF.FFParams.CutoffCoulomb
	charged := !m.FF.NoCharges && b.Charge != 0

	var e float64
	for _, v := range views {
		for j := 0; j < v.Len(); j++ {
			if v.Scale[j] == 0 && v.ScaleCoul[j] == 0 {
				continue
			}
			if v.MolID[j] == self.MolID && v.Component[j] == self.Component {
				continue
			}
			d := box.MinimumImage(cell, inv, box.Vec3{
				b.Pos[0] - v.X[j],
				b.Pos[1] - v.Y[j],
				b.Pos[2] - v.Z[j],
			})
			r2 := d[0]*d[0] + d[1]*d[1] + d[2]*d[2]
			if r2 < rcVDW && v.Scale[j] > 0 {
				e += v.Scale[j] * m.FF.PairEnergy(b.Type, v.Type[j], r2)
			}
			if charged && r2 < rcCoul && v.Charge[j] != 0 {
				if r2 == 0 {
					return math.Inf(1)
				}
				e += m.Coulomb * v.ScaleCoul[j] * b.Charge * v.Charge[j] / math.Sqrt(r2)
			}
		}
	}
	return e
}
