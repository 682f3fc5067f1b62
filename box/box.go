// Package box holds the periodic simulation cell and the macroscopic state
// (temperature, pressure, volume) of a system.
package box

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// ErrDegenerateCell is returned for a cell with non-positive volume.
var ErrDegenerateCell = errors.New("degenerate cell")

// Vec3 is a Cartesian vector.
type Vec3 [3]float64

// Matrix is a 3x3 matrix in row-major order. The columns of a cell matrix
// are the lattice vectors a, b and c.
type Matrix [9]float64

// Box is the periodic cell. The cell, its inverse, the volume and the
// float32 mirrors are replaced together; readers never see a cell without
// its matching inverse.
type Box struct {
	mu sync.RWMutex

	cell         Matrix
	inverse      Matrix
	floatCell    [9]float32
	floatInverse [9]float32
	volume       float64

	temperature float64
	pressure    float64
}

// New creates a box from a cell matrix and thermodynamic state.
func New(cell Matrix, temperature, pressure float64) (*Box, error) {
	b := &Box{temperature: temperature, pressure: pressure}
	if err := b.SetCell(cell); err != nil {
		return nil, err
	}
	return b, nil
}

// Cubic returns the cell matrix of a cube with edge l.
func Cubic(l float64) Matrix {
	return Matrix{
		l, 0, 0,
		0, l, 0,
		0, 0, l,
	}
}

// FromLengths returns the cell matrix for edge lengths a, b, c and angles
// alpha, beta, gamma in degrees, with a along x and b in the xy plane.
func FromLengths(a, b, c, alpha, beta, gamma float64) Matrix {
	al := alpha * math.Pi / 180
	be := beta * math.Pi / 180
	ga := gamma * math.Pi / 180

	bx := b * math.Cos(ga)
	by := b * math.Sin(ga)
	cx := c * math.Cos(be)
	cy := c * (math.Cos(al) - math.Cos(be)*math.Cos(ga)) / math.Sin(ga)
	cz := math.Sqrt(math.Max(c*c-cx*cx-cy*cy, 0))

	return Matrix{
		a, bx, cx,
		0, by, cy,
		0, 0, cz,
	}
}

// SetCell replaces the cell and recomputes the inverse, the volume and the
// float32 mirrors. The box is unchanged if the cell is degenerate.
func (b *Box) SetCell(cell Matrix) error {
	m := mat.NewDense(3, 3, cell[:])
	det := mat.Det(m)
	if !(det > 0) {
		return fmt.Errorf("%w: determinant %v", ErrDegenerateCell, det)
	}
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return fmt.Errorf("%w: %v", ErrDegenerateCell, err)
	}

	var inverse Matrix
	copy(inverse[:], inv.RawMatrix().Data)
	var fc, fi [9]float32
	for i := range cell {
		fc[i] = float32(cell[i])
		fi[i] = float32(inverse[i])
	}

	b.mu.Lock()
	b.cell = cell
	b.inverse = inverse
	b.floatCell = fc
	b.floatInverse = fi
	b.volume = det
	b.mu.Unlock()
	return nil
}

// Cell returns the cell matrix.
func (b *Box) Cell() Matrix {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cell
}

// InverseCell returns the inverse of the cell matrix.
func (b *Box) InverseCell() Matrix {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.inverse
}

// Cells returns the cell and its inverse from the same update.
func (b *Box) Cells() (cell, inverse Matrix) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cell, b.inverse
}

// FloatCells returns the reduced precision mirror read by mixed-precision kernels.
func (b *Box) FloatCells() (cell, inverse [9]float32) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.floatCell, b.floatInverse
}

// Volume returns det(Cell).
func (b *Box) Volume() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.volume
}

// Temperature returns the temperature in kelvin.
func (b *Box) Temperature() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.temperature
}

// Pressure returns the pressure in pascal.
func (b *Box) Pressure() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pressure
}

// SetState sets temperature and pressure.
func (b *Box) SetState(temperature, pressure float64) {
	b.mu.Lock()
	b.temperature = temperature
	b.pressure = pressure
	b.mu.Unlock()
}

// Widths returns the perpendicular widths of the cell, i.e. the distances
// between opposite faces.
func (b *Box) Widths() Vec3 {
	_, inv := b.Cells()
	var w Vec3
	for i := 0; i < 3; i++ {
		r := Vec3{inv[3*i], inv[3*i+1], inv[3*i+2]}
		w[i] = 1 / math.Sqrt(r[0]*r[0]+r[1]*r[1]+r[2]*r[2])
	}
	return w
}

// Wrap maps a displacement onto its minimum image.
func (b *Box) Wrap(d Vec3) Vec3 {
	cell, inv := b.Cells()
	return MinimumImage(cell, inv, d)
}

// MinimumImage maps d onto its minimum image for a cell and its inverse.
// Kernels take the matrices once with Cells and call this per pair.
func MinimumImage(cell, inv Matrix, d Vec3) Vec3 {
	s := mulVec(inv, d)
	for i := range s {
		s[i] -= math.Round(s[i])
	}
	return mulVec(cell, s)
}

// WrapPosition maps a position into the primary cell [0,1) in fractional coordinates.
func (b *Box) WrapPosition(p Vec3) Vec3 {
	cell, inv := b.Cells()
	s := mulVec(inv, p)
	for i := range s {
		s[i] -= math.Floor(s[i])
	}
	return mulVec(cell, s)
}

// Fractional converts a Cartesian position to fractional coordinates.
func (b *Box) Fractional(p Vec3) Vec3 {
	_, inv := b.Cells()
	return mulVec(inv, p)
}

// Cartesian converts fractional coordinates to a Cartesian position.
func (b *Box) Cartesian(s Vec3) Vec3 {
	cell, _ := b.Cells()
	return mulVec(cell, s)
}

func mulVec(m Matrix, v Vec3) Vec3 {
	return Vec3{
		m[0]*v[0] + m[1]*v[1] + m[2]*v[2],
		m[3]*v[0] + m[4]*v[1] + m[5]*v[2],
		m[6]*v[0] + m[7]*v[1] + m[8]*v[2],
	}
}
