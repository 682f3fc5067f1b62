package box

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func det3(m Matrix) float64 {
	return m[0]*(m[4]*m[8]-m[5]*m[7]) -
		m[1]*(m[3]*m[8]-m[5]*m[6]) +
		m[2]*(m[3]*m[7]-m[4]*m[6])
}

func TestSetCellInverse(t *testing.T) {
	cells := map[string]Matrix{
		"cubic":      Cubic(24.0),
		"orthogonal": {10, 0, 0, 0, 20, 0, 0, 0, 30},
		"triclinic":  FromLengths(25.832, 25.832, 25.832, 90, 90, 90),
		"monoclinic": FromLengths(10.5, 12.3, 9.1, 90, 104.2, 90),
		"skewed":     FromLengths(8.0, 9.0, 10.0, 70, 80, 110),
	}
	for name, m := range cells {
		t.Run(name, func(t *testing.T) {
			b, err := New(m, 300, 1e5)
			require.NoError(t, err)

			cell, inv := b.Cells()
			for i := 0; i < 3; i++ {
				for j := 0; j < 3; j++ {
					var s float64
					for k := 0; k < 3; k++ {
						s += cell[3*i+k] * inv[3*k+j]
					}
					want := 0.0
					if i == j {
						want = 1.0
					}
					assert.InDelta(t, want, s, 1e-12, "M*Inv[%d][%d]", i, j)
				}
			}
			assert.InDelta(t, det3(m), b.Volume(), 1e-9*math.Abs(det3(m)))

			fc, fi := b.FloatCells()
			for i := range fc {
				assert.InDelta(t, cell[i], float64(fc[i]), 1e-4*math.Max(1, math.Abs(cell[i])))
				assert.InDelta(t, inv[i], float64(fi[i]), 1e-6)
			}
		})
	}
}

func TestSetCellRejectsDegenerate(t *testing.T) {
	b, err := New(Cubic(10), 300, 0)
	require.NoError(t, err)

	bad := Matrix{1, 2, 3, 2, 4, 6, 0, 0, 1}
	err = b.SetCell(bad)
	assert.True(t, errors.Is(err, ErrDegenerateCell))

	// Left-handed cell has negative volume.
	err = b.SetCell(Matrix{-10, 0, 0, 0, 10, 0, 0, 0, 10})
	assert.True(t, errors.Is(err, ErrDegenerateCell))

	// The previous cell is kept.
	assert.Equal(t, Cubic(10), b.Cell())
	assert.InDelta(t, 1000.0, b.Volume(), 1e-9)
}

func TestWrap(t *testing.T) {
	b, err := New(Cubic(10), 300, 0)
	require.NoError(t, err)

	tests := []struct {
		name string
		in   Vec3
		want Vec3
	}{
		{"inside", Vec3{1, -2, 3}, Vec3{1, -2, 3}},
		{"positive image", Vec3{9, 0, 0}, Vec3{-1, 0, 0}},
		{"negative image", Vec3{0, -7, 0}, Vec3{0, 3, 0}},
		{"several cells", Vec3{21, 0, -34}, Vec3{1, 0, -4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := b.Wrap(tt.in)
			for i := range got {
				assert.InDelta(t, tt.want[i], got[i], 1e-12)
			}
		})
	}

	p := b.WrapPosition(Vec3{-1, 12, 5})
	assert.InDelta(t, 9.0, p[0], 1e-12)
	assert.InDelta(t, 2.0, p[1], 1e-12)
	assert.InDelta(t, 5.0, p[2], 1e-12)
}

func TestWrapTriclinicMinimumImage(t *testing.T) {
	b, err := New(FromLengths(10, 10, 10, 90, 90, 60), 300, 0)
	require.NoError(t, err)

	// Any lattice translation wraps to zero.
	cell := b.Cell()
	d := Vec3{cell[0] + cell[1], cell[3] + cell[4], cell[6] + cell[7]}
	got := b.Wrap(d)
	for i := range got {
		assert.InDelta(t, 0.0, got[i], 1e-10)
	}

	// Wrapped fractional coordinates lie in [-0.5, 0.5].
	s := b.Fractional(b.Wrap(Vec3{13.2, -8.7, 4.4}))
	for i := range s {
		assert.LessOrEqual(t, math.Abs(s[i]), 0.5+1e-12)
	}
}

func TestWidths(t *testing.T) {
	b, err := New(Matrix{10, 0, 0, 0, 20, 0, 0, 0, 30}, 300, 0)
	require.NoError(t, err)
	w := b.Widths()
	assert.InDelta(t, 10.0, w[0], 1e-12)
	assert.InDelta(t, 20.0, w[1], 1e-12)
	assert.InDelta(t, 30.0, w[2], 1e-12)
}

func TestFromLengthsColumnsAreLatticeVectors(t *testing.T) {
	m := FromLengths(3, 4, 5, 90, 90, 60)
	col := func(j int) Vec3 { return Vec3{m[j], m[3+j], m[6+j]} }

	a, b, c := col(0), col(1), col(2)
	assert.InDeltaSlice(t, []float64{3, 0, 0}, a[:], 1e-12)
	assert.InDeltaSlice(t, []float64{2, 2 * math.Sqrt(3), 0}, b[:], 1e-12)
	assert.InDeltaSlice(t, []float64{0, 0, 5}, c[:], 1e-12)

	bx, err := New(m, 300, 0)
	require.NoError(t, err)
	// the fractional coordinate (0,1,0) is lattice vector b
	got := bx.Cartesian(Vec3{0, 1, 0})
	assert.InDeltaSlice(t, b[:], got[:], 1e-12)
}
