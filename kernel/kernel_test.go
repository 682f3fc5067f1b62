package kernel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/gomc/box"
	"github.com/pthm-cable/gomc/device"
	"github.com/pthm-cable/gomc/forcefield"
	"github.com/pthm-cable/gomc/particles"
	"github.com/pthm-cable/gomc/units"
)

const (
	epsK  = 120.0
	sigma = 3.4
)

func newModel(t *testing.T, pool *device.Pool) Model {
	t.Helper()
	u := units.Default()
	ff, err := forcefield.New(
		[]forcefield.TypeParams{{Epsilon: epsK, Sigma: sigma, Law: forcefield.LawLennardJones}},
		forcefield.Params{CutoffVDW: 4.9, CutoffCoulomb: 4.9},
		u, 300, 1)
	require.NoError(t, err)
	b, err := box.New(box.Cubic(10), 300, 0)
	require.NoError(t, err)
	return Model{FF: ff, Box: b, Coulomb: u.CoulombConversion(), Pool: pool}
}

func storeWith(t *testing.T, recs ...particles.Record) particles.View {
	t.Helper()
	s := particles.NewStore(len(recs), 1)
	for _, r := range recs {
		require.NoError(t, s.Append(r))
	}
	return s.HostView()
}

func TestLennardJonesMinimum(t *testing.T) {
	m := newModel(t, nil)
	v := storeWith(t, particles.Record{Scale: 1, ScaleCoul: 1})
	rmin := math.Pow(2, 1.0/6.0) * sigma
	eps := epsK / units.Default().EnergyToKelvin

	tests := []struct {
		name string
		pos  box.Vec3
	}{
		{"direct", box.Vec3{rmin, 0, 0}},
		{"through boundary", box.Vec3{10 - rmin, 0, 0}},
		{"diagonal image", box.Vec3{0, 10 - rmin, 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := m.BeadEnergy([]particles.View{v}, Bead{Pos: tt.pos})
			assert.InDelta(t, -eps, e, 1e-9)
		})
	}
}

func TestCutoffAndScale(t *testing.T) {
	m := newModel(t, nil)

	far := storeWith(t, particles.Record{X: 5, Scale: 1, ScaleCoul: 1})
	assert.Equal(t, 0.0, m.BeadEnergy([]particles.View{far}, Bead{}))

	absent := storeWith(t, particles.Record{X: 1})
	assert.Equal(t, 0.0, m.BeadEnergy([]particles.View{absent}, Bead{}))

	half := storeWith(t, particles.Record{X: 4, Scale: 0.5})
	full := storeWith(t, particles.Record{X: 4, Scale: 1})
	views := []particles.View{full}
	assert.InDelta(t, 0.5*m.BeadEnergy(views, Bead{}), m.BeadEnergy([]particles.View{half}, Bead{}), 1e-12)
}

func TestCoulomb(t *testing.T) {
	m := newModel(t, nil)
	// beyond the LJ range of the pair table but inside the Coulomb cutoff
	m.FF.FFType[0] = forcefield.LawNone
	v := storeWith(t, particles.Record{X: 2, Scale: 1, ScaleCoul: 1, Charge: -1})

	e := m.BeadEnergy([]particles.View{v}, Bead{Charge: 1})
	assert.InDelta(t, -m.Coulomb/2, e, 1e-9)

	m.FF.NoCharges = true
	assert.Equal(t, 0.0, m.BeadEnergy([]particles.View{v}, Bead{Charge: 1}))
}

func TestOverlapIsInfinite(t *testing.T) {
	m := newModel(t, nil)
	v := storeWith(t, particles.Record{X: 1, Y: 1, Z: 1, Scale: 1, ScaleCoul: 1})
	e := m.BeadEnergy([]particles.View{v}, Bead{Pos: box.Vec3{1, 1, 1}})
	assert.True(t, math.IsInf(e, 1))
}

func TestTrialEnergiesOnPool(t *testing.T) {
	pool := device.NewPool(4)
	pool.Start()
	defer pool.Stop()

	recs := make([]particles.Record, 0, 50)
	for i := 0; i < 50; i++ {
		recs = append(recs, particles.Record{
			X: float64(i%5) * 2, Y: float64(i/5%5) * 2, Z: float64(i / 25 * 5),
			Scale: 1, ScaleCoul: 1,
		})
	}
	v := storeWith(t, recs...)

	beads := make([]Bead, 600)
	for i := range beads {
		beads[i] = Bead{Pos: box.Vec3{0.5 + float64(i%10), 1.1, 0.3 * float64(i%30)}}
	}

	serial := newModel(t, nil)
	parallel := newModel(t, pool)

	want := make([]float64, len(beads))
	got := make([]float64, len(beads))
	require.NoError(t, serial.TrialEnergies([]particles.View{v}, beads, 1, want))
	require.NoError(t, parallel.TrialEnergies([]particles.View{v}, beads, 1, got))
	assert.Equal(t, want, got)

	// groups of two sum their beads
	pairs := make([]float64, len(beads)/2)
	require.NoError(t, parallel.TrialEnergies([]particles.View{v}, beads, 2, pairs))
	for g := range pairs {
		assert.InDelta(t, want[2*g]+want[2*g+1], pairs[g], 1e-9)
	}
}

func TestMoleculeEnergyExcludesSelf(t *testing.T) {
	m := newModel(t, nil)
	v := storeWith(t,
		particles.Record{X: 1, Scale: 1, ScaleCoul: 1, MolID: 0},
		particles.Record{X: 6, Scale: 1, ScaleCoul: 1, MolID: 1},
	)
	views := []particles.View{v}
	bead := Bead{Pos: box.Vec3{1, 0, 0}}

	e, err := m.MoleculeEnergy(views, []Bead{bead}, Molecule{Component: 0, MolID: 0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, e)

	e, err = m.MoleculeEnergy(views, []Bead{bead}, Molecule{Component: 0, MolID: 1})
	require.NoError(t, err)
	assert.True(t, math.IsInf(e, 1))
}

func TestTrialEnergiesValidates(t *testing.T) {
	m := newModel(t, nil)
	assert.Error(t, m.TrialEnergies(nil, []Bead{{}}, 1, nil))
	assert.Error(t, m.TrialEnergies(nil, []Bead{{}, {}, {}}, 2, make([]float64, 1)))
	assert.Error(t, m.TrialEnergies(nil, []Bead{{Type: 3}}, 1, make([]float64, 1)))
}
