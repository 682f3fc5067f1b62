package checkpoint

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/gomc/box"
	"github.com/pthm-cable/gomc/moves"
	"github.com/pthm-cable/gomc/particles"
	"github.com/pthm-cable/gomc/rng"
	"github.com/pthm-cable/gomc/widom"
)

func sample(t *testing.T) *Checkpoint {
	t.Helper()
	pool, err := rng.NewPool(64, 7)
	require.NoError(t, err)
	_, err = pool.NextBatch(10)
	require.NoError(t, err)
	snap, err := pool.Snapshot()
	require.NoError(t, err)

	var counters [moves.NumClasses]moves.Counter
	counters[moves.Translation] = moves.Counter{Attempted: 12, Accepted: 5}

	return &Checkpoint{
		Cycle:       250,
		Block:       1,
		Cell:        box.Cubic(24.5),
		Temperature: 300,
		Pressure:    1e5,
		Components: []ComponentState{{
			Name:           "methane",
			Molecules:      2,
			MaxTranslation: 0.7,
			MaxRotation:    1.2,
			Counters:       counters,
			Particles: []particles.Record{
				{X: 1, Y: 2, Z: 3, Scale: 1, ScaleCoul: 1, MolID: 0},
				{X: 4.25, Y: -1, Z: 0.5, Scale: 1, ScaleCoul: 1, MolID: 1},
			},
			Widom: &widom.State{
				Block:             1,
				RosenbluthCount:   []int{40, 0},
				Rosenbluth:        []float64{0.75, 0},
				RosenbluthSquared: []float64{0.5625, 0},
				ExcessMu:          []float64{0.125, 0},
				ExcessMuSquared:   []float64{0.015625, 0},
			},
		}},
		Random: snap,
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "checkpoint.json.zst")
	want := sample(t)
	require.NoError(t, Save(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Version, got.Version)
	assert.Equal(t, want, got)

	// restored random pool continues the same stream
	p1, err := rng.Restore(want.Random)
	require.NoError(t, err)
	p2, err := rng.Restore(got.Random)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		assert.Equal(t, p1.Next(), p2.Next())
	}
}

func TestSaveReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint.json.zst")
	c := sample(t)
	require.NoError(t, Save(path, c))
	c.Cycle = 500
	require.NoError(t, Save(path, c))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 500, got.Cycle)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files left behind")
}

func TestLoadRejectsOtherVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.json.zst")
	f, err := os.Create(path)
	require.NoError(t, err)
	c := sample(t)
	c.Version = Version + 1
	require.NoError(t, encode(f, c))
	require.NoError(t, f.Close())

	_, err = Load(path)
	assert.True(t, errors.Is(err, ErrVersion), "got %v", err)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
