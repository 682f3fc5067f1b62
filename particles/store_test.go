package particles

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/pthm-cable/gomc/device"
)

func rec(typ, mol int) Record {
	return Record{
		X: float64(mol), Y: float64(typ), Z: 1,
		Scale: 1, ScaleCoul: 1,
		Type: typ, MolID: mol,
	}
}

func TestInsertRemoveSequence(t *testing.T) {
	const ntypes = 3
	r := rand.New(rand.NewPCG(1, 2))
	s := NewStore(4, 1)

	inserts, removes := 0, 0
	for step := 0; step < 2000; step++ {
		if s.Len() == 0 || r.Float64() < 0.6 {
			idx := r.IntN(s.Len() + 1)
			if err := s.InsertAt(idx, rec(r.IntN(ntypes), step)); err != nil {
				if !errors.Is(err, ErrSyncPending) {
					t.Fatalf("step %d: InsertAt: %v", step, err)
				}
				if err := s.Sync(); err != nil {
					t.Fatalf("Sync: %v", err)
				}
				if err := s.InsertAt(idx, rec(r.IntN(ntypes), step)); err != nil {
					t.Fatalf("step %d: InsertAt after sync: %v", step, err)
				}
			}
			inserts++
		} else {
			if _, err := s.RemoveAt(r.IntN(s.Len())); err != nil {
				t.Fatalf("step %d: RemoveAt: %v", step, err)
			}
			removes++
		}

		if s.Len() != inserts-removes {
			t.Fatalf("step %d: size %d, want %d", step, s.Len(), inserts-removes)
		}
		if s.Len() > s.Cap() {
			t.Fatalf("step %d: size %d exceeds capacity %d", step, s.Len(), s.Cap())
		}
	}
	if err := s.Validate(ntypes, 1); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestRemoveAtCompacts(t *testing.T) {
	s := NewStore(8, 1)
	for i := 0; i < 5; i++ {
		if err := s.Append(rec(0, i)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	moved, err := s.RemoveAt(1)
	if err != nil {
		t.Fatalf("RemoveAt: %v", err)
	}
	if moved != 4 {
		t.Errorf("moved = %d, want 4", moved)
	}
	got, _ := s.At(1)
	if got.MolID != 4 {
		t.Errorf("slot 1 holds molecule %d, want 4", got.MolID)
	}

	moved, err = s.RemoveAt(s.Len() - 1)
	if err != nil || moved != -1 {
		t.Errorf("removing last: moved=%d err=%v", moved, err)
	}

	mols := map[int]bool{}
	for i := 0; i < s.Len(); i++ {
		r, _ := s.At(i)
		mols[r.MolID] = true
	}
	for _, m := range []int{0, 2, 4} {
		if !mols[m] {
			t.Errorf("molecule %d lost", m)
		}
	}
}

func TestInsertAtMiddleKeepsOccupant(t *testing.T) {
	s := NewStore(8, 1)
	for i := 0; i < 3; i++ {
		_ = s.Append(rec(0, i))
	}
	if err := s.InsertAt(1, rec(1, 99)); err != nil {
		t.Fatalf("InsertAt: %v", err)
	}
	at1, _ := s.At(1)
	at3, _ := s.At(3)
	if at1.MolID != 99 || at3.MolID != 1 {
		t.Errorf("slot 1 = %d, slot 3 = %d; want 99 and 1", at1.MolID, at3.MolID)
	}
}

func TestOutOfRange(t *testing.T) {
	s := NewStore(4, 1)
	_ = s.Append(rec(0, 0))

	tests := []struct {
		name string
		fn   func() error
	}{
		{"insert past end", func() error { return s.InsertAt(2, rec(0, 1)) }},
		{"insert negative", func() error { return s.InsertAt(-1, rec(0, 1)) }},
		{"remove at size", func() error { _, err := s.RemoveAt(1); return err }},
		{"read at size", func() error { _, err := s.At(1); return err }},
		{"write negative", func() error { return s.Set(-1, rec(0, 0)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			if !errors.Is(err, ErrIndexOutOfRange) {
				t.Fatalf("error = %v, want ErrIndexOutOfRange", err)
			}
			var ie *IndexError
			if !errors.As(err, &ie) {
				t.Fatal("error should be an *IndexError")
			}
		})
	}
	if s.Len() != 1 {
		t.Errorf("size changed to %d by failed calls", s.Len())
	}
}

func TestCapacityForIdempotent(t *testing.T) {
	s := NewStore(0, 1)
	for i := 0; i < 10; i++ {
		_ = s.Append(rec(i%2, i))
	}
	if err := s.Sync(); err != nil {
		t.Fatal(err)
	}
	before := s.HostView()
	snapshot := make([]int, before.Len())
	copy(snapshot, before.MolID)

	if err := s.CapacityFor(100); err != nil {
		t.Fatalf("CapacityFor: %v", err)
	}
	c := s.Cap()
	if c < 100 {
		t.Fatalf("Cap = %d, want >= 100", c)
	}
	if err := s.Sync(); err != nil {
		t.Fatal(err)
	}

	for _, n := range []int{100, 50, 0} {
		if err := s.CapacityFor(n); err != nil {
			t.Fatalf("CapacityFor(%d): %v", n, err)
		}
		if s.Cap() != c {
			t.Errorf("CapacityFor(%d) changed capacity %d -> %d", n, c, s.Cap())
		}
		if s.State() != device.Synced {
			t.Errorf("CapacityFor(%d) without growth dirtied the mirror", n)
		}
	}

	after := s.HostView()
	for i, m := range snapshot {
		if after.MolID[i] != m {
			t.Errorf("particle %d changed molecule %d -> %d", i, m, after.MolID[i])
		}
	}
}

func TestCapacityGrowthHeadroom(t *testing.T) {
	s := NewStore(100, 1)
	if err := s.CapacityFor(101); err != nil {
		t.Fatal(err)
	}
	if s.Cap() < 200 {
		t.Errorf("Cap = %d, want at least GrowthFactor*100", s.Cap())
	}
}

func TestGrowthRequiresSync(t *testing.T) {
	s := NewStore(1, 1)
	if err := s.Append(rec(0, 0)); err != nil {
		t.Fatal(err)
	}
	// The store is full and host dirty.
	err := s.Append(rec(0, 1))
	if !errors.Is(err, ErrSyncPending) {
		t.Fatalf("Append needing growth while dirty = %v, want ErrSyncPending", err)
	}
	if s.Len() != 1 {
		t.Fatalf("failed append changed size to %d", s.Len())
	}

	if err := s.Sync(); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(rec(0, 1)); err != nil {
		t.Fatalf("Append after sync: %v", err)
	}
	if s.State() != device.HostDirty {
		t.Errorf("state after growth = %s, want host_dirty", s.State())
	}
}

func TestDeviceMirror(t *testing.T) {
	s := NewStore(4, 1)
	_ = s.Append(rec(0, 7))

	if _, err := s.DeviceView(); !errors.Is(err, ErrSyncPending) {
		t.Fatalf("DeviceView before sync = %v, want ErrSyncPending", err)
	}
	if err := s.Sync(); err != nil {
		t.Fatal(err)
	}

	v, err := s.DeviceView()
	if err != nil {
		t.Fatalf("DeviceView: %v", err)
	}
	if v.Len() != 1 || v.MolID[0] != 7 {
		t.Fatalf("device view = %+v", v)
	}

	// A kernel moves the particle on the device.
	v.X[0] = 42
	if err := s.MarkDeviceWrite(); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(0, rec(0, 7)); !errors.Is(err, device.ErrConflict) {
		t.Errorf("host write over device changes = %v, want ErrConflict", err)
	}
	if err := s.Sync(); err != nil {
		t.Fatal(err)
	}
	r, _ := s.At(0)
	if r.X != 42 {
		t.Errorf("host X = %v after device->host sync, want 42", r.X)
	}
}

func TestRemoveMolecule(t *testing.T) {
	s := NewStore(16, 3)
	for mol := 0; mol < 4; mol++ {
		for a := 0; a < 3; a++ {
			_ = s.Append(rec(a, mol))
		}
	}
	n, err := s.RemoveMolecule(0, 1)
	if err != nil || n != 3 {
		t.Fatalf("RemoveMolecule = %d, %v; want 3", n, err)
	}
	if s.Len() != 9 {
		t.Errorf("Len = %d, want 9", s.Len())
	}
	if idx := s.MoleculeIndices(0, 1); len(idx) != 0 {
		t.Errorf("molecule 1 still has atoms at %v", idx)
	}
	for _, mol := range []int{0, 2, 3} {
		if idx := s.MoleculeIndices(0, mol); len(idx) != 3 {
			t.Errorf("molecule %d has %d atoms, want 3", mol, len(idx))
		}
	}
}

func TestRelabelMolecule(t *testing.T) {
	s := NewStore(8, 2)
	for mol := 0; mol < 3; mol++ {
		for a := 0; a < 2; a++ {
			_ = s.Append(rec(a, mol))
		}
	}
	if _, err := s.RemoveMolecule(0, 0); err != nil {
		t.Fatal(err)
	}
	n, err := s.RelabelMolecule(0, 2, 0)
	if err != nil || n != 2 {
		t.Fatalf("RelabelMolecule = %d, %v; want 2", n, err)
	}
	if idx := s.MoleculeIndices(0, 2); len(idx) != 0 {
		t.Errorf("molecule 2 still has atoms at %v", idx)
	}
	if idx := s.MoleculeIndices(0, 0); len(idx) != 2 {
		t.Errorf("molecule 0 has %d atoms, want 2", len(idx))
	}
	if n, _ := s.RelabelMolecule(0, 1, 1); n != 0 {
		t.Errorf("relabel onto itself changed %d atoms", n)
	}
}

func TestValidate(t *testing.T) {
	s := NewStore(4, 1)
	_ = s.Append(rec(0, 0))
	bad := rec(5, 1)
	_ = s.Append(bad)

	err := s.Validate(3, 1)
	if !errors.Is(err, ErrInvalidParticle) {
		t.Fatalf("Validate = %v, want ErrInvalidParticle", err)
	}
	var ie *IndexError
	if !errors.As(err, &ie) || ie.Index != 1 {
		t.Errorf("diagnostic should name particle 1, got %v", err)
	}
}
