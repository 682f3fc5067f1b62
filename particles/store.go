// Package particles is the structure-of-arrays store of every atom in a
// system, with a host copy, a device mirror and an explicit
// synchronization boundary between them.
//
// Particle indices are dense: every index below Len is live. Removal moves
// the last particle into the hole, so an index held across a RemoveAt is
// invalid. The (Component, MolID) pair is the durable handle of a molecule.
package particles

import (
	"errors"
	"fmt"

	"github.com/pthm-cable/gomc/device"
)

const (
	// GrowthFactor is the minimum relative capacity increase on reallocation.
	GrowthFactor = 2
	// MinGrowth is the minimum absolute capacity increase on reallocation.
	MinGrowth = 64
)

var (
	// ErrIndexOutOfRange is returned for an index outside the live range.
	ErrIndexOutOfRange = errors.New("particle index out of range")
	// ErrSyncPending is returned when a reallocation is needed while the
	// device mirror holds unsynchronized state.
	ErrSyncPending = errors.New("device synchronization pending")
	// ErrInvalidParticle is returned by Validate for a live particle with
	// a bad type, component or scaling parameter.
	ErrInvalidParticle = errors.New("invalid particle")
)

// IndexError identifies the particle index an operation failed on.
type IndexError struct {
	Op    string
	Index int
	Size  int
	Err   error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("%s: index %d (size %d): %v", e.Op, e.Index, e.Size, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

// Record is the full field set of one particle.
type Record struct {
	X, Y, Z   float64
	Scale     float64 // fractional/soft-core scaling, 0 absent, 1 fully present
	Charge    float64
	ScaleCoul float64
	Type      int
	MolID     int
	Component int
}

// arrays holds one copy of the particle fields. Every slice has the same length.
type arrays struct {
	X, Y, Z   []float64
	Scale     []float64
	Charge    []float64
	ScaleCoul []float64
	Type      []int
	MolID     []int
	Component []int
}

func newArrays(n int) arrays {
	return arrays{
		X:         make([]float64, n),
		Y:         make([]float64, n),
		Z:         make([]float64, n),
		Scale:     make([]float64, n),
		Charge:    make([]float64, n),
		ScaleCoul: make([]float64, n),
		Type:      make([]int, n),
		MolID:     make([]int, n),
		Component: make([]int, n),
	}
}

// copyArrays copies the first n entries of src into dst.
func copyArrays(dst, src arrays, n int) {
	copy(dst.X[:n], src.X[:n])
	copy(dst.Y[:n], src.Y[:n])
	copy(dst.Z[:n], src.Z[:n])
	copy(dst.Scale[:n], src.Scale[:n])
	copy(dst.Charge[:n], src.Charge[:n])
	copy(dst.ScaleCoul[:n], src.ScaleCoul[:n])
	copy(dst.Type[:n], src.Type[:n])
	copy(dst.MolID[:n], src.MolID[:n])
	copy(dst.Component[:n], src.Component[:n])
}

func (a arrays) set(i int, r Record) {
	a.X[i] = r.X
	a.Y[i] = r.Y
	a.Z[i] = r.Z
	a.Scale[i] = r.Scale
	a.Charge[i] = r.Charge
	a.ScaleCoul[i] = r.ScaleCoul
	a.Type[i] = r.Type
	a.MolID[i] = r.MolID
	a.Component[i] = r.Component
}

func (a arrays) get(i int) Record {
	return Record{
		X:         a.X[i],
		Y:         a.Y[i],
		Z:         a.Z[i],
		Scale:     a.Scale[i],
		Charge:    a.Charge[i],
		ScaleCoul: a.ScaleCoul[i],
		Type:      a.Type[i],
		MolID:     a.MolID[i],
		Component: a.Component[i],
	}
}

func (a arrays) view(n int) View {
	return View{
		X:         a.X[:n:n],
		Y:         a.Y[:n:n],
		Z:         a.Z[:n:n],
		Scale:     a.Scale[:n:n],
		Charge:    a.Charge[:n:n],
		ScaleCoul: a.ScaleCoul[:n:n],
		Type:      a.Type[:n:n],
		MolID:     a.MolID[:n:n],
		Component: a.Component[:n:n],
	}
}

// View exposes the live range of one copy of the arrays to a kernel.
// Slices are valid until the next reallocation or synchronization.
type View struct {
	X, Y, Z   []float64
	Scale     []float64
	Charge    []float64
	ScaleCoul []float64
	Type      []int
	MolID     []int
	Component []int
}

// Len returns the number of live particles in the view.
func (v View) Len() int { return len(v.X) }

// Store holds the particles of a system.
type Store struct {
	host    arrays
	dev     arrays
	mirror  device.Mirror
	size    int
	molSize int
}

// NewStore creates an empty store with at least capacity slots. molSize is
// the number of atoms per molecule of the species held, 0 if mixed.
func NewStore(capacity, molSize int) *Store {
	if capacity < 0 {
		capacity = 0
	}
	return &Store{
		host:    newArrays(capacity),
		dev:     newArrays(capacity),
		molSize: molSize,
	}
}

// Len returns the logical size.
func (s *Store) Len() int { return s.size }

// Cap returns the allocated capacity.
func (s *Store) Cap() int { return len(s.host.X) }

// MolSize returns the atoms per molecule, 0 for a mixed store.
func (s *Store) MolSize() int { return s.molSize }

// State returns the mirror state.
func (s *Store) State() device.State { return s.mirror.State() }

// CapacityFor ensures Cap() >= n. Capacity never shrinks and live data is
// never modified. Growing requires a synchronized mirror, and leaves the
// device copy stale until the next Sync.
func (s *Store) CapacityFor(n int) error {
	if n <= s.Cap() {
		return nil
	}
	if s.mirror.Pending() {
		return fmt.Errorf("grow to %d: %w (state %s)", n, ErrSyncPending, s.mirror.State())
	}

	newCap := s.Cap() * GrowthFactor
	if c := s.Cap() + MinGrowth; c > newCap {
		newCap = c
	}
	if n > newCap {
		newCap = n
	}
	grown := newArrays(newCap)
	copyArrays(grown, s.host, s.size)
	s.host = grown
	s.mirror.Invalidate()
	return nil
}

// InsertAt writes r at index and increments the size. index == Len appends;
// a smaller index moves the current occupant to the end first.
func (s *Store) InsertAt(index int, r Record) error {
	if index < 0 || index > s.size {
		return &IndexError{Op: "insert", Index: index, Size: s.size, Err: ErrIndexOutOfRange}
	}
	if err := s.CapacityFor(s.size + 1); err != nil {
		return &IndexError{Op: "insert", Index: index, Size: s.size, Err: err}
	}
	if err := s.mirror.HostWrite(); err != nil {
		return &IndexError{Op: "insert", Index: index, Size: s.size, Err: err}
	}
	if index < s.size {
		s.host.set(s.size, s.host.get(index))
	}
	s.host.set(index, r)
	s.size++
	return nil
}

// Append inserts r at the end.
func (s *Store) Append(r Record) error {
	return s.InsertAt(s.size, r)
}

// RemoveAt removes the particle at index by moving the last live particle
// into its slot. It returns the former index of the moved particle, or -1
// if index was the last one.
func (s *Store) RemoveAt(index int) (int, error) {
	if index < 0 || index >= s.size {
		return -1, &IndexError{Op: "remove", Index: index, Size: s.size, Err: ErrIndexOutOfRange}
	}
	if err := s.mirror.HostWrite(); err != nil {
		return -1, &IndexError{Op: "remove", Index: index, Size: s.size, Err: err}
	}
	last := s.size - 1
	moved := -1
	if index != last {
		s.host.set(index, s.host.get(last))
		moved = last
	}
	s.host.set(last, Record{})
	s.size--
	return moved, nil
}

// At returns the host copy of particle i.
func (s *Store) At(i int) (Record, error) {
	if i < 0 || i >= s.size {
		return Record{}, &IndexError{Op: "read", Index: i, Size: s.size, Err: ErrIndexOutOfRange}
	}
	return s.host.get(i), nil
}

// Set overwrites particle i on the host.
func (s *Store) Set(i int, r Record) error {
	if i < 0 || i >= s.size {
		return &IndexError{Op: "write", Index: i, Size: s.size, Err: ErrIndexOutOfRange}
	}
	if err := s.mirror.HostWrite(); err != nil {
		return &IndexError{Op: "write", Index: i, Size: s.size, Err: err}
	}
	s.host.set(i, r)
	return nil
}

// MoleculeIndices returns the current indices of the atoms of molecule
// molID of component c, in ascending order.
func (s *Store) MoleculeIndices(c, molID int) []int {
	var idx []int
	for i := 0; i < s.size; i++ {
		if s.host.MolID[i] == molID && s.host.Component[i] == c {
			idx = append(idx, i)
		}
	}
	return idx
}

// RemoveMolecule removes every atom of molecule molID of component c and
// returns how many were removed.
func (s *Store) RemoveMolecule(c, molID int) (int, error) {
	removed := 0
	// Walking down keeps the swapped-in particle already examined.
	for i := s.size - 1; i >= 0; i-- {
		if s.host.MolID[i] != molID || s.host.Component[i] != c {
			continue
		}
		if _, err := s.RemoveAt(i); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// RelabelMolecule moves every atom of molecule from of component c to
// molecule id to, returning how many atoms changed.
func (s *Store) RelabelMolecule(c, from, to int) (int, error) {
	if from == to {
		return 0, nil
	}
	n := 0
	for i := 0; i < s.size; i++ {
		if s.host.MolID[i] != from || s.host.Component[i] != c {
			continue
		}
		if err := s.mirror.HostWrite(); err != nil {
			return n, &IndexError{Op: "relabel", Index: i, Size: s.size, Err: err}
		}
		s.host.MolID[i] = to
		n++
	}
	return n, nil
}

// HostView returns the live range of the host arrays.
func (s *Store) HostView() View {
	return s.host.view(s.size)
}

// DeviceView returns the live range of the device arrays for a kernel.
// It fails while the host holds unsynchronized writes.
func (s *Store) DeviceView() (View, error) {
	if s.mirror.State() == device.HostDirty {
		return View{}, fmt.Errorf("device view: %w (state %s)", ErrSyncPending, s.mirror.State())
	}
	return s.dev.view(s.size), nil
}

// MarkDeviceWrite records that a kernel wrote through a device view.
func (s *Store) MarkDeviceWrite() error {
	return s.mirror.DeviceWrite()
}

// Sync copies whichever side is dirty onto the other. A host reallocation
// reallocates the device copy to the host capacity.
func (s *Store) Sync() error {
	switch s.mirror.State() {
	case device.Synced:
		return nil
	case device.HostDirty:
		if s.mirror.NeedsRealloc() || len(s.dev.X) != len(s.host.X) {
			s.dev = newArrays(s.Cap())
		}
		copyArrays(s.dev, s.host, s.size)
	case device.DeviceDirty:
		copyArrays(s.host, s.dev, s.size)
	}
	s.mirror.Complete()
	return nil
}

// Validate checks every live particle against the number of atom types
// and components, and that scaling parameters lie in [0,1].
func (s *Store) Validate(ntypes, ncomponents int) error {
	for i := 0; i < s.size; i++ {
		switch {
		case s.host.Type[i] < 0 || s.host.Type[i] >= ntypes:
			return &IndexError{Op: "validate type", Index: i, Size: s.size,
				Err: fmt.Errorf("%w: type %d not in [0,%d)", ErrInvalidParticle, s.host.Type[i], ntypes)}
		case s.host.Component[i] < 0 || s.host.Component[i] >= ncomponents:
			return &IndexError{Op: "validate component", Index: i, Size: s.size,
				Err: fmt.Errorf("%w: component %d not in [0,%d)", ErrInvalidParticle, s.host.Component[i], ncomponents)}
		case s.host.Scale[i] < 0 || s.host.Scale[i] > 1 || s.host.ScaleCoul[i] < 0 || s.host.ScaleCoul[i] > 1:
			return &IndexError{Op: "validate scale", Index: i, Size: s.size,
				Err: fmt.Errorf("%w: scale %v/%v not in [0,1]", ErrInvalidParticle, s.host.Scale[i], s.host.ScaleCoul[i])}
		}
	}
	return nil
}
