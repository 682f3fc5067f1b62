// Package rng provides the shared pool of pre-generated uniform deviates
// consumed by host code and device kernels through a single cursor.
package rng

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/pthm-cable/gomc/device"
)

var (
	// ErrBatchTooLarge is returned for a batch larger than the pool.
	ErrBatchTooLarge = errors.New("batch larger than random pool")
	// ErrStale is returned when the device copy is read before a Sync.
	ErrStale = errors.New("device random pool not synchronized")
)

// Pool is a finite buffer of uniform deviates in [0,1) with a cursor.
// When a request does not fit in the remaining deviates the whole pool is
// regenerated from the continuing generator stream and the cursor resets
// to 0; no deviate is ever reissued. Access is serialized internally.
type Pool struct {
	mu sync.Mutex

	host []float64
	dev  []float64

	offset     int
	generation int

	src    *rand.PCG
	dist   distuv.Uniform
	mirror device.Mirror
}

// NewPool creates a pool of size deviates seeded from seed.
func NewPool(size int, seed uint64) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("random pool size must be positive, got %d", size)
	}
	src := rand.NewPCG(seed, splitmix64(seed^0x9e3779b97f4a7c15))
	p := &Pool{
		host: make([]float64, size),
		dev:  make([]float64, size),
		src:  src,
		dist: distuv.Uniform{Min: 0, Max: 1, Src: src},
	}
	p.fill()
	return p, nil
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// fill draws a fresh pool. Caller holds mu.
func (p *Pool) fill() {
	for i := range p.host {
		v := p.dist.Rand()
		// distuv.Uniform can return Max through rounding.
		for v >= 1 {
			v = p.dist.Rand()
		}
		p.host[i] = v
	}
	p.offset = 0
	p.generation++
	p.mirror.Invalidate()
}

// Size returns the pool size (randomsize).
func (p *Pool) Size() int { return len(p.host) }

// Offset returns the cursor.
func (p *Pool) Offset() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offset
}

// Generation returns how many pools have been drawn; the initial pool is 1.
func (p *Pool) Generation() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation
}

// State returns the device mirror state.
func (p *Pool) State() device.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mirror.State()
}

// Next returns one deviate and advances the cursor.
func (p *Pool) Next() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.offset >= len(p.host) {
		p.fill()
	}
	v := p.host[p.offset]
	p.offset++
	return v
}

// NextBatch returns n deviates and advances the cursor by n, regenerating
// the pool first if fewer than n remain.
func (p *Pool) NextBatch(n int) ([]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	start, err := p.reserve(n)
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	copy(out, p.host[start:start+n])
	return out, nil
}

// Reserve advances the cursor by n on behalf of a device kernel and returns
// the start of the reserved range. The kernel reads it with DeviceSlice.
func (p *Pool) Reserve(n int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reserve(n)
}

func (p *Pool) reserve(n int) (int, error) {
	if n < 0 || n > len(p.host) {
		return 0, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, n, len(p.host))
	}
	if p.offset+n > len(p.host) {
		p.fill()
	}
	start := p.offset
	p.offset += n
	return start, nil
}

// DeviceSlice returns the device copy of deviates [start, start+n).
func (p *Pool) DeviceSlice(start, n int) ([]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mirror.Pending() {
		return nil, ErrStale
	}
	if start < 0 || n < 0 || start+n > len(p.dev) {
		return nil, fmt.Errorf("device range [%d,%d) outside pool of %d", start, start+n, len(p.dev))
	}
	return p.dev[start : start+n : start+n], nil
}

// Sync copies a regenerated host pool to the device.
func (p *Pool) Sync() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.mirror.Pending() {
		return
	}
	copy(p.dev, p.host)
	p.mirror.Complete()
}

// Snapshot is the saved state of a pool: the current deviates, the cursor
// and the generator state, so a restored pool continues the same stream.
type Snapshot struct {
	Offset     int       `json:"offset"`
	Generation int       `json:"generation"`
	Deviates   []float64 `json:"deviates"`
	Generator  []byte    `json:"generator"`
}

// Snapshot captures the pool state.
func (p *Pool) Snapshot() (Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	gen, err := p.src.MarshalBinary()
	if err != nil {
		return Snapshot{}, fmt.Errorf("marshal generator: %w", err)
	}
	dev := make([]float64, len(p.host))
	copy(dev, p.host)
	return Snapshot{
		Offset:     p.offset,
		Generation: p.generation,
		Deviates:   dev,
		Generator:  gen,
	}, nil
}

// Restore rebuilds a pool from a snapshot. The device copy starts stale.
func Restore(s Snapshot) (*Pool, error) {
	if len(s.Deviates) == 0 {
		return nil, fmt.Errorf("random pool snapshot has no deviates")
	}
	if s.Offset < 0 || s.Offset > len(s.Deviates) {
		return nil, fmt.Errorf("random pool snapshot offset %d outside [0,%d]", s.Offset, len(s.Deviates))
	}
	src := &rand.PCG{}
	if err := src.UnmarshalBinary(s.Generator); err != nil {
		return nil, fmt.Errorf("unmarshal generator: %w", err)
	}
	p := &Pool{
		host:       make([]float64, len(s.Deviates)),
		dev:        make([]float64, len(s.Deviates)),
		offset:     s.Offset,
		generation: s.Generation,
		src:        src,
		dist:       distuv.Uniform{Min: 0, Max: 1, Src: src},
	}
	copy(p.host, s.Deviates)
	p.mirror.Invalidate()
	return p, nil
}
