// Package widom implements the Widom test-particle insertion estimator of
// the excess chemical potential, with block averaging.
//
// Each insertion trial has NumberWidomTrialsOrientations energies. The
// Rosenbluth weight of a trial is the arithmetic mean over its orientations
// of exp(-Beta*U). Trials whose weight underflows to zero are counted like
// any other trial.
package widom

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/gomc/device"
)

// overlapLimit is the Beta*U above which exp(-Beta*U) is exactly zero in
// float64, so flagged trials skip the exponential without changing the result.
const overlapLimit = 746.0

var (
	// ErrBatchShape is returned for an energy batch of the wrong length.
	ErrBatchShape = errors.New("widom batch shape mismatch")
	// ErrBadEnergy is returned for a NaN or -Inf trial energy.
	ErrBadEnergy = errors.New("invalid widom trial energy")
	// ErrNoBlocks is returned when every averaging block has been closed.
	ErrNoBlocks = errors.New("all widom blocks closed")
)

// Config holds the per-run Widom settings.
type Config struct {
	NumberWidomTrials             int  `yaml:"trials" toml:"trials"`
	NumberWidomTrialsOrientations int  `yaml:"orientations" toml:"orientations"`
	UseGPUReduction               bool `yaml:"gpu_reduction" toml:"gpu_reduction"`
	UseFlag                       bool `yaml:"use_flag" toml:"use_flag"`
	NumberOfBlocks                int  `yaml:"-" toml:"-"`
}

// BatchResult describes one AddTrials call.
type BatchResult struct {
	Trials     int
	Flagged    int
	SumWeight  float64
	MeanWeight float64
}

// Estimator accumulates Rosenbluth weights per averaging block.
// It is not safe for concurrent use; the controlling loop calls it after
// the energy kernel has finished.
type Estimator struct {
	cfg   Config
	beta  float64
	ideal float64
	pool  *device.Pool

	// Per-block accumulators.
	RosenbluthCount   []int
	Rosenbluth        []float64
	RosenbluthSquared []float64
	ExcessMu          []float64
	ExcessMuSquared   []float64

	block int

	// Scratch, grown on demand and never shrunk within a run.
	flag                       []bool
	blocksum                   []float64
	firstBeadResult            []float64
	widomFirstBeadAllocatesize int
}

// New creates an estimator. beta is 1/(kB*T) in internal energy units and
// idealRosenbluth the ideal-gas Rosenbluth weight of the inserted molecule.
// pool may be nil, in which case reductions run inline.
func New(cfg Config, beta, idealRosenbluth float64, pool *device.Pool) (*Estimator, error) {
	if cfg.NumberWidomTrials < 1 {
		return nil, fmt.Errorf("widom trials must be positive, got %d", cfg.NumberWidomTrials)
	}
	if cfg.NumberWidomTrialsOrientations < 1 {
		cfg.NumberWidomTrialsOrientations = 1
	}
	if cfg.NumberOfBlocks < 1 {
		return nil, fmt.Errorf("number of blocks must be positive, got %d", cfg.NumberOfBlocks)
	}
	if !(beta > 0) {
		return nil, fmt.Errorf("beta must be positive, got %v", beta)
	}
	if idealRosenbluth <= 0 {
		idealRosenbluth = 1
	}
	e := &Estimator{
		cfg:               cfg,
		beta:              beta,
		ideal:             idealRosenbluth,
		pool:              pool,
		RosenbluthCount:   make([]int, cfg.NumberOfBlocks),
		Rosenbluth:        make([]float64, cfg.NumberOfBlocks),
		RosenbluthSquared: make([]float64, cfg.NumberOfBlocks),
		ExcessMu:          make([]float64, cfg.NumberOfBlocks),
		ExcessMuSquared:   make([]float64, cfg.NumberOfBlocks),
	}
	e.EnsureCapacity(cfg.NumberWidomTrials * cfg.NumberWidomTrialsOrientations)
	return e, nil
}

// Config returns the estimator settings.
func (e *Estimator) Config() Config { return e.cfg }

// Beta returns 1/(kB*T).
func (e *Estimator) Beta() float64 { return e.beta }

// Block returns the index of the block currently accumulating.
func (e *Estimator) Block() int { return e.block }

// AllocateSize returns the current scratch capacity in energies.
func (e *Estimator) AllocateSize() int { return e.widomFirstBeadAllocatesize }

// EnsureCapacity grows the scratch buffers to hold n trial energies.
// It never shrinks them.
func (e *Estimator) EnsureCapacity(n int) {
	if n <= e.widomFirstBeadAllocatesize {
		return
	}
	e.flag = make([]bool, n)
	e.firstBeadResult = make([]float64, n)
	e.widomFirstBeadAllocatesize = n
}

func (e *Estimator) ensureBlocksum(n int) {
	if n > len(e.blocksum) {
		e.blocksum = make([]float64, n)
	}
}

// AddTrials accumulates one batch of NumberWidomTrials x
// NumberWidomTrialsOrientations energies, trial-major, into the current block.
// The batch is rejected as a whole if any energy is NaN or -Inf.
func (e *Estimator) AddTrials(energies []float64) (BatchResult, error) {
	if e.block >= len(e.Rosenbluth) {
		return BatchResult{}, ErrNoBlocks
	}
	k := e.cfg.NumberWidomTrialsOrientations
	trials := e.cfg.NumberWidomTrials
	if len(energies) != trials*k {
		return BatchResult{}, fmt.Errorf("%w: %d energies, want %d trials x %d orientations",
			ErrBatchShape, len(energies), trials, k)
	}
	for i, u := range energies {
		if math.IsNaN(u) || math.IsInf(u, -1) {
			return BatchResult{}, fmt.Errorf("%w: energy %d is %v", ErrBadEnergy, i, u)
		}
	}
	e.EnsureCapacity(len(energies))

	flagged := 0
	flags := e.flag[:len(energies)]
	for i, u := range energies {
		flags[i] = e.cfg.UseFlag && e.beta*u > overlapLimit
		if flags[i] {
			flagged++
		}
	}

	parts := 1
	if e.cfg.UseGPUReduction {
		parts = e.pool.Parts(trials)
	}
	e.ensureBlocksum(2 * parts)
	partial, partialSq := e.blocksum[:parts], e.blocksum[parts:2*parts]

	weights := e.firstBeadResult[:trials]
	kernel := func(start, end, part int) {
		var s, s2 float64
		for t := start; t < end; t++ {
			var w float64
			for o := t * k; o < (t+1)*k; o++ {
				if flags[o] {
					continue
				}
				w += math.Exp(-e.beta * energies[o])
			}
			w /= float64(k)
			weights[t] = w
			s += w
			s2 += w * w
		}
		partial[part] = s
		partialSq[part] = s2
	}

	if e.cfg.UseGPUReduction {
		e.pool.Run(trials, kernel)
	} else {
		kernel(0, trials, 0)
	}

	sum, sum2 := floats.Sum(partial), floats.Sum(partialSq)

	b := e.block
	e.Rosenbluth[b] += sum
	e.RosenbluthSquared[b] += sum2
	e.RosenbluthCount[b] += trials

	return BatchResult{
		Trials:     trials,
		Flagged:    flagged,
		SumWeight:  sum,
		MeanWeight: sum / float64(trials),
	}, nil
}

// Weights returns the per-trial weights of the last batch. The slice is
// reused by the next AddTrials.
func (e *Estimator) Weights() []float64 {
	return e.firstBeadResult[:e.cfg.NumberWidomTrials]
}

// excessMu converts a mean Rosenbluth weight into an excess chemical potential.
// A zero weight gives +Inf: no insertion succeeds.
func (e *Estimator) excessMu(meanWeight float64) float64 {
	return -math.Log(meanWeight/e.ideal) / e.beta
}

// CloseBlock finalizes the current block and starts the next one. A block
// with no trials is closed empty and left out of the summary.
func (e *Estimator) CloseBlock() error {
	b := e.block
	if b >= len(e.Rosenbluth) {
		return ErrNoBlocks
	}
	if n := e.RosenbluthCount[b]; n > 0 {
		mu := e.excessMu(e.Rosenbluth[b] / float64(n))
		e.ExcessMu[b] = mu
		e.ExcessMuSquared[b] = mu * mu
	}
	e.block++
	return nil
}

// Reset clears every accumulator and reopens the first block.
// Scratch buffers keep their capacity.
func (e *Estimator) Reset() {
	for b := range e.Rosenbluth {
		e.RosenbluthCount[b] = 0
		e.Rosenbluth[b] = 0
		e.RosenbluthSquared[b] = 0
		e.ExcessMu[b] = 0
		e.ExcessMuSquared[b] = 0
	}
	e.block = 0
}
