package main

import (
	"context"
	"math"
	"sync"

	"github.com/pthm-cable/gomc/config"
	"github.com/pthm-cable/gomc/run"
)

// FitnessEvaluator runs Widom simulations and scores the excess chemical
// potential of one component against a reference value.
type FitnessEvaluator struct {
	params     *ParamVector
	seeds      []uint64
	configPath string
	component  string
	target     float64 // K

	mu     sync.Mutex
	lastMu float64 // mean mu_ex in K from the most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, seeds []uint64, configPath, component string, target float64) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:     params,
		seeds:      seeds,
		configPath: configPath,
		component:  component,
		target:     target,
	}
}

// LastMu returns the mean excess chemical potential of the most recent evaluation.
func (fe *FitnessEvaluator) LastMu() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastMu
}

// Evaluate computes the squared deviation from the target, averaged over
// seeds (lower = better). Failed runs score +Inf.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	results := make([]float64, len(fe.seeds))
	var wg sync.WaitGroup

	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s uint64) {
			defer wg.Done()
			results[idx] = fe.runSimulation(x, s)
		}(i, seed)
	}
	wg.Wait()

	var sum float64
	for _, mu := range results {
		sum += mu
	}
	mean := sum / float64(len(results))

	fe.mu.Lock()
	fe.lastMu = mean
	fe.mu.Unlock()

	var fitness float64
	for _, mu := range results {
		d := mu - fe.target
		fitness += d * d
	}
	fitness /= float64(len(results))
	if math.IsNaN(fitness) {
		return math.Inf(1)
	}
	return fitness
}

// runSimulation executes one run and returns the excess chemical
// potential of the fitted component in K, NaN on failure.
func (fe *FitnessEvaluator) runSimulation(x []float64, seed uint64) float64 {
	cfg, err := config.Load(fe.configPath)
	if err != nil {
		return math.NaN()
	}
	fe.params.ApplyToConfig(cfg, x)

	r, err := run.New(cfg, run.Options{Seed: seed})
	if err != nil {
		return math.NaN()
	}
	defer r.Close()
	if err := r.Run(context.Background()); err != nil {
		return math.NaN()
	}
	for _, rep := range r.Session().Reports() {
		if rep.Component == fe.component {
			return rep.ExcessMuK
		}
	}
	return math.NaN()
}
