package main

import (
	"fmt"

	"github.com/pthm-cable/gomc/config"
)

// ParamSpec defines a single fitted parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Atom    int     // index into config pseudo_atoms
	Sigma   bool    // sigma instead of epsilon
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Starting value
}

// ParamVector holds the set of all fitted parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector fits epsilon and sigma of the named pseudo atoms. Epsilon
// may move by half its starting value and sigma by a fifth.
func NewParamVector(cfg *config.Config, atoms []string) (*ParamVector, error) {
	pv := &ParamVector{}
	for _, name := range atoms {
		idx := -1
		for i, a := range cfg.PseudoAtoms {
			if a.Name == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("unknown pseudo atom %q", name)
		}
		a := cfg.PseudoAtoms[idx]
		if a.Epsilon <= 0 || a.Sigma <= 0 {
			return nil, fmt.Errorf("pseudo atom %q has no Lennard-Jones parameters", name)
		}
		pv.Specs = append(pv.Specs,
			ParamSpec{Name: name + "_epsilon", Atom: idx, Min: 0.5 * a.Epsilon, Max: 1.5 * a.Epsilon, Default: a.Epsilon},
			ParamSpec{Name: name + "_sigma", Atom: idx, Sigma: true, Min: 0.8 * a.Sigma, Max: 1.2 * a.Sigma, Default: a.Sigma},
		)
	}
	if len(pv.Specs) == 0 {
		return nil, fmt.Errorf("no parameters to fit")
	}
	return pv, nil
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the starting values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = min(max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// ApplyToConfig writes clamped parameter values into cfg.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	for i, v := range pv.Clamp(values) {
		spec := pv.Specs[i]
		if spec.Sigma {
			cfg.PseudoAtoms[spec.Atom].Sigma = v
		} else {
			cfg.PseudoAtoms[spec.Atom].Epsilon = v
		}
	}
}
