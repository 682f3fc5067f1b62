package forcefield

import (
	"fmt"
	"math"

	"github.com/pthm-cable/gomc/moves"
)

// Tuning bounds the adaptive step-size updates.
type Tuning struct {
	Target         float64 // desired acceptance ratio
	MinTranslation float64
	MaxTranslation float64 // usually half the shortest box width
	MinRotation    float64
}

// DefaultTuning targets 50% acceptance.
func DefaultTuning(maxTranslation float64) Tuning {
	return Tuning{
		Target:         0.5,
		MinTranslation: 1e-4,
		MaxTranslation: maxTranslation,
		MinRotation:    1e-4,
	}
}

// Tune scales the step size of component for class toward the target
// acceptance window. The per-call change is limited to a factor in [0.5, 1.5].
// Only Translation and Rotation have step sizes.
func (t *Table) Tune(component int, class moves.Class, ratio float64, tn Tuning) error {
	if component < 0 || component >= len(t.MaxTranslation) {
		return fmt.Errorf("component %d out of range [0,%d)", component, len(t.MaxTranslation))
	}
	if tn.Target <= 0 {
		return fmt.Errorf("tuning target must be positive, got %v", tn.Target)
	}
	scale := math.Min(math.Max(ratio/tn.Target, 0.5), 1.5)
	switch class {
	case moves.Translation:
		t.MaxTranslation[component] = clamp(t.MaxTranslation[component]*scale, tn.MinTranslation, tn.MaxTranslation)
	case moves.Rotation:
		t.MaxRotation[component] = clamp(t.MaxRotation[component]*scale, tn.MinRotation, math.Pi)
	default:
		return fmt.Errorf("move class %s has no step size", class)
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if hi > 0 && v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}
