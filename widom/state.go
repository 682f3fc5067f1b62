package widom

import "fmt"

// State is the saved accumulator state of an estimator.
type State struct {
	Block             int       `json:"block"`
	RosenbluthCount   []int     `json:"rosenbluth_count"`
	Rosenbluth        []float64 `json:"rosenbluth"`
	RosenbluthSquared []float64 `json:"rosenbluth_squared"`
	ExcessMu          []float64 `json:"excess_mu"`
	ExcessMuSquared   []float64 `json:"excess_mu_squared"`
}

// State returns a copy of the block accumulators.
func (e *Estimator) State() State {
	return State{
		Block:             e.block,
		RosenbluthCount:   append([]int(nil), e.RosenbluthCount...),
		Rosenbluth:        append([]float64(nil), e.Rosenbluth...),
		RosenbluthSquared: append([]float64(nil), e.RosenbluthSquared...),
		ExcessMu:          append([]float64(nil), e.ExcessMu...),
		ExcessMuSquared:   append([]float64(nil), e.ExcessMuSquared...),
	}
}

// Validate checks that s describes blocks averaging blocks.
func (s State) Validate(blocks int) error {
	n := blocks
	if len(s.RosenbluthCount) != n || len(s.Rosenbluth) != n || len(s.RosenbluthSquared) != n ||
		len(s.ExcessMu) != n || len(s.ExcessMuSquared) != n {
		return fmt.Errorf("%w: state for %d blocks, estimator has %d", ErrBatchShape, len(s.Rosenbluth), n)
	}
	if s.Block < 0 || s.Block > n {
		return fmt.Errorf("block %d outside [0,%d]", s.Block, n)
	}
	return nil
}

// Restore replaces the block accumulators with s. The block count must
// match the estimator's.
func (e *Estimator) Restore(s State) error {
	if err := s.Validate(e.cfg.NumberOfBlocks); err != nil {
		return err
	}
	copy(e.RosenbluthCount, s.RosenbluthCount)
	copy(e.Rosenbluth, s.Rosenbluth)
	copy(e.RosenbluthSquared, s.RosenbluthSquared)
	copy(e.ExcessMu, s.ExcessMu)
	copy(e.ExcessMuSquared, s.ExcessMuSquared)
	e.block = s.Block
	return nil
}
