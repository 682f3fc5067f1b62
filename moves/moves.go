// Package moves tracks trial move proposals and their outcomes.
package moves

import (
	"fmt"
	"log/slog"
)

// Class identifies a kind of trial move.
type Class uint8

const (
	Translation Class = iota
	Rotation
	Insertion
	Deletion
	Reinsertion
	Widom
	NumClasses
)

var classNames = [NumClasses]string{
	"translation",
	"rotation",
	"insertion",
	"deletion",
	"reinsertion",
	"widom",
}

// String returns the lower-case class name.
func (c Class) String() string {
	if c >= NumClasses {
		return fmt.Sprintf("class(%d)", uint8(c))
	}
	return classNames[c]
}

// ParseClass returns the class with the given name.
func ParseClass(name string) (Class, error) {
	for i, n := range classNames {
		if n == name {
			return Class(i), nil
		}
	}
	return 0, fmt.Errorf("unknown move class %q", name)
}

// Counter holds the outcome counts of one move class.
type Counter struct {
	Attempted int `json:"attempted"`
	Accepted  int `json:"accepted"`
}

// Ratio returns Accepted/Attempted, or 0 when nothing was attempted.
func (c Counter) Ratio() float64 {
	if c.Attempted == 0 {
		return 0
	}
	return float64(c.Accepted) / float64(c.Attempted)
}

// Probabilities are the relative proposal weights of the move classes.
// Insertion and deletion share SwapProb and are proposed with equal odds.
type Probabilities struct {
	TranslationProb float64 `yaml:"translation" toml:"translation"`
	RotationProb    float64 `yaml:"rotation" toml:"rotation"`
	SwapProb        float64 `yaml:"swap" toml:"swap"`
	ReinsertionProb float64 `yaml:"reinsertion" toml:"reinsertion"`
	WidomProb       float64 `yaml:"widom" toml:"widom"`
}

// Total returns the sum of the weights.
func (p Probabilities) Total() float64 {
	return p.TranslationProb + p.RotationProb + p.SwapProb + p.ReinsertionProb + p.WidomProb
}

// Statistics holds move counters for one component.
// Counters are only updated once a trial's accept/reject decision is final.
type Statistics struct {
	Prob           Probabilities
	NumberOfBlocks int

	counters [NumClasses]Counter
}

// NewStatistics creates statistics with the given weights and block count.
// Negative weights or a zero block count are rejected.
func NewStatistics(p Probabilities, blocks int) (*Statistics, error) {
	if p.TranslationProb < 0 || p.RotationProb < 0 || p.SwapProb < 0 ||
		p.ReinsertionProb < 0 || p.WidomProb < 0 {
		return nil, fmt.Errorf("negative move probability in %+v", p)
	}
	if blocks < 1 {
		return nil, fmt.Errorf("number of blocks must be positive, got %d", blocks)
	}
	return &Statistics{Prob: p, NumberOfBlocks: blocks}, nil
}

// RecordAttempt counts an attempt that produced no acceptance.
func (s *Statistics) RecordAttempt(c Class) {
	s.counters[c].Attempted++
}

// RecordOutcome counts an attempt and, if accepted, an acceptance.
func (s *Statistics) RecordOutcome(c Class, accepted bool) {
	s.counters[c].Attempted++
	if accepted {
		s.counters[c].Accepted++
	}
}

// AcceptanceRatio returns accepted/attempted for c, 0 when nothing was attempted.
func (s *Statistics) AcceptanceRatio(c Class) float64 {
	return s.counters[c].Ratio()
}

// Counter returns the counts of class c.
func (s *Statistics) Counter(c Class) Counter {
	return s.counters[c]
}

// Counters returns a copy of all counters.
func (s *Statistics) Counters() [NumClasses]Counter {
	return s.counters
}

// Restore replaces all counters, e.g. from a checkpoint.
func (s *Statistics) Restore(c [NumClasses]Counter) {
	s.counters = c
}

// Reset zeroes all counters.
func (s *Statistics) Reset() {
	s.counters = [NumClasses]Counter{}
}

// Select maps a uniform deviate u in [0,1) onto a move class according to
// the proposal weights. It returns false when all weights are zero.
func (s *Statistics) Select(u float64) (Class, bool) {
	total := s.Prob.Total()
	if total <= 0 {
		return 0, false
	}
	x := u * total
	if x < s.Prob.TranslationProb {
		return Translation, true
	}
	x -= s.Prob.TranslationProb
	if x < s.Prob.RotationProb {
		return Rotation, true
	}
	x -= s.Prob.RotationProb
	if x < s.Prob.SwapProb {
		if x < s.Prob.SwapProb/2 {
			return Insertion, true
		}
		return Deletion, true
	}
	x -= s.Prob.SwapProb
	if x < s.Prob.ReinsertionProb {
		return Reinsertion, true
	}
	x -= s.Prob.ReinsertionProb
	if x < s.Prob.WidomProb {
		return Widom, true
	}
	// u rounding at the upper edge lands on the last non-zero class
	for c := Widom; ; c-- {
		if s.weight(c) > 0 {
			return c, true
		}
		if c == Translation {
			break
		}
	}
	return 0, false
}

func (s *Statistics) weight(c Class) float64 {
	switch c {
	case Translation:
		return s.Prob.TranslationProb
	case Rotation:
		return s.Prob.RotationProb
	case Insertion, Deletion:
		return s.Prob.SwapProb
	case Reinsertion:
		return s.Prob.ReinsertionProb
	case Widom:
		return s.Prob.WidomProb
	}
	return 0
}

// LogValue implements slog.LogValuer for structured logging.
func (s *Statistics) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, NumClasses)
	for c := Class(0); c < NumClasses; c++ {
		cnt := s.counters[c]
		if cnt.Attempted == 0 {
			continue
		}
		attrs = append(attrs, slog.Group(c.String(),
			slog.Int("attempted", cnt.Attempted),
			slog.Int("accepted", cnt.Accepted),
			slog.Float64("ratio", cnt.Ratio()),
		))
	}
	return slog.GroupValue(attrs...)
}

// BlockIndex returns the averaging block that cycle falls in when
// totalCycles are split into blocks contiguous blocks. Cycles past the end
// land in the last block.
func BlockIndex(cycle, totalCycles, blocks int) int {
	if blocks <= 1 || totalCycles <= 0 {
		return 0
	}
	perBlock := totalCycles / blocks
	if perBlock < 1 {
		perBlock = 1
	}
	b := cycle / perBlock
	if b >= blocks {
		b = blocks - 1
	}
	if b < 0 {
		b = 0
	}
	return b
}
