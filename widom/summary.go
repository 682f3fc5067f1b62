package widom

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Summary is the block-averaged result over every closed, non-empty block.
type Summary struct {
	Blocks int
	Trials int

	RosenbluthWeight       float64
	RosenbluthWeightStdErr float64
	ExcessMu               float64 // internal energy units
	ExcessMuStdErr         float64
}

// LogValue implements slog.LogValuer.
func (s Summary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("blocks", s.Blocks),
		slog.Int("trials", s.Trials),
		slog.Float64("rosenbluth", s.RosenbluthWeight),
		slog.Float64("rosenbluth_err", s.RosenbluthWeightStdErr),
		slog.Float64("mu_ex", s.ExcessMu),
		slog.Float64("mu_ex_err", s.ExcessMuStdErr),
	)
}

// Block is the state of a single averaging block.
type Block struct {
	Index      int
	Closed     bool
	Trials     int
	MeanWeight float64
	ExcessMu   float64
}

// BlockAt returns the accumulators of block b.
func (e *Estimator) BlockAt(b int) Block {
	blk := Block{Index: b, Closed: b < e.block, Trials: e.RosenbluthCount[b]}
	if blk.Trials > 0 {
		blk.MeanWeight = e.Rosenbluth[b] / float64(blk.Trials)
		blk.ExcessMu = e.excessMu(blk.MeanWeight)
	}
	return blk
}

// Summary averages over closed blocks that received trials. With a single
// block the standard errors are NaN.
func (e *Estimator) Summary() Summary {
	var weights, mus []float64
	var s Summary
	for b := 0; b < e.block; b++ {
		n := e.RosenbluthCount[b]
		if n == 0 {
			continue
		}
		s.Trials += n
		weights = append(weights, e.Rosenbluth[b]/float64(n))
		mus = append(mus, e.ExcessMu[b])
	}
	s.Blocks = len(weights)
	if s.Blocks == 0 {
		s.RosenbluthWeight = math.NaN()
		s.RosenbluthWeightStdErr = math.NaN()
		s.ExcessMu = math.NaN()
		s.ExcessMuStdErr = math.NaN()
		return s
	}
	s.RosenbluthWeight, s.RosenbluthWeightStdErr = meanStdErr(weights)
	s.ExcessMu, s.ExcessMuStdErr = meanStdErr(mus)
	return s
}

// meanStdErr returns the mean and the standard error of the mean.
// Values are shifted by the first sample before reduction so identical
// samples give their exact value and a zero error.
func meanStdErr(xs []float64) (mean, stderr float64) {
	n := len(xs)
	for _, x := range xs {
		if math.IsInf(x, 1) {
			return math.Inf(1), math.Inf(1)
		}
	}
	if n == 1 {
		return xs[0], math.NaN()
	}
	shift := xs[0]
	d := make([]float64, n)
	for i, x := range xs {
		d[i] = x - shift
	}
	m, v := stat.MeanVariance(d, nil)
	return shift + m, stat.StdErr(math.Sqrt(v), float64(n))
}
