package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// BlockReport holds the statistics of one component over one averaging block.
type BlockReport struct {
	Block     int    `csv:"block"`
	Cycle     int    `csv:"cycle"`
	Component string `csv:"component"`

	// Loading distribution over the cycles of the block
	MoleculesMean float64 `csv:"molecules_mean"`
	MoleculesStd  float64 `csv:"molecules_std"`
	MoleculesP10  float64 `csv:"molecules_p10"`
	MoleculesP50  float64 `csv:"molecules_p50"`
	MoleculesP90  float64 `csv:"molecules_p90"`

	// Moves during the block
	TranslationAttempted int     `csv:"translation_attempted"`
	TranslationAccepted  int     `csv:"translation_accepted"`
	TranslationRatio     float64 `csv:"translation_ratio"`
	RotationAttempted    int     `csv:"rotation_attempted"`
	RotationAccepted     int     `csv:"rotation_accepted"`
	RotationRatio        float64 `csv:"rotation_ratio"`
	InsertionAttempted   int     `csv:"insertion_attempted"`
	InsertionAccepted    int     `csv:"insertion_accepted"`
	DeletionAttempted    int     `csv:"deletion_attempted"`
	DeletionAccepted     int     `csv:"deletion_accepted"`
	ReinsertionAttempted int     `csv:"reinsertion_attempted"`
	ReinsertionAccepted  int     `csv:"reinsertion_accepted"`

	// Widom insertion
	WidomTrials    int     `csv:"widom_trials"`
	WidomWeight    float64 `csv:"widom_rosenbluth"`
	WidomExcessMu  float64 `csv:"widom_mu_ex"`   // internal energy units
	WidomExcessMuK float64 `csv:"widom_mu_ex_k"` // K
	MaxTranslation float64 `csv:"max_translation"`
	MaxRotation    float64 `csv:"max_rotation"`
}

// WidomReport is the block-averaged Widom result of one component.
type WidomReport struct {
	Component        string  `csv:"component"`
	Blocks           int     `csv:"blocks"`
	Trials           int     `csv:"trials"`
	Rosenbluth       float64 `csv:"rosenbluth"`
	RosenbluthErr    float64 `csv:"rosenbluth_err"`
	ExcessMu         float64 `csv:"mu_ex"`
	ExcessMuErr      float64 `csv:"mu_ex_err"`
	ExcessMuK        float64 `csv:"mu_ex_k"`
	ExcessMuErrK     float64 `csv:"mu_ex_err_k"`
	HenryCoefficient float64 `csv:"henry"` // mol/kg/Pa, 0 without a framework
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ComputeLoadingStats calculates mean, population standard deviation and
// percentiles of loading samples.
func ComputeLoadingStats(values []float64) (mean, std, p10, p50, p90 float64) {
	n := len(values)
	if n == 0 {
		return 0, 0, 0, 0, 0
	}

	mean = stat.Mean(values, nil)
	std = stat.PopStdDev(values, nil)

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	p10 = Percentile(sorted, 0.10)
	p50 = Percentile(sorted, 0.50)
	p90 = Percentile(sorted, 0.90)

	return mean, std, p10, p50, p90
}

// LogValue implements slog.LogValuer for structured logging.
func (r BlockReport) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("block", r.Block),
		slog.Int("cycle", r.Cycle),
		slog.String("component", r.Component),
		slog.Float64("molecules_mean", r.MoleculesMean),
		slog.Float64("molecules_std", r.MoleculesStd),
		slog.Float64("translation_ratio", r.TranslationRatio),
		slog.Float64("rotation_ratio", r.RotationRatio),
		slog.Int("insertions", r.InsertionAccepted),
		slog.Int("deletions", r.DeletionAccepted),
		slog.Int("widom_trials", r.WidomTrials),
		slog.Float64("widom_mu_ex_k", r.WidomExcessMuK),
	)
}

// LogValue implements slog.LogValuer for structured logging.
func (r WidomReport) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("component", r.Component),
		slog.Int("blocks", r.Blocks),
		slog.Int("trials", r.Trials),
		slog.Float64("rosenbluth", r.Rosenbluth),
		slog.Float64("rosenbluth_err", r.RosenbluthErr),
		slog.Float64("mu_ex_k", r.ExcessMuK),
		slog.Float64("mu_ex_err_k", r.ExcessMuErrK),
		slog.Float64("henry", r.HenryCoefficient),
	)
}
