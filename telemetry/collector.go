package telemetry

import (
	"github.com/pthm-cable/gomc/moves"
	"github.com/pthm-cable/gomc/widom"
)

// ComponentState is what the collector reads from one component at a
// block boundary.
type ComponentState struct {
	Name           string
	Counters       [moves.NumClasses]moves.Counter
	Widom          *widom.Block // nil if the component runs no Widom moves
	EnergyToKelvin float64
	MaxTranslation float64
	MaxRotation    float64
}

// Collector accumulates loading samples within an averaging block and
// produces one BlockReport per component when the block is flushed.
// Move counters are cumulative in the statistics; the collector reports
// the difference since the previous flush.
type Collector struct {
	cyclesPerBlock int
	blockStart     int

	loadings [][]float64
	previous [][moves.NumClasses]moves.Counter
}

// NewCollector creates a collector for the given number of components.
func NewCollector(components, cyclesPerBlock int) *Collector {
	if cyclesPerBlock < 1 {
		cyclesPerBlock = 1
	}
	return &Collector{
		cyclesPerBlock: cyclesPerBlock,
		loadings:       make([][]float64, components),
		previous:       make([][moves.NumClasses]moves.Counter, components),
	}
}

// SampleLoading records the molecule count of every component for one cycle.
func (c *Collector) SampleLoading(counts []int) {
	for i, n := range counts {
		if i < len(c.loadings) {
			c.loadings[i] = append(c.loadings[i], float64(n))
		}
	}
}

// ShouldFlush returns true if the cycle closes the current block.
func (c *Collector) ShouldFlush(cycle int) bool {
	return cycle-c.blockStart+1 >= c.cyclesPerBlock
}

// Flush produces the reports of block and resets the samples for the next one.
func (c *Collector) Flush(block, cycle int, states []ComponentState) []BlockReport {
	reports := make([]BlockReport, 0, len(states))
	for i, s := range states {
		r := BlockReport{Block: block, Cycle: cycle, Component: s.Name,
			MaxTranslation: s.MaxTranslation, MaxRotation: s.MaxRotation}
		if i < len(c.loadings) {
			r.MoleculesMean, r.MoleculesStd, r.MoleculesP10, r.MoleculesP50, r.MoleculesP90 =
				ComputeLoadingStats(c.loadings[i])
			c.loadings[i] = c.loadings[i][:0]
		}

		var delta [moves.NumClasses]moves.Counter
		for k := range delta {
			delta[k] = s.Counters[k]
			if i < len(c.previous) {
				delta[k].Attempted -= c.previous[i][k].Attempted
				delta[k].Accepted -= c.previous[i][k].Accepted
			}
		}
		if i < len(c.previous) {
			c.previous[i] = s.Counters
		}

		r.TranslationAttempted = delta[moves.Translation].Attempted
		r.TranslationAccepted = delta[moves.Translation].Accepted
		r.TranslationRatio = delta[moves.Translation].Ratio()
		r.RotationAttempted = delta[moves.Rotation].Attempted
		r.RotationAccepted = delta[moves.Rotation].Accepted
		r.RotationRatio = delta[moves.Rotation].Ratio()
		r.InsertionAttempted = delta[moves.Insertion].Attempted
		r.InsertionAccepted = delta[moves.Insertion].Accepted
		r.DeletionAttempted = delta[moves.Deletion].Attempted
		r.DeletionAccepted = delta[moves.Deletion].Accepted
		r.ReinsertionAttempted = delta[moves.Reinsertion].Attempted
		r.ReinsertionAccepted = delta[moves.Reinsertion].Accepted

		if s.Widom != nil {
			r.WidomTrials = s.Widom.Trials
			r.WidomWeight = s.Widom.MeanWeight
			r.WidomExcessMu = s.Widom.ExcessMu
			r.WidomExcessMuK = s.Widom.ExcessMu * s.EnergyToKelvin
		}
		reports = append(reports, r)
	}
	c.blockStart = cycle + 1
	return reports
}

// Reset forgets the samples and counter baselines, e.g. when production
// starts after equilibration.
func (c *Collector) Reset(cycle int, states []ComponentState) {
	for i := range c.loadings {
		c.loadings[i] = c.loadings[i][:0]
	}
	for i, s := range states {
		if i < len(c.previous) {
			c.previous[i] = s.Counters
		}
	}
	c.blockStart = cycle
}

// CyclesPerBlock returns the number of cycles per block.
func (c *Collector) CyclesPerBlock() int {
	return c.cyclesPerBlock
}
