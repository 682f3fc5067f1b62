package telemetry

import (
	"log/slog"
	"time"
)

// Phase names for a Monte Carlo cycle.
const (
	PhaseTranslation = "translation"
	PhaseRotation    = "rotation"
	PhaseSwap        = "swap"
	PhaseReinsertion = "reinsertion"
	PhaseWidom       = "widom"
	PhaseSync        = "sync"
	PhaseCheck       = "check"
	PhaseTelemetry   = "telemetry"
)

// phases lists the phases in report order.
var phases = []string{
	PhaseTranslation, PhaseRotation, PhaseSwap, PhaseReinsertion,
	PhaseWidom, PhaseSync, PhaseCheck, PhaseTelemetry,
}

// PerfSample holds timing data for a single cycle.
type PerfSample struct {
	CycleDuration time.Duration
	Phases        map[string]time.Duration
}

// PerfCollector tracks cycle timing over a rolling window.
// Phases may be entered many times per cycle; their durations add up.
type PerfCollector struct {
	windowSize    int
	samples       []PerfSample
	writeIndex    int
	sampleCount   int
	currentPhases map[string]time.Duration
	cycleStart    time.Time
	phaseStart    time.Time
	lastPhase     string
}

// NewPerfCollector creates a new performance collector averaging over
// windowSize cycles.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 100
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]PerfSample, windowSize),
		currentPhases: make(map[string]time.Duration),
	}
}

// StartCycle begins timing a new cycle.
func (p *PerfCollector) StartCycle() {
	if p == nil {
		return
	}
	p.cycleStart = time.Now()
	p.currentPhases = make(map[string]time.Duration)
	p.lastPhase = ""
}

// StartPhase ends the running phase and begins timing phase.
func (p *PerfCollector) StartPhase(phase string) {
	if p == nil {
		return
	}
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// EndCycle finishes timing the current cycle and records the sample.
func (p *PerfCollector) EndCycle() {
	if p == nil {
		return
	}
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}

	p.samples[p.writeIndex] = PerfSample{
		CycleDuration: now.Sub(p.cycleStart),
		Phases:        p.currentPhases,
	}
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
}

// PerfStats holds aggregated performance statistics.
type PerfStats struct {
	AvgCycleDuration time.Duration
	MinCycleDuration time.Duration
	MaxCycleDuration time.Duration

	// Phase breakdown: average durations and share of the cycle
	PhaseAvg map[string]time.Duration
	PhasePct map[string]float64

	CyclesPerSecond float64
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	if p == nil || p.sampleCount == 0 {
		return PerfStats{
			PhaseAvg: make(map[string]time.Duration),
			PhasePct: make(map[string]float64),
		}
	}

	var total, minCycle, maxCycle time.Duration
	phaseSum := make(map[string]time.Duration)
	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		total += s.CycleDuration
		if i == 0 || s.CycleDuration < minCycle {
			minCycle = s.CycleDuration
		}
		if s.CycleDuration > maxCycle {
			maxCycle = s.CycleDuration
		}
		for phase, dur := range s.Phases {
			phaseSum[phase] += dur
		}
	}

	avg := total / time.Duration(p.sampleCount)
	phaseAvg := make(map[string]time.Duration, len(phaseSum))
	phasePct := make(map[string]float64, len(phaseSum))
	for phase, sum := range phaseSum {
		phaseAvg[phase] = sum / time.Duration(p.sampleCount)
		if avg > 0 {
			phasePct[phase] = float64(phaseAvg[phase]) / float64(avg) * 100
		}
	}

	var perSec float64
	if avg > 0 {
		perSec = float64(time.Second) / float64(avg)
	}

	return PerfStats{
		AvgCycleDuration: avg,
		MinCycleDuration: minCycle,
		MaxCycleDuration: maxCycle,
		PhaseAvg:         phaseAvg,
		PhasePct:         phasePct,
		CyclesPerSecond:  perSec,
	}
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_cycle_us", s.AvgCycleDuration.Microseconds()),
		slog.Int64("min_cycle_us", s.MinCycleDuration.Microseconds()),
		slog.Int64("max_cycle_us", s.MaxCycleDuration.Microseconds()),
		slog.Float64("cycles_per_sec", s.CyclesPerSecond),
	}
	for _, phase := range phases {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			attrs = append(attrs, slog.Float64(phase+"_pct", float64(int(pct*10))/10))
		}
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	Cycle          int     `csv:"cycle"`
	AvgCycleUS     int64   `csv:"avg_cycle_us"`
	MinCycleUS     int64   `csv:"min_cycle_us"`
	MaxCycleUS     int64   `csv:"max_cycle_us"`
	CyclesPerSec   float64 `csv:"cycles_per_sec"`
	TranslationPct float64 `csv:"translation_pct"`
	RotationPct    float64 `csv:"rotation_pct"`
	SwapPct        float64 `csv:"swap_pct"`
	ReinsertionPct float64 `csv:"reinsertion_pct"`
	WidomPct       float64 `csv:"widom_pct"`
	SyncPct        float64 `csv:"sync_pct"`
	CheckPct       float64 `csv:"check_pct"`
	TelemetryPct   float64 `csv:"telemetry_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(cycle int) PerfStatsCSV {
	return PerfStatsCSV{
		Cycle:          cycle,
		AvgCycleUS:     s.AvgCycleDuration.Microseconds(),
		MinCycleUS:     s.MinCycleDuration.Microseconds(),
		MaxCycleUS:     s.MaxCycleDuration.Microseconds(),
		CyclesPerSec:   s.CyclesPerSecond,
		TranslationPct: s.PhasePct[PhaseTranslation],
		RotationPct:    s.PhasePct[PhaseRotation],
		SwapPct:        s.PhasePct[PhaseSwap],
		ReinsertionPct: s.PhasePct[PhaseReinsertion],
		WidomPct:       s.PhasePct[PhaseWidom],
		SyncPct:        s.PhasePct[PhaseSync],
		CheckPct:       s.PhasePct[PhaseCheck],
		TelemetryPct:   s.PhasePct[PhaseTelemetry],
	}
}
