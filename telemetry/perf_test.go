package telemetry

import (
	"testing"
	"time"
)

func TestPerfCollector_BasicTiming(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartCycle()
		pc.StartPhase(PhaseTranslation)
		time.Sleep(100 * time.Microsecond)
		pc.StartPhase(PhaseWidom)
		time.Sleep(200 * time.Microsecond)
		pc.EndCycle()
	}

	stats := pc.Stats()
	if stats.AvgCycleDuration <= 0 {
		t.Error("expected positive average cycle duration")
	}
	if _, ok := stats.PhaseAvg[PhaseTranslation]; !ok {
		t.Error("expected translation phase to be tracked")
	}
	if _, ok := stats.PhaseAvg[PhaseWidom]; !ok {
		t.Error("expected widom phase to be tracked")
	}
	if stats.MinCycleDuration > stats.MaxCycleDuration {
		t.Errorf("min %v > max %v", stats.MinCycleDuration, stats.MaxCycleDuration)
	}
}

func TestPerfCollector_RepeatedPhasesAccumulate(t *testing.T) {
	pc := NewPerfCollector(4)

	pc.StartCycle()
	for i := 0; i < 3; i++ {
		pc.StartPhase(PhaseSwap)
		time.Sleep(50 * time.Microsecond)
		pc.StartPhase(PhaseTranslation)
	}
	pc.EndCycle()

	stats := pc.Stats()
	if stats.PhaseAvg[PhaseSwap] < 150*time.Microsecond {
		t.Errorf("swap phase = %v, want >= 150us", stats.PhaseAvg[PhaseSwap])
	}
}

func TestPerfCollector_RollingWindow(t *testing.T) {
	pc := NewPerfCollector(5)

	for i := 0; i < 10; i++ {
		pc.StartCycle()
		pc.StartPhase(PhaseTranslation)
		pc.EndCycle()
	}

	stats := pc.Stats()
	if stats.AvgCycleDuration <= 0 {
		t.Error("expected positive average cycle duration after window filled")
	}
	if stats.CyclesPerSecond <= 0 {
		t.Error("expected positive cycles per second")
	}
}

func TestPerfCollector_EmptyStats(t *testing.T) {
	for _, pc := range []*PerfCollector{NewPerfCollector(10), nil} {
		stats := pc.Stats()
		if stats.AvgCycleDuration != 0 {
			t.Error("expected zero avg cycle duration for empty collector")
		}
		if stats.PhaseAvg == nil || stats.PhasePct == nil {
			t.Error("expected non-nil phase maps")
		}
	}

	// a nil collector is a no-op
	var pc *PerfCollector
	pc.StartCycle()
	pc.StartPhase(PhaseSync)
	pc.EndCycle()
}

func TestPerfStats_ToCSV(t *testing.T) {
	s := PerfStats{
		AvgCycleDuration: 2 * time.Millisecond,
		PhasePct:         map[string]float64{PhaseWidom: 40, PhaseSwap: 10},
	}
	row := s.ToCSV(7)
	if row.Cycle != 7 || row.AvgCycleUS != 2000 {
		t.Errorf("row = %+v", row)
	}
	if row.WidomPct != 40 || row.SwapPct != 10 || row.TranslationPct != 0 {
		t.Errorf("phase columns = %+v", row)
	}
}
