package forcefield

import (
	"errors"
	"math"
	"testing"

	"github.com/pthm-cable/gomc/moves"
	"github.com/pthm-cable/gomc/units"
)

func testTable(t *testing.T) *Table {
	t.Helper()
	types := []TypeParams{
		{Epsilon: 158.5, Sigma: 3.72, Law: LawShiftedLennardJones},
		{Epsilon: 79.0, Sigma: 3.05, Law: LawShiftedLennardJones},
		{Law: LawNone},
	}
	tbl, err := New(types, Params{CutoffVDW: 12, CutoffCoulomb: 12}, units.Default(), 300, 2)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return tbl
}

func TestNewMixing(t *testing.T) {
	u := units.Default()
	tbl := testTable(t)

	if err := tbl.Validate(2); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if err := tbl.Validate(3); !errors.Is(err, ErrShape) {
		t.Errorf("Validate(3) = %v, want ErrShape", err)
	}

	k := tbl.PairIndex(0, 1)
	wantEps := math.Sqrt(158.5*79.0) / u.EnergyToKelvin
	if math.Abs(tbl.Epsilon[k]-wantEps) > 1e-12 {
		t.Errorf("mixed epsilon = %v, want %v", tbl.Epsilon[k], wantEps)
	}
	if tbl.Sigma[k] != 0.5*(3.72+3.05) {
		t.Errorf("mixed sigma = %v", tbl.Sigma[k])
	}
	if tbl.FFType[tbl.PairIndex(0, 2)] != LawNone {
		t.Error("pair with a LawNone type should be LawNone")
	}
	if math.Abs(tbl.Beta-u.Beta(300)) > 1e-15 {
		t.Errorf("Beta = %v, want %v", tbl.Beta, u.Beta(300))
	}
}

func TestPairEnergy(t *testing.T) {
	tbl := testTable(t)

	// Shifted potential is zero just inside the cutoff.
	e := tbl.PairEnergy(0, 0, 12*12-1e-9)
	if math.Abs(e) > 1e-9 {
		t.Errorf("energy at cutoff = %v, want ~0", e)
	}
	if tbl.PairEnergy(0, 0, 13*13) != 0 {
		t.Error("energy beyond cutoff should be 0")
	}

	// Minimum of LJ at r = 2^(1/6) sigma is -eps (plus shift).
	k := tbl.PairIndex(0, 0)
	rmin := math.Pow(2, 1.0/6.0) * tbl.Sigma[k]
	e = tbl.PairEnergy(0, 0, rmin*rmin) + tbl.Shift[k]
	if math.Abs(e+tbl.Epsilon[k]) > 1e-9 {
		t.Errorf("energy at minimum = %v, want %v", e, -tbl.Epsilon[k])
	}

	if tbl.PairEnergy(0, 2, 9) != 0 {
		t.Error("LawNone pair should contribute nothing")
	}
	if !math.IsInf(tbl.PairEnergy(0, 0, 0), 1) {
		t.Error("overlap should be +Inf")
	}
}

func TestTune(t *testing.T) {
	tbl := testTable(t)
	tn := DefaultTuning(6)

	start := tbl.MaxTranslation[0]
	if err := tbl.Tune(0, moves.Translation, 1.0, tn); err != nil {
		t.Fatalf("Tune failed: %v", err)
	}
	if got := tbl.MaxTranslation[0]; math.Abs(got-1.5*start) > 1e-12 {
		t.Errorf("high acceptance: step = %v, want %v", got, 1.5*start)
	}

	if err := tbl.Tune(0, moves.Translation, 0.0, tn); err != nil {
		t.Fatalf("Tune failed: %v", err)
	}
	if got := tbl.MaxTranslation[0]; math.Abs(got-0.75*start) > 1e-12 {
		t.Errorf("zero acceptance: step = %v, want %v", got, 0.75*start)
	}

	for i := 0; i < 50; i++ {
		_ = tbl.Tune(1, moves.Translation, 1.0, tn)
	}
	if tbl.MaxTranslation[1] != 6 {
		t.Errorf("step = %v, want clamp at 6", tbl.MaxTranslation[1])
	}

	if err := tbl.Tune(0, moves.Widom, 0.5, tn); err == nil {
		t.Error("expected error tuning a class without step size")
	}
	if err := tbl.Tune(5, moves.Rotation, 0.5, tn); err == nil {
		t.Error("expected error for out of range component")
	}
}

func TestParseLaw(t *testing.T) {
	for _, l := range []Law{LawNone, LawLennardJones, LawShiftedLennardJones} {
		got, err := ParseLaw(l.String())
		if err != nil || got != l {
			t.Errorf("ParseLaw(%q) = %v, %v", l.String(), got, err)
		}
	}
	if got, _ := ParseLaw("lj"); got != LawLennardJones {
		t.Errorf("ParseLaw(lj) = %v", got)
	}
	if _, err := ParseLaw("buckingham"); err == nil {
		t.Error("expected error for unknown law")
	}
}
