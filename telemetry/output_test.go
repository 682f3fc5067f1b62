package telemetry

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pthm-cable/gomc/config"
)

func TestOutputManagerDisabled(t *testing.T) {
	om, err := NewOutputManager("")
	if err != nil || om != nil {
		t.Fatalf("NewOutputManager(\"\") = %v, %v; want nil, nil", om, err)
	}
	// every method is a no-op on nil
	if err := om.WriteBlocks([]BlockReport{{}}); err != nil {
		t.Error(err)
	}
	if err := om.WritePerf(PerfStats{}, 0); err != nil {
		t.Error(err)
	}
	if err := om.WriteWidom(nil); err != nil {
		t.Error(err)
	}
	if err := om.WriteConfig(nil); err != nil {
		t.Error(err)
	}
	if om.Dir() != "" {
		t.Error("nil manager should have no dir")
	}
	if err := om.Close(); err != nil {
		t.Error(err)
	}
}

func TestOutputManagerWritesCSV(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatalf("NewOutputManager: %v", err)
	}

	for b := 0; b < 3; b++ {
		if err := om.WriteBlocks([]BlockReport{
			{Block: b, Component: "methane"},
			{Block: b, Component: "ethane"},
		}); err != nil {
			t.Fatalf("WriteBlocks: %v", err)
		}
	}
	if err := om.WriteWidom([]WidomReport{{Component: "methane", Blocks: 3}}); err != nil {
		t.Fatalf("WriteWidom: %v", err)
	}
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	if err := om.WriteConfig(cfg); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}
	if err := om.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "blocks.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 7 {
		t.Fatalf("blocks.csv has %d lines, want header + 6", len(lines))
	}
	if !strings.HasPrefix(lines[0], "block,cycle,component,") {
		t.Errorf("header = %q", lines[0])
	}
	if strings.Count(string(data), "block,cycle") != 1 {
		t.Error("header written more than once")
	}

	data, err = os.ReadFile(filepath.Join(dir, "widom.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "methane,3,") {
		t.Errorf("widom.csv = %q", data)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Errorf("config.yaml: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "loading.png")); err != nil {
		t.Errorf("loading.png: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "mu_ex.png")); !os.IsNotExist(err) {
		t.Errorf("mu_ex.png without widom trials: %v", err)
	}
}

func TestPlotBlocksSkipsNonFinite(t *testing.T) {
	dir := t.TempDir()
	reports := []BlockReport{
		{Block: 0, Component: "methane", MoleculesMean: 3, WidomTrials: 10, WidomExcessMuK: -1200},
		{Block: 1, Component: "methane", MoleculesMean: 4, WidomTrials: 10, WidomExcessMuK: math.Inf(1)},
		{Block: 2, Component: "methane", MoleculesMean: 5, WidomTrials: 10, WidomExcessMuK: -1180},
	}
	if err := PlotBlocks(dir, reports); err != nil {
		t.Fatalf("PlotBlocks: %v", err)
	}
	for _, name := range []string{"loading.png", "mu_ex.png"} {
		if fi, err := os.Stat(filepath.Join(dir, name)); err != nil || fi.Size() == 0 {
			t.Errorf("%s: %v", name, err)
		}
	}

	s := blockSeries(reports, func(r BlockReport) (float64, bool) { return r.WidomExcessMuK, true })
	if got := len(s.pts["methane"]); got != 2 {
		t.Errorf("finite points = %d, want 2", got)
	}
}
