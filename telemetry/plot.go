package telemetry

import (
	"fmt"
	"math"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// PlotBlocks renders per-block mean loading to loading.png and, for
// components with Widom trials, the block excess chemical potential to
// mu_ex.png in dir. Non-finite values are left out.
func PlotBlocks(dir string, reports []BlockReport) error {
	if len(reports) == 0 {
		return nil
	}
	loading := blockSeries(reports, func(r BlockReport) (float64, bool) {
		return r.MoleculesMean, true
	})
	if err := savePlot(filepath.Join(dir, "loading.png"), "Loading per block", "molecules", loading); err != nil {
		return err
	}

	mu := blockSeries(reports, func(r BlockReport) (float64, bool) {
		return r.WidomExcessMuK, r.WidomTrials > 0
	})
	if len(mu.names) == 0 {
		return nil
	}
	return savePlot(filepath.Join(dir, "mu_ex.png"), "Excess chemical potential per block", "mu_ex (K)", mu)
}

// series holds one line per component in first-seen order.
type series struct {
	names []string
	pts   map[string]plotter.XYs
}

func blockSeries(reports []BlockReport, value func(BlockReport) (float64, bool)) series {
	s := series{pts: make(map[string]plotter.XYs)}
	for _, r := range reports {
		v, ok := value(r)
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if _, seen := s.pts[r.Component]; !seen {
			s.names = append(s.names, r.Component)
		}
		s.pts[r.Component] = append(s.pts[r.Component], plotter.XY{X: float64(r.Block), Y: v})
	}
	return s
}

func savePlot(path, title, ylabel string, s series) error {
	if len(s.names) == 0 {
		return nil
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "block"
	p.Y.Label.Text = ylabel
	p.Add(plotter.NewGrid())

	args := make([]any, 0, 2*len(s.names))
	for _, name := range s.names {
		args = append(args, name, s.pts[name])
	}
	if err := plotutil.AddLinePoints(p, args...); err != nil {
		return fmt.Errorf("plotting %s: %w", filepath.Base(path), err)
	}
	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("saving %s: %w", filepath.Base(path), err)
	}
	return nil
}
