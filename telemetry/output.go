package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/gomc/config"
)

// csvFile is an output CSV whose header is written with the first record.
type csvFile struct {
	f             *os.File
	headerWritten bool
}

func (c *csvFile) write(records any) error {
	if !c.headerWritten {
		if err := gocsv.Marshal(records, c.f); err != nil {
			return err
		}
		c.headerWritten = true
		return nil
	}
	return gocsv.MarshalWithoutHeaders(records, c.f)
}

// OutputManager handles structured run output with CSV logging.
type OutputManager struct {
	dir    string
	blocks csvFile
	perf   csvFile

	history []BlockReport // plotted on Close
}

// NewOutputManager creates a new output manager and initializes the output directory.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}

	f, err := os.Create(filepath.Join(dir, "blocks.csv"))
	if err != nil {
		return nil, fmt.Errorf("creating blocks.csv: %w", err)
	}
	om.blocks.f = f

	f, err = os.Create(filepath.Join(dir, "perf.csv"))
	if err != nil {
		om.blocks.f.Close()
		return nil, fmt.Errorf("creating perf.csv: %w", err)
	}
	om.perf.f = f

	return om, nil
}

// WriteConfig saves the current configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteBlocks appends the reports of one block to blocks.csv.
func (om *OutputManager) WriteBlocks(reports []BlockReport) error {
	if om == nil || len(reports) == 0 {
		return nil
	}
	if err := om.blocks.write(reports); err != nil {
		return fmt.Errorf("writing blocks: %w", err)
	}
	om.history = append(om.history, reports...)
	return nil
}

// WritePerf appends a performance record to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, cycle int) error {
	if om == nil {
		return nil
	}
	if err := om.perf.write([]PerfStatsCSV{stats.ToCSV(cycle)}); err != nil {
		return fmt.Errorf("writing perf: %w", err)
	}
	return nil
}

// WriteWidom writes the final block-averaged Widom results to widom.csv.
func (om *OutputManager) WriteWidom(reports []WidomReport) error {
	if om == nil {
		return nil
	}
	f, err := os.Create(filepath.Join(om.dir, "widom.csv"))
	if err != nil {
		return fmt.Errorf("creating widom.csv: %w", err)
	}
	if err := gocsv.Marshal(reports, f); err != nil {
		f.Close()
		return fmt.Errorf("writing widom: %w", err)
	}
	return f.Close()
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files and renders the block plots.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	firstErr := PlotBlocks(om.dir, om.history)
	for _, c := range []*csvFile{&om.blocks, &om.perf} {
		if c.f == nil {
			continue
		}
		if err := c.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
