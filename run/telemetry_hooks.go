package run

import (
	"log/slog"

	"github.com/pthm-cable/gomc/checkpoint"
	"github.com/pthm-cable/gomc/telemetry"
)

// flushTelemetry closes the averaging block when the collector says the
// current cycle ends it.
func (r *Runner) flushTelemetry() error {
	if !r.collector.ShouldFlush(r.cycle) || r.sess.Block() >= r.cfg.Run.Blocks {
		return nil
	}
	r.perf.StartPhase(telemetry.PhaseTelemetry)

	block := r.sess.Block()
	if err := r.sess.CloseBlock(); err != nil {
		return err
	}
	reports := r.collector.Flush(block, r.cycle, r.sess.BlockStates())
	perfStats := r.perf.Stats()

	if r.opts.LogStats {
		for _, rep := range reports {
			slog.Info("block", "report", rep)
		}
		slog.Info("perf", "stats", perfStats)
	}

	if err := r.output.WriteBlocks(reports); err != nil {
		slog.Error("failed to write blocks", "error", err)
	}
	if err := r.output.WritePerf(perfStats, r.cycle); err != nil {
		slog.Error("failed to write perf", "error", err)
	}
	return nil
}

// finish logs and writes the block-averaged Widom results.
func (r *Runner) finish() {
	reports := r.sess.Reports()
	for _, rep := range reports {
		slog.Info("widom", "result", rep)
	}
	if err := r.output.WriteWidom(reports); err != nil {
		slog.Error("failed to write widom", "error", err)
	}
}

// saveCheckpoint writes the session state with cycle as the next cycle to run.
func (r *Runner) saveCheckpoint(cycle int) {
	if r.opts.CheckpointPath == "" {
		return
	}
	cp, err := r.sess.Checkpoint(cycle)
	if err != nil {
		slog.Error("failed to capture checkpoint", "error", err)
		return
	}
	if err := checkpoint.Save(r.opts.CheckpointPath, cp); err != nil {
		slog.Error("failed to save checkpoint", "error", err)
		return
	}
	slog.Info("checkpoint saved", "path", r.opts.CheckpointPath, "cycle", cycle)
}
