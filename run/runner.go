// Package run drives a simulation session through equilibration and
// production cycles and handles its output and checkpoints.
package run

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pthm-cable/gomc/checkpoint"
	"github.com/pthm-cable/gomc/config"
	"github.com/pthm-cable/gomc/sim"
	"github.com/pthm-cable/gomc/telemetry"
)

// Options configures a run beyond the loaded configuration.
type Options struct {
	Seed           uint64
	LogStats       bool   // log block reports and perf stats
	OutputDir      string // CSV output, empty disables
	CheckpointPath string // empty disables checkpoints
	Resume         bool   // restore from CheckpointPath if it exists
}

// Runner owns a session and its telemetry.
type Runner struct {
	cfg  *config.Config
	opts Options

	sess      *sim.Session
	collector *telemetry.Collector
	perf      *telemetry.PerfCollector
	output    *telemetry.OutputManager

	cycle int
}

// New builds the session and output for cfg.
func New(cfg *config.Config, opts Options) (*Runner, error) {
	perf := telemetry.NewPerfCollector(cfg.Telemetry.PrintEvery)
	sess, err := sim.New(cfg, sim.Options{Seed: opts.Seed, Perf: perf})
	if err != nil {
		return nil, err
	}
	output, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		sess.Close()
		return nil, err
	}
	if err := output.WriteConfig(cfg); err != nil {
		slog.Error("failed to write config", "error", err)
	}

	r := &Runner{
		cfg:       cfg,
		opts:      opts,
		sess:      sess,
		collector: telemetry.NewCollector(len(cfg.Components), cfg.Derived.CyclesPerBlock),
		perf:      perf,
		output:    output,
	}
	if opts.Resume && opts.CheckpointPath != "" {
		if err := r.resume(); err != nil {
			r.Close()
			return nil, err
		}
	}
	return r, nil
}

// Session returns the driven session.
func (r *Runner) Session() *sim.Session { return r.sess }

// Cycle returns the next cycle to run.
func (r *Runner) Cycle() int { return r.cycle }

// Close stops the session and closes the output files.
func (r *Runner) Close() error {
	r.sess.Close()
	return r.output.Close()
}

func (r *Runner) resume() error {
	cp, err := checkpoint.Load(r.opts.CheckpointPath)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Info("no checkpoint to resume", "path", r.opts.CheckpointPath)
		return nil
	}
	if err != nil {
		return err
	}
	if err := r.sess.Restore(cp); err != nil {
		return fmt.Errorf("restore %s: %w", r.opts.CheckpointPath, err)
	}
	r.cycle = cp.Cycle
	slog.Info("resumed", "path", r.opts.CheckpointPath, "cycle", r.cycle, "session", r.sess)
	return nil
}

// Run runs the remaining cycles. On cancellation it saves a checkpoint
// and returns the context error.
func (r *Runner) Run(ctx context.Context) error {
	initCycles, total := r.cfg.Run.InitCycles, r.cfg.Derived.TotalCycles
	if r.cycle >= initCycles {
		start := initCycles + r.sess.Block()*r.cfg.Derived.CyclesPerBlock
		r.collector.Reset(max(start, r.cycle), r.sess.BlockStates())
	}

	slog.Info("starting run",
		"seed", r.opts.Seed,
		"cycle", r.cycle,
		"init_cycles", initCycles,
		"cycles", r.cfg.Run.Cycles,
		"blocks", r.cfg.Run.Blocks,
	)

	for ; r.cycle < total; r.cycle++ {
		select {
		case <-ctx.Done():
			r.saveCheckpoint(r.cycle)
			return ctx.Err()
		default:
		}

		if err := r.step(); err != nil {
			return fmt.Errorf("cycle %d: %w", r.cycle, err)
		}
	}

	if err := r.sess.CheckInvariants(); err != nil {
		return err
	}
	r.finish()
	r.saveCheckpoint(r.cycle)
	return nil
}

// step runs one cycle and its bookkeeping.
func (r *Runner) step() error {
	r.perf.StartCycle()
	defer r.perf.EndCycle()

	if err := r.sess.Cycle(); err != nil {
		return err
	}

	initCycles := r.cfg.Run.InitCycles
	if r.cycle < initCycles {
		if every := r.cfg.Run.TuneEvery; every > 0 && (r.cycle+1)%every == 0 {
			if err := r.sess.Tune(); err != nil {
				return err
			}
		}
		if r.cycle == initCycles-1 {
			r.sess.ResetCounters()
			r.collector.Reset(r.cycle+1, r.sess.BlockStates())
			slog.Info("equilibration done", "cycle", r.cycle, "session", r.sess)
		}
	} else {
		r.collector.SampleLoading(r.sess.Counts())
		if err := r.flushTelemetry(); err != nil {
			return err
		}
	}

	if every := r.cfg.Run.CheckEvery; every > 0 && (r.cycle+1)%every == 0 {
		if err := r.sess.CheckInvariants(); err != nil {
			return err
		}
	}
	if every := r.cfg.Telemetry.PrintEvery; every > 0 && (r.cycle+1)%every == 0 {
		slog.Info("progress", "cycle", r.cycle+1, "session", r.sess)
	}
	if every := r.cfg.Telemetry.CheckpointEvery; every > 0 && (r.cycle+1)%every == 0 {
		r.saveCheckpoint(r.cycle + 1)
	}
	return nil
}
