package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pthm-cable/gomc/config"
	"github.com/pthm-cable/gomc/run"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml or config.toml (empty = use defaults)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	checkpointPath := flag.String("checkpoint", "", "Checkpoint file (empty = no checkpoints)")
	resume := flag.Bool("resume", false, "Resume from the checkpoint file if it exists")
	logStats := flag.Bool("log-stats", false, "Output block and perf stats via slog")
	seed := flag.Uint64("seed", 0, "RNG seed (0 = config seed, then time-based)")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = cfg.Random.Seed
	}
	if rngSeed == 0 {
		rngSeed = uint64(time.Now().UnixNano())
	}

	r, err := run.New(cfg, run.Options{
		Seed:           rngSeed,
		LogStats:       *logStats,
		OutputDir:      *outputDir,
		CheckpointPath: *checkpointPath,
		Resume:         *resume,
	})
	if err != nil {
		slog.Error("failed to set up run", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = r.Run(ctx)
	stop()
	if cerr := r.Close(); cerr != nil {
		slog.Error("failed to close output", "error", cerr)
	}
	switch {
	case errors.Is(err, context.Canceled):
		slog.Info("interrupted", "cycle", r.Cycle())
	case err != nil:
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
}
