// Package checkpoint saves and restores the mutable working state of a
// simulation as zstd-compressed JSON.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/pthm-cable/gomc/box"
	"github.com/pthm-cable/gomc/moves"
	"github.com/pthm-cable/gomc/particles"
	"github.com/pthm-cable/gomc/rng"
	"github.com/pthm-cable/gomc/widom"
)

// Version is incremented when the format changes.
const Version = 1

// ErrVersion is returned when loading a checkpoint of another format version.
var ErrVersion = errors.New("unsupported checkpoint version")

// Checkpoint holds everything a run mutates. Configuration is not part of
// it; a checkpoint is restored into a session built from the same config.
type Checkpoint struct {
	Version int `json:"version"`
	Cycle   int `json:"cycle"`
	Block   int `json:"block"`

	Cell        box.Matrix `json:"cell"`
	Temperature float64    `json:"temperature"`
	Pressure    float64    `json:"pressure"`

	Components []ComponentState `json:"components"`
	Random     rng.Snapshot     `json:"random"`
}

// ComponentState is the state of one component.
type ComponentState struct {
	Name           string                          `json:"name"`
	Molecules      int                             `json:"molecules"`
	MaxTranslation float64                         `json:"max_translation"`
	MaxRotation    float64                         `json:"max_rotation"`
	Counters       [moves.NumClasses]moves.Counter `json:"counters"`
	Particles      []particles.Record              `json:"particles"`
	Widom          *widom.State                    `json:"widom,omitempty"`
}

// Save writes c to path. The file is written next to path and renamed
// into place, so a crash never leaves a truncated checkpoint.
func Save(path string, c *Checkpoint) error {
	c.Version = Version
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("create checkpoint: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := encode(tmp, c); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

func encode(w io.Writer, c *Checkpoint) error {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	if err := json.NewEncoder(zw).Encode(c); err != nil {
		zw.Close()
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flush checkpoint: %w", err)
	}
	return nil
}

// Load reads a checkpoint from path.
func Load(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer zr.Close()

	var c Checkpoint
	if err := json.NewDecoder(zr).Decode(&c); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	if c.Version != Version {
		return nil, fmt.Errorf("%w: %d (want %d)", ErrVersion, c.Version, Version)
	}
	return &c, nil
}
