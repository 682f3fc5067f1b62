// Package config provides configuration loading and access for a simulation run.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/gomc/moves"
	"github.com/pthm-cable/gomc/units"
	"github.com/pthm-cable/gomc/widom"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	Units       units.Units        `yaml:"units" toml:"units"`
	PseudoAtoms []PseudoAtomConfig `yaml:"pseudo_atoms" toml:"pseudo_atoms"`
	ForceField  ForceFieldConfig   `yaml:"force_field" toml:"force_field"`
	Box         BoxConfig          `yaml:"box" toml:"box"`
	Components  []ComponentConfig  `yaml:"components" toml:"components"`
	Widom       widom.Config       `yaml:"widom" toml:"widom"`
	Run         RunConfig          `yaml:"run" toml:"run"`
	Random      RandomConfig       `yaml:"random" toml:"random"`
	Device      DeviceConfig       `yaml:"device" toml:"device"`
	Telemetry   TelemetryConfig    `yaml:"telemetry" toml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-" toml:"-"`
}

// PseudoAtomConfig defines an atom type and its interaction parameters.
type PseudoAtomConfig struct {
	Name           string  `yaml:"name" toml:"name"`
	Oxidation      float64 `yaml:"oxidation" toml:"oxidation"`
	Mass           float64 `yaml:"mass" toml:"mass"`     // amu
	Charge         float64 `yaml:"charge" toml:"charge"` // e
	Polarizability float64 `yaml:"polarizability" toml:"polarizability"`
	Epsilon        float64 `yaml:"epsilon" toml:"epsilon"` // K
	Sigma          float64 `yaml:"sigma" toml:"sigma"`     // Angstrom
	Z              float64 `yaml:"z" toml:"z"`
	Law            string  `yaml:"law" toml:"law"` // none, lennard_jones, shifted_lennard_jones
}

// ForceFieldConfig holds the global interaction parameters.
type ForceFieldConfig struct {
	CutoffVDW     float64 `yaml:"cutoff_vdw" toml:"cutoff_vdw"`         // Angstrom
	CutoffCoulomb float64 `yaml:"cutoff_coulomb" toml:"cutoff_coulomb"` // Angstrom
	NoCharges     bool    `yaml:"no_charges" toml:"no_charges"`
}

// BoxConfig holds the cell and the thermodynamic state.
type BoxConfig struct {
	Lengths     []float64 `yaml:"lengths" toml:"lengths"`         // a, b, c in Angstrom
	Angles      []float64 `yaml:"angles" toml:"angles"`           // alpha, beta, gamma in degrees
	Temperature float64   `yaml:"temperature" toml:"temperature"` // K
	Pressure    float64   `yaml:"pressure" toml:"pressure"`       // Pa
}

// SiteConfig is one atom of a molecule template. Positions of adsorbate
// sites are relative to the first site; framework sites are absolute.
type SiteConfig struct {
	Type     string    `yaml:"type" toml:"type"`
	Position []float64 `yaml:"position" toml:"position"`
}

// ComponentConfig defines a molecular species.
type ComponentConfig struct {
	Name                  string              `yaml:"name" toml:"name"`
	Framework             bool                `yaml:"framework" toml:"framework"`
	Molecules             int                 `yaml:"molecules" toml:"molecules"` // initial count
	MolFraction           float64             `yaml:"mol_fraction" toml:"mol_fraction"`
	IdealRosenbluthWeight float64             `yaml:"ideal_rosenbluth_weight" toml:"ideal_rosenbluth_weight"`
	FugacityCoeff         float64             `yaml:"fugacity_coefficient" toml:"fugacity_coefficient"`
	Tc                    float64             `yaml:"critical_temperature" toml:"critical_temperature"` // K
	Pc                    float64             `yaml:"critical_pressure" toml:"critical_pressure"`       // Pa
	Accentric             float64             `yaml:"acentric_factor" toml:"acentric_factor"`
	Sites                 []SiteConfig        `yaml:"sites" toml:"sites"`
	Moves                 moves.Probabilities `yaml:"moves" toml:"moves"`
}

// RunConfig holds cycle counts and block averaging.
type RunConfig struct {
	Cycles           int     `yaml:"cycles" toml:"cycles"`
	InitCycles       int     `yaml:"init_cycles" toml:"init_cycles"` // equilibration with step tuning
	Blocks           int     `yaml:"blocks" toml:"blocks"`
	MinStepsPerCycle int     `yaml:"min_steps_per_cycle" toml:"min_steps_per_cycle"`
	TuneEvery        int     `yaml:"tune_every" toml:"tune_every"` // cycles
	TargetAcceptance float64 `yaml:"target_acceptance" toml:"target_acceptance"`
	CheckEvery       int     `yaml:"check_every" toml:"check_every"` // cycles between invariant checks
}

// RandomConfig holds the deviate pool settings.
type RandomConfig struct {
	Size int    `yaml:"size" toml:"size"`
	Seed uint64 `yaml:"seed" toml:"seed"` // 0 = time-based
}

// DeviceConfig holds the kernel worker settings.
type DeviceConfig struct {
	Workers int `yaml:"workers" toml:"workers"` // 0 = GOMAXPROCS
}

// TelemetryConfig holds reporting settings.
type TelemetryConfig struct {
	PrintEvery      int `yaml:"print_every" toml:"print_every"`           // cycles between log lines
	CheckpointEvery int `yaml:"checkpoint_every" toml:"checkpoint_every"` // cycles, 0 = off
}

// DerivedConfig holds values computed from the loaded configuration.
type DerivedConfig struct {
	Beta           float64 // 1/(kB*T), inverse internal energy units
	CyclesPerBlock int
	TotalCycles    int // init + production
	Lengths        [3]float64
	Angles         [3]float64
}

// Load loads configuration from a YAML or TOML file, merging with embedded
// defaults. Files ending in .toml are decoded as TOML. If path is empty,
// only embedded defaults are used.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if strings.EqualFold(filepath.Ext(path), ".toml") {
			if data, err = tomlToYAML(data); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.computeDerived(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// tomlToYAML re-encodes a TOML document as YAML so both formats merge over
// the defaults the same way. Keys are identical in both formats.
func tomlToYAML(data []byte) ([]byte, error) {
	tree, err := toml.LoadBytes(data)
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(tree.ToMap())
}

// computeDerived calculates values derived from loaded config and checks
// the values they depend on.
func (c *Config) computeDerived() error {
	if !c.Units.Valid() {
		return fmt.Errorf("invalid unit system %+v", c.Units)
	}
	if c.Box.Temperature <= 0 {
		return fmt.Errorf("temperature must be positive, got %v", c.Box.Temperature)
	}
	c.Derived.Beta = c.Units.Beta(c.Box.Temperature)

	if len(c.Box.Lengths) != 3 {
		return fmt.Errorf("box needs 3 lengths, got %d", len(c.Box.Lengths))
	}
	copy(c.Derived.Lengths[:], c.Box.Lengths)
	c.Derived.Angles = [3]float64{90, 90, 90}
	switch len(c.Box.Angles) {
	case 0:
	case 3:
		copy(c.Derived.Angles[:], c.Box.Angles)
	default:
		return fmt.Errorf("box needs 3 angles, got %d", len(c.Box.Angles))
	}

	if c.Run.Blocks < 1 {
		c.Run.Blocks = 1
	}
	if c.Run.Cycles < c.Run.Blocks {
		return fmt.Errorf("%d cycles cannot fill %d blocks", c.Run.Cycles, c.Run.Blocks)
	}
	if c.Run.Cycles%c.Run.Blocks != 0 {
		return fmt.Errorf("%d cycles do not split into %d equal blocks", c.Run.Cycles, c.Run.Blocks)
	}
	if c.Run.MinStepsPerCycle < 1 {
		c.Run.MinStepsPerCycle = 20
	}
	if c.Run.TargetAcceptance <= 0 || c.Run.TargetAcceptance >= 1 {
		c.Run.TargetAcceptance = 0.5
	}
	c.Derived.CyclesPerBlock = c.Run.Cycles / c.Run.Blocks
	c.Derived.TotalCycles = c.Run.InitCycles + c.Run.Cycles
	c.Widom.NumberOfBlocks = c.Run.Blocks

	if len(c.Components) == 0 {
		return fmt.Errorf("no components")
	}
	for i := range c.Components {
		comp := &c.Components[i]
		if len(comp.Sites) == 0 {
			return fmt.Errorf("component %q has no sites", comp.Name)
		}
		for j, s := range comp.Sites {
			if len(s.Position) == 0 {
				comp.Sites[j].Position = []float64{0, 0, 0}
			} else if len(s.Position) != 3 {
				return fmt.Errorf("component %q site %d: position needs 3 coordinates", comp.Name, j)
			}
		}
		if comp.Framework {
			comp.Molecules = 1
		}
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
