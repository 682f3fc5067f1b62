// Package units holds the fixed physical unit system of a simulation.
package units

import (
	"log/slog"
	"math"
)

const (
	ElectronicCharge = 1.602176565e-19  // C
	ElectricConstant = 8.8541878176e-12 // F/m
)

// Units are the conversion factors between internal and SI units.
// A Units value is immutable once loaded; pass it by value.
type Units struct {
	MassUnit          float64 `yaml:"mass_unit" toml:"mass_unit"`     // kg
	TimeUnit          float64 `yaml:"time_unit" toml:"time_unit"`     // s
	LengthUnit        float64 `yaml:"length_unit" toml:"length_unit"` // m
	EnergyToKelvin    float64 `yaml:"energy_to_kelvin" toml:"energy_to_kelvin"`
	BoltzmannConstant float64 `yaml:"boltzmann_constant" toml:"boltzmann_constant"` // J/K
}

// Default returns the atomic-mass/picosecond/Angstrom unit system.
func Default() Units {
	return Units{
		MassUnit:          1.6605402e-27,
		TimeUnit:          1.0e-12,
		LengthUnit:        1.0e-10,
		EnergyToKelvin:    1.2027242847,
		BoltzmannConstant: 1.380650324e-23,
	}
}

// EnergyUnit returns the internal energy unit in joules.
func (u Units) EnergyUnit() float64 {
	return u.MassUnit * u.LengthUnit * u.LengthUnit / (u.TimeUnit * u.TimeUnit)
}

// Beta returns 1/(kB*T) in inverse internal energy units.
// Returns 0 for a non-positive temperature.
func (u Units) Beta(temperature float64) float64 {
	if temperature <= 0 {
		return 0
	}
	kb := u.BoltzmannConstant / u.EnergyUnit()
	return 1.0 / (kb * temperature)
}

// CoulombConversion returns 1/(4*pi*eps0) for charges in units of e and
// distances in length units, in internal energy units.
func (u Units) CoulombConversion() float64 {
	return ElectronicCharge * ElectronicCharge /
		(4 * math.Pi * ElectricConstant * u.LengthUnit * u.EnergyUnit())
}

// Valid reports whether every factor is positive.
func (u Units) Valid() bool {
	return u.MassUnit > 0 && u.TimeUnit > 0 && u.LengthUnit > 0 &&
		u.EnergyToKelvin > 0 && u.BoltzmannConstant > 0
}

// LogValue implements slog.LogValuer for structured logging.
func (u Units) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Float64("mass_unit", u.MassUnit),
		slog.Float64("time_unit", u.TimeUnit),
		slog.Float64("length_unit", u.LengthUnit),
		slog.Float64("energy_to_kelvin", u.EnergyToKelvin),
		slog.Float64("boltzmann", u.BoltzmannConstant),
	)
}
