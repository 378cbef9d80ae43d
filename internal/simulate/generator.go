// Package simulate produces synthetic C37.118 data streams for testing concentrators and parsers
package simulate

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	phasor "github.com/JSchlarb/phasorprotocols"
	"github.com/JSchlarb/phasorprotocols/ieeec37118"
)

// Settings controls the generated values
type Settings struct {
	VoltageBase        float64            `mapstructure:"voltage_base" yaml:"voltage_base"`
	CurrentBase        float64            `mapstructure:"current_base" yaml:"current_base"`
	VoltageVariation   float64            `mapstructure:"voltage_variation" yaml:"voltage_variation"`
	CurrentVariation   float64            `mapstructure:"current_variation" yaml:"current_variation"`
	FrequencyVariation float64            `mapstructure:"frequency_variation" yaml:"frequency_variation"`
	DfDtVariation      float64            `mapstructure:"dfdt_variation" yaml:"dfdt_variation"`
	Analogs            []AnalogGenerator  `mapstructure:"analogs" yaml:"analogs"`
	Digitals           []DigitalGenerator `mapstructure:"digitals" yaml:"digitals"`
}

// AnalogGenerator describes how one analog channel is generated, by channel position
type AnalogGenerator struct {
	Generator string  `mapstructure:"generator" yaml:"generator"` // "random", "sine" or "constant"
	Base      float64 `mapstructure:"base" yaml:"base"`
	Variation float64 `mapstructure:"variation" yaml:"variation"`
	Frequency float64 `mapstructure:"frequency" yaml:"frequency"` // sine only, Hz
	Amplitude float64 `mapstructure:"amplitude" yaml:"amplitude"` // sine only; defaults to Base*Variation
}

// DigitalGenerator describes one digital status word, by word position
type DigitalGenerator struct {
	Initial    uint16        `mapstructure:"initial" yaml:"initial"`
	ToggleMask uint16        `mapstructure:"toggle_mask" yaml:"toggle_mask"`
	Interval   time.Duration `mapstructure:"interval" yaml:"interval"`
}

// DefaultSettings returns the values used when nothing is configured
func DefaultSettings() Settings {
	return Settings{
		VoltageBase:        230000,
		CurrentBase:        2000,
		VoltageVariation:   0.005,
		CurrentVariation:   0.005,
		FrequencyVariation: 0.001,
		DfDtVariation:      0.01,
	}
}

// digitalState tracks the toggling of one digital word
type digitalState struct {
	value      uint16
	lastChange time.Time
}

// Generator fills data frames with randomized values around the nominal operating point
type Generator struct {
	settings Settings
	rand     *rand.Rand
	start    time.Time
	digitals []digitalState
}

// NewGenerator creates a generator; the same seed yields the same sequence
func NewGenerator(settings Settings, seed int64) (*Generator, error) {
	for i, a := range settings.Analogs {
		switch a.Generator {
		case "", "random", "sine", "constant":
		default:
			return nil, fmt.Errorf("analog %d generator %q: %w", i+1, a.Generator, phasor.ErrInvalidParameter)
		}
	}
	g := &Generator{
		settings: settings,
		rand:     rand.New(rand.NewSource(seed)),
		digitals: make([]digitalState, len(settings.Digitals)),
	}
	for i, d := range settings.Digitals {
		g.digitals[i].value = d.Initial
	}
	return g, nil
}

func (g *Generator) randomValue(base, variation float64) float64 {
	lo := base - base*variation
	hi := base + base*variation
	return lo + g.rand.Float64()*(hi-lo)
}

// phaseAngle spreads phasors over a balanced three phase system: 0, -120 and +120 degrees
func phaseAngle(index int) float64 {
	return math.Remainder(-2*math.Pi/3*float64(index%3), 2*math.Pi)
}

// Fill sets every value of df for the given time
func (g *Generator) Fill(df *ieeec37118.DataFrame, now time.Time) {
	if g.start.IsZero() {
		g.start = now
		for i := range g.digitals {
			g.digitals[i].lastChange = now
		}
	}
	elapsed := now.Sub(g.start).Seconds()

	for i := range g.digitals {
		d := &g.digitals[i]
		interval := g.settings.Digitals[i].Interval
		if interval > 0 && now.Sub(d.lastChange) >= interval {
			d.value ^= g.settings.Digitals[i].ToggleMask
			d.lastChange = now
		}
	}

	for _, cell := range df.Cells() {
		nominal := float64(cell.ConfigurationCell().NominalFrequency())

		for i, v := range cell.PhasorValues() {
			base, variation := g.settings.VoltageBase, g.settings.VoltageVariation
			if v.Definition().PhasorType() == phasor.Current {
				base, variation = g.settings.CurrentBase, g.settings.CurrentVariation
			}
			v.SetPolar(phaseAngle(i), g.randomValue(base, variation))
		}

		dfdt := (g.rand.Float64()*2 - 1) * g.settings.DfDtVariation
		cell.FrequencyValue().Set(g.randomValue(nominal, g.settings.FrequencyVariation), dfdt)

		for i, v := range cell.AnalogValues() {
			if i < len(g.settings.Analogs) {
				v.SetValue(g.analogValue(g.settings.Analogs[i], elapsed))
			}
		}

		for i, v := range cell.DigitalValues() {
			if i < len(g.digitals) {
				v.SetValue(g.digitals[i].value)
			}
		}

		cell.SetDataError(ieeec37118.DataErrorGood)
		cell.SetSyncLost(false)
	}
}

func (g *Generator) analogValue(a AnalogGenerator, elapsed float64) float64 {
	switch a.Generator {
	case "sine":
		freq := a.Frequency
		if freq == 0 {
			freq = 0.1
		}
		amplitude := a.Amplitude
		if amplitude == 0 {
			amplitude = a.Base * a.Variation
		}
		return a.Base + amplitude*math.Sin(2*math.Pi*freq*elapsed)

	case "constant":
		return a.Base

	default: // "random"
		return g.randomValue(a.Base, a.Variation)
	}
}
