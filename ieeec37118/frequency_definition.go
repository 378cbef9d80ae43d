package ieeec37118

import (
	"encoding/binary"

	phasor "github.com/JSchlarb/phasorprotocols"
)

// Frequency scaling defaults: deviation in mHz and ROCOF in hundredths of Hz/s
const (
	DefaultFrequencyScalingValue = 1000
	DefaultDfDtScalingValue      = 100
	maximumFrequencyScalingValue = 0xFFFFFF
	frequencyDefinitionLength    = 2
)

// FrequencyDefinition describes the frequency and ROCOF channel of a configuration cell.
// Its offset is the nominal line frequency carried in FNOM.
type FrequencyDefinition struct {
	channelDefinition

	DfDtScalingValue int
	DfDtOffset       float64
}

// NewFrequencyDefinition creates a frequency definition with default scaling
func NewFrequencyDefinition(parent *ConfigurationCell, label string) (*FrequencyDefinition, error) {
	base, err := newChannelDefinition(parent, DefaultFrequencyScalingValue)
	if err != nil {
		return nil, err
	}
	d := &FrequencyDefinition{channelDefinition: base, DfDtScalingValue: DefaultDfDtScalingValue}
	d.index = 0
	if err := d.SetLabel(label); err != nil {
		return nil, err
	}
	return d, nil
}

// NewFrequencyDefinitionFromImage parses FNOM at start and applies it to the parent cell
func NewFrequencyDefinitionFromImage(parent *ConfigurationCell, buf []byte, start int) (*FrequencyDefinition, int, error) {
	d, err := NewFrequencyDefinition(parent, "Frequency")
	if err != nil {
		return nil, 0, err
	}
	if err := need(buf, start, frequencyDefinitionLength); err != nil {
		return nil, 0, err
	}
	if binary.BigEndian.Uint16(buf[start:start+2])&FreqNom50Hz != 0 {
		parent.nominalFrequency = phasor.Hz50
	} else {
		parent.nominalFrequency = phasor.Hz60
	}
	return d, frequencyDefinitionLength, nil
}

// SetLabel sets the channel name, at most 16 printable characters
func (d *FrequencyDefinition) SetLabel(label string) error {
	return d.setLabel(label, MaximumLabelLength)
}

// SetScalingValue sets how many integer steps make up one Hz of deviation
func (d *FrequencyDefinition) SetScalingValue(v int) error {
	return d.setScalingValue(v, 1, maximumFrequencyScalingValue)
}

// ClampScalingValue sets the frequency scale, clamping it into range
func (d *FrequencyDefinition) ClampScalingValue(v int) {
	d.clampScalingValue(v, 1, maximumFrequencyScalingValue)
}

// Offset returns the nominal frequency of the parent cell
func (d *FrequencyDefinition) Offset() float64 {
	return float64(d.parent.NominalFrequency())
}

// SetOffset sets the nominal frequency of the parent cell. FNOM can only carry 50 or 60 Hz,
// so any offset other than 50 selects 60.
func (d *FrequencyDefinition) SetOffset(offset float64) {
	if offset == float64(phasor.Hz50) {
		d.parent.nominalFrequency = phasor.Hz50
	} else {
		d.parent.nominalFrequency = phasor.Hz60
	}
}

// DataFormat returns the frequency data format of the parent cell
func (d *FrequencyDefinition) DataFormat() phasor.DataFormat {
	if d.format()&FormatFreqFloat != 0 {
		return phasor.FloatingPoint
	}
	return phasor.FixedInteger
}

// BinaryLength returns the width of FNOM
func (d *FrequencyDefinition) BinaryLength() int {
	return frequencyDefinitionLength
}

// BinaryImage encodes FNOM
func (d *FrequencyDefinition) BinaryImage() []byte {
	b := make([]byte, frequencyDefinitionLength)
	if d.parent.NominalFrequency() == phasor.Hz50 {
		binary.BigEndian.PutUint16(b, FreqNom50Hz)
	}
	return b
}
