package ieeec37118

import (
	phasor "github.com/JSchlarb/phasorprotocols"
)

// Signed 24-bit range of the ANUNIT scale
const (
	MaximumAnalogScalingValue = 0x7FFFFF
	MinimumAnalogScalingValue = -0x800000
)

const analogScaleLength = 8

// AnalogDefinition describes one analog channel of a configuration cell
type AnalogDefinition struct {
	channelDefinition
	analogType phasor.AnalogType

	scale    float64
	hasScale bool
}

// NewAnalogDefinition creates an analog definition; add it to the cell with AddAnalogDefinition
func NewAnalogDefinition(parent *ConfigurationCell, label string, scalingValue int, offset float64,
	analogType phasor.AnalogType) (*AnalogDefinition, error) {
	base, err := newChannelDefinition(parent, 1)
	if err != nil {
		return nil, err
	}
	d := &AnalogDefinition{channelDefinition: base, analogType: analogType}
	if err := d.SetLabel(label); err != nil {
		return nil, err
	}
	if err := d.SetScalingValue(scalingValue); err != nil {
		return nil, err
	}
	d.offset = offset
	return d, nil
}

// NewAnalogDefinitionFromImage parses the 16 byte channel name at start
func NewAnalogDefinitionFromImage(parent *ConfigurationCell, buf []byte, start int) (*AnalogDefinition, int, error) {
	base, err := newChannelDefinition(parent, 1)
	if err != nil {
		return nil, 0, err
	}
	d := &AnalogDefinition{channelDefinition: base}
	if err := d.parseLabel(buf, start); err != nil {
		return nil, 0, err
	}
	return d, d.BinaryLength(), nil
}

// SetLabel sets the channel name, at most 16 printable characters
func (d *AnalogDefinition) SetLabel(label string) error {
	return d.setLabel(label, MaximumLabelLength)
}

// AnalogType returns how the channel was sampled
func (d *AnalogDefinition) AnalogType() phasor.AnalogType {
	return d.analogType
}

// SetAnalogType sets how the channel was sampled
func (d *AnalogDefinition) SetAnalogType(t phasor.AnalogType) {
	d.analogType = t
}

// SetScalingValue sets the ANUNIT scale, rejecting values outside the signed 24-bit range
func (d *AnalogDefinition) SetScalingValue(v int) error {
	if err := d.setScalingValue(v, MinimumAnalogScalingValue, MaximumAnalogScalingValue); err != nil {
		return err
	}
	d.hasScale = false
	return nil
}

// ClampScalingValue sets the ANUNIT scale, clamping it into the signed 24-bit range
func (d *AnalogDefinition) ClampScalingValue(v int) {
	d.clampScalingValue(v, MinimumAnalogScalingValue, MaximumAnalogScalingValue)
	d.hasScale = false
}

// ConversionFactor returns the engineering units represented by one integer step
func (d *AnalogDefinition) ConversionFactor() float64 {
	if d.hasScale {
		return d.scale
	}
	return float64(d.scalingValue)
}

// SetConversionFactor sets an exact floating point factor, as carried by CFG-3
func (d *AnalogDefinition) SetConversionFactor(factor float64) {
	d.clampScalingValue(roundScale(factor, 1), MinimumAnalogScalingValue, MaximumAnalogScalingValue)
	d.scale = factor
	d.hasScale = true
}

// DataFormat returns the analog data format of the parent cell
func (d *AnalogDefinition) DataFormat() phasor.DataFormat {
	if d.format()&FormatAnalogFloat != 0 {
		return phasor.FloatingPoint
	}
	return phasor.FixedInteger
}

// BinaryLength returns the width of the channel name
func (d *AnalogDefinition) BinaryLength() int {
	return MaximumLabelLength
}

// BinaryImage returns the channel name padded to 16 bytes
func (d *AnalogDefinition) BinaryImage() []byte {
	return d.labelImage()
}

// ParseConversionFactor reads an ANUNIT entry at start
func (d *AnalogDefinition) ParseConversionFactor(buf []byte, start int) (int, error) {
	if err := need(buf, start, conversionFactorLength); err != nil {
		return 0, err
	}
	d.analogType = phasor.AnalogType(buf[start])
	d.scalingValue = int(int24(buf[start+1 : start+4]))
	d.hasScale = false
	return conversionFactorLength, nil
}

// ConversionFactorImage encodes the ANUNIT entry
func (d *AnalogDefinition) ConversionFactorImage() []byte {
	b := make([]byte, conversionFactorLength)
	b[0] = byte(d.analogType)
	putUint24(b[1:], uint32(int32(d.scalingValue))&0xFFFFFF)
	return b
}

// parseAnalogScale reads a CFG-3 ANSCALE entry
func (d *AnalogDefinition) parseAnalogScale(buf []byte, start int) (int, error) {
	if err := need(buf, start, analogScaleLength); err != nil {
		return 0, err
	}
	d.SetConversionFactor(float32At(buf[start : start+4]))
	d.offset = float32At(buf[start+4 : start+8])
	return analogScaleLength, nil
}

// analogScaleImage encodes a CFG-3 ANSCALE entry
func (d *AnalogDefinition) analogScaleImage() []byte {
	b := make([]byte, analogScaleLength)
	putFloat32(b[0:4], d.ConversionFactor())
	putFloat32(b[4:8], d.offset)
	return b
}
