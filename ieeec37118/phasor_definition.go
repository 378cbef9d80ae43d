package ieeec37118

import (
	"encoding/binary"
	"fmt"

	phasor "github.com/JSchlarb/phasorprotocols"
)

// MaximumPhasorScalingValue is the largest PHUNIT scale, an unsigned 24-bit integer
const MaximumPhasorScalingValue = 0xFFFFFF

// phasorScaleUnit is the weight of one PHUNIT scale step in volts or amperes per bit
const phasorScaleUnit = 1e-5

// PhasorComponent identifies which sequence or phase a CFG-3 phasor measures
type PhasorComponent byte

// Phasor components
const (
	ComponentZeroSequence     PhasorComponent = 0
	ComponentPositiveSequence PhasorComponent = 1
	ComponentNegativeSequence PhasorComponent = 2
	ComponentReserved         PhasorComponent = 3
	ComponentPhaseA           PhasorComponent = 4
	ComponentPhaseB           PhasorComponent = 5
	ComponentPhaseC           PhasorComponent = 6
)

// PhasorDefinition describes one phasor channel of a configuration cell
type PhasorDefinition struct {
	channelDefinition
	phasorType phasor.PhasorType

	// Component, Flags and UserFlags are only carried by CFG-3.
	Component PhasorComponent
	Flags     uint16
	UserFlags byte

	kindReserved byte

	scale    float64
	hasScale bool
}

// NewPhasorDefinition creates a phasor definition; add it to the cell with AddPhasorDefinition
func NewPhasorDefinition(parent *ConfigurationCell, label string, scalingValue int, offset float64,
	phasorType phasor.PhasorType) (*PhasorDefinition, error) {
	base, err := newChannelDefinition(parent, 1)
	if err != nil {
		return nil, err
	}
	d := &PhasorDefinition{channelDefinition: base, phasorType: phasorType}
	if err := d.SetLabel(label); err != nil {
		return nil, err
	}
	if err := d.SetScalingValue(scalingValue); err != nil {
		return nil, err
	}
	d.offset = offset
	return d, nil
}

// NewPhasorDefinitionFromImage parses the 16 byte channel name at start
func NewPhasorDefinitionFromImage(parent *ConfigurationCell, buf []byte, start int) (*PhasorDefinition, int, error) {
	base, err := newChannelDefinition(parent, 1)
	if err != nil {
		return nil, 0, err
	}
	d := &PhasorDefinition{channelDefinition: base}
	if err := d.parseLabel(buf, start); err != nil {
		return nil, 0, err
	}
	return d, d.BinaryLength(), nil
}

// SetLabel sets the channel name, at most 16 printable characters
func (d *PhasorDefinition) SetLabel(label string) error {
	return d.setLabel(label, MaximumLabelLength)
}

// PhasorType returns whether the phasor measures voltage or current
func (d *PhasorDefinition) PhasorType() phasor.PhasorType {
	return d.phasorType
}

// SetPhasorType sets whether the phasor measures voltage or current
func (d *PhasorDefinition) SetPhasorType(t phasor.PhasorType) {
	d.phasorType = t
}

// SetScalingValue sets the PHUNIT scale, rejecting values outside the unsigned 24-bit range
func (d *PhasorDefinition) SetScalingValue(v int) error {
	if err := d.setScalingValue(v, 0, MaximumPhasorScalingValue); err != nil {
		return err
	}
	d.hasScale = false
	return nil
}

// ClampScalingValue sets the PHUNIT scale, clamping it into the unsigned 24-bit range
func (d *PhasorDefinition) ClampScalingValue(v int) {
	d.clampScalingValue(v, 0, MaximumPhasorScalingValue)
	d.hasScale = false
}

// ConversionFactor returns the engineering units represented by one integer step
func (d *PhasorDefinition) ConversionFactor() float64 {
	if d.hasScale {
		return d.scale
	}
	return float64(d.scalingValue) * phasorScaleUnit
}

// SetConversionFactor sets an exact floating point factor, as carried by CFG-3.
// The integer scaling value tracks the factor as closely as the 24-bit field allows.
func (d *PhasorDefinition) SetConversionFactor(factor float64) {
	d.clampScalingValue(roundScale(factor, phasorScaleUnit), 0, MaximumPhasorScalingValue)
	d.scale = factor
	d.hasScale = true
}

// CoordinateFormat returns the phasor coordinate format of the parent cell
func (d *PhasorDefinition) CoordinateFormat() phasor.CoordinateFormat {
	if d.format()&FormatPolar != 0 {
		return phasor.Polar
	}
	return phasor.Rectangular
}

// DataFormat returns the phasor data format of the parent cell
func (d *PhasorDefinition) DataFormat() phasor.DataFormat {
	if d.format()&FormatPhasorFloat != 0 {
		return phasor.FloatingPoint
	}
	return phasor.FixedInteger
}

// BinaryLength returns the width of the channel name
func (d *PhasorDefinition) BinaryLength() int {
	return MaximumLabelLength
}

// BinaryImage returns the channel name padded to 16 bytes
func (d *PhasorDefinition) BinaryImage() []byte {
	return d.labelImage()
}

// ParseConversionFactor reads a PHUNIT entry at start
func (d *PhasorDefinition) ParseConversionFactor(buf []byte, start int) (int, error) {
	if err := need(buf, start, conversionFactorLength); err != nil {
		return 0, err
	}
	if buf[start] == PhunitVoltage {
		d.phasorType = phasor.Voltage
	} else {
		d.phasorType = phasor.Current
	}
	d.scalingValue = int(uint24(buf[start+1 : start+4]))
	d.hasScale = false
	return conversionFactorLength, nil
}

// ConversionFactorImage encodes the PHUNIT entry
func (d *PhasorDefinition) ConversionFactorImage() []byte {
	b := make([]byte, conversionFactorLength)
	if d.phasorType == phasor.Current {
		b[0] = PhunitCurrent
	}
	putUint24(b[1:], uint32(d.scalingValue))
	return b
}

const phasorScaleLength = 12

// parsePhaseScale reads a CFG-3 PHSCALE entry
func (d *PhasorDefinition) parsePhaseScale(buf []byte, start int) (int, error) {
	if err := need(buf, start, phasorScaleLength); err != nil {
		return 0, err
	}
	d.Flags = binary.BigEndian.Uint16(buf[start : start+2])
	kind := buf[start+2]
	if kind&0x08 != 0 {
		d.phasorType = phasor.Current
	} else {
		d.phasorType = phasor.Voltage
	}
	d.Component = PhasorComponent(kind & 0x07)
	d.kindReserved = kind & 0xF0
	d.UserFlags = buf[start+3]
	d.SetConversionFactor(float32At(buf[start+4 : start+8]))
	d.offset = float32At(buf[start+8 : start+12])
	return phasorScaleLength, nil
}

// phaseScaleImage encodes a CFG-3 PHSCALE entry
func (d *PhasorDefinition) phaseScaleImage() []byte {
	b := make([]byte, phasorScaleLength)
	binary.BigEndian.PutUint16(b[0:2], d.Flags)
	kind := byte(d.Component&0x07) | d.kindReserved
	if d.phasorType == phasor.Current {
		kind |= 0x08
	}
	b[2] = kind
	b[3] = d.UserFlags
	putFloat32(b[4:8], d.ConversionFactor())
	putFloat32(b[8:12], d.offset)
	return b
}

func (d *PhasorDefinition) String() string {
	return fmt.Sprintf("%s (%s, scale %d)", d.label, d.phasorType, d.scalingValue)
}
