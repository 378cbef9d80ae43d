package ieeec37118

import (
	"fmt"
	"math"

	phasor "github.com/JSchlarb/phasorprotocols"
)

// conversionFactorLength is the width of PHUNIT, ANUNIT and DIGUNIT entries
const conversionFactorLength = 4

var (
	_ phasor.ChannelDefinition = (*PhasorDefinition)(nil)
	_ phasor.ChannelDefinition = (*AnalogDefinition)(nil)
	_ phasor.ChannelDefinition = (*DigitalDefinition)(nil)
	_ phasor.ChannelDefinition = (*FrequencyDefinition)(nil)
)

// channelDefinition holds what every definition kind has in common.
// The parent pointer is a navigation link only; the cell owns the definition.
type channelDefinition struct {
	parent       *ConfigurationCell
	index        int
	label        string
	scalingValue int
	offset       float64
}

func newChannelDefinition(parent *ConfigurationCell, scalingValue int) (channelDefinition, error) {
	if parent == nil {
		return channelDefinition{}, fmt.Errorf("definition without parent cell: %w", ErrInvalidParameter)
	}
	return channelDefinition{parent: parent, index: -1, scalingValue: scalingValue}, nil
}

// Parent returns the configuration cell the definition belongs to
func (d *channelDefinition) Parent() *ConfigurationCell {
	return d.parent
}

// Index returns the position of the definition within its cell, or -1 before it is added
func (d *channelDefinition) Index() int {
	return d.index
}

// Label returns the channel name
func (d *channelDefinition) Label() string {
	return d.label
}

func (d *channelDefinition) setLabel(label string, limit int) error {
	v, err := validateLabel(label, limit)
	if err != nil {
		return err
	}
	d.label = v
	return nil
}

// ScalingValue returns the raw integer scale carried on the wire
func (d *channelDefinition) ScalingValue() int {
	return d.scalingValue
}

func (d *channelDefinition) setScalingValue(v, lo, hi int) error {
	if v < lo || v > hi {
		return fmt.Errorf("scaling value %d outside [%d, %d]: %w", v, lo, hi, ErrOutOfRange)
	}
	d.scalingValue = v
	return nil
}

func (d *channelDefinition) clampScalingValue(v, lo, hi int) {
	d.scalingValue = min(max(v, lo), hi)
}

// Offset returns the additive offset applied after scaling
func (d *channelDefinition) Offset() float64 {
	return d.offset
}

// SetOffset sets the additive offset applied after scaling
func (d *channelDefinition) SetOffset(offset float64) {
	d.offset = offset
}

// labelImage encodes the label as a fixed 16 byte name field
func (d *channelDefinition) labelImage() []byte {
	return []byte(padLabel(d.label, MaximumLabelLength))
}

func (d *channelDefinition) parseLabel(buf []byte, start int) error {
	if err := need(buf, start, MaximumLabelLength); err != nil {
		return err
	}
	d.label = trimLabel(buf[start : start+MaximumLabelLength])
	return nil
}

func (d *channelDefinition) format() FormatFlags {
	if d.parent == nil {
		return 0
	}
	return d.parent.format
}

// roundScale converts a floating conversion factor into the integer scale closest to it
func roundScale(factor float64, unit float64) int {
	if math.IsNaN(factor) || math.IsInf(factor, 0) {
		return 0
	}
	return int(math.Round(factor / unit))
}
