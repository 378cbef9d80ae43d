package ieeec37118

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// DigitalDefinition describes one 16-bit digital status word. Every bit has its own label.
type DigitalDefinition struct {
	channelDefinition
	labels [DigitalLabelCount]string

	// NormalStatusMask holds the normal state of each input.
	NormalStatusMask uint16
	// ValidInputsMask marks which inputs are in use.
	ValidInputsMask uint16
}

// NewDigitalDefinition creates a digital definition with up to 16 bit labels;
// add it to the cell with AddDigitalDefinition
func NewDigitalDefinition(parent *ConfigurationCell, labels []string, normal, valid uint16) (*DigitalDefinition, error) {
	base, err := newChannelDefinition(parent, 0)
	if err != nil {
		return nil, err
	}
	if len(labels) > DigitalLabelCount {
		return nil, fmt.Errorf("%d bit labels, at most %d: %w", len(labels), DigitalLabelCount, ErrInvalidParameter)
	}
	d := &DigitalDefinition{channelDefinition: base, NormalStatusMask: normal, ValidInputsMask: valid}
	for i, l := range labels {
		if err := d.SetBitLabel(i, l); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// NewDigitalDefinitionFromImage parses the 16 bit labels of 16 bytes each at start
func NewDigitalDefinitionFromImage(parent *ConfigurationCell, buf []byte, start int) (*DigitalDefinition, int, error) {
	base, err := newChannelDefinition(parent, 0)
	if err != nil {
		return nil, 0, err
	}
	d := &DigitalDefinition{channelDefinition: base}
	if err := need(buf, start, MaximumDigitalLabelLength); err != nil {
		return nil, 0, err
	}
	for i := range d.labels {
		at := start + i*MaximumLabelLength
		d.labels[i] = trimLabel(buf[at : at+MaximumLabelLength])
	}
	return d, d.BinaryLength(), nil
}

// Label returns all bit labels as one string of 16 character slots with trailing padding removed
func (d *DigitalDefinition) Label() string {
	var sb strings.Builder
	for _, l := range d.labels {
		sb.WriteString(padLabel(l, MaximumLabelLength))
	}
	return strings.TrimRight(sb.String(), " ")
}

// SetLabel splits label into 16 character slots, one per bit
func (d *DigitalDefinition) SetLabel(label string) error {
	v, err := validateLabel(label, MaximumDigitalLabelLength)
	if err != nil {
		return err
	}
	v = padLabel(v, MaximumDigitalLabelLength)
	for i := range d.labels {
		d.labels[i] = strings.TrimRight(v[i*MaximumLabelLength:(i+1)*MaximumLabelLength], " ")
	}
	return nil
}

// BitLabel returns the label of bit i
func (d *DigitalDefinition) BitLabel(i int) (string, error) {
	if i < 0 || i >= DigitalLabelCount {
		return "", fmt.Errorf("bit label index %d: %w", i, ErrOutOfRange)
	}
	return d.labels[i], nil
}

// SetBitLabel sets the label of bit i
func (d *DigitalDefinition) SetBitLabel(i int, label string) error {
	return d.setBitLabel(i, label, MaximumLabelLength)
}

func (d *DigitalDefinition) setBitLabel(i int, label string, limit int) error {
	if i < 0 || i >= DigitalLabelCount {
		return fmt.Errorf("bit label index %d: %w", i, ErrOutOfRange)
	}
	v, err := validateLabel(label, limit)
	if err != nil {
		return err
	}
	d.labels[i] = v
	return nil
}

// BitLabels returns a copy of all bit labels
func (d *DigitalDefinition) BitLabels() []string {
	out := make([]string, DigitalLabelCount)
	copy(out, d.labels[:])
	return out
}

// ScalingValue returns DIGUNIT as a single integer: normal status mask in the upper 16 bits
func (d *DigitalDefinition) ScalingValue() int {
	return int(uint32(d.NormalStatusMask)<<16 | uint32(d.ValidInputsMask))
}

// SetScalingValue sets both masks from a DIGUNIT word
func (d *DigitalDefinition) SetScalingValue(v int) error {
	if v < 0 || int64(v) > 0xFFFFFFFF {
		return fmt.Errorf("digital unit 0x%X: %w", v, ErrOutOfRange)
	}
	d.NormalStatusMask = uint16(v >> 16)
	d.ValidInputsMask = uint16(v)
	return nil
}

// BinaryLength returns the width of the 16 bit labels
func (d *DigitalDefinition) BinaryLength() int {
	return MaximumDigitalLabelLength
}

// BinaryImage returns the 16 bit labels, each padded to 16 bytes
func (d *DigitalDefinition) BinaryImage() []byte {
	b := make([]byte, 0, MaximumDigitalLabelLength)
	for _, l := range d.labels {
		b = append(b, padLabel(l, MaximumLabelLength)...)
	}
	return b
}

// ParseConversionFactor reads a DIGUNIT entry at start
func (d *DigitalDefinition) ParseConversionFactor(buf []byte, start int) (int, error) {
	if err := need(buf, start, conversionFactorLength); err != nil {
		return 0, err
	}
	d.NormalStatusMask = binary.BigEndian.Uint16(buf[start : start+2])
	d.ValidInputsMask = binary.BigEndian.Uint16(buf[start+2 : start+4])
	return conversionFactorLength, nil
}

// ConversionFactorImage encodes the DIGUNIT entry
func (d *DigitalDefinition) ConversionFactorImage() []byte {
	b := make([]byte, conversionFactorLength)
	binary.BigEndian.PutUint16(b[0:2], d.NormalStatusMask)
	binary.BigEndian.PutUint16(b[2:4], d.ValidInputsMask)
	return b
}

// parseExtendedLabels reads 16 length-prefixed CFG-3 bit labels
func (d *DigitalDefinition) parseExtendedLabels(buf []byte, start int) (int, error) {
	index := start
	for i := range d.labels {
		l, n, err := parseExtendedLabel(buf, index)
		if err != nil {
			return 0, err
		}
		d.labels[i] = l
		index += n
	}
	return index - start, nil
}

func (d *DigitalDefinition) extendedLabelsImage() []byte {
	var b []byte
	for _, l := range d.labels {
		b = append(b, extendedLabelImage(l)...)
	}
	return b
}

// parseExtendedLabel reads a CFG-3 name: one length byte followed by that many characters
func parseExtendedLabel(buf []byte, start int) (string, int, error) {
	if err := need(buf, start, 1); err != nil {
		return "", 0, err
	}
	n := int(buf[start])
	if err := need(buf, start+1, n); err != nil {
		return "", 0, err
	}
	return trimLabel(buf[start+1 : start+1+n]), n + 1, nil
}

func extendedLabelImage(label string) []byte {
	if len(label) > MaximumExtendedLabelLength {
		label = label[:MaximumExtendedLabelLength]
	}
	b := make([]byte, 0, len(label)+1)
	b = append(b, byte(len(label)))
	return append(b, label...)
}
