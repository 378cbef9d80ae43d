package ieeec37118

import (
	"encoding/binary"
	"math"

	"github.com/google/uuid"
)

// cell3TrailerLength covers PMU_LAT, PMU_LON, PMU_ELEV, SVC_CLASS, WINDOW, GRP_DLY, FNOM and CFGCNT
const cell3TrailerLength = 4 + 4 + 4 + 1 + 4 + 4 + frequencyDefinitionLength + 2

// newConfigurationCell3FromImage parses one CFG-3 cell at start
func newConfigurationCell3FromImage(parent *ConfigurationFrame, buf []byte, start int) (*ConfigurationCell, int, error) {
	c := NewConfigurationCell(parent)
	index := start

	name, n, err := parseExtendedLabel(buf, index)
	if err != nil {
		return nil, 0, err
	}
	c.stationName = name
	index += n

	if err := need(buf, index, 2+16+2+6); err != nil {
		return nil, 0, err
	}
	c.IDCode = binary.BigEndian.Uint16(buf[index:])
	index += 2
	c.GlobalPMUID, _ = uuid.FromBytes(buf[index : index+16])
	c.explicitID = true
	index += 16
	c.format = FormatFlags(binary.BigEndian.Uint16(buf[index:]))
	phnmr := int(binary.BigEndian.Uint16(buf[index+2:]))
	annmr := int(binary.BigEndian.Uint16(buf[index+4:]))
	dgnmr := int(binary.BigEndian.Uint16(buf[index+6:]))
	index += 8

	// Every name takes at least its length byte
	minimum := phnmr*(1+phasorScaleLength) + annmr*(1+analogScaleLength) +
		dgnmr*(DigitalLabelCount+conversionFactorLength) + cell3TrailerLength
	if err := need(buf, index, minimum); err != nil {
		return nil, 0, err
	}

	c.phasors = make([]*PhasorDefinition, 0, phnmr)
	for i := 0; i < phnmr; i++ {
		label, n, err := parseExtendedLabel(buf, index)
		if err != nil {
			return nil, 0, err
		}
		d := &PhasorDefinition{channelDefinition: channelDefinition{parent: c, index: i, label: label, scalingValue: 1}}
		c.phasors = append(c.phasors, d)
		index += n
	}
	c.analogs = make([]*AnalogDefinition, 0, annmr)
	for i := 0; i < annmr; i++ {
		label, n, err := parseExtendedLabel(buf, index)
		if err != nil {
			return nil, 0, err
		}
		d := &AnalogDefinition{channelDefinition: channelDefinition{parent: c, index: i, label: label, scalingValue: 1}}
		c.analogs = append(c.analogs, d)
		index += n
	}
	c.digitals = make([]*DigitalDefinition, 0, dgnmr)
	for i := 0; i < dgnmr; i++ {
		d := &DigitalDefinition{channelDefinition: channelDefinition{parent: c, index: i}}
		n, err := d.parseExtendedLabels(buf, index)
		if err != nil {
			return nil, 0, err
		}
		c.digitals = append(c.digitals, d)
		index += n
	}

	for _, d := range c.phasors {
		n, err := d.parsePhaseScale(buf, index)
		if err != nil {
			return nil, 0, err
		}
		index += n
	}
	for _, d := range c.analogs {
		n, err := d.parseAnalogScale(buf, index)
		if err != nil {
			return nil, 0, err
		}
		index += n
	}
	for _, d := range c.digitals {
		n, err := d.ParseConversionFactor(buf, index)
		if err != nil {
			return nil, 0, err
		}
		index += n
	}

	if err := need(buf, index, cell3TrailerLength); err != nil {
		return nil, 0, err
	}
	c.Latitude = math.Float32frombits(binary.BigEndian.Uint32(buf[index:]))
	c.Longitude = math.Float32frombits(binary.BigEndian.Uint32(buf[index+4:]))
	c.Elevation = math.Float32frombits(binary.BigEndian.Uint32(buf[index+8:]))
	c.ServiceClass = buf[index+12]
	c.Window = int32(binary.BigEndian.Uint32(buf[index+13:]))
	c.GroupDelay = int32(binary.BigEndian.Uint32(buf[index+17:]))
	index += 21

	f, n, err := NewFrequencyDefinitionFromImage(c, buf, index)
	if err != nil {
		return nil, 0, err
	}
	c.frequency = f
	index += n

	c.RevisionCount = binary.BigEndian.Uint16(buf[index:])
	index += 2

	return c, index - start, nil
}

// binaryLength3 returns the width of the CFG-3 cell image
func (c *ConfigurationCell) binaryLength3() int {
	n := 1 + len(extendedLabel(c.stationName)) + 2 + 16 + 2 + 6
	for _, d := range c.phasors {
		n += 1 + len(extendedLabel(d.label)) + phasorScaleLength
	}
	for _, d := range c.analogs {
		n += 1 + len(extendedLabel(d.label)) + analogScaleLength
	}
	for _, d := range c.digitals {
		n += len(d.extendedLabelsImage()) + conversionFactorLength
	}
	return n + cell3TrailerLength
}

// binaryImage3 encodes the cell in CFG-3 layout
func (c *ConfigurationCell) binaryImage3() []byte {
	b := make([]byte, 0, c.binaryLength3())
	b = append(b, extendedLabelImage(c.stationName)...)
	b = binary.BigEndian.AppendUint16(b, c.IDCode)
	id := c.globalPMUID()
	b = append(b, id[:]...)
	b = binary.BigEndian.AppendUint16(b, uint16(c.format))
	b = binary.BigEndian.AppendUint16(b, uint16(len(c.phasors)))
	b = binary.BigEndian.AppendUint16(b, uint16(len(c.analogs)))
	b = binary.BigEndian.AppendUint16(b, uint16(len(c.digitals)))

	for _, d := range c.phasors {
		b = append(b, extendedLabelImage(d.label)...)
	}
	for _, d := range c.analogs {
		b = append(b, extendedLabelImage(d.label)...)
	}
	for _, d := range c.digitals {
		b = append(b, d.extendedLabelsImage()...)
	}

	for _, d := range c.phasors {
		b = append(b, d.phaseScaleImage()...)
	}
	for _, d := range c.analogs {
		b = append(b, d.analogScaleImage()...)
	}
	for _, d := range c.digitals {
		b = append(b, d.ConversionFactorImage()...)
	}

	b = binary.BigEndian.AppendUint32(b, math.Float32bits(c.Latitude))
	b = binary.BigEndian.AppendUint32(b, math.Float32bits(c.Longitude))
	b = binary.BigEndian.AppendUint32(b, math.Float32bits(c.Elevation))
	b = append(b, c.ServiceClass)
	b = binary.BigEndian.AppendUint32(b, uint32(c.Window))
	b = binary.BigEndian.AppendUint32(b, uint32(c.GroupDelay))
	b = append(b, c.frequency.BinaryImage()...)
	return binary.BigEndian.AppendUint16(b, c.RevisionCount)
}

func extendedLabel(label string) string {
	if len(label) > MaximumExtendedLabelLength {
		return label[:MaximumExtendedLabelLength]
	}
	return label
}
