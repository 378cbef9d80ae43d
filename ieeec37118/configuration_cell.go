package ieeec37118

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"

	phasor "github.com/JSchlarb/phasorprotocols"
)

// cellHeaderLength covers STN, IDCODE, FORMAT, PHNMR, ANNMR and DGNMR
const cellHeaderLength = MaximumLabelLength + 2 + 2 + 6

// Default CFG-3 cell metadata
const (
	DefaultServiceClass = 'M'
	DefaultWindow       = 0
	DefaultGroupDelay   = 0
)

// ConfigurationCell is one PMU's definition set inside a configuration frame
type ConfigurationCell struct {
	parent *ConfigurationFrame

	IDCode uint16
	// RevisionCount is CFGCNT, incremented by the device on every configuration change.
	RevisionCount uint16

	stationName      string
	format           FormatFlags
	nominalFrequency phasor.LineFrequency

	phasors   []*PhasorDefinition
	analogs   []*AnalogDefinition
	digitals  []*DigitalDefinition
	frequency *FrequencyDefinition

	// CFG-3 only. A nil GlobalPMUID is derived from the station name and ID code unless the
	// cell was parsed or loaded with an explicit, all-zero ID.
	GlobalPMUID  uuid.UUID
	explicitID   bool
	Latitude     float32
	Longitude    float32
	Elevation    float32
	ServiceClass byte
	Window       int32
	GroupDelay   int32
}

// NewConfigurationCell creates a blank cell with 60 Hz nominal frequency and integer rectangular formats
func NewConfigurationCell(parent *ConfigurationFrame) *ConfigurationCell {
	c := &ConfigurationCell{
		parent:           parent,
		nominalFrequency: phasor.Hz60,
		Latitude:         float32(math.Inf(1)),
		Longitude:        float32(math.Inf(1)),
		Elevation:        float32(math.Inf(1)),
		ServiceClass:     DefaultServiceClass,
		Window:           DefaultWindow,
		GroupDelay:       DefaultGroupDelay,
	}
	c.frequency, _ = NewFrequencyDefinition(c, "Frequency")
	return c
}

// NewConfigurationCellWithID creates a blank cell with the given identity and nominal frequency
func NewConfigurationCellWithID(parent *ConfigurationFrame, idCode uint16, nominal phasor.LineFrequency) (*ConfigurationCell, error) {
	c := NewConfigurationCell(parent)
	c.IDCode = idCode
	if err := c.SetNominalFrequency(nominal); err != nil {
		return nil, err
	}
	return c, nil
}

// NewConfigurationCellFromImage parses one CFG-1/CFG-2 cell at start and returns the bytes consumed
func NewConfigurationCellFromImage(parent *ConfigurationFrame, buf []byte, start int) (*ConfigurationCell, int, error) {
	if err := need(buf, start, cellHeaderLength); err != nil {
		return nil, 0, err
	}

	c := NewConfigurationCell(parent)
	index := start
	c.stationName = trimLabel(buf[index : index+MaximumLabelLength])
	index += MaximumLabelLength
	c.IDCode = binary.BigEndian.Uint16(buf[index:])
	c.format = FormatFlags(binary.BigEndian.Uint16(buf[index+2:]))
	phnmr := int(binary.BigEndian.Uint16(buf[index+4:]))
	annmr := int(binary.BigEndian.Uint16(buf[index+6:]))
	dgnmr := int(binary.BigEndian.Uint16(buf[index+8:]))
	index += 10

	// Check the whole cell fits before allocating definitions for it
	total := cellHeaderLength +
		(phnmr+annmr)*(MaximumLabelLength+conversionFactorLength) +
		dgnmr*(MaximumDigitalLabelLength+conversionFactorLength) +
		frequencyDefinitionLength + 2
	if err := need(buf, start, total); err != nil {
		return nil, 0, err
	}

	c.phasors = make([]*PhasorDefinition, 0, phnmr)
	for i := 0; i < phnmr; i++ {
		d, n, err := NewPhasorDefinitionFromImage(c, buf, index)
		if err != nil {
			return nil, 0, err
		}
		d.index = i
		c.phasors = append(c.phasors, d)
		index += n
	}
	c.analogs = make([]*AnalogDefinition, 0, annmr)
	for i := 0; i < annmr; i++ {
		d, n, err := NewAnalogDefinitionFromImage(c, buf, index)
		if err != nil {
			return nil, 0, err
		}
		d.index = i
		c.analogs = append(c.analogs, d)
		index += n
	}
	c.digitals = make([]*DigitalDefinition, 0, dgnmr)
	for i := 0; i < dgnmr; i++ {
		d, n, err := NewDigitalDefinitionFromImage(c, buf, index)
		if err != nil {
			return nil, 0, err
		}
		d.index = i
		c.digitals = append(c.digitals, d)
		index += n
	}

	for _, d := range c.phasors {
		n, err := d.ParseConversionFactor(buf, index)
		if err != nil {
			return nil, 0, err
		}
		index += n
	}
	for _, d := range c.analogs {
		n, err := d.ParseConversionFactor(buf, index)
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

// Parent returns the configuration frame the cell belongs to
func (c *ConfigurationCell) Parent() *ConfigurationFrame {
	return c.parent
}

// SetParent moves the cell to another frame. The cell keeps its definitions; data cells
// built against the old frame keep pointing at this cell.
func (c *ConfigurationCell) SetParent(parent *ConfigurationFrame) error {
	if parent == nil {
		return fmt.Errorf("nil parent frame: %w", ErrInvalidParameter)
	}
	c.parent = parent
	return nil
}

// StationName returns STN
func (c *ConfigurationCell) StationName() string {
	return c.stationName
}

// SetStationName sets STN, at most 16 printable characters
func (c *ConfigurationCell) SetStationName(name string) error {
	return c.setStationName(name, MaximumLabelLength)
}

func (c *ConfigurationCell) setStationName(name string, limit int) error {
	v, err := validateLabel(name, limit)
	if err != nil {
		return err
	}
	c.stationName = v
	return nil
}

// NominalFrequency returns the nominal line frequency
func (c *ConfigurationCell) NominalFrequency() phasor.LineFrequency {
	return c.nominalFrequency
}

// SetNominalFrequency sets the nominal line frequency, 50 or 60 Hz
func (c *ConfigurationCell) SetNominalFrequency(f phasor.LineFrequency) error {
	if f != phasor.Hz50 && f != phasor.Hz60 {
		return fmt.Errorf("nominal frequency %d Hz: %w", f, ErrInvalidParameter)
	}
	c.nominalFrequency = f
	return nil
}

// FormatFlags returns the FORMAT word
func (c *ConfigurationCell) FormatFlags() FormatFlags {
	return c.format
}

// SetFormatFlags replaces the FORMAT word
func (c *ConfigurationCell) SetFormatFlags(f FormatFlags) {
	c.format = f
}

// SetFormat sets the format word
func (c *ConfigurationCell) SetFormat(freqFloat, analogFloat, phasorFloat, polar bool) {
	c.format = 0
	c.setFlag(FormatPolar, polar)
	c.setFlag(FormatPhasorFloat, phasorFloat)
	c.setFlag(FormatAnalogFloat, analogFloat)
	c.setFlag(FormatFreqFloat, freqFloat)
}

func (c *ConfigurationCell) setFlag(flag FormatFlags, on bool) {
	if on {
		c.format |= flag
	} else {
		c.format &^= flag
	}
}

// PhasorCoordinateFormat returns whether phasors are sent in polar or rectangular form
func (c *ConfigurationCell) PhasorCoordinateFormat() phasor.CoordinateFormat {
	if c.format&FormatPolar != 0 {
		return phasor.Polar
	}
	return phasor.Rectangular
}

// SetPhasorCoordinateFormat sets the phasor coordinate format
func (c *ConfigurationCell) SetPhasorCoordinateFormat(f phasor.CoordinateFormat) {
	c.setFlag(FormatPolar, f == phasor.Polar)
}

// PhasorDataFormat returns whether phasors are sent as floats or scaled integers
func (c *ConfigurationCell) PhasorDataFormat() phasor.DataFormat {
	return c.dataFormat(FormatPhasorFloat)
}

// SetPhasorDataFormat sets the phasor data format
func (c *ConfigurationCell) SetPhasorDataFormat(f phasor.DataFormat) {
	c.setFlag(FormatPhasorFloat, f == phasor.FloatingPoint)
}

// AnalogDataFormat returns whether analogs are sent as floats or scaled integers
func (c *ConfigurationCell) AnalogDataFormat() phasor.DataFormat {
	return c.dataFormat(FormatAnalogFloat)
}

// SetAnalogDataFormat sets the analog data format
func (c *ConfigurationCell) SetAnalogDataFormat(f phasor.DataFormat) {
	c.setFlag(FormatAnalogFloat, f == phasor.FloatingPoint)
}

// FrequencyDataFormat returns whether FREQ and DFREQ are sent as floats or scaled integers
func (c *ConfigurationCell) FrequencyDataFormat() phasor.DataFormat {
	return c.dataFormat(FormatFreqFloat)
}

// SetFrequencyDataFormat sets the frequency data format
func (c *ConfigurationCell) SetFrequencyDataFormat(f phasor.DataFormat) {
	c.setFlag(FormatFreqFloat, f == phasor.FloatingPoint)
}

func (c *ConfigurationCell) dataFormat(flag FormatFlags) phasor.DataFormat {
	if c.format&flag != 0 {
		return phasor.FloatingPoint
	}
	return phasor.FixedInteger
}

// PhasorDefinitions returns the phasor definitions in wire order. The slice must not be modified.
func (c *ConfigurationCell) PhasorDefinitions() []*PhasorDefinition {
	return c.phasors
}

// AnalogDefinitions returns the analog definitions in wire order. The slice must not be modified.
func (c *ConfigurationCell) AnalogDefinitions() []*AnalogDefinition {
	return c.analogs
}

// DigitalDefinitions returns the digital definitions in wire order. The slice must not be modified.
func (c *ConfigurationCell) DigitalDefinitions() []*DigitalDefinition {
	return c.digitals
}

// FrequencyDefinition returns the frequency definition
func (c *ConfigurationCell) FrequencyDefinition() *FrequencyDefinition {
	return c.frequency
}

// SetFrequencyDefinition replaces the frequency definition
func (c *ConfigurationCell) SetFrequencyDefinition(d *FrequencyDefinition) error {
	if d == nil || d.parent != c {
		return fmt.Errorf("frequency definition belongs to another cell: %w", ErrSchemaBinding)
	}
	c.frequency = d
	return nil
}

func (c *ConfigurationCell) checkAdd(d *channelDefinition, count int) error {
	if d.parent != c {
		return fmt.Errorf("definition %q belongs to another cell: %w", d.label, ErrSchemaBinding)
	}
	if d.index >= 0 {
		return fmt.Errorf("definition %q already added at index %d: %w", d.label, d.index, ErrInvalidParameter)
	}
	if count >= math.MaxUint16 {
		return fmt.Errorf("too many definitions: %w", ErrOutOfRange)
	}
	return nil
}

// AddPhasorDefinition appends d to the phasor list and assigns its index
func (c *ConfigurationCell) AddPhasorDefinition(d *PhasorDefinition) error {
	if d == nil {
		return fmt.Errorf("nil phasor definition: %w", ErrInvalidParameter)
	}
	if err := c.checkAdd(&d.channelDefinition, len(c.phasors)); err != nil {
		return err
	}
	d.index = len(c.phasors)
	c.phasors = append(c.phasors, d)
	return nil
}

// AddAnalogDefinition appends d to the analog list and assigns its index
func (c *ConfigurationCell) AddAnalogDefinition(d *AnalogDefinition) error {
	if d == nil {
		return fmt.Errorf("nil analog definition: %w", ErrInvalidParameter)
	}
	if err := c.checkAdd(&d.channelDefinition, len(c.analogs)); err != nil {
		return err
	}
	d.index = len(c.analogs)
	c.analogs = append(c.analogs, d)
	return nil
}

// AddDigitalDefinition appends d to the digital list and assigns its index
func (c *ConfigurationCell) AddDigitalDefinition(d *DigitalDefinition) error {
	if d == nil {
		return fmt.Errorf("nil digital definition: %w", ErrInvalidParameter)
	}
	if err := c.checkAdd(&d.channelDefinition, len(c.digitals)); err != nil {
		return err
	}
	d.index = len(c.digitals)
	c.digitals = append(c.digitals, d)
	return nil
}

// AddPhasor adds a phasor channel
func (c *ConfigurationCell) AddPhasor(label string, scalingValue int, phasorType phasor.PhasorType) (*PhasorDefinition, error) {
	d, err := NewPhasorDefinition(c, label, scalingValue, 0, phasorType)
	if err != nil {
		return nil, err
	}
	return d, c.AddPhasorDefinition(d)
}

// AddAnalog adds an analog channel
func (c *ConfigurationCell) AddAnalog(label string, scalingValue int, analogType phasor.AnalogType) (*AnalogDefinition, error) {
	d, err := NewAnalogDefinition(c, label, scalingValue, 0, analogType)
	if err != nil {
		return nil, err
	}
	return d, c.AddAnalogDefinition(d)
}

// AddDigital adds a digital channel with 16 bits
func (c *ConfigurationCell) AddDigital(labels []string, normal, valid uint16) (*DigitalDefinition, error) {
	d, err := NewDigitalDefinition(c, labels, normal, valid)
	if err != nil {
		return nil, err
	}
	return d, c.AddDigitalDefinition(d)
}

// BinaryLength returns the width of the CFG-1/CFG-2 cell image
func (c *ConfigurationCell) BinaryLength() int {
	n := cellHeaderLength
	for _, d := range c.phasors {
		n += d.BinaryLength() + conversionFactorLength
	}
	for _, d := range c.analogs {
		n += d.BinaryLength() + conversionFactorLength
	}
	for _, d := range c.digitals {
		n += d.BinaryLength() + conversionFactorLength
	}
	return n + c.frequency.BinaryLength() + 2
}

// BinaryImage encodes the cell in CFG-1/CFG-2 layout. Labels longer than 16 characters are truncated.
func (c *ConfigurationCell) BinaryImage() []byte {
	b := make([]byte, 0, c.BinaryLength())
	b = append(b, padLabel(c.stationName, MaximumLabelLength)...)
	b = binary.BigEndian.AppendUint16(b, c.IDCode)
	b = binary.BigEndian.AppendUint16(b, uint16(c.format))
	b = binary.BigEndian.AppendUint16(b, uint16(len(c.phasors)))
	b = binary.BigEndian.AppendUint16(b, uint16(len(c.analogs)))
	b = binary.BigEndian.AppendUint16(b, uint16(len(c.digitals)))

	// Channel names
	for _, d := range c.phasors {
		b = append(b, d.BinaryImage()...)
	}
	for _, d := range c.analogs {
		b = append(b, d.BinaryImage()...)
	}
	for _, d := range c.digitals {
		b = append(b, d.BinaryImage()...)
	}

	// Units
	for _, d := range c.phasors {
		b = append(b, d.ConversionFactorImage()...)
	}
	for _, d := range c.analogs {
		b = append(b, d.ConversionFactorImage()...)
	}
	for _, d := range c.digitals {
		b = append(b, d.ConversionFactorImage()...)
	}

	// Nominal frequency and config count
	b = append(b, c.frequency.BinaryImage()...)
	return binary.BigEndian.AppendUint16(b, c.RevisionCount)
}

// clone copies the cell and its definitions into parent. Without cfg3 labels are cut to
// 16 characters and CFG-3 scale factors fall back to the integer scales.
func (c *ConfigurationCell) clone(parent *ConfigurationFrame, cfg3 bool) *ConfigurationCell {
	n := *c
	n.parent = parent
	cut := func(s string) string {
		if !cfg3 && len(s) > MaximumLabelLength {
			return s[:MaximumLabelLength]
		}
		return s
	}
	n.stationName = cut(c.stationName)

	n.phasors = make([]*PhasorDefinition, 0, len(c.phasors))
	for _, d := range c.phasors {
		nd := *d
		nd.parent = &n
		nd.label = cut(d.label)
		if !cfg3 {
			nd.hasScale = false
		}
		n.phasors = append(n.phasors, &nd)
	}
	n.analogs = make([]*AnalogDefinition, 0, len(c.analogs))
	for _, d := range c.analogs {
		nd := *d
		nd.parent = &n
		nd.label = cut(d.label)
		if !cfg3 {
			nd.hasScale = false
		}
		n.analogs = append(n.analogs, &nd)
	}
	n.digitals = make([]*DigitalDefinition, 0, len(c.digitals))
	for _, d := range c.digitals {
		nd := *d
		nd.parent = &n
		for i := range nd.labels {
			nd.labels[i] = cut(nd.labels[i])
		}
		n.digitals = append(n.digitals, &nd)
	}
	if c.frequency != nil {
		fd := *c.frequency
		fd.parent = &n
		n.frequency = &fd
	}
	return &n
}

// globalPMUID returns the configured G_PMU_ID, or one derived from the station name and ID code
func (c *ConfigurationCell) globalPMUID() uuid.UUID {
	if c.GlobalPMUID != uuid.Nil || c.explicitID {
		return c.GlobalPMUID
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s/%d", c.stationName, c.IDCode)))
}

func (c *ConfigurationCell) String() string {
	return fmt.Sprintf("%s (%d)", c.stationName, c.IDCode)
}
