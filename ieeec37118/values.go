package ieeec37118

import (
	"encoding/binary"
	"fmt"

	phasor "github.com/JSchlarb/phasorprotocols"
)

// AnalogValue is one analog measurement in engineering units
type AnalogValue struct {
	parent     *DataCell
	definition *AnalogDefinition
	value      float64
	assigned   bool
}

// NewAnalogValue creates an analog value bound to def
func NewAnalogValue(parent *DataCell, def *AnalogDefinition) (*AnalogValue, error) {
	v := &AnalogValue{parent: parent}
	if err := v.SetDefinition(def); err != nil {
		return nil, err
	}
	return v, nil
}

// NewAnalogValueWith creates an analog value bound to def holding value
func NewAnalogValueWith(parent *DataCell, def *AnalogDefinition, value float64) (*AnalogValue, error) {
	v, err := NewAnalogValue(parent, def)
	if err != nil {
		return nil, err
	}
	v.SetValue(value)
	return v, nil
}

// NewAnalogValueFromImage parses an analog value at start using the current format of def's cell
func NewAnalogValueFromImage(parent *DataCell, def *AnalogDefinition, buf []byte, start int) (*AnalogValue, int, error) {
	v, err := NewAnalogValue(parent, def)
	if err != nil {
		return nil, 0, err
	}
	n := v.BinaryLength()
	if err := need(buf, start, n); err != nil {
		return nil, 0, err
	}
	if def.DataFormat() == phasor.FloatingPoint {
		v.SetValue(float32At(buf[start : start+4]))
	} else {
		raw := float64(int16(binary.BigEndian.Uint16(buf[start : start+2])))
		v.SetValue(raw*def.ConversionFactor() + def.Offset())
	}
	return v, n, nil
}

// Parent returns the data cell the value belongs to
func (v *AnalogValue) Parent() *DataCell {
	return v.parent
}

// Definition returns the bound definition
func (v *AnalogValue) Definition() *AnalogDefinition {
	return v.definition
}

// SetDefinition rebinds the value
func (v *AnalogValue) SetDefinition(def *AnalogDefinition) error {
	if def == nil {
		return fmt.Errorf("nil analog definition: %w", ErrInvalidParameter)
	}
	if def.parent == nil {
		return fmt.Errorf("analog definition %q has no cell: %w", def.label, ErrSchemaBinding)
	}
	v.definition = def
	return nil
}

// Value returns the measurement
func (v *AnalogValue) Value() float64 {
	return v.value
}

// SetValue assigns the measurement
func (v *AnalogValue) SetValue(value float64) {
	v.value = value
	v.assigned = true
}

// IsEmpty reports whether the value was never assigned
func (v *AnalogValue) IsEmpty() bool {
	return !v.assigned
}

// CompositeValues returns the single measurement
func (v *AnalogValue) CompositeValues() []float64 {
	return []float64{v.value}
}

// BinaryLength returns 4 bytes for floats and 2 for scaled integers
func (v *AnalogValue) BinaryLength() int {
	if v.definition.DataFormat() == phasor.FloatingPoint {
		return 4
	}
	return 2
}

// BinaryImage encodes the value using the current format of the definition's cell
func (v *AnalogValue) BinaryImage() []byte {
	b := make([]byte, v.BinaryLength())
	if v.definition.DataFormat() == phasor.FloatingPoint {
		putFloat32(b, v.value)
	} else {
		raw := unscale(v.value-v.definition.Offset(), v.definition.ConversionFactor())
		binary.BigEndian.PutUint16(b, uint16(toInt16(raw)))
	}
	return b
}

// DigitalValue is one 16-bit digital status word
type DigitalValue struct {
	parent     *DataCell
	definition *DigitalDefinition
	value      uint16
	assigned   bool
}

const digitalValueLength = 2

// NewDigitalValue creates a digital value bound to def
func NewDigitalValue(parent *DataCell, def *DigitalDefinition) (*DigitalValue, error) {
	v := &DigitalValue{parent: parent}
	if err := v.SetDefinition(def); err != nil {
		return nil, err
	}
	return v, nil
}

// NewDigitalValueWith creates a digital value bound to def holding value
func NewDigitalValueWith(parent *DataCell, def *DigitalDefinition, value uint16) (*DigitalValue, error) {
	v, err := NewDigitalValue(parent, def)
	if err != nil {
		return nil, err
	}
	v.SetValue(value)
	return v, nil
}

// NewDigitalValueFromImage parses a digital word at start
func NewDigitalValueFromImage(parent *DataCell, def *DigitalDefinition, buf []byte, start int) (*DigitalValue, int, error) {
	v, err := NewDigitalValue(parent, def)
	if err != nil {
		return nil, 0, err
	}
	if err := need(buf, start, digitalValueLength); err != nil {
		return nil, 0, err
	}
	v.SetValue(binary.BigEndian.Uint16(buf[start:]))
	return v, digitalValueLength, nil
}

// Parent returns the data cell the value belongs to
func (v *DigitalValue) Parent() *DataCell {
	return v.parent
}

// Definition returns the bound definition
func (v *DigitalValue) Definition() *DigitalDefinition {
	return v.definition
}

// SetDefinition rebinds the value
func (v *DigitalValue) SetDefinition(def *DigitalDefinition) error {
	if def == nil {
		return fmt.Errorf("nil digital definition: %w", ErrInvalidParameter)
	}
	if def.parent == nil {
		return fmt.Errorf("digital definition has no cell: %w", ErrSchemaBinding)
	}
	v.definition = def
	return nil
}

// Value returns the status word
func (v *DigitalValue) Value() uint16 {
	return v.value
}

// SetValue assigns the status word
func (v *DigitalValue) SetValue(value uint16) {
	v.value = value
	v.assigned = true
}

// Bit returns the state of input i
func (v *DigitalValue) Bit(i int) (bool, error) {
	if i < 0 || i >= DigitalLabelCount {
		return false, fmt.Errorf("bit index %d: %w", i, ErrOutOfRange)
	}
	return v.value&(1<<i) != 0, nil
}

// Abnormal returns the valid inputs that differ from their normal state
func (v *DigitalValue) Abnormal() uint16 {
	return (v.value ^ v.definition.NormalStatusMask) & v.definition.ValidInputsMask
}

// IsEmpty reports whether the value was never assigned
func (v *DigitalValue) IsEmpty() bool {
	return !v.assigned
}

// CompositeValues returns the status word
func (v *DigitalValue) CompositeValues() []float64 {
	return []float64{float64(v.value)}
}

// BinaryLength returns 2
func (v *DigitalValue) BinaryLength() int {
	return digitalValueLength
}

// BinaryImage encodes the status word
func (v *DigitalValue) BinaryImage() []byte {
	return binary.BigEndian.AppendUint16(nil, v.value)
}

// FrequencyValue holds FREQ in Hz and DFREQ in Hz/s
type FrequencyValue struct {
	parent     *DataCell
	definition *FrequencyDefinition
	frequency  float64
	dfdt       float64
	assigned   bool
}

// NewFrequencyValue creates a frequency value bound to def
func NewFrequencyValue(parent *DataCell, def *FrequencyDefinition) (*FrequencyValue, error) {
	v := &FrequencyValue{parent: parent}
	if err := v.SetDefinition(def); err != nil {
		return nil, err
	}
	return v, nil
}

// NewFrequencyValueWith creates a frequency value bound to def holding frequency and dfdt
func NewFrequencyValueWith(parent *DataCell, def *FrequencyDefinition, frequency, dfdt float64) (*FrequencyValue, error) {
	v, err := NewFrequencyValue(parent, def)
	if err != nil {
		return nil, err
	}
	v.Set(frequency, dfdt)
	return v, nil
}

// NewFrequencyValueFromImage parses FREQ and DFREQ at start using the current format of def's cell
func NewFrequencyValueFromImage(parent *DataCell, def *FrequencyDefinition, buf []byte, start int) (*FrequencyValue, int, error) {
	v, err := NewFrequencyValue(parent, def)
	if err != nil {
		return nil, 0, err
	}
	n := v.BinaryLength()
	if err := need(buf, start, n); err != nil {
		return nil, 0, err
	}
	b := buf[start : start+n]
	if def.DataFormat() == phasor.FloatingPoint {
		v.Set(float32At(b[0:4]), float32At(b[4:8]))
	} else {
		deviation := float64(int16(binary.BigEndian.Uint16(b[0:2])))
		rocof := float64(int16(binary.BigEndian.Uint16(b[2:4])))
		v.Set(unscale(deviation, float64(def.ScalingValue()))+def.Offset(),
			unscale(rocof, float64(def.DfDtScalingValue))+def.DfDtOffset)
	}
	return v, n, nil
}

// Parent returns the data cell the value belongs to
func (v *FrequencyValue) Parent() *DataCell {
	return v.parent
}

// Definition returns the bound definition
func (v *FrequencyValue) Definition() *FrequencyDefinition {
	return v.definition
}

// SetDefinition rebinds the value
func (v *FrequencyValue) SetDefinition(def *FrequencyDefinition) error {
	if def == nil {
		return fmt.Errorf("nil frequency definition: %w", ErrInvalidParameter)
	}
	if def.parent == nil {
		return fmt.Errorf("frequency definition has no cell: %w", ErrSchemaBinding)
	}
	v.definition = def
	return nil
}

// Frequency returns the measured frequency in Hz
func (v *FrequencyValue) Frequency() float64 {
	return v.frequency
}

// DfDt returns the rate of change of frequency in Hz/s
func (v *FrequencyValue) DfDt() float64 {
	return v.dfdt
}

// Set assigns frequency and rate of change of frequency
func (v *FrequencyValue) Set(frequency, dfdt float64) {
	v.frequency = frequency
	v.dfdt = dfdt
	v.assigned = true
}

// IsEmpty reports whether the value was never assigned
func (v *FrequencyValue) IsEmpty() bool {
	return !v.assigned
}

// CompositeValues returns frequency and dfdt
func (v *FrequencyValue) CompositeValues() []float64 {
	return []float64{v.frequency, v.dfdt}
}

// BinaryLength returns 8 bytes for floats and 4 for scaled integers
func (v *FrequencyValue) BinaryLength() int {
	if v.definition.DataFormat() == phasor.FloatingPoint {
		return 8
	}
	return 4
}

// BinaryImage encodes FREQ and DFREQ using the current format of the definition's cell
func (v *FrequencyValue) BinaryImage() []byte {
	b := make([]byte, v.BinaryLength())
	if v.definition.DataFormat() == phasor.FloatingPoint {
		putFloat32(b[0:4], v.frequency)
		putFloat32(b[4:8], v.dfdt)
		return b
	}
	d := v.definition
	deviation := (v.frequency - d.Offset()) * float64(d.ScalingValue())
	rocof := (v.dfdt - d.DfDtOffset) * float64(d.DfDtScalingValue)
	binary.BigEndian.PutUint16(b[0:2], uint16(toInt16(deviation)))
	binary.BigEndian.PutUint16(b[2:4], uint16(toInt16(rocof)))
	return b
}
