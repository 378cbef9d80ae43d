package ieeec37118

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/cmplx"

	phasor "github.com/JSchlarb/phasorprotocols"
)

// angleScale converts radians to the 16-bit integer polar angle
const angleScale = 1e4

var (
	_ phasor.ChannelValue = (*PhasorValue)(nil)
	_ phasor.ChannelValue = (*AnalogValue)(nil)
	_ phasor.ChannelValue = (*DigitalValue)(nil)
	_ phasor.ChannelValue = (*FrequencyValue)(nil)
)

// PhasorValue is one phasor measurement, held in rectangular engineering units.
// Its wire width and encoding follow the format flags of the definition's cell
// at the moment it is serialized.
type PhasorValue struct {
	parent     *DataCell
	definition *PhasorDefinition
	value      complex128
	assigned   bool
}

// NewPhasorValue creates an empty phasor value bound to def
func NewPhasorValue(parent *DataCell, def *PhasorDefinition) (*PhasorValue, error) {
	v := &PhasorValue{parent: parent}
	if err := v.SetDefinition(def); err != nil {
		return nil, err
	}
	return v, nil
}

// NewPhasorValueRectangular creates a phasor value from its real and imaginary parts
func NewPhasorValueRectangular(parent *DataCell, def *PhasorDefinition, re, im float64) (*PhasorValue, error) {
	v, err := NewPhasorValue(parent, def)
	if err != nil {
		return nil, err
	}
	v.SetRectangular(re, im)
	return v, nil
}

// NewPhasorValuePolar creates a phasor value from an angle in radians and a magnitude
func NewPhasorValuePolar(parent *DataCell, def *PhasorDefinition, angle, magnitude float64) (*PhasorValue, error) {
	v, err := NewPhasorValue(parent, def)
	if err != nil {
		return nil, err
	}
	v.SetPolar(angle, magnitude)
	return v, nil
}

// NewPhasorValueFromImage parses a phasor value at start using the current format of def's cell
func NewPhasorValueFromImage(parent *DataCell, def *PhasorDefinition, buf []byte, start int) (*PhasorValue, int, error) {
	v, err := NewPhasorValue(parent, def)
	if err != nil {
		return nil, 0, err
	}
	n := v.BinaryLength()
	if err := need(buf, start, n); err != nil {
		return nil, 0, err
	}
	b := buf[start : start+n]

	polar := def.CoordinateFormat() == phasor.Polar
	if def.DataFormat() == phasor.FloatingPoint {
		a, c := float32At(b[0:4]), float32At(b[4:8])
		if polar {
			v.SetPolar(c, a)
		} else {
			v.SetRectangular(a, c)
		}
	} else {
		factor := def.ConversionFactor()
		if polar {
			magnitude := float64(binary.BigEndian.Uint16(b[0:2])) * factor
			angle := float64(int16(binary.BigEndian.Uint16(b[2:4]))) / angleScale
			v.SetPolar(angle, magnitude)
		} else {
			re := float64(int16(binary.BigEndian.Uint16(b[0:2]))) * factor
			im := float64(int16(binary.BigEndian.Uint16(b[2:4]))) * factor
			v.SetRectangular(re, im)
		}
	}
	return v, n, nil
}

// Parent returns the data cell the value belongs to
func (v *PhasorValue) Parent() *DataCell {
	return v.parent
}

// Definition returns the bound definition
func (v *PhasorValue) Definition() *PhasorDefinition {
	return v.definition
}

// SetDefinition rebinds the value. Its wire format follows the new definition's cell from now on.
func (v *PhasorValue) SetDefinition(def *PhasorDefinition) error {
	if def == nil {
		return fmt.Errorf("nil phasor definition: %w", ErrInvalidParameter)
	}
	if def.parent == nil {
		return fmt.Errorf("phasor definition %q has no cell: %w", def.label, ErrSchemaBinding)
	}
	v.definition = def
	return nil
}

// Real returns the real part
func (v *PhasorValue) Real() float64 {
	return real(v.value)
}

// Imaginary returns the imaginary part
func (v *PhasorValue) Imaginary() float64 {
	return imag(v.value)
}

// Angle returns the angle in radians
func (v *PhasorValue) Angle() float64 {
	return cmplx.Phase(v.value)
}

// Magnitude returns the magnitude
func (v *PhasorValue) Magnitude() float64 {
	return cmplx.Abs(v.value)
}

// Complex returns the value as a complex number
func (v *PhasorValue) Complex() complex128 {
	return v.value
}

// SetRectangular assigns the value from its real and imaginary parts
func (v *PhasorValue) SetRectangular(re, im float64) {
	v.value = complex(re, im)
	v.assigned = true
}

// SetPolar assigns the value from an angle in radians and a magnitude
func (v *PhasorValue) SetPolar(angle, magnitude float64) {
	v.value = cmplx.Rect(magnitude, angle)
	v.assigned = true
}

// IsEmpty reports whether the value was never assigned
func (v *PhasorValue) IsEmpty() bool {
	return !v.assigned
}

// CompositeValues returns angle and magnitude
func (v *PhasorValue) CompositeValues() []float64 {
	return []float64{v.Angle(), v.Magnitude()}
}

// BinaryLength returns 8 bytes for floats and 4 for scaled integers
func (v *PhasorValue) BinaryLength() int {
	if v.definition.DataFormat() == phasor.FloatingPoint {
		return 8
	}
	return 4
}

// BinaryImage encodes the value using the current format of the definition's cell
func (v *PhasorValue) BinaryImage() []byte {
	b := make([]byte, v.BinaryLength())
	polar := v.definition.CoordinateFormat() == phasor.Polar

	if v.definition.DataFormat() == phasor.FloatingPoint {
		if polar {
			putFloat32(b[0:4], v.Magnitude())
			putFloat32(b[4:8], v.Angle())
		} else {
			putFloat32(b[0:4], v.Real())
			putFloat32(b[4:8], v.Imaginary())
		}
		return b
	}

	factor := v.definition.ConversionFactor()
	if polar {
		binary.BigEndian.PutUint16(b[0:2], toUint16(unscale(v.Magnitude(), factor)))
		binary.BigEndian.PutUint16(b[2:4], uint16(toInt16(v.Angle()*angleScale)))
	} else {
		binary.BigEndian.PutUint16(b[0:2], uint16(toInt16(unscale(v.Real(), factor))))
		binary.BigEndian.PutUint16(b[2:4], uint16(toInt16(unscale(v.Imaginary(), factor))))
	}
	return b
}

// unscale converts an engineering value back into integer steps of factor
func unscale(v, factor float64) float64 {
	if factor == 0 {
		return 0
	}
	return v / factor
}

func (v *PhasorValue) String() string {
	return fmt.Sprintf("%.4f∠%.4f", v.Magnitude(), v.Angle()*180/math.Pi)
}
