// Package phasorprotocols defines the dialect-independent object model shared by the
// synchrophasor protocol codecs in this module.
//
// A protocol dialect (see package ieeec37118) implements the capability interfaces declared
// here; callers that only need labels, scaling, values and binary images can work against
// these interfaces without knowing which dialect produced a frame.
package phasorprotocols

import (
	"fmt"
	"time"
)

// FundamentalFrameType is the protocol independent classification of a frame
type FundamentalFrameType int

// Fundamental frame types
const (
	UndeterminedFrame FundamentalFrameType = iota
	DataFrame
	ConfigurationFrame
	HeaderFrame
	CommandFrame
)

// String returns the frame type name used in logs and metrics
func (t FundamentalFrameType) String() string {
	switch t {
	case DataFrame:
		return "data"
	case ConfigurationFrame:
		return "configuration"
	case HeaderFrame:
		return "header"
	case CommandFrame:
		return "command"
	default:
		return "undetermined"
	}
}

// ParseState tracks how far a frame got through parsing
type ParseState int

// Frame parse states. A frame starts Unparsed and either ends Serializable or ParseError.
const (
	StateUnparsed ParseState = iota
	StateHeaderParsed
	StateBodyParsed
	StateSerializable
	StateParseError
)

// String returns the state name
func (s ParseState) String() string {
	switch s {
	case StateUnparsed:
		return "unparsed"
	case StateHeaderParsed:
		return "header-parsed"
	case StateBodyParsed:
		return "body-parsed"
	case StateSerializable:
		return "serializable"
	case StateParseError:
		return "parse-error"
	default:
		return fmt.Sprintf("ParseState(%d)", int(s))
	}
}

// DataFormat selects how a channel value is encoded on the wire
type DataFormat int

// Data formats
const (
	FixedInteger DataFormat = iota
	FloatingPoint
)

// String returns the format name
func (f DataFormat) String() string {
	if f == FloatingPoint {
		return "float"
	}
	return "integer"
}

// CoordinateFormat selects how a phasor is encoded on the wire
type CoordinateFormat int

// Coordinate formats
const (
	Rectangular CoordinateFormat = iota
	Polar
)

// String returns the coordinate format name
func (f CoordinateFormat) String() string {
	if f == Polar {
		return "polar"
	}
	return "rectangular"
}

// PhasorType distinguishes voltage and current phasors
type PhasorType int

// Phasor types
const (
	Voltage PhasorType = iota
	Current
)

// String returns the phasor type name
func (t PhasorType) String() string {
	if t == Current {
		return "current"
	}
	return "voltage"
}

// ParsePhasorType parses the name produced by PhasorType.String
func ParsePhasorType(s string) (PhasorType, error) {
	switch s {
	case "", "voltage", "v", "V":
		return Voltage, nil
	case "current", "i", "I":
		return Current, nil
	default:
		return Voltage, fmt.Errorf("unknown phasor type %q: %w", s, ErrInvalidParameter)
	}
}

// AnalogType describes how an analog channel was sampled
type AnalogType int

// Analog types
const (
	SinglePointOnWave AnalogType = iota
	RMS
	Peak
)

// String returns the analog type name
func (t AnalogType) String() string {
	switch t {
	case SinglePointOnWave:
		return "pow"
	case RMS:
		return "rms"
	case Peak:
		return "peak"
	default:
		return fmt.Sprintf("type-%d", int(t))
	}
}

// ParseAnalogType parses the name produced by AnalogType.String
func ParseAnalogType(s string) (AnalogType, error) {
	switch s {
	case "", "pow":
		return SinglePointOnWave, nil
	case "rms":
		return RMS, nil
	case "peak":
		return Peak, nil
	default:
		return SinglePointOnWave, fmt.Errorf("unknown analog type %q: %w", s, ErrInvalidParameter)
	}
}

// LineFrequency is the nominal frequency of the power system in Hz
type LineFrequency int

// Nominal line frequencies
const (
	Hz60 LineFrequency = 60
	Hz50 LineFrequency = 50
)

// ChannelDefinition is the capability set every channel definition exposes,
// independent of the protocol dialect that parsed it.
type ChannelDefinition interface {
	// Index is the position of the definition within its cell's list of the same kind.
	Index() int
	Label() string
	SetLabel(label string) error
	ScalingValue() int
	SetScalingValue(value int) error
	Offset() float64
	SetOffset(offset float64)
	// BinaryLength is the width of the definition's own image, not including its conversion factor.
	BinaryLength() int
	BinaryImage() []byte
}

// ChannelValue is the capability set every channel value exposes
type ChannelValue interface {
	IsEmpty() bool
	// CompositeValues returns the numeric components of the value in engineering units.
	CompositeValues() []float64
	BinaryLength() int
	BinaryImage() []byte
}

// ChannelFrame is the capability set every parsed or composed frame exposes
type ChannelFrame interface {
	FundamentalType() FundamentalFrameType
	Timestamp() time.Time
	ParseState() ParseState
	BinaryImage() ([]byte, error)
}
