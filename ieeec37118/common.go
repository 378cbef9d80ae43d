// Package ieeec37118 implements the IEEE C37.118 synchrophasor protocol: configuration
// (CFG-1, CFG-2, CFG-3), data, header and command frames, a stream parser that binds data
// frames to the configuration that describes them, and a device-side command responder.
package ieeec37118

import (
	"fmt"
	"strconv"
	"strings"

	phasor "github.com/JSchlarb/phasorprotocols"
)

// Errors are shared with the dialect independent package so callers can match either.
var (
	ErrInvalidFrame      = phasor.ErrInvalidFrame
	ErrInvalidSize       = phasor.ErrInvalidSize
	ErrCellCountMismatch = phasor.ErrCellCountMismatch
	ErrCRCFailed         = phasor.ErrCRCFailed
	ErrNoConfiguration   = phasor.ErrNoConfiguration
	ErrSchemaBinding     = phasor.ErrSchemaBinding
	ErrInvalidParameter  = phasor.ErrInvalidParameter
	ErrOutOfRange        = phasor.ErrOutOfRange
	ErrNotImpl           = phasor.ErrNotImpl
)

// SyncByte leads every frame
const SyncByte = 0xAA

// FrameType is the 3-bit frame type carried in the second sync byte
type FrameType int

// Frame type constants
const (
	FrameTypeData   FrameType = 0
	FrameTypeHeader FrameType = 1
	FrameTypeCfg1   FrameType = 2
	FrameTypeCfg2   FrameType = 3
	FrameTypeCmd    FrameType = 4
	FrameTypeCfg3   FrameType = 5
)

// String returns the short frame type name
func (t FrameType) String() string {
	switch t {
	case FrameTypeData:
		return "data"
	case FrameTypeHeader:
		return "header"
	case FrameTypeCfg1:
		return "cfg1"
	case FrameTypeCfg2:
		return "cfg2"
	case FrameTypeCmd:
		return "command"
	case FrameTypeCfg3:
		return "cfg3"
	default:
		return fmt.Sprintf("frame-%d", int(t))
	}
}

// ParseFrameType parses the name produced by FrameType.String
func ParseFrameType(s string) (FrameType, error) {
	for t := FrameTypeData; t <= FrameTypeCfg3; t++ {
		if t.String() == s {
			return t, nil
		}
	}
	return -1, fmt.Errorf("unknown frame type %q: %w", s, ErrInvalidParameter)
}

// IsConfiguration reports whether t is one of the configuration frame types
func (t FrameType) IsConfiguration() bool {
	return t == FrameTypeCfg1 || t == FrameTypeCfg2 || t == FrameTypeCfg3
}

// Fundamental maps the frame type to its dialect independent classification
func (t FrameType) Fundamental() phasor.FundamentalFrameType {
	switch t {
	case FrameTypeData:
		return phasor.DataFrame
	case FrameTypeHeader:
		return phasor.HeaderFrame
	case FrameTypeCfg1, FrameTypeCfg2, FrameTypeCfg3:
		return phasor.ConfigurationFrame
	case FrameTypeCmd:
		return phasor.CommandFrame
	default:
		return phasor.UndeterminedFrame
	}
}

// Protocol versions carried in the low nibble of the second sync byte
const (
	Version2005 byte = 1
	Version2011 byte = 2
)

// Fixed sizes
const (
	CommonHeaderLength = 14
	crcLength          = 2
	// MinimumFrameLength is a header followed directly by its checksum.
	MinimumFrameLength = CommonHeaderLength + crcLength
	MaximumFrameLength = 0xFFFF
	// DefaultTimeBase is the fraction-of-second resolution used when no configuration provides one.
	DefaultTimeBase = 100000
)

// Label limits
const (
	MaximumLabelLength         = 16
	MaximumExtendedLabelLength = 255
	DigitalLabelCount          = 16
	MaximumDigitalLabelLength  = DigitalLabelCount * MaximumLabelLength
)

// Nominal frequency codes in FNOM
const (
	FreqNom60Hz = 0
	FreqNom50Hz = 1
)

// Phasor unit types in PHUNIT
const (
	PhunitVoltage = 0
	PhunitCurrent = 1
)

// Analog unit types in ANUNIT
const (
	AnunitPow  = 0
	AnunitRMS  = 1
	AnunitPeak = 2
)

// FormatFlags is the per-cell FORMAT word
type FormatFlags uint16

// FORMAT bits
const (
	FormatPolar       FormatFlags = 1 << 0
	FormatPhasorFloat FormatFlags = 1 << 1
	FormatAnalogFloat FormatFlags = 1 << 2
	FormatFreqFloat   FormatFlags = 1 << 3
)

// DeviceCommand is the CMD word of a command frame
type DeviceCommand uint16

// Command codes
const (
	CmdStop   DeviceCommand = 0x01
	CmdStart  DeviceCommand = 0x02
	CmdHeader DeviceCommand = 0x03
	CmdCfg1   DeviceCommand = 0x04
	CmdCfg2   DeviceCommand = 0x05
	CmdCfg3   DeviceCommand = 0x06
	CmdExt    DeviceCommand = 0x08
)

// String returns the command name used in logs and metrics
func (c DeviceCommand) String() string {
	switch c {
	case CmdStop:
		return "STOP"
	case CmdStart:
		return "START"
	case CmdHeader:
		return "HEADER"
	case CmdCfg1:
		return "CONFIG1"
	case CmdCfg2:
		return "CONFIG2"
	case CmdCfg3:
		return "CONFIG3"
	case CmdExt:
		return "EXTENDED"
	default:
		return fmt.Sprintf("UNKNOWN(0x%04X)", uint16(c))
	}
}

// ParseDeviceCommand accepts either a command name, in any case, or a numeric code
func ParseDeviceCommand(s string) (DeviceCommand, error) {
	for _, c := range []DeviceCommand{CmdStop, CmdStart, CmdHeader, CmdCfg1, CmdCfg2, CmdCfg3, CmdExt} {
		if strings.EqualFold(c.String(), s) {
			return c, nil
		}
	}
	code, err := strconv.ParseUint(strings.TrimSuffix(strings.TrimPrefix(s, "UNKNOWN("), ")"), 0, 16)
	if err != nil {
		return 0, fmt.Errorf("unknown command %q: %w", s, ErrInvalidParameter)
	}
	return DeviceCommand(code), nil
}
