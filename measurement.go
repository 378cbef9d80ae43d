package phasorprotocols

import (
	"fmt"
	"time"
)

// SignalKind identifies what a measurement represents
type SignalKind int

// Signal kinds
const (
	SignalPhasorMagnitude SignalKind = iota
	SignalPhasorAngle
	SignalFrequency
	SignalDfDt
	SignalAnalog
	SignalDigital
	SignalStatus
)

// Acronym returns the short signal suffix used in measurement keys
func (k SignalKind) Acronym() string {
	switch k {
	case SignalPhasorMagnitude:
		return "PM"
	case SignalPhasorAngle:
		return "PA"
	case SignalFrequency:
		return "FQ"
	case SignalDfDt:
		return "DF"
	case SignalAnalog:
		return "AV"
	case SignalDigital:
		return "DV"
	case SignalStatus:
		return "SF"
	default:
		return "??"
	}
}

// MeasurementStateFlags carries the quality of a measurement
type MeasurementStateFlags uint32

// Measurement state flags
const (
	StateNormal       MeasurementStateFlags = 0
	StateBadData      MeasurementStateFlags = 1 << 0
	StateBadTime      MeasurementStateFlags = 1 << 1
	StateSystemError  MeasurementStateFlags = 1 << 2
	StateSyncLost     MeasurementStateFlags = 1 << 3
	StateTestMode     MeasurementStateFlags = 1 << 4
	StateConfigChange MeasurementStateFlags = 1 << 5
	StateDataModified MeasurementStateFlags = 1 << 6
	StateTriggered    MeasurementStateFlags = 1 << 7
)

// Has reports whether all bits in flag are set
func (f MeasurementStateFlags) Has(flag MeasurementStateFlags) bool {
	return f&flag == flag
}

// Measurement is the uniform surface adapters consume from a parsed data frame
type Measurement struct {
	Key        string
	Source     uint16
	Signal     SignalKind
	Index      int
	Label      string
	Value      float64
	Timestamp  time.Time
	StateFlags MeasurementStateFlags
}

// MeasurementKey builds the key adapters use to route a measurement, e.g. "7-PM1"
func MeasurementKey(idCode uint16, signal SignalKind, index int) string {
	if signal == SignalFrequency || signal == SignalDfDt || signal == SignalStatus {
		return fmt.Sprintf("%d-%s", idCode, signal.Acronym())
	}
	return fmt.Sprintf("%d-%s%d", idCode, signal.Acronym(), index+1)
}
