package ieeec37118

import (
	"encoding/binary"
	"fmt"

	phasor "github.com/JSchlarb/phasorprotocols"
)

// STAT bit fields
const (
	statDataErrorMask      = 0xC000
	statSyncLost           = 1 << 13
	statSortByArrival      = 1 << 12
	statTrigger            = 1 << 11
	statConfigChange       = 1 << 10
	statDataModified       = 1 << 9
	statTimeQualityMask    = 0x01C0
	statUnlockedTimeMask   = 0x0030
	statTriggerReasonMask  = 0x000F
	statTimeQualityShift   = 6
	statUnlockedTimeShift  = 4
	statDataErrorShift     = 14
	statusLength           = 2
	statusNoInformationBit = 0xFFFF
)

// DataError is the two bit data error code in STAT
type DataError byte

// Data error codes
const (
	DataErrorGood          DataError = 0
	DataErrorPMUError      DataError = 1
	DataErrorTestMode      DataError = 2
	DataErrorNoInformation DataError = 3
)

// DataCell holds one PMU's measurements inside a data frame
type DataCell struct {
	parent        *DataFrame
	configuration *ConfigurationCell

	StatusFlags uint16

	phasors   []*PhasorValue
	frequency *FrequencyValue
	analogs   []*AnalogValue
	digitals  []*DigitalValue
}

// NewDataCell creates a cell with an empty value for every definition of cfg
func NewDataCell(parent *DataFrame, cfg *ConfigurationCell) (*DataCell, error) {
	if cfg == nil {
		return nil, fmt.Errorf("data cell without configuration cell: %w", ErrNoConfiguration)
	}
	c := &DataCell{parent: parent, configuration: cfg}

	c.phasors = make([]*PhasorValue, 0, len(cfg.phasors))
	for _, d := range cfg.phasors {
		v, err := NewPhasorValue(c, d)
		if err != nil {
			return nil, err
		}
		c.phasors = append(c.phasors, v)
	}
	f, err := NewFrequencyValue(c, cfg.frequency)
	if err != nil {
		return nil, err
	}
	c.frequency = f
	c.analogs = make([]*AnalogValue, 0, len(cfg.analogs))
	for _, d := range cfg.analogs {
		v, err := NewAnalogValue(c, d)
		if err != nil {
			return nil, err
		}
		c.analogs = append(c.analogs, v)
	}
	c.digitals = make([]*DigitalValue, 0, len(cfg.digitals))
	for _, d := range cfg.digitals {
		v, err := NewDigitalValue(c, d)
		if err != nil {
			return nil, err
		}
		c.digitals = append(c.digitals, v)
	}
	return c, nil
}

// NewDataCellFromImage parses one data cell at start, laid out as cfg describes
func NewDataCellFromImage(parent *DataFrame, cfg *ConfigurationCell, buf []byte, start int) (*DataCell, int, error) {
	if cfg == nil {
		return nil, 0, fmt.Errorf("data cell without configuration cell: %w", ErrNoConfiguration)
	}
	if err := need(buf, start, statusLength); err != nil {
		return nil, 0, err
	}
	c := &DataCell{parent: parent, configuration: cfg}
	c.StatusFlags = binary.BigEndian.Uint16(buf[start:])
	index := start + statusLength

	c.phasors = make([]*PhasorValue, 0, len(cfg.phasors))
	for _, d := range cfg.phasors {
		v, n, err := NewPhasorValueFromImage(c, d, buf, index)
		if err != nil {
			return nil, 0, err
		}
		c.phasors = append(c.phasors, v)
		index += n
	}

	f, n, err := NewFrequencyValueFromImage(c, cfg.frequency, buf, index)
	if err != nil {
		return nil, 0, err
	}
	c.frequency = f
	index += n

	c.analogs = make([]*AnalogValue, 0, len(cfg.analogs))
	for _, d := range cfg.analogs {
		v, n, err := NewAnalogValueFromImage(c, d, buf, index)
		if err != nil {
			return nil, 0, err
		}
		c.analogs = append(c.analogs, v)
		index += n
	}

	c.digitals = make([]*DigitalValue, 0, len(cfg.digitals))
	for _, d := range cfg.digitals {
		v, n, err := NewDigitalValueFromImage(c, d, buf, index)
		if err != nil {
			return nil, 0, err
		}
		c.digitals = append(c.digitals, v)
		index += n
	}

	return c, index - start, nil
}

// Parent returns the data frame the cell belongs to
func (c *DataCell) Parent() *DataFrame {
	return c.parent
}

// ConfigurationCell returns the configuration cell describing this cell
func (c *DataCell) ConfigurationCell() *ConfigurationCell {
	return c.configuration
}

// IDCode returns the ID code of the PMU the cell reports for
func (c *DataCell) IDCode() uint16 {
	return c.configuration.IDCode
}

// PhasorValues returns the phasor values in wire order
func (c *DataCell) PhasorValues() []*PhasorValue {
	return c.phasors
}

// FrequencyValue returns FREQ and DFREQ
func (c *DataCell) FrequencyValue() *FrequencyValue {
	return c.frequency
}

// AnalogValues returns the analog values in wire order
func (c *DataCell) AnalogValues() []*AnalogValue {
	return c.analogs
}

// DigitalValues returns the digital values in wire order
func (c *DataCell) DigitalValues() []*DigitalValue {
	return c.digitals
}

// BinaryLength returns the width of the cell under the current format flags
func (c *DataCell) BinaryLength() int {
	n := statusLength + c.frequency.BinaryLength()
	for _, v := range c.phasors {
		n += v.BinaryLength()
	}
	for _, v := range c.analogs {
		n += v.BinaryLength()
	}
	for _, v := range c.digitals {
		n += v.BinaryLength()
	}
	return n
}

// BinaryImage encodes STAT followed by phasors, FREQ, DFREQ, analogs and digitals
func (c *DataCell) BinaryImage() []byte {
	b := make([]byte, 0, c.BinaryLength())
	b = binary.BigEndian.AppendUint16(b, c.StatusFlags)
	for _, v := range c.phasors {
		b = append(b, v.BinaryImage()...)
	}
	b = append(b, c.frequency.BinaryImage()...)
	for _, v := range c.analogs {
		b = append(b, v.BinaryImage()...)
	}
	for _, v := range c.digitals {
		b = append(b, v.BinaryImage()...)
	}
	return b
}

// DataError returns bits 15-14 of STAT
func (c *DataCell) DataError() DataError {
	return DataError((c.StatusFlags & statDataErrorMask) >> statDataErrorShift)
}

// SetDataError sets bits 15-14 of STAT
func (c *DataCell) SetDataError(e DataError) {
	c.StatusFlags = c.StatusFlags&^statDataErrorMask | uint16(e&0x03)<<statDataErrorShift
}

// DataIsValid reports whether the PMU flagged no data error
func (c *DataCell) DataIsValid() bool {
	return c.DataError() == DataErrorGood
}

// SyncLost reports whether the PMU lost time synchronization (bit 13)
func (c *DataCell) SyncLost() bool {
	return c.StatusFlags&statSyncLost != 0
}

// SetSyncLost sets bit 13 of STAT
func (c *DataCell) SetSyncLost(lost bool) {
	c.setStat(statSyncLost, lost)
}

// SortedByArrival reports whether data is sorted by arrival instead of timestamp (bit 12)
func (c *DataCell) SortedByArrival() bool {
	return c.StatusFlags&statSortByArrival != 0
}

// TriggerDetected reports bit 11 of STAT
func (c *DataCell) TriggerDetected() bool {
	return c.StatusFlags&statTrigger != 0
}

// SetTriggerDetected sets bit 11 and the trigger reason
func (c *DataCell) SetTriggerDetected(detected bool, reason byte) {
	c.setStat(statTrigger, detected)
	c.StatusFlags = c.StatusFlags&^statTriggerReasonMask | uint16(reason)&statTriggerReasonMask
}

// ConfigurationChanged reports the pending configuration change bit (bit 10)
func (c *DataCell) ConfigurationChanged() bool {
	return c.StatusFlags&statConfigChange != 0
}

// SetConfigurationChanged sets bit 10 of STAT
func (c *DataCell) SetConfigurationChanged(changed bool) {
	c.setStat(statConfigChange, changed)
}

// DataModified reports whether data was modified by a post-processing device (bit 9)
func (c *DataCell) DataModified() bool {
	return c.StatusFlags&statDataModified != 0
}

// SetDataModified sets bit 9 of STAT
func (c *DataCell) SetDataModified(modified bool) {
	c.setStat(statDataModified, modified)
}

// TimeQuality returns the PMU time quality code in bits 8-6
func (c *DataCell) TimeQuality() byte {
	return byte((c.StatusFlags & statTimeQualityMask) >> statTimeQualityShift)
}

// UnlockedTime returns the unlocked time code in bits 5-4
func (c *DataCell) UnlockedTime() byte {
	return byte((c.StatusFlags & statUnlockedTimeMask) >> statUnlockedTimeShift)
}

// TriggerReason returns bits 3-0 of STAT
func (c *DataCell) TriggerReason() byte {
	return byte(c.StatusFlags & statTriggerReasonMask)
}

// DeviceError reports a PMU error without data, which also invalidates the other STAT bits
func (c *DataCell) DeviceError() bool {
	return c.StatusFlags == statusNoInformationBit
}

func (c *DataCell) setStat(bit uint16, on bool) {
	if on {
		c.StatusFlags |= bit
	} else {
		c.StatusFlags &^= bit
	}
}

// StateFlags maps STAT onto measurement quality flags
func (c *DataCell) StateFlags() phasor.MeasurementStateFlags {
	var f phasor.MeasurementStateFlags
	switch c.DataError() {
	case DataErrorPMUError, DataErrorNoInformation:
		f |= phasor.StateBadData | phasor.StateSystemError
	case DataErrorTestMode:
		f |= phasor.StateTestMode
	}
	if c.SyncLost() {
		f |= phasor.StateSyncLost | phasor.StateBadTime
	}
	if c.ConfigurationChanged() {
		f |= phasor.StateConfigChange
	}
	if c.DataModified() {
		f |= phasor.StateDataModified
	}
	if c.TriggerDetected() {
		f |= phasor.StateTriggered
	}
	return f
}
