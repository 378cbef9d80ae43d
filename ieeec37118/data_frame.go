package ieeec37118

import (
	"fmt"
	"time"

	phasor "github.com/JSchlarb/phasorprotocols"
)

var _ phasor.ChannelFrame = (*DataFrame)(nil)

// DataFrame represents a data frame. Its layout is dictated by the configuration frame it is bound to.
type DataFrame struct {
	CommonFrameHeader
	configuration *ConfigurationFrame
	cells         []*DataCell
}

// NewDataFrame creates a data frame with an empty data cell for every configuration cell
func NewDataFrame(cfg *ConfigurationFrame, timestamp time.Time) (*DataFrame, error) {
	if cfg == nil {
		return nil, ErrNoConfiguration
	}
	df := &DataFrame{
		CommonFrameHeader: newCommonFrameHeader(FrameTypeData, cfg.IDCode),
		configuration:     cfg,
		cells:             make([]*DataCell, 0, len(cfg.cells)),
	}
	df.Version = cfg.Version
	df.TimeBase = cfg.TimeBase
	df.SetTimestamp(timestamp)

	for _, cc := range cfg.cells {
		cell, err := NewDataCell(df, cc)
		if err != nil {
			return nil, err
		}
		df.cells = append(df.cells, cell)
	}
	df.parseState = phasor.StateSerializable
	return df, nil
}

// ParseDataFrame parses a data frame laid out as cfg describes
func ParseDataFrame(buf []byte, cfg *ConfigurationFrame) (*DataFrame, error) {
	h, err := parseFrameHeader(buf, FrameTypeData)
	if err != nil {
		return nil, phasor.NewParseError(phasor.DataFrame, 0, err)
	}
	if cfg == nil {
		return nil, phasor.NewParseError(phasor.DataFrame, 0, ErrNoConfiguration)
	}
	h.State = &ParsingState{ConfigurationFrame: cfg, CellCount: len(cfg.cells)}
	return parseDataFrame(h, buf)
}

func parseDataFrame(h *CommonFrameHeader, buf []byte) (*DataFrame, error) {
	cfg := h.State.ConfigurationFrame
	if h.IDCode != cfg.IDCode {
		return nil, phasor.NewParseError(phasor.DataFrame, 4,
			fmt.Errorf("data frame from ID code %d, configuration is for %d: %w", h.IDCode, cfg.IDCode, ErrSchemaBinding))
	}

	df := &DataFrame{CommonFrameHeader: *h, configuration: cfg}
	df.TimeBase = cfg.TimeBase
	df.cells = make([]*DataCell, 0, h.State.CellCount)

	body := buf[:int(h.FrameLength)-crcLength]
	index := CommonHeaderLength
	for i, cc := range cfg.cells {
		cell, n, err := NewDataCellFromImage(df, cc, body, index)
		if err != nil {
			df.parseState = phasor.StateParseError
			return nil, phasor.NewParseError(phasor.DataFrame, index,
				fmt.Errorf("cell %d of %d: %w", i+1, len(cfg.cells), err))
		}
		df.cells = append(df.cells, cell)
		index += n
	}
	if index != len(body) {
		df.parseState = phasor.StateParseError
		return nil, phasor.NewParseError(phasor.DataFrame, index,
			fmt.Errorf("%d cells end at %d, frame body ends at %d: %w", len(cfg.cells), index, len(body), ErrCellCountMismatch))
	}

	df.parseState = phasor.StateSerializable
	return df, nil
}

// ConfigurationFrame returns the configuration the frame is bound to
func (d *DataFrame) ConfigurationFrame() *ConfigurationFrame {
	return d.configuration
}

// Cells returns the data cells in configuration order
func (d *DataFrame) Cells() []*DataCell {
	return d.cells
}

// CellByIDCode returns the data cell of the PMU with the given ID code, or nil
func (d *DataFrame) CellByIDCode(idCode uint16) *DataCell {
	for _, c := range d.cells {
		if c.configuration.IDCode == idCode {
			return c
		}
	}
	return nil
}

// BinaryLength returns the width of the complete frame
func (d *DataFrame) BinaryLength() int {
	n := CommonHeaderLength + crcLength
	for _, c := range d.cells {
		n += c.BinaryLength()
	}
	return n
}

// BinaryImage converts the data frame to bytes
func (d *DataFrame) BinaryImage() ([]byte, error) {
	if d.configuration == nil {
		return nil, ErrNoConfiguration
	}
	if len(d.cells) != len(d.configuration.cells) {
		return nil, fmt.Errorf("%d data cells for %d configuration cells: %w",
			len(d.cells), len(d.configuration.cells), ErrCellCountMismatch)
	}
	length := d.BinaryLength()
	if length > MaximumFrameLength {
		return nil, fmt.Errorf("data frame of %d bytes: %w", length, ErrInvalidSize)
	}

	b := d.headerImage(length)
	for _, c := range d.cells {
		b = append(b, c.BinaryImage()...)
	}
	return appendCRC(b), nil
}

// Measurements flattens every value of the frame into measurements keyed by PMU and channel
func (d *DataFrame) Measurements() []phasor.Measurement {
	ts := d.Timestamp()
	var out []phasor.Measurement

	add := func(cell *DataCell, signal phasor.SignalKind, index int, label string, value float64) {
		id := cell.IDCode()
		out = append(out, phasor.Measurement{
			Key:        phasor.MeasurementKey(id, signal, index),
			Source:     id,
			Signal:     signal,
			Index:      index,
			Label:      label,
			Value:      value,
			Timestamp:  ts,
			StateFlags: cell.StateFlags(),
		})
	}

	for _, cell := range d.cells {
		add(cell, phasor.SignalStatus, 0, "STAT", float64(cell.StatusFlags))
		for i, v := range cell.phasors {
			add(cell, phasor.SignalPhasorMagnitude, i, v.definition.Label(), v.Magnitude())
			add(cell, phasor.SignalPhasorAngle, i, v.definition.Label(), v.Angle())
		}
		add(cell, phasor.SignalFrequency, 0, cell.frequency.definition.Label(), cell.frequency.Frequency())
		add(cell, phasor.SignalDfDt, 0, cell.frequency.definition.Label(), cell.frequency.DfDt())
		for i, v := range cell.analogs {
			add(cell, phasor.SignalAnalog, i, v.definition.Label(), v.Value())
		}
		for i, v := range cell.digitals {
			add(cell, phasor.SignalDigital, i, v.definition.Label(), float64(v.Value()))
		}
	}
	return out
}
