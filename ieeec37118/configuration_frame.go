package ieeec37118

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	phasor "github.com/JSchlarb/phasorprotocols"
)

// ErrContinuation is returned when a CFG-3 frame is one fragment of a larger configuration
var ErrContinuation = errors.New("configuration continues in following frames")

// CONT_IDX values
const (
	ContinuationNone = 0
	ContinuationLast = 0xFFFF
)

// configurationFrameOverhead is TIME_BASE, NUM_PMU and DATA_RATE
const configurationFrameOverhead = 4 + 2 + 2

var _ phasor.ChannelFrame = (*ConfigurationFrame)(nil)

// ConfigurationFrame represents a CFG-1, CFG-2 or CFG-3 configuration frame
type ConfigurationFrame struct {
	CommonFrameHeader
	// FrameRate is DATA_RATE: frames per second when positive, seconds per frame when negative.
	FrameRate int16
	// ContinuationIndex is CONT_IDX of a CFG-3 frame.
	ContinuationIndex uint16

	cells []*ConfigurationCell
}

// NewConfigurationFrame creates an empty configuration frame of the given type.
// timeBase is the TIME_BASE word: flags in the top byte, a nonzero resolution in the lower 24 bits.
func NewConfigurationFrame(frameType FrameType, idCode uint16, timeBase uint32, frameRate int16) (*ConfigurationFrame, error) {
	if !frameType.IsConfiguration() {
		return nil, fmt.Errorf("%s is not a configuration frame type: %w", frameType, ErrInvalidParameter)
	}
	if timeBase&0xFFFFFF == 0 {
		return nil, fmt.Errorf("time base %d: %w", timeBase, ErrOutOfRange)
	}
	f := &ConfigurationFrame{
		CommonFrameHeader: newCommonFrameHeader(frameType, idCode),
		FrameRate:         frameRate,
		cells:             make([]*ConfigurationCell, 0),
	}
	f.TimeBase = timeBase
	if frameType == FrameTypeCfg3 {
		f.Version = Version2011
	}
	f.parseState = phasor.StateSerializable
	return f, nil
}

// ParseConfigurationFrame parses a single CFG-1, CFG-2 or unfragmented CFG-3 frame
func ParseConfigurationFrame(buf []byte) (*ConfigurationFrame, error) {
	h, err := parseFrameHeader(buf, FrameTypeCfg1, FrameTypeCfg2, FrameTypeCfg3)
	if err != nil {
		return nil, phasor.NewParseError(phasor.ConfigurationFrame, 0, err)
	}
	return parseConfigurationFrame(h, buf)
}

func parseConfigurationFrame(h *CommonFrameHeader, buf []byte) (*ConfigurationFrame, error) {
	f := &ConfigurationFrame{CommonFrameHeader: *h}
	body := buf[:int(h.FrameLength)-crcLength]

	var err error
	if h.FrameType == FrameTypeCfg3 {
		if err = need(body, CommonHeaderLength, 2); err == nil {
			f.ContinuationIndex = binary.BigEndian.Uint16(body[CommonHeaderLength:])
			if f.ContinuationIndex != ContinuationNone {
				err = fmt.Errorf("CONT_IDX %d: %w", f.ContinuationIndex, ErrContinuation)
			} else {
				err = f.parseBody(body, CommonHeaderLength+2, newConfigurationCell3FromImage)
			}
		}
	} else {
		err = f.parseBody(body, CommonHeaderLength, NewConfigurationCellFromImage)
	}
	if err != nil {
		f.parseState = phasor.StateParseError
		return nil, phasor.NewParseError(phasor.ConfigurationFrame, CommonHeaderLength, err)
	}

	f.parseState = phasor.StateSerializable
	return f, nil
}

type cellParser func(parent *ConfigurationFrame, buf []byte, start int) (*ConfigurationCell, int, error)

// parseBody reads TIME_BASE, NUM_PMU, the cells and DATA_RATE; the body must end exactly after DATA_RATE
func (f *ConfigurationFrame) parseBody(body []byte, index int, parseCell cellParser) error {
	if err := need(body, index, 6); err != nil {
		return err
	}
	f.TimeBase = binary.BigEndian.Uint32(body[index:])
	numPMU := int(binary.BigEndian.Uint16(body[index+4:]))
	index += 6
	f.parseState = phasor.StateHeaderParsed

	f.cells = make([]*ConfigurationCell, 0, numPMU)
	for i := 0; i < numPMU; i++ {
		cell, n, err := parseCell(f, body, index)
		if err != nil {
			return fmt.Errorf("cell %d of %d: %w", i+1, numPMU, err)
		}
		if err := f.AddCell(cell); err != nil {
			return err
		}
		index += n
	}

	if err := need(body, index, 2); err != nil {
		return fmt.Errorf("data rate: %w", err)
	}
	f.FrameRate = int16(binary.BigEndian.Uint16(body[index:]))
	index += 2
	if index != len(body) {
		return fmt.Errorf("%d cells end at %d, frame body ends at %d: %w", numPMU, index, len(body), ErrCellCountMismatch)
	}
	f.parseState = phasor.StateBodyParsed
	return nil
}

// Cells returns the cells in wire order. The slice must not be modified.
func (f *ConfigurationFrame) Cells() []*ConfigurationCell {
	return f.cells
}

// AddCell appends a cell. A cell created without a parent is adopted by the frame.
func (f *ConfigurationFrame) AddCell(c *ConfigurationCell) error {
	if c == nil {
		return fmt.Errorf("nil cell: %w", ErrInvalidParameter)
	}
	if c.parent == nil {
		c.parent = f
	}
	if c.parent != f {
		return fmt.Errorf("cell %d belongs to another frame: %w", c.IDCode, ErrSchemaBinding)
	}
	if f.CellByIDCode(c.IDCode) != nil {
		return fmt.Errorf("duplicate cell ID code %d: %w", c.IDCode, ErrInvalidParameter)
	}
	if len(f.cells) >= 0xFFFF {
		return fmt.Errorf("too many cells: %w", ErrOutOfRange)
	}
	f.cells = append(f.cells, c)
	return nil
}

// CellByIDCode returns the cell with the given ID code, or nil
func (f *ConfigurationFrame) CellByIDCode(idCode uint16) *ConfigurationCell {
	for _, c := range f.cells {
		if c.IDCode == idCode {
			return c
		}
	}
	return nil
}

// FrameInterval returns the time between data frames
func (f *ConfigurationFrame) FrameInterval() time.Duration {
	switch {
	case f.FrameRate > 0:
		return time.Second / time.Duration(f.FrameRate)
	case f.FrameRate < 0:
		return time.Duration(-int(f.FrameRate)) * time.Second
	default:
		return 0
	}
}

// bodyLength returns the width of everything between the common header and the checksum
func (f *ConfigurationFrame) bodyLength() int {
	n := configurationFrameOverhead
	for _, c := range f.cells {
		if f.FrameType == FrameTypeCfg3 {
			n += c.binaryLength3()
		} else {
			n += c.BinaryLength()
		}
	}
	if f.FrameType == FrameTypeCfg3 {
		n += 2
	}
	return n
}

// BinaryLength returns the width of the complete frame
func (f *ConfigurationFrame) BinaryLength() int {
	return CommonHeaderLength + f.bodyLength() + crcLength
}

// payload encodes TIME_BASE through DATA_RATE
func (f *ConfigurationFrame) payload() []byte {
	b := make([]byte, 0, f.bodyLength())
	b = binary.BigEndian.AppendUint32(b, f.TimeBase)
	b = binary.BigEndian.AppendUint16(b, uint16(len(f.cells)))
	for _, c := range f.cells {
		if f.FrameType == FrameTypeCfg3 {
			b = append(b, c.binaryImage3()...)
		} else {
			b = append(b, c.BinaryImage()...)
		}
	}
	return binary.BigEndian.AppendUint16(b, uint16(f.FrameRate))
}

// BinaryImage converts the configuration frame to bytes. A CFG-3 frame too large for a single
// frame fails with ErrNotImpl; use BinaryImages to fragment it.
func (f *ConfigurationFrame) BinaryImage() ([]byte, error) {
	length := f.BinaryLength()
	if length > MaximumFrameLength {
		if f.FrameType == FrameTypeCfg3 {
			return nil, fmt.Errorf("CFG-3 image of %d bytes needs continuation frames: %w", length, ErrNotImpl)
		}
		return nil, fmt.Errorf("configuration frame of %d bytes: %w", length, ErrInvalidSize)
	}
	if f.TimeBase&0xFFFFFF == 0 {
		return nil, fmt.Errorf("time base 0: %w", ErrOutOfRange)
	}

	b := f.headerImage(length)
	if f.FrameType == FrameTypeCfg3 {
		b = binary.BigEndian.AppendUint16(b, ContinuationNone)
	}
	b = append(b, f.payload()...)
	return appendCRC(b), nil
}

// BinaryImages returns the frame as one or more images of at most maxFrameLength bytes.
// Only CFG-3 frames can be fragmented.
func (f *ConfigurationFrame) BinaryImages(maxFrameLength int) ([][]byte, error) {
	if maxFrameLength > MaximumFrameLength {
		maxFrameLength = MaximumFrameLength
	}
	if f.BinaryLength() <= maxFrameLength {
		b, err := f.BinaryImage()
		if err != nil {
			return nil, err
		}
		return [][]byte{b}, nil
	}
	if f.FrameType != FrameTypeCfg3 {
		return nil, fmt.Errorf("%s frame of %d bytes cannot be fragmented: %w", f.FrameType, f.BinaryLength(), ErrInvalidSize)
	}

	chunk := maxFrameLength - CommonHeaderLength - 2 - crcLength
	if chunk <= 0 {
		return nil, fmt.Errorf("maximum frame length %d: %w", maxFrameLength, ErrOutOfRange)
	}
	payload := f.payload()
	count := (len(payload) + chunk - 1) / chunk
	if count >= ContinuationLast {
		return nil, fmt.Errorf("%d fragments: %w", count, ErrOutOfRange)
	}

	images := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		part := payload[i*chunk : min((i+1)*chunk, len(payload))]
		idx := uint16(i + 1)
		if i == count-1 {
			idx = ContinuationLast
		}
		b := f.headerImage(CommonHeaderLength + 2 + len(part) + crcLength)
		b = binary.BigEndian.AppendUint16(b, idx)
		b = append(b, part...)
		images = append(images, appendCRC(b))
	}
	return images, nil
}

// ReassembleConfigurationFrame3 joins CFG-3 fragments, in order, into one configuration frame
func ReassembleConfigurationFrame3(fragments [][]byte) (*ConfigurationFrame, error) {
	if len(fragments) == 0 {
		return nil, fmt.Errorf("no fragments: %w", ErrInvalidParameter)
	}

	var first *CommonFrameHeader
	var payload []byte
	for i, frag := range fragments {
		h, err := parseFrameHeader(frag, FrameTypeCfg3)
		if err != nil {
			return nil, phasor.NewParseError(phasor.ConfigurationFrame, 0, err)
		}
		if err := need(frag, CommonHeaderLength, 2); err != nil {
			return nil, phasor.NewParseError(phasor.ConfigurationFrame, CommonHeaderLength, err)
		}
		idx := binary.BigEndian.Uint16(frag[CommonHeaderLength:])
		want := uint16(i + 1)
		if i == len(fragments)-1 {
			want = ContinuationLast
		}
		if idx != want {
			return nil, phasor.NewParseError(phasor.ConfigurationFrame, CommonHeaderLength,
				fmt.Errorf("fragment %d carries CONT_IDX %d, want %d: %w", i+1, idx, want, ErrInvalidFrame))
		}
		if first == nil {
			first = h
		} else if h.IDCode != first.IDCode {
			return nil, phasor.NewParseError(phasor.ConfigurationFrame, 4,
				fmt.Errorf("fragment from ID code %d in stream of %d: %w", h.IDCode, first.IDCode, ErrInvalidFrame))
		}
		payload = append(payload, frag[CommonHeaderLength+2:int(h.FrameLength)-crcLength]...)
	}

	// Parse the joined payload as if it had arrived in a single frame
	body := first.headerImage(CommonHeaderLength + 2 + len(payload))
	body = binary.BigEndian.AppendUint16(body, ContinuationNone)
	body = append(body, payload...)

	f := &ConfigurationFrame{CommonFrameHeader: *first}
	if err := f.parseBody(body, CommonHeaderLength+2, newConfigurationCell3FromImage); err != nil {
		f.parseState = phasor.StateParseError
		return nil, phasor.NewParseError(phasor.ConfigurationFrame, CommonHeaderLength, err)
	}
	f.FrameLength = 0
	f.parseState = phasor.StateSerializable
	return f, nil
}

// AsType returns a deep copy of the frame re-typed as another configuration frame type,
// e.g. the CFG-1 form of a CFG-2 frame. Labels are cut to 16 characters and CFG-3 only
// scale factors are dropped when leaving CFG-3.
func (f *ConfigurationFrame) AsType(frameType FrameType) (*ConfigurationFrame, error) {
	if !frameType.IsConfiguration() {
		return nil, fmt.Errorf("%s is not a configuration frame type: %w", frameType, ErrInvalidParameter)
	}
	out := &ConfigurationFrame{
		CommonFrameHeader: f.CommonFrameHeader,
		FrameRate:         f.FrameRate,
		cells:             make([]*ConfigurationCell, 0, len(f.cells)),
	}
	out.FrameType = frameType
	out.FrameLength = 0
	out.State = nil
	out.parseState = phasor.StateSerializable
	if frameType == FrameTypeCfg3 {
		out.Version = Version2011
	} else if f.FrameType == FrameTypeCfg3 {
		out.Version = Version2005
	}

	cfg3 := frameType == FrameTypeCfg3
	for _, c := range f.cells {
		out.cells = append(out.cells, c.clone(out, cfg3))
	}
	return out, nil
}

func (f *ConfigurationFrame) String() string {
	return fmt.Sprintf("%s frame %d: %d cells at %d frames/s", f.FrameType, f.IDCode, len(f.cells), f.FrameRate)
}
