package ieeec37118

import (
	"fmt"

	phasor "github.com/JSchlarb/phasorprotocols"
)

var _ phasor.ChannelFrame = (*HeaderFrame)(nil)

// HeaderFrame represents a header frame carrying free text about the data source
type HeaderFrame struct {
	CommonFrameHeader
	Data string
}

// NewHeaderFrame creates an empty header frame
func NewHeaderFrame() *HeaderFrame {
	h := &HeaderFrame{CommonFrameHeader: newCommonFrameHeader(FrameTypeHeader, 0)}
	h.parseState = phasor.StateSerializable
	return h
}

// NewHeaderFrameWithData creates a header frame for idCode carrying info
func NewHeaderFrameWithData(idCode uint16, info string) *HeaderFrame {
	h := NewHeaderFrame()
	h.IDCode = idCode
	h.Data = info
	return h
}

// ParseHeaderFrame parses a header frame
func ParseHeaderFrame(buf []byte) (*HeaderFrame, error) {
	h, err := parseFrameHeader(buf, FrameTypeHeader)
	if err != nil {
		return nil, phasor.NewParseError(phasor.HeaderFrame, 0, err)
	}
	return parseHeaderFrame(h, buf), nil
}

func parseHeaderFrame(h *CommonFrameHeader, buf []byte) *HeaderFrame {
	hf := &HeaderFrame{CommonFrameHeader: *h}
	hf.Data = string(buf[CommonHeaderLength : int(h.FrameLength)-crcLength])
	hf.parseState = phasor.StateSerializable
	return hf
}

// BinaryLength returns the width of the complete frame
func (h *HeaderFrame) BinaryLength() int {
	return CommonHeaderLength + len(h.Data) + crcLength
}

// BinaryImage converts the header frame to bytes
func (h *HeaderFrame) BinaryImage() ([]byte, error) {
	length := h.BinaryLength()
	if length > MaximumFrameLength {
		return nil, fmt.Errorf("header frame of %d bytes: %w", length, ErrInvalidSize)
	}
	b := h.headerImage(length)
	b = append(b, h.Data...)
	return appendCRC(b), nil
}
