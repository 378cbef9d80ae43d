package ieeec37118

import (
	"encoding/binary"
	"fmt"
	"time"

	phasor "github.com/JSchlarb/phasorprotocols"
)

// TimeQualityFlags is the message time quality byte at the top of FRACSEC
type TimeQualityFlags byte

// Time quality bits
const (
	LeapSecondDirection TimeQualityFlags = 0x40
	LeapSecondOccurred  TimeQualityFlags = 0x20
	LeapSecondPending   TimeQualityFlags = 0x10
	timeQualityMask     TimeQualityFlags = 0x0F
)

// TimeQualityIndicator is the 4-bit clock quality code, the maximum time error as a power of ten
type TimeQualityIndicator byte

// Time quality indicator codes
const (
	TimeQualityLocked       TimeQualityIndicator = 0x0
	TimeQualityWithin1ns    TimeQualityIndicator = 0x1
	TimeQualityWithin10ns   TimeQualityIndicator = 0x2
	TimeQualityWithin100ns  TimeQualityIndicator = 0x3
	TimeQualityWithin1us    TimeQualityIndicator = 0x4
	TimeQualityWithin10us   TimeQualityIndicator = 0x5
	TimeQualityWithin100us  TimeQualityIndicator = 0x6
	TimeQualityWithin1ms    TimeQualityIndicator = 0x7
	TimeQualityWithin10ms   TimeQualityIndicator = 0x8
	TimeQualityWithin100ms  TimeQualityIndicator = 0x9
	TimeQualityWithin1s     TimeQualityIndicator = 0xA
	TimeQualityWithin10s    TimeQualityIndicator = 0xB
	TimeQualityClockFailure TimeQualityIndicator = 0xF
)

// Indicator returns the clock quality code
func (f TimeQualityFlags) Indicator() TimeQualityIndicator {
	return TimeQualityIndicator(f & timeQualityMask)
}

// ParsingState is per-frame state a parser stashes on the header between the header and body passes
type ParsingState struct {
	ConfigurationFrame *ConfigurationFrame
	CellCount          int
}

// CommonFrameHeader is the 14 byte header shared by every frame type
type CommonFrameHeader struct {
	FrameType   FrameType
	Version     byte
	FrameLength uint16
	IDCode      uint16
	SOC         uint32
	// FracSec is the raw FRACSEC word: time quality in the top byte, fraction in the lower 24 bits.
	FracSec  uint32
	TimeBase uint32
	State    *ParsingState

	parseState phasor.ParseState
}

func newCommonFrameHeader(frameType FrameType, idCode uint16) CommonFrameHeader {
	return CommonFrameHeader{
		FrameType: frameType,
		Version:   Version2005,
		IDCode:    idCode,
		TimeBase:  DefaultTimeBase,
	}
}

// ParseCommonFrameHeader reads the common header at the start of buf.
// The declared frame length must fit inside buf.
func ParseCommonFrameHeader(buf []byte) (*CommonFrameHeader, error) {
	if len(buf) < CommonHeaderLength {
		return nil, fmt.Errorf("header needs %d bytes, have %d: %w", CommonHeaderLength, len(buf), ErrInvalidSize)
	}
	if buf[0] != SyncByte {
		return nil, fmt.Errorf("sync byte 0x%02X: %w", buf[0], ErrInvalidFrame)
	}

	frameType := FrameType((buf[1] >> 4) & 0x07)
	if frameType > FrameTypeCfg3 {
		return nil, fmt.Errorf("frame type %d: %w", frameType, ErrInvalidFrame)
	}

	h := &CommonFrameHeader{
		FrameType:   frameType,
		Version:     buf[1] & 0x0F,
		FrameLength: binary.BigEndian.Uint16(buf[2:4]),
		IDCode:      binary.BigEndian.Uint16(buf[4:6]),
		SOC:         binary.BigEndian.Uint32(buf[6:10]),
		FracSec:     binary.BigEndian.Uint32(buf[10:14]),
		TimeBase:    DefaultTimeBase,
	}

	if h.FrameLength < MinimumFrameLength {
		return nil, fmt.Errorf("declared frame length %d: %w", h.FrameLength, ErrInvalidSize)
	}
	if int(h.FrameLength) > len(buf) {
		return nil, fmt.Errorf("declared frame length %d exceeds %d available bytes: %w", h.FrameLength, len(buf), ErrInvalidSize)
	}

	h.parseState = phasor.StateHeaderParsed
	return h, nil
}

// headerImage encodes the header with the given frame length
func (h *CommonFrameHeader) headerImage(frameLength int) []byte {
	b := make([]byte, CommonHeaderLength, frameLength)
	b[0] = SyncByte
	b[1] = byte(h.FrameType&0x07)<<4 | h.Version&0x0F
	binary.BigEndian.PutUint16(b[2:4], uint16(frameLength))
	binary.BigEndian.PutUint16(b[4:6], h.IDCode)
	binary.BigEndian.PutUint32(b[6:10], h.SOC)
	binary.BigEndian.PutUint32(b[10:14], h.FracSec)
	return b
}

// CommonHeader returns the header for in-place inspection or modification
func (h *CommonFrameHeader) CommonHeader() *CommonFrameHeader {
	return h
}

// SetCommonHeader replaces the header fields with a copy of other
func (h *CommonFrameHeader) SetCommonHeader(other *CommonFrameHeader) error {
	if other == nil {
		return fmt.Errorf("nil common header: %w", ErrInvalidParameter)
	}
	*h = *other
	return nil
}

// FundamentalType returns the dialect independent frame classification
func (h *CommonFrameHeader) FundamentalType() phasor.FundamentalFrameType {
	return h.FrameType.Fundamental()
}

// ParseState reports how far the frame got through parsing
func (h *CommonFrameHeader) ParseState() phasor.ParseState {
	return h.parseState
}

// Fraction returns the 24-bit fraction of second
func (h *CommonFrameHeader) Fraction() uint32 {
	return h.FracSec & 0x00FFFFFF
}

// TimeQuality returns the time quality byte
func (h *CommonFrameHeader) TimeQuality() TimeQualityFlags {
	return TimeQualityFlags(h.FracSec >> 24)
}

// SetTimeQuality replaces the time quality byte, leaving the fraction unchanged
func (h *CommonFrameHeader) SetTimeQuality(q TimeQualityFlags) {
	h.FracSec = uint32(q&0x7F)<<24 | h.Fraction()
}

func (h *CommonFrameHeader) timeBase() uint32 {
	return h.TimeBase & 0x00FFFFFF
}

// Timestamp converts SOC and the fraction of second into a UTC time
func (h *CommonFrameHeader) Timestamp() time.Time {
	ts := time.Unix(int64(h.SOC), 0).UTC()
	tb := h.timeBase()
	if tb == 0 {
		return ts
	}
	ns := uint64(h.Fraction()) * uint64(time.Second) / uint64(tb)
	return ts.Add(time.Duration(ns))
}

// SetTimestamp sets SOC and the fraction of second from t, keeping the time quality byte
func (h *CommonFrameHeader) SetTimestamp(t time.Time) {
	h.SOC = uint32(t.Unix())
	var fraction uint64
	if tb := h.timeBase(); tb != 0 {
		fraction = uint64(t.Nanosecond()) * uint64(tb) / uint64(time.Second)
	}
	h.FracSec = h.FracSec&0xFF000000 | uint32(fraction)&0x00FFFFFF
}

// SetTime sets SOC and FracSec, calculating them from the current time if not provided
func (h *CommonFrameHeader) SetTime(soc *uint32, fracSec *uint32) {
	h.SetTimestamp(time.Now())
	if soc != nil {
		h.SOC = *soc
	}
	if fracSec != nil {
		h.FracSec = *fracSec
	}
}

// SetTimeWithQuality sets SOC and FracSec with explicit leap second and clock quality information.
// leapDir is "-" for a deleted leap second.
func (h *CommonFrameHeader) SetTimeWithQuality(
	soc uint32, fraction uint32, leapDir string, leapOcc bool, leapPen bool, quality TimeQualityIndicator) {
	h.SOC = soc

	q := TimeQualityFlags(quality) & timeQualityMask
	if leapDir == "-" {
		q |= LeapSecondDirection
	}
	if leapOcc {
		q |= LeapSecondOccurred
	}
	if leapPen {
		q |= LeapSecondPending
	}

	h.FracSec = uint32(q)<<24 | fraction&0x00FFFFFF
}

// checkFrameType rejects headers that do not carry one of the expected frame types
func (h *CommonFrameHeader) checkFrameType(expected ...FrameType) error {
	for _, t := range expected {
		if h.FrameType == t {
			return nil
		}
	}
	return fmt.Errorf("unexpected %s frame: %w", h.FrameType, ErrInvalidFrame)
}

// parseFrameHeader reads the header, checks the type and verifies the checksum
func parseFrameHeader(buf []byte, expected ...FrameType) (*CommonFrameHeader, error) {
	h, err := ParseCommonFrameHeader(buf)
	if err != nil {
		return nil, err
	}
	if err := h.checkFrameType(expected...); err != nil {
		return nil, err
	}
	if err := verifyCRC(buf, int(h.FrameLength)); err != nil {
		return nil, err
	}
	return h, nil
}
