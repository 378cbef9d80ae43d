package ieeec37118

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	phasor "github.com/JSchlarb/phasorprotocols"
)

func TestCalcCRC(t *testing.T) {
	// CRC-CCITT (0xFFFF) check value
	assert.Equal(t, uint16(0x29B1), CalcCRC([]byte("123456789")))

	frame := appendCRC([]byte{0xAA, 0x41, 0x00, 0x12, 0x00, 0x07, 0, 0, 0, 0, 0, 0, 0, 0, 0x00, 0x05})
	require.Len(t, frame, MinimumFrameLength+2)
	assert.NoError(t, verifyCRC(frame, len(frame)))
	assert.Equal(t, frame, appendCRC(append([]byte(nil), frame[:len(frame)-2]...)))

	frame[len(frame)-1] ^= 0x01
	assert.ErrorIs(t, verifyCRC(frame, len(frame)), ErrCRCFailed)

	short := appendCRC([]byte{0xAA, 0x41, 0x00, 0x08, 0x00, 0x07})
	assert.ErrorIs(t, verifyCRC(short, len(short)), ErrInvalidSize)
}

func TestParseCommonFrameHeader(t *testing.T) {
	valid := mustImage(t, NewCommandFrame(7, CmdStart, Version2005))

	tests := []struct {
		name    string
		mutate  func([]byte) []byte
		wantErr error
	}{
		{
			name:   "valid command frame",
			mutate: func(b []byte) []byte { return b },
		},
		{
			name:    "short buffer",
			mutate:  func(b []byte) []byte { return b[:10] },
			wantErr: ErrInvalidSize,
		},
		{
			name: "bad sync byte",
			mutate: func(b []byte) []byte {
				b[0] = 0x55
				return b
			},
			wantErr: ErrInvalidFrame,
		},
		{
			name: "reserved frame type",
			mutate: func(b []byte) []byte {
				b[1] = 0x71
				return b
			},
			wantErr: ErrInvalidFrame,
		},
		{
			name: "length below minimum",
			mutate: func(b []byte) []byte {
				b[2], b[3] = 0x00, 0x0F
				return b
			},
			wantErr: ErrInvalidSize,
		},
		{
			name: "length beyond buffer",
			mutate: func(b []byte) []byte {
				b[2], b[3] = 0x01, 0x00
				return b
			},
			wantErr: ErrInvalidSize,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := tt.mutate(append([]byte(nil), valid...))
			h, err := ParseCommonFrameHeader(buf)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, FrameTypeCmd, h.FrameType)
			assert.Equal(t, Version2005, h.Version)
			assert.Equal(t, uint16(18), h.FrameLength)
			assert.Equal(t, uint16(7), h.IDCode)
			assert.Equal(t, phasor.StateHeaderParsed, h.ParseState())
			assert.Equal(t, phasor.CommandFrame, h.FundamentalType())
		})
	}
}

func TestGetFrameType(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    FrameType
		wantErr bool
	}{
		{name: "data", data: []byte{0xAA, 0x01}, want: FrameTypeData},
		{name: "header", data: []byte{0xAA, 0x11}, want: FrameTypeHeader},
		{name: "cfg1", data: []byte{0xAA, 0x21}, want: FrameTypeCfg1},
		{name: "cfg2", data: []byte{0xAA, 0x31}, want: FrameTypeCfg2},
		{name: "command", data: []byte{0xAA, 0x41}, want: FrameTypeCmd},
		{name: "cfg3", data: []byte{0xAA, 0x52}, want: FrameTypeCfg3},
		{name: "too short", data: []byte{0xAA}, wantErr: true},
		{name: "no sync", data: []byte{0x00, 0x31}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GetFrameType(tt.data)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFrameTypeNames(t *testing.T) {
	for ft := FrameTypeData; ft <= FrameTypeCfg3; ft++ {
		parsed, err := ParseFrameType(ft.String())
		require.NoError(t, err)
		assert.Equal(t, ft, parsed)
	}
	_, err := ParseFrameType("cfg4")
	assert.ErrorIs(t, err, ErrInvalidParameter)

	assert.True(t, FrameTypeCfg3.IsConfiguration())
	assert.False(t, FrameTypeData.IsConfiguration())
	assert.Equal(t, phasor.ConfigurationFrame, FrameTypeCfg1.Fundamental())
}

func TestParseDeviceCommand(t *testing.T) {
	tests := []struct {
		in      string
		want    DeviceCommand
		wantErr bool
	}{
		{in: "START", want: CmdStart},
		{in: "CONFIG3", want: CmdCfg3},
		{in: "header", want: CmdHeader},
		{in: "0x0009", want: DeviceCommand(9)},
		{in: "UNKNOWN(0x00FF)", want: DeviceCommand(0xFF)},
		{in: "RESTART", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDeviceCommand(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidParameter)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			reparsed, err := ParseDeviceCommand(got.String())
			require.NoError(t, err)
			assert.Equal(t, got, reparsed)
		})
	}
}

func TestTimestamp(t *testing.T) {
	h := newCommonFrameHeader(FrameTypeData, 1)
	h.TimeBase = 1000000
	h.SetTimeQuality(TimeQualityFlags(TimeQualityWithin1us))

	ts := time.Unix(testSOC, 250*int64(time.Millisecond)).UTC()
	h.SetTimestamp(ts)

	assert.Equal(t, uint32(testSOC), h.SOC)
	assert.Equal(t, uint32(250000), h.Fraction())
	assert.Equal(t, TimeQualityWithin1us, h.TimeQuality().Indicator())
	assert.Equal(t, ts, h.Timestamp())
}

func TestSetTimeWithQuality(t *testing.T) {
	h := newCommonFrameHeader(FrameTypeData, 1)
	h.SetTimeWithQuality(testSOC, 0x123456, "-", true, false, TimeQualityClockFailure)

	q := h.TimeQuality()
	assert.Equal(t, uint32(testSOC), h.SOC)
	assert.Equal(t, uint32(0x123456), h.Fraction())
	assert.NotZero(t, q&LeapSecondDirection)
	assert.NotZero(t, q&LeapSecondOccurred)
	assert.Zero(t, q&LeapSecondPending)
	assert.Equal(t, TimeQualityClockFailure, q.Indicator())
}

func TestSetTime(t *testing.T) {
	h := newCommonFrameHeader(FrameTypeCmd, 1)
	soc, frac := uint32(42), uint32(0x0F000010)
	h.SetTime(&soc, &frac)
	assert.Equal(t, soc, h.SOC)
	assert.Equal(t, frac, h.FracSec)

	before := uint32(time.Now().Unix())
	h.SetTime(nil, nil)
	assert.GreaterOrEqual(t, h.SOC, before)
}

func TestIntegerSaturation(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		i16  int16
		u16  uint16
	}{
		{name: "zero", in: 0, i16: 0, u16: 0},
		{name: "rounds", in: 12.5, i16: 13, u16: 13},
		{name: "negative", in: -12.4, i16: -12, u16: 0},
		{name: "above range", in: 1e9, i16: math.MaxInt16, u16: math.MaxUint16},
		{name: "below range", in: -1e9, i16: math.MinInt16, u16: 0},
		{name: "nan", in: math.NaN(), i16: 0, u16: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.i16, toInt16(tt.in))
			assert.Equal(t, tt.u16, toUint16(tt.in))
		})
	}
}

func TestInt24(t *testing.T) {
	b := make([]byte, 3)
	neg := int32(-2)
	putUint24(b, uint32(neg)&0xFFFFFF)
	assert.Equal(t, int32(-2), int24(b))
	putUint24(b, 0x7FFFFF)
	assert.Equal(t, int32(0x7FFFFF), int24(b))
	assert.Equal(t, uint32(0x7FFFFF), uint24(b))
}

func TestValidateLabel(t *testing.T) {
	got, err := validateLabel("VA  \x00", MaximumLabelLength)
	require.NoError(t, err)
	assert.Equal(t, "VA", got)

	_, err = validateLabel("A VERY LONG CHANNEL NAME", MaximumLabelLength)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = validateLabel("TAB\tNAME", MaximumLabelLength)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}
