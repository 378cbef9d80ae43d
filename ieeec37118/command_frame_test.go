package ieeec37118

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	phasor "github.com/JSchlarb/phasorprotocols"
)

func TestCommandFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		idCode   uint16
		cmd      DeviceCommand
		version  byte
		extended []byte
		length   int
	}{
		{name: "zero command", idCode: 0, cmd: 0, version: 0, length: 18},
		{name: "start", idCode: 7, cmd: CmdStart, version: Version2005, length: 18},
		{name: "cfg3 request", idCode: 0xFFFF, cmd: CmdCfg3, version: Version2011, length: 18},
		{name: "extended frame", idCode: 7, cmd: CmdExt, version: Version2011, extended: []byte{0xDE, 0xAD, 0xBE, 0xEF}, length: 22},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCommandFrame(tt.idCode, tt.cmd, tt.version)
			c.ExtendedData = tt.extended
			assert.Equal(t, phasor.StateSerializable, c.ParseState())
			assert.NotZero(t, c.SOC)

			image := mustImage(t, c)
			require.Len(t, image, tt.length)
			assert.Equal(t, byte(0x40)|tt.version, image[1])

			parsed, err := ParseCommandFrame(image)
			require.NoError(t, err)
			assert.Equal(t, tt.idCode, parsed.IDCode)
			assert.Equal(t, tt.cmd, parsed.Command)
			assert.Equal(t, tt.version, parsed.Version)
			assert.Equal(t, c.SOC, parsed.SOC)
			assert.Equal(t, c.FracSec, parsed.FracSec)
			assert.Equal(t, tt.extended, parsed.ExtendedData)
			assert.Equal(t, image, mustImage(t, parsed))
		})
	}
}

func TestCommandFrameErrors(t *testing.T) {
	c := NewCommandFrame(1, CmdExt, Version2005)
	c.ExtendedData = make([]byte, MaximumExtendedDataLength)
	image, err := c.BinaryImage()
	require.NoError(t, err)
	assert.Len(t, image, MaximumFrameLength)

	c.ExtendedData = make([]byte, MaximumExtendedDataLength+1)
	_, err = c.BinaryImage()
	assert.ErrorIs(t, err, ErrInvalidSize)

	// A frame that ends before CMD
	bare := appendCRC([]byte{0xAA, 0x41, 0x00, 0x10, 0x00, 0x01, 0, 0, 0, 0, 0, 0, 0, 0})
	_, err = ParseCommandFrame(bare)
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = ParseCommandFrame(mustImage(t, NewHeaderFrame()))
	assert.ErrorIs(t, err, ErrInvalidFrame)

	assert.Equal(t, "command CONFIG2 to 3", NewCommandFrame(3, CmdCfg2, Version2005).String())
}

func TestHeaderFrame(t *testing.T) {
	h := NewHeaderFrame()
	assert.Equal(t, uint32(100000), h.TimeBase)
	assert.Equal(t, Version2005, h.Version)
	assert.Equal(t, uint16(0), h.IDCode)
	assert.Equal(t, MinimumFrameLength, h.BinaryLength())

	tests := []struct {
		name string
		data string
	}{
		{name: "empty", data: ""},
		{name: "text", data: "PMU 7, firmware 2.1, GPS clock"},
		{name: "large", data: strings.Repeat("x", 4096)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hf := NewHeaderFrameWithData(9, tt.data)
			hf.SOC = testSOC
			image := mustImage(t, hf)
			require.Len(t, image, MinimumFrameLength+len(tt.data))

			parsed, err := ParseHeaderFrame(image)
			require.NoError(t, err)
			assert.Equal(t, tt.data, parsed.Data)
			assert.Equal(t, uint16(9), parsed.IDCode)
			assert.Equal(t, uint32(testSOC), parsed.SOC)
			assert.Equal(t, image, mustImage(t, parsed))
		})
	}

	tooLarge := NewHeaderFrameWithData(1, strings.Repeat("x", MaximumFrameLength))
	_, err := tooLarge.BinaryImage()
	assert.ErrorIs(t, err, ErrInvalidSize)
}
