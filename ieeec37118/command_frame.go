package ieeec37118

import (
	"encoding/binary"
	"fmt"

	phasor "github.com/JSchlarb/phasorprotocols"
)

// commandLength is the width of CMD
const commandLength = 2

// MaximumExtendedDataLength is the largest extended frame a command can carry
const MaximumExtendedDataLength = MaximumFrameLength - CommonHeaderLength - commandLength - crcLength

var _ phasor.ChannelFrame = (*CommandFrame)(nil)

// CommandFrame represents a command frame
type CommandFrame struct {
	CommonFrameHeader
	Command      DeviceCommand
	ExtendedData []byte
}

// NewCommandFrame creates a command frame addressed to idCode, time stamped now
func NewCommandFrame(idCode uint16, cmd DeviceCommand, version byte) *CommandFrame {
	c := &CommandFrame{
		CommonFrameHeader: newCommonFrameHeader(FrameTypeCmd, idCode),
		Command:           cmd,
	}
	c.Version = version & 0x0F
	c.SetTime(nil, nil)
	c.parseState = phasor.StateSerializable
	return c
}

// ParseCommandFrame parses a command frame
func ParseCommandFrame(buf []byte) (*CommandFrame, error) {
	h, err := parseFrameHeader(buf, FrameTypeCmd)
	if err != nil {
		return nil, phasor.NewParseError(phasor.CommandFrame, 0, err)
	}
	return parseCommandFrame(h, buf)
}

func parseCommandFrame(h *CommonFrameHeader, buf []byte) (*CommandFrame, error) {
	c := &CommandFrame{CommonFrameHeader: *h}
	body := buf[:int(h.FrameLength)-crcLength]
	if err := need(body, CommonHeaderLength, commandLength); err != nil {
		c.parseState = phasor.StateParseError
		return nil, phasor.NewParseError(phasor.CommandFrame, CommonHeaderLength, err)
	}
	c.Command = DeviceCommand(binary.BigEndian.Uint16(body[CommonHeaderLength:]))
	if extra := body[CommonHeaderLength+commandLength:]; len(extra) > 0 {
		c.ExtendedData = append([]byte(nil), extra...)
	}
	c.parseState = phasor.StateSerializable
	return c, nil
}

// BinaryLength returns the width of the complete frame
func (c *CommandFrame) BinaryLength() int {
	return CommonHeaderLength + commandLength + len(c.ExtendedData) + crcLength
}

// BinaryImage converts the command frame to bytes
func (c *CommandFrame) BinaryImage() ([]byte, error) {
	if len(c.ExtendedData) > MaximumExtendedDataLength {
		return nil, fmt.Errorf("extended data of %d bytes: %w", len(c.ExtendedData), ErrInvalidSize)
	}
	length := c.BinaryLength()
	b := c.headerImage(length)
	b = binary.BigEndian.AppendUint16(b, uint16(c.Command))
	b = append(b, c.ExtendedData...)
	return appendCRC(b), nil
}

func (c *CommandFrame) String() string {
	return fmt.Sprintf("command %s to %d", c.Command, c.IDCode)
}
