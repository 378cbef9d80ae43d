package ieeec37118

import (
	"encoding/binary"
	"fmt"

	"github.com/sigurn/crc16"
)

var ieeeC37118Params = crc16.Params{
	Poly:   0x1021,
	Init:   0xFFFF,
	RefIn:  false,
	RefOut: false,
	XorOut: 0x0000,
	Name:   "CRC-16/IEEE-C37.118",
}

var crcTable = crc16.MakeTable(ieeeC37118Params)

// CalcCRC calculates CRC-CCITT for the given data
func CalcCRC(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// appendCRC appends the big-endian checksum of frame to frame
func appendCRC(frame []byte) []byte {
	return binary.BigEndian.AppendUint16(frame, CalcCRC(frame))
}

// verifyCRC checks the trailing checksum of a frame of frameLength bytes
func verifyCRC(buf []byte, frameLength int) error {
	if err := need(buf, 0, frameLength); err != nil {
		return err
	}
	if frameLength < MinimumFrameLength {
		return fmt.Errorf("frame length %d: %w", frameLength, ErrInvalidSize)
	}
	want := binary.BigEndian.Uint16(buf[frameLength-crcLength : frameLength])
	if got := CalcCRC(buf[:frameLength-crcLength]); got != want {
		return fmt.Errorf("checksum 0x%04X, frame carries 0x%04X: %w", got, want, ErrCRCFailed)
	}
	return nil
}
