package ieeec37118

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
)

// padLabel pads or truncates a label to n bytes
func padLabel(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}

// trimLabel strips the space and NUL padding used on the wire
func trimLabel(b []byte) string {
	return strings.TrimRight(string(b), " \x00")
}

// validateLabel checks a label against a length limit and the printable ASCII range
func validateLabel(s string, limit int) (string, error) {
	s = strings.TrimRight(s, " \x00")
	if len(s) > limit {
		return "", fmt.Errorf("label %q exceeds %d characters: %w", s, limit, ErrOutOfRange)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7E {
			return "", fmt.Errorf("label %q contains non-printable byte 0x%02X: %w", s, s[i], ErrInvalidParameter)
		}
	}
	return s, nil
}

// writeBinary writes multiple values to a writer using binary.BigEndian
func writeBinary(w io.Writer, values ...interface{}) error {
	for _, v := range values {
		if err := binary.Write(w, binary.BigEndian, v); err != nil {
			return err
		}
	}
	return nil
}

// need returns ErrInvalidSize when buf does not hold n bytes from start
func need(buf []byte, start, n int) error {
	if start < 0 || n < 0 || start+n > len(buf) {
		return fmt.Errorf("need %d bytes at offset %d, have %d: %w", n, start, len(buf), ErrInvalidSize)
	}
	return nil
}

func uint24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func int24(b []byte) int32 {
	v := int32(uint24(b))
	if v&0x800000 != 0 {
		v -= 1 << 24
	}
	return v
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

func float32At(b []byte) float64 {
	return float64(math.Float32frombits(binary.BigEndian.Uint32(b)))
}

func putFloat32(b []byte, v float64) {
	binary.BigEndian.PutUint32(b, math.Float32bits(float32(v)))
}

// toInt16 rounds and saturates v to the int16 range
func toInt16(v float64) int16 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt16:
		return math.MaxInt16
	case v <= math.MinInt16:
		return math.MinInt16
	}
	return int16(math.Round(v))
}

// toUint16 rounds and saturates v to the uint16 range
func toUint16(v float64) uint16 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= math.MaxUint16:
		return math.MaxUint16
	}
	return uint16(math.Round(v))
}
