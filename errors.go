package phasorprotocols

import (
	"errors"
	"fmt"
)

// Structural errors reject a single frame
var (
	ErrInvalidFrame      = errors.New("invalid frame")
	ErrInvalidSize       = errors.New("invalid size")
	ErrCellCountMismatch = errors.New("cell count does not match frame length")
)

// ErrCRCFailed is returned when a frame checksum does not match its content
var ErrCRCFailed = errors.New("CRC check failed")

// Schema binding errors
var (
	ErrNoConfiguration = errors.New("no configuration frame available")
	ErrSchemaBinding   = errors.New("schema binding violated")
)

// Parameter errors are raised at the point of construction or assignment
var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrOutOfRange       = errors.New("value out of range")
)

// ErrNotImpl marks protocol features that are recognized but not supported
var ErrNotImpl = errors.New("function not implemented")

// ParseError describes why a frame was rejected
type ParseError struct {
	FrameType FundamentalFrameType
	Offset    int
	Err       error
}

// Error implements error
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s frame at offset %d: %v", e.FrameType, e.Offset, e.Err)
}

// Unwrap returns the underlying sentinel error
func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError wraps err with the frame type and offset it was detected at
func NewParseError(frameType FundamentalFrameType, offset int, err error) error {
	if err == nil {
		return nil
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return err
	}
	return &ParseError{FrameType: frameType, Offset: offset, Err: err}
}

// IsRecoverable reports whether err only rejects the frame it was raised for.
// Every parse failure is recoverable; parameter errors raised while composing frames are not.
func IsRecoverable(err error) bool {
	var pe *ParseError
	if errors.As(err, &pe) {
		return true
	}
	return errors.Is(err, ErrInvalidFrame) ||
		errors.Is(err, ErrInvalidSize) ||
		errors.Is(err, ErrCellCountMismatch) ||
		errors.Is(err, ErrCRCFailed) ||
		errors.Is(err, ErrNoConfiguration)
}
