package ieeec37118

import (
	"fmt"

	phasor "github.com/JSchlarb/phasorprotocols"
)

// GetFrameType extracts the frame type from the first two bytes of a frame
func GetFrameType(data []byte) (FrameType, error) {
	if len(data) < 2 {
		return 0, ErrInvalidSize
	}

	if data[0] != SyncByte {
		return 0, ErrInvalidFrame
	}

	frameType := FrameType((data[1] >> 4) & 0x07)
	if frameType > FrameTypeCfg3 {
		return 0, fmt.Errorf("frame type %d: %w", frameType, ErrInvalidFrame)
	}
	return frameType, nil
}

// ParseFrame parses any frame type. Data frames are interpreted with cfg, which may be nil for
// every other frame type.
func ParseFrame(buf []byte, cfg *ConfigurationFrame) (phasor.ChannelFrame, error) {
	h, err := ParseCommonFrameHeader(buf)
	if err != nil {
		return nil, phasor.NewParseError(phasor.UndeterminedFrame, 0, err)
	}
	if err := verifyCRC(buf, int(h.FrameLength)); err != nil {
		return nil, phasor.NewParseError(h.FundamentalType(), int(h.FrameLength)-crcLength, err)
	}
	return parseVerified(h, buf, cfg)
}

// parseVerified dispatches a frame whose header and checksum were already validated
func parseVerified(h *CommonFrameHeader, buf []byte, cfg *ConfigurationFrame) (phasor.ChannelFrame, error) {
	switch h.FrameType {
	case FrameTypeData:
		if cfg == nil {
			return nil, phasor.NewParseError(phasor.DataFrame, 0, ErrNoConfiguration)
		}
		h.State = &ParsingState{ConfigurationFrame: cfg, CellCount: len(cfg.cells)}
		df, err := parseDataFrame(h, buf)
		if err != nil {
			return nil, err
		}
		return df, nil

	case FrameTypeHeader:
		return parseHeaderFrame(h, buf), nil

	case FrameTypeCfg1, FrameTypeCfg2, FrameTypeCfg3:
		cf, err := parseConfigurationFrame(h, buf)
		if err != nil {
			return nil, err
		}
		return cf, nil

	case FrameTypeCmd:
		cmd, err := parseCommandFrame(h, buf)
		if err != nil {
			return nil, err
		}
		return cmd, nil

	default:
		return nil, phasor.NewParseError(phasor.UndeterminedFrame, 1, ErrInvalidFrame)
	}
}
