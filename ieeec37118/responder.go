package ieeec37118

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	phasor "github.com/JSchlarb/phasorprotocols"
)

// Responder answers command frames on behalf of a device or concentrator. It holds the CFG-1,
// CFG-2 and CFG-3 forms of one configuration and the header frame, and tracks whether the
// requesting side enabled real-time data.
type Responder struct {
	// IDCode is the ID code of the device; commands carrying another ID code are rejected
	// when ValidateIDCode is set.
	IDCode         uint16
	ValidateIDCode bool
	// MaximumFrameLength bounds CFG-3 images; larger configurations are fragmented.
	MaximumFrameLength int

	mu          sync.Mutex
	config1     *ConfigurationFrame
	config2     *ConfigurationFrame
	config3     *ConfigurationFrame
	header      *HeaderFrame
	dataEnabled bool

	loggerOnce sync.Once
	logger     *log.Logger
	metrics    phasor.MetricsRecorder
}

// NewResponder creates a responder for cfg, which may be any configuration frame type.
// A nil header answers header requests with an empty header frame.
func NewResponder(cfg *ConfigurationFrame, header *HeaderFrame) (*Responder, error) {
	if cfg == nil {
		return nil, ErrNoConfiguration
	}
	r := &Responder{
		IDCode:             cfg.IDCode,
		MaximumFrameLength: MaximumFrameLength,
		header:             header,
	}
	if err := r.SetConfigurationFrame(cfg); err != nil {
		return nil, err
	}
	if r.header == nil {
		r.header = NewHeaderFrameWithData(cfg.IDCode, "")
	}
	return r, nil
}

// SetLogger sets the logger for the responder
func (r *Responder) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// SetMetrics sets the metrics recorder for the responder
func (r *Responder) SetMetrics(m phasor.MetricsRecorder) {
	r.metrics = m
}

// log returns the logger or creates a default one
func (r *Responder) log() *log.Logger {
	r.loggerOnce.Do(func() {
		if r.logger == nil {
			r.logger = log.New()
		}
	})
	return r.logger
}

func (r *Responder) recorder() phasor.MetricsRecorder {
	if r.metrics == nil {
		return phasor.NopMetrics{}
	}
	return r.metrics
}

// SetConfigurationFrame derives the three configuration frame types from cfg. The given frame
// is used as is for its own type.
func (r *Responder) SetConfigurationFrame(cfg *ConfigurationFrame) error {
	if cfg == nil {
		return ErrNoConfiguration
	}
	frames := make(map[FrameType]*ConfigurationFrame, 3)
	for _, ft := range []FrameType{FrameTypeCfg1, FrameTypeCfg2, FrameTypeCfg3} {
		if ft == cfg.FrameType {
			frames[ft] = cfg
			continue
		}
		f, err := cfg.AsType(ft)
		if err != nil {
			return fmt.Errorf("derive %s: %w", ft, err)
		}
		frames[ft] = f
	}

	r.mu.Lock()
	r.config1, r.config2, r.config3 = frames[FrameTypeCfg1], frames[FrameTypeCfg2], frames[FrameTypeCfg3]
	r.mu.Unlock()
	return nil
}

// ConfigurationFrame returns the configuration served for the given frame type
func (r *Responder) ConfigurationFrame(ft FrameType) *ConfigurationFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch ft {
	case FrameTypeCfg1:
		return r.config1
	case FrameTypeCfg2:
		return r.config2
	case FrameTypeCfg3:
		return r.config3
	default:
		return nil
	}
}

// DataEnabled reports whether real-time data was turned on by a START command
func (r *Responder) DataEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dataEnabled
}

// HandleCommandImage parses a command frame and answers it
func (r *Responder) HandleCommandImage(buf []byte) ([][]byte, error) {
	cmd, err := ParseCommandFrame(buf)
	if err != nil {
		r.recorder().RecordFrameError(errorKind(err))
		r.log().WithField("error", err).Warn("Rejected command frame")
		return nil, err
	}
	return r.HandleCommand(cmd)
}

// HandleCommand processes a command frame and returns the frames to send back, if any.
// Configuration and header frames are time stamped with the current time.
func (r *Responder) HandleCommand(cmd *CommandFrame) ([][]byte, error) {
	if cmd == nil {
		return nil, fmt.Errorf("nil command frame: %w", ErrInvalidParameter)
	}
	cmdName := cmd.Command.String()
	r.recorder().RecordCommand(cmdName)

	if r.ValidateIDCode && cmd.IDCode != r.IDCode {
		r.recorder().RecordFrameError("id_code")
		r.log().WithFields(log.Fields{
			"command": cmdName,
			"cmd_id":  cmd.IDCode,
			"id_code": r.IDCode,
		}).Warn("Command addressed to another device")
		return nil, fmt.Errorf("command for ID code %d, device is %d: %w", cmd.IDCode, r.IDCode, ErrInvalidParameter)
	}

	r.log().WithFields(log.Fields{
		"command": cmdName,
		"cmd_id":  cmd.IDCode,
	}).Debug("Received command")

	r.mu.Lock()
	defer r.mu.Unlock()

	var response [][]byte
	var err error

	switch cmd.Command {
	case CmdStart:
		r.dataEnabled = true
		r.log().Info("Started data transmission")

	case CmdStop:
		r.dataEnabled = false
		r.log().Info("Stopped data transmission")

	case CmdHeader:
		r.header.SetTime(nil, nil)
		response, err = single(r.header.BinaryImage())

	case CmdCfg1:
		r.config1.SetTime(nil, nil)
		response, err = single(r.config1.BinaryImage())

	case CmdCfg2:
		r.config2.SetTime(nil, nil)
		response, err = single(r.config2.BinaryImage())

	case CmdCfg3:
		r.config3.SetTime(nil, nil)
		response, err = r.config3.BinaryImages(r.MaximumFrameLength)

	case CmdExt:
		r.log().WithField("length", len(cmd.ExtendedData)).Debug("Received extended frame")

	default:
		r.log().WithField("command", cmdName).Warn("Unsupported command")
	}

	if err != nil {
		r.recorder().RecordFrameError("pack_error")
		r.log().WithFields(log.Fields{
			"command": cmdName,
			"error":   err,
		}).Error("Error packing response")
		return nil, err
	}
	return response, nil
}

func single(b []byte, err error) ([][]byte, error) {
	if err != nil {
		return nil, err
	}
	return [][]byte{b}, nil
}
