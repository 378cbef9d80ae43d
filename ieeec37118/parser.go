package ieeec37118

import (
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	phasor "github.com/JSchlarb/phasorprotocols"
)

// FrameParser is a parsing session for one device or concentrator stream. It holds the
// configuration frame used to interpret data frames, reassembles CFG-3 fragments and
// reports every frame through callbacks.
//
// Parse and Write may be called from multiple goroutines. Callbacks, the logger and the
// metrics recorder must be set before parsing starts. Callbacks run on the calling goroutine
// without any parser lock held, so they may feed the parser again.
type FrameParser struct {
	// AcceptCommandFrames reports command frames through OnCommandFrame. When false, which
	// suits a client reading from a device, command frames are only counted.
	AcceptCommandFrames bool

	OnConfigurationFrame   func(*ConfigurationFrame)
	OnDataFrame            func(*DataFrame)
	OnHeaderFrame          func(*HeaderFrame)
	OnCommandFrame         func(*CommandFrame)
	OnParsingError         func(error)
	OnConfigurationChanged func()

	configMu      sync.RWMutex
	configuration *ConfigurationFrame

	bufferMu sync.Mutex
	buffer   []byte

	fragmentMu sync.Mutex
	fragments  [][]byte

	unexpectedCommands atomic.Uint64
	changeReported     atomic.Bool

	loggerOnce sync.Once
	logger     *log.Logger
	metrics    phasor.MetricsRecorder
}

// NewFrameParser creates a parser without a configuration
func NewFrameParser() *FrameParser {
	return &FrameParser{}
}

// SetLogger sets the logger for the parser
func (p *FrameParser) SetLogger(logger *log.Logger) {
	p.logger = logger
}

// SetMetrics sets the metrics recorder for the parser
func (p *FrameParser) SetMetrics(m phasor.MetricsRecorder) {
	p.metrics = m
}

// log returns the logger or creates a default one
func (p *FrameParser) log() *log.Logger {
	p.loggerOnce.Do(func() {
		if p.logger == nil {
			p.logger = log.New()
		}
	})
	return p.logger
}

func (p *FrameParser) recorder() phasor.MetricsRecorder {
	if p.metrics == nil {
		return phasor.NopMetrics{}
	}
	return p.metrics
}

// ConfigurationFrame returns the configuration currently used for data frames
func (p *FrameParser) ConfigurationFrame() *ConfigurationFrame {
	p.configMu.RLock()
	defer p.configMu.RUnlock()
	return p.configuration
}

// SetConfigurationFrame replaces the configuration used for data frames, e.g. one loaded from disk
func (p *FrameParser) SetConfigurationFrame(cfg *ConfigurationFrame) {
	p.configMu.Lock()
	p.configuration = cfg
	p.configMu.Unlock()
	p.changeReported.Store(false)
}

// UnexpectedCommandFrames returns how many command frames were dropped
func (p *FrameParser) UnexpectedCommandFrames() uint64 {
	return p.unexpectedCommands.Load()
}

// Reset drops buffered stream bytes and pending CFG-3 fragments. The configuration is kept.
func (p *FrameParser) Reset() {
	p.bufferMu.Lock()
	p.buffer = nil
	p.bufferMu.Unlock()

	p.fragmentMu.Lock()
	p.fragments = nil
	p.fragmentMu.Unlock()
}

// Parse parses one complete frame at the start of buf and dispatches it. A CFG-3 fragment
// that does not complete its configuration returns nil, nil.
func (p *FrameParser) Parse(buf []byte) (phasor.ChannelFrame, error) {
	p.recorder().RecordBytesReceived(len(buf))

	h, err := ParseCommonFrameHeader(buf)
	if err != nil {
		return nil, p.reject(phasor.NewParseError(phasor.UndeterminedFrame, 0, err), len(buf))
	}
	if err := verifyCRC(buf, int(h.FrameLength)); err != nil {
		return nil, p.reject(phasor.NewParseError(h.FundamentalType(), int(h.FrameLength)-crcLength, err), int(h.FrameLength))
	}

	if h.FrameType == FrameTypeCfg3 && h.FrameLength >= MinimumFrameLength+2 {
		if idx := binary.BigEndian.Uint16(buf[CommonHeaderLength:]); idx != ContinuationNone {
			return p.fragment(buf[:h.FrameLength], idx)
		}
	}

	frame, err := parseVerified(h, buf, p.ConfigurationFrame())
	if err != nil {
		return nil, p.reject(err, int(h.FrameLength))
	}
	p.dispatch(frame, int(h.FrameLength))
	return frame, nil
}

// fragment collects one CFG-3 continuation frame and parses the configuration once the last one arrives
func (p *FrameParser) fragment(frame []byte, idx uint16) (phasor.ChannelFrame, error) {
	p.fragmentMu.Lock()
	if idx == 1 {
		p.fragments = p.fragments[:0]
	}
	p.fragments = append(p.fragments, append([]byte(nil), frame...))
	if idx != ContinuationLast {
		p.fragmentMu.Unlock()
		p.log().WithFields(log.Fields{
			"cont_idx": idx,
			"length":   len(frame),
		}).Debug("Buffered CFG-3 fragment")
		return nil, nil
	}
	fragments := p.fragments
	p.fragments = nil
	p.fragmentMu.Unlock()

	cfg, err := ReassembleConfigurationFrame3(fragments)
	if err != nil {
		return nil, p.reject(err, len(frame))
	}
	size := 0
	for _, f := range fragments {
		size += len(f)
	}
	p.dispatch(cfg, size)
	return cfg, nil
}

// Write feeds stream bytes to the parser. Complete frames are parsed as they become available;
// after a checksum failure the parser resynchronizes on the next sync byte. Write never fails.
func (p *FrameParser) Write(data []byte) (int, error) {
	p.bufferMu.Lock()
	p.buffer = append(p.buffer, data...)
	frames := p.extractFrames()
	p.bufferMu.Unlock()

	for _, f := range frames {
		if f.err != nil {
			_ = p.reject(f.err, f.length)
			continue
		}
		_, _ = p.Parse(f.image)
	}
	return len(data), nil
}

// extracted is a frame cut from the stream buffer, or the reason a candidate was skipped
type extracted struct {
	image  []byte
	err    error
	length int
}

// extractFrames cuts every complete frame from the buffer, in stream order. Candidates
// with a bad checksum are returned with their error and the scan resumes one byte later.
func (p *FrameParser) extractFrames() []extracted {
	var frames []extracted
	buf := p.buffer

	for len(buf) > 0 {
		if buf[0] != SyncByte {
			next := indexSync(buf)
			if next < 0 {
				buf = buf[:0]
				break
			}
			buf = buf[next:]
			continue
		}
		if len(buf) < 4 {
			break
		}
		length := int(binary.BigEndian.Uint16(buf[2:4]))
		if (buf[1]>>4)&0x07 > byte(FrameTypeCfg3) || length < MinimumFrameLength {
			buf = buf[1:]
			continue
		}
		if len(buf) < length {
			break
		}
		if err := verifyCRC(buf, length); err != nil {
			h, _ := ParseCommonFrameHeader(buf)
			ft := phasor.UndeterminedFrame
			if h != nil {
				ft = h.FundamentalType()
			}
			frames = append(frames, extracted{err: phasor.NewParseError(ft, length-crcLength, err), length: length})
			buf = buf[1:]
			continue
		}
		frames = append(frames, extracted{image: append([]byte(nil), buf[:length]...), length: length})
		buf = buf[length:]
	}

	// Keep the unconsumed tail in a fresh slice so the backing array does not grow forever
	p.buffer = append([]byte(nil), buf...)
	return frames
}

func indexSync(buf []byte) int {
	for i, b := range buf {
		if b == SyncByte {
			return i
		}
	}
	return -1
}

// dispatch updates session state for a parsed frame and raises its callback
func (p *FrameParser) dispatch(frame phasor.ChannelFrame, size int) {
	switch f := frame.(type) {
	case *ConfigurationFrame:
		p.recorder().RecordFrameParsed(f.FrameType.String(), size)
		if f.FrameType != FrameTypeCfg1 || p.ConfigurationFrame() == nil {
			p.SetConfigurationFrame(f)
		}
		p.log().WithFields(log.Fields{
			"frame_type": f.FrameType.String(),
			"id_code":    f.IDCode,
			"num_pmu":    len(f.cells),
			"data_rate":  f.FrameRate,
		}).Info("Received configuration frame")
		if p.OnConfigurationFrame != nil {
			p.OnConfigurationFrame(f)
		}

	case *DataFrame:
		p.recorder().RecordFrameParsed(f.FrameType.String(), size)
		p.checkConfigurationChange(f)
		if p.OnDataFrame != nil {
			p.OnDataFrame(f)
		}

	case *HeaderFrame:
		p.recorder().RecordFrameParsed(f.FrameType.String(), size)
		p.log().WithField("length", len(f.Data)).Debug("Received header frame")
		if p.OnHeaderFrame != nil {
			p.OnHeaderFrame(f)
		}

	case *CommandFrame:
		p.recorder().RecordFrameParsed(f.FrameType.String(), size)
		if !p.AcceptCommandFrames {
			p.unexpectedCommands.Add(1)
			p.log().WithFields(log.Fields{
				"command": f.Command.String(),
				"id_code": f.IDCode,
			}).Debug("Ignored unexpected command frame")
			return
		}
		p.recorder().RecordCommand(f.Command.String())
		if p.OnCommandFrame != nil {
			p.OnCommandFrame(f)
		}
	}
}

// checkConfigurationChange raises OnConfigurationChanged once while any cell reports a pending change
func (p *FrameParser) checkConfigurationChange(f *DataFrame) {
	changed := false
	for _, c := range f.cells {
		if c.ConfigurationChanged() {
			changed = true
			break
		}
	}
	if !changed {
		p.changeReported.Store(false)
		return
	}
	if p.changeReported.CompareAndSwap(false, true) {
		p.recorder().RecordConfigurationChange()
		p.log().WithField("id_code", f.IDCode).Info("Device reported a configuration change")
		if p.OnConfigurationChanged != nil {
			p.OnConfigurationChanged()
		}
	}
}

// reject logs and reports a frame that could not be parsed and returns err
func (p *FrameParser) reject(err error, length int) error {
	frameType := phasor.UndeterminedFrame
	var pe *phasor.ParseError
	if errors.As(err, &pe) {
		frameType = pe.FrameType
	}
	p.recorder().RecordFrameError(errorKind(err))
	p.log().WithFields(log.Fields{
		"frame_type": frameType.String(),
		"error":      err,
		"length":     length,
	}).Warn("Rejected frame")
	if p.OnParsingError != nil {
		p.OnParsingError(err)
	}
	return err
}

// errorKind maps an error onto the label used for error metrics
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrCRCFailed):
		return "crc"
	case errors.Is(err, ErrNoConfiguration):
		return "no_configuration"
	case errors.Is(err, ErrSchemaBinding):
		return "schema_binding"
	case errors.Is(err, ErrCellCountMismatch):
		return "cell_count"
	case errors.Is(err, ErrInvalidSize):
		return "size"
	case errors.Is(err, ErrInvalidFrame):
		return "invalid_frame"
	default:
		return "parse_error"
	}
}
