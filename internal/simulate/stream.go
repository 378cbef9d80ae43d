package simulate

import (
	"context"
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/JSchlarb/phasorprotocols/ieeec37118"
)

// Stream writes a configuration frame followed by generated data frames
type Stream struct {
	Configuration *ieeec37118.ConfigurationFrame
	Generator     *Generator

	// Ticks paces the data frames and supplies their timestamps. When nil, frames are
	// written back to back, time stamped one frame interval apart from Start.
	Ticks <-chan time.Time
	Start time.Time

	// Count limits the number of data frames; 0 runs until the context ends
	Count int

	OnDataFrame func(*ieeec37118.DataFrame)

	logger *log.Logger
}

// SetLogger sets the logger for the stream
func (s *Stream) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// log returns the logger or creates a default one
func (s *Stream) log() *log.Logger {
	if s.logger == nil {
		s.logger = log.New()
	}
	return s.logger
}

// Run writes the stream to w and returns the number of data frames written
func (s *Stream) Run(ctx context.Context, w io.Writer) (int, error) {
	if s.Configuration == nil {
		return 0, ieeec37118.ErrNoConfiguration
	}
	if s.Generator == nil {
		return 0, fmt.Errorf("no generator: %w", ieeec37118.ErrInvalidParameter)
	}
	interval := s.Configuration.FrameInterval()
	if s.Ticks == nil && interval <= 0 {
		return 0, fmt.Errorf("frame rate %d: %w", s.Configuration.FrameRate, ieeec37118.ErrOutOfRange)
	}

	images, err := s.Configuration.BinaryImages(ieeec37118.MaximumFrameLength)
	if err != nil {
		return 0, err
	}
	for _, img := range images {
		if _, err := w.Write(img); err != nil {
			return 0, fmt.Errorf("write configuration frame: %w", err)
		}
	}

	s.log().WithFields(log.Fields{
		"frame_type": s.Configuration.FrameType.String(),
		"id_code":    s.Configuration.IDCode,
		"data_rate":  s.Configuration.FrameRate,
		"count":      s.Count,
	}).Info("Streaming simulated data frames")

	next := s.Start
	if next.IsZero() {
		next = time.Now().Truncate(time.Second)
	}

	written := 0
	for s.Count == 0 || written < s.Count {
		var ts time.Time
		if s.Ticks != nil {
			select {
			case <-ctx.Done():
				return written, ctx.Err()
			case t, ok := <-s.Ticks:
				if !ok {
					return written, nil
				}
				ts = t
			}
		} else {
			if err := ctx.Err(); err != nil {
				return written, err
			}
			ts = next
			next = next.Add(interval)
		}

		df, err := ieeec37118.NewDataFrame(s.Configuration, ts)
		if err != nil {
			return written, err
		}
		s.Generator.Fill(df, ts)

		img, err := df.BinaryImage()
		if err != nil {
			return written, err
		}
		if _, err := w.Write(img); err != nil {
			return written, fmt.Errorf("write data frame: %w", err)
		}
		written++

		if s.OnDataFrame != nil {
			s.OnDataFrame(df)
		}
	}
	return written, nil
}
