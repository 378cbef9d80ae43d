package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/JSchlarb/phasorprotocols/ieeec37118"
	"github.com/JSchlarb/phasorprotocols/internal/simulate"
)

func (a *app) respondCommand() *cobra.Command {
	var (
		output     string
		hexInput   bool
		hexOutput  bool
		dataFrames int
		seed       int64
	)

	cmd := &cobra.Command{
		Use:   "respond [commands.bin]",
		Short: "Answer command frames as the configured device would",
		Long: `Read command frames and write the frames the configured device sends back.

Configuration and header requests are answered from the stream in the config file.
CFG-3 responses are fragmented to maximum_frame_length. With --data, a START
command is followed by simulated data frames.`,
		Example: `  # Ask the device for its CFG-2
  c37tool command CONFIG2 --id 1 | c37tool respond -c pmu.yaml | c37tool decode`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.cfg.ConfigurationFrame()
			if err != nil {
				return err
			}
			r, err := ieeec37118.NewResponder(cfg, a.cfg.HeaderFrame())
			if err != nil {
				return err
			}
			r.SetLogger(a.logger)
			r.SetMetrics(a.metrics)
			r.ValidateIDCode = a.cfg.ValidateIDCode
			r.MaximumFrameLength = a.cfg.MaximumFrameLength

			gen, err := simulate.NewGenerator(a.cfg.Simulation, seed)
			if err != nil {
				return err
			}

			data, err := a.readFrames(args, hexInput)
			if err != nil {
				return err
			}
			out, err := a.openOutput(output)
			if err != nil {
				return err
			}
			defer out.Close()
			fw := &frameWriter{w: out, hex: hexOutput}

			p := ieeec37118.NewFrameParser()
			p.SetLogger(a.logger)
			p.AcceptCommandFrames = true

			var writeErr error
			p.OnCommandFrame = func(c *ieeec37118.CommandFrame) {
				if writeErr != nil {
					return
				}
				responses, err := r.HandleCommand(c)
				if err != nil {
					// Rejected commands are logged and counted by the responder
					return
				}
				for _, img := range responses {
					if writeErr = fw.write(img); writeErr != nil {
						return
					}
				}
				if c.Command == ieeec37118.CmdStart && r.DataEnabled() {
					writeErr = a.writeDataFrames(fw, r.ConfigurationFrame(ieeec37118.FrameTypeCfg2), gen, dataFrames)
				}
			}
			p.OnParsingError = func(err error) {
				a.logger.WithField("error", err).Debug("Skipped input")
			}

			_, _ = p.Write(data)
			if writeErr != nil {
				return writeErr
			}
			a.logger.WithFields(log.Fields{
				"frames":       fw.frames,
				"data_enabled": r.DataEnabled(),
			}).Info("Answered commands")
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output file")
	cmd.Flags().BoolVar(&hexInput, "hex", false, "Input is hex text")
	cmd.Flags().BoolVar(&hexOutput, "hex-output", false, "Write one hex encoded frame per line")
	cmd.Flags().IntVar(&dataFrames, "data", 0, "Number of data frames to send after START")
	cmd.Flags().Int64Var(&seed, "seed", 1, "Random seed for simulated values")
	return cmd
}

// writeDataFrames writes count generated data frames, one frame interval apart from now
func (a *app) writeDataFrames(fw *frameWriter, cfg *ieeec37118.ConfigurationFrame, gen *simulate.Generator, count int) error {
	ts := time.Now().Truncate(time.Second)
	for n := 0; n < count; n++ {
		df, err := ieeec37118.NewDataFrame(cfg, ts)
		if err != nil {
			return err
		}
		gen.Fill(df, ts)
		img, err := df.BinaryImage()
		if err != nil {
			return err
		}
		if err := fw.write(img); err != nil {
			return err
		}
		a.metrics.ObserveDataFrame(df)
		ts = ts.Add(cfg.FrameInterval())
	}
	return nil
}

func (a *app) simulateCommand() *cobra.Command {
	var (
		output string
		count  int
		pace   bool
		seed   int64
		start  string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Generate a simulated PMU stream",
		Long: `Write the configured stream's configuration frame followed by simulated data frames.

Without --pace frames are written as fast as possible with timestamps one frame
interval apart. With --pace frames follow the wall clock at the configured data
rate until --count frames were written or the process is interrupted.`,
		Example: `  # 10 seconds of 30 fps data to a file
  c37tool simulate -c pmu.yaml --count 300 -o stream.bin

  # Live stream into the decoder
  c37tool simulate -c pmu.yaml --pace | c37tool decode --measurements`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.cfg.ConfigurationFrame()
			if err != nil {
				return err
			}
			gen, err := simulate.NewGenerator(a.cfg.Simulation, seed)
			if err != nil {
				return err
			}

			stream := &simulate.Stream{
				Configuration: cfg,
				Generator:     gen,
				Count:         count,
				OnDataFrame:   a.metrics.ObserveDataFrame,
			}
			stream.SetLogger(a.logger)
			if start != "" {
				if stream.Start, err = time.Parse(time.RFC3339Nano, start); err != nil {
					return fmt.Errorf("start time: %w", ieeec37118.ErrInvalidParameter)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if pace {
				interval := cfg.FrameInterval()
				if interval <= 0 {
					return fmt.Errorf("frame rate %d: %w", cfg.FrameRate, ieeec37118.ErrOutOfRange)
				}
				ticker := simulate.NewWallTicker(interval, 0, true, a.metrics.ObserveTicker)
				ticker.SetLogger(a.logger)
				defer ticker.Stop()
				stream.Ticks = ticker.C
			} else if count == 0 {
				return fmt.Errorf("unpaced simulation needs --count: %w", ieeec37118.ErrInvalidParameter)
			}

			a.metrics.SetConfiguration(cfg)

			out, err := a.openOutput(output)
			if err != nil {
				return err
			}
			defer out.Close()

			n, err := stream.Run(ctx, out)
			a.logger.WithField("frames", n).Info("Simulation finished")
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output file")
	cmd.Flags().IntVar(&count, "count", 0, "Number of data frames, 0 for unlimited (requires --pace)")
	cmd.Flags().BoolVar(&pace, "pace", false, "Follow the wall clock at the configured data rate")
	cmd.Flags().Int64Var(&seed, "seed", 1, "Random seed for simulated values")
	cmd.Flags().StringVar(&start, "start", "", "Timestamp of the first unpaced frame (RFC 3339)")
	return cmd
}
