package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	phasor "github.com/JSchlarb/phasorprotocols"
	"github.com/JSchlarb/phasorprotocols/ieeec37118"
)

func (a *app) encodeCommand() *cobra.Command {
	var (
		output     string
		schemaPath string
		hexOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "encode [documents.yaml]",
		Short: "Encode YAML frame documents to binary frames",
		Long: `Encode one or more YAML frame documents, separated by '---', to binary frames.

Data frame documents are bound to the most recent configuration document in the
input, to --schema, or to the stream defined in the config file.`,
		Example: `  # Encode a configuration and its data frames
  c37tool encode frames.yaml -o frames.bin

  # Print hex, one frame per line
  c37tool encode frames.yaml --hex`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := a.openInput(args)
			if err != nil {
				return err
			}
			defer in.Close()

			schema, err := a.loadSchema(schemaPath)
			if err != nil {
				return err
			}

			out, err := a.openOutput(output)
			if err != nil {
				return err
			}
			defer out.Close()
			fw := &frameWriter{w: out, hex: hexOutput}

			dec := yaml.NewDecoder(in)
			for i := 1; ; i++ {
				var doc ieeec37118.FrameDocument
				if err := dec.Decode(&doc); err != nil {
					if errors.Is(err, io.EOF) {
						break
					}
					return fmt.Errorf("document %d: %w", i, err)
				}

				frame, err := ieeec37118.FrameFromDocument(&doc, schema)
				if err != nil {
					return fmt.Errorf("document %d (%s): %w", i, doc.Type, err)
				}

				var images [][]byte
				if cf, ok := frame.(*ieeec37118.ConfigurationFrame); ok {
					schema = cf
					images, err = cf.BinaryImages(a.cfg.MaximumFrameLength)
				} else {
					var img []byte
					img, err = frame.BinaryImage()
					images = [][]byte{img}
				}
				if err != nil {
					return fmt.Errorf("document %d (%s): %w", i, doc.Type, err)
				}
				for _, img := range images {
					if err := fw.write(img); err != nil {
						return err
					}
				}
			}

			a.logger.WithField("frames", fw.frames).Info("Encoded frames")
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output file")
	cmd.Flags().StringVar(&schemaPath, "schema", "", "Configuration frame (binary or YAML document) for data documents")
	cmd.Flags().BoolVar(&hexOutput, "hex", false, "Write one hex encoded frame per line")
	return cmd
}

func (a *app) decodeCommand() *cobra.Command {
	var (
		output       string
		schemaPath   string
		hexInput     bool
		measurements bool
		strict       bool
	)

	cmd := &cobra.Command{
		Use:   "decode [frames.bin]",
		Short: "Decode a binary frame stream to YAML documents",
		Long: `Decode a C37.118 byte stream into YAML frame documents, one per frame.

The stream may start anywhere: the decoder synchronizes on the frame sync byte,
skips frames with a bad checksum and uses the latest configuration frame to
interpret data frames.`,
		Example: `  # Decode a capture
  c37tool decode capture.bin

  # Decode hex text from another tool, printing measurements only
  c37tool decode --hex --measurements < frames.hex`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := a.readFrames(args, hexInput)
			if err != nil {
				return err
			}

			out, err := a.openOutput(output)
			if err != nil {
				return err
			}
			defer out.Close()

			p := ieeec37118.NewFrameParser()
			p.SetLogger(a.logger)
			p.SetMetrics(a.metrics)
			p.AcceptCommandFrames = true

			if schemaPath != "" {
				schema, err := a.loadSchema(schemaPath)
				if err != nil {
					return err
				}
				p.SetConfigurationFrame(schema)
			}

			// The encoder is created with the first document, Close fails on an empty stream
			var enc *yaml.Encoder
			var writeErr error
			emit := func(frame phasor.ChannelFrame) {
				if writeErr != nil || measurements {
					return
				}
				doc, err := ieeec37118.NewFrameDocument(frame)
				if err != nil {
					writeErr = err
					return
				}
				if enc == nil {
					enc = yaml.NewEncoder(out)
					enc.SetIndent(2)
				}
				writeErr = enc.Encode(doc)
			}

			rejected := 0
			p.OnParsingError = func(error) { rejected++ }
			p.OnConfigurationFrame = func(f *ieeec37118.ConfigurationFrame) {
				a.metrics.SetConfiguration(f)
				ieeec37118.LogConfiguration(a.logger, f)
				emit(f)
			}
			p.OnDataFrame = func(f *ieeec37118.DataFrame) {
				a.metrics.ObserveDataFrame(f)
				if measurements && writeErr == nil {
					for _, m := range f.Measurements() {
						if _, err := fmt.Fprintf(out, "%s\t%s\t%s\t%g\t0x%02X\n",
							m.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"), m.Key, m.Label, m.Value, uint32(m.StateFlags)); err != nil {
							writeErr = err
							return
						}
					}
				}
				emit(f)
			}
			p.OnHeaderFrame = func(f *ieeec37118.HeaderFrame) { emit(f) }
			p.OnCommandFrame = func(f *ieeec37118.CommandFrame) { emit(f) }
			p.OnConfigurationChanged = func() {
				a.logger.Warn("Stream reported a configuration change, a new configuration frame should be requested")
			}

			_, _ = p.Write(data)
			if enc != nil {
				if err := enc.Close(); err != nil && writeErr == nil {
					writeErr = err
				}
			}
			if writeErr != nil {
				return fmt.Errorf("write output: %w", writeErr)
			}

			a.logger.WithFields(log.Fields{
				"bytes":    len(data),
				"rejected": rejected,
			}).Info("Decoded stream")
			if strict && rejected > 0 {
				return fmt.Errorf("%d frames rejected: %w", rejected, phasor.ErrInvalidFrame)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output file")
	cmd.Flags().StringVar(&schemaPath, "schema", "", "Configuration frame (binary or YAML document) used until the stream sends one")
	cmd.Flags().BoolVar(&hexInput, "hex", false, "Input is hex text")
	cmd.Flags().BoolVar(&measurements, "measurements", false, "Print data frame measurements as tab separated lines instead of documents")
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail when any frame is rejected")
	return cmd
}

func (a *app) commandCommand() *cobra.Command {
	var (
		output    string
		idCode    int
		version   uint8
		extended  string
		hexOutput bool
	)

	cmd := &cobra.Command{
		Use:   "command <START|STOP|HEADER|CONFIG1|CONFIG2|CONFIG3|EXTENDED|code>",
		Short: "Build a command frame",
		Example: `  # Request CFG-2 from PMU 7
  c37tool command CONFIG2 --id 7 --hex

  # Numeric user command
  c37tool command 0x0009 --id 7 -o cmd.bin`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := ieeec37118.ParseDeviceCommand(args[0])
			if err != nil {
				return err
			}
			if idCode < 0 {
				idCode = int(a.cfg.Stream.IDCode)
			}
			if idCode > 0xFFFF {
				return fmt.Errorf("ID code %d: %w", idCode, phasor.ErrOutOfRange)
			}

			frame := ieeec37118.NewCommandFrame(uint16(idCode), code, version)
			if extended != "" {
				frame.ExtendedData, err = hex.DecodeString(extended)
				if err != nil {
					return fmt.Errorf("extended data: %w", phasor.ErrInvalidParameter)
				}
			}
			img, err := frame.BinaryImage()
			if err != nil {
				return err
			}

			out, err := a.openOutput(output)
			if err != nil {
				return err
			}
			defer out.Close()

			a.logger.WithFields(log.Fields{
				"command": code.String(),
				"id_code": frame.IDCode,
			}).Debug("Built command frame")
			return (&frameWriter{w: out, hex: hexOutput}).write(img)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output file")
	cmd.Flags().IntVar(&idCode, "id", -1, "Target ID code (default: stream ID code from the config)")
	cmd.Flags().Uint8Var(&version, "protocol-version", ieeec37118.Version2005, "Protocol version: 1 = 2005, 2 = 2011")
	cmd.Flags().StringVar(&extended, "extended", "", "Hex encoded extended frame data")
	cmd.Flags().BoolVar(&hexOutput, "hex", false, "Write the frame as hex")
	return cmd
}

func (a *app) showCommand() *cobra.Command {
	var frameType string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the configured stream as a configuration frame document",
		Example: `  # Validate a config file and print its CFG-3 form
  c37tool show -c pmu.yaml --type cfg3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.cfg.ConfigurationFrame()
			if err != nil {
				return err
			}
			if frameType != "" {
				ft, err := ieeec37118.ParseFrameType(frameType)
				if err != nil {
					return err
				}
				if cfg, err = cfg.AsType(ft); err != nil {
					return err
				}
			}

			ieeec37118.LogConfiguration(a.logger, cfg)
			enc := yaml.NewEncoder(a.out)
			enc.SetIndent(2)
			if err := enc.Encode(cfg.Document()); err != nil {
				return fmt.Errorf("write document: %w", err)
			}
			return enc.Close()
		},
	}

	cmd.Flags().StringVar(&frameType, "type", "", "Configuration frame type to show: cfg1, cfg2 or cfg3")
	return cmd
}
