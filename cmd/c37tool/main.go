// C37tool encodes, decodes and simulates IEEE C37.118 synchrophasor frames.
//
// Frames are read from and written to files or standard input/output, either as raw binary
// streams or as hex lines, and are described by versioned YAML documents.
//
// Usage:
//
//	c37tool [command] [flags]
//
// See 'c37tool --help' for available commands.
package main

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/JSchlarb/phasorprotocols/ieeec37118"
	"github.com/JSchlarb/phasorprotocols/internal/config"
	"github.com/JSchlarb/phasorprotocols/internal/logging"
	"github.com/JSchlarb/phasorprotocols/internal/metrics"
)

const appVersion = "dev"

func main() {
	if err := newRootCommand(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app carries the state shared by all sub-commands
type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	configPath  string
	logLevel    string
	metricsFile string

	cfg      *config.Config
	logger   *log.Logger
	registry *prometheus.Registry
	metrics  *metrics.Recorder
}

func newRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{in: in, out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "c37tool",
		Short: "IEEE C37.118 synchrophasor frame utility",
		Long: `A utility for IEEE C37.118 synchrophasor streams.

Encodes YAML frame documents to binary frames, decodes binary streams back to
documents, builds command frames, answers commands as a device would and
generates simulated data streams.`,
		Version:           appVersion,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.writeMetrics()
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	// Disable automatic completion command generation
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file (default: c37tool.yaml in ., ./config or /etc/c37tool/)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level, overrides the config file")
	root.PersistentFlags().StringVar(&a.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")

	root.AddCommand(
		a.encodeCommand(),
		a.decodeCommand(),
		a.commandCommand(),
		a.respondCommand(),
		a.simulateCommand(),
		a.showCommand(),
	)
	return root
}

// setup loads the configuration and prepares logging and metrics
func (a *app) setup(*cobra.Command, []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := cfg.LogLevel
	if a.logLevel != "" {
		level = a.logLevel
	}
	a.logger = logging.New(a.errOut, level)

	a.registry = prometheus.NewRegistry()
	a.metrics = metrics.NewRecorder(a.registry)
	return nil
}

func (a *app) writeMetrics() error {
	path := a.metricsFile
	if path == "" && a.cfg != nil {
		path = a.cfg.MetricsFile
	}
	if path == "" || a.registry == nil {
		return nil
	}
	if err := metrics.WriteTextfile(a.registry, path); err != nil {
		return err
	}
	a.logger.WithField("path", path).Debug("Wrote metrics")
	return nil
}

// openInput opens the file named by the first argument, or standard input for none or "-"
func (a *app) openInput(args []string) (io.ReadCloser, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.NopCloser(a.in), nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}

// openOutput creates path, or returns standard output for "" or "-"
func (a *app) openOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopWriteCloser{a.out}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	return f, nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// readFrames reads a whole binary stream, or hex text with one or more frames per line
func (a *app) readFrames(args []string, hexInput bool) ([]byte, error) {
	in, err := a.openInput(args)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	data, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if !hexInput {
		return data, nil
	}
	decoded, err := hex.DecodeString(strings.Join(strings.Fields(string(data)), ""))
	if err != nil {
		return nil, fmt.Errorf("decode hex input: %w", err)
	}
	return decoded, nil
}

// frameWriter writes frame images as a binary stream or as one hex line per frame
type frameWriter struct {
	w      io.Writer
	hex    bool
	frames int
}

func (fw *frameWriter) write(img []byte) error {
	var err error
	if fw.hex {
		_, err = fmt.Fprintln(fw.w, hex.EncodeToString(img))
	} else {
		_, err = fw.w.Write(img)
	}
	if err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	fw.frames++
	return nil
}

// Write implements io.Writer for streams that hand over whole frames
func (fw *frameWriter) Write(p []byte) (int, error) {
	if err := fw.write(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// loadSchema reads a configuration frame from a binary frame or a YAML document.
// An empty path uses the configured stream, if it defines any PMU.
func (a *app) loadSchema(path string) (*ieeec37118.ConfigurationFrame, error) {
	if path == "" {
		if len(a.cfg.Stream.Cells) == 0 {
			return nil, nil
		}
		return a.cfg.ConfigurationFrame()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	if len(data) > 0 && data[0] == ieeec37118.SyncByte {
		return ieeec37118.ParseConfigurationFrame(data)
	}

	var doc ieeec37118.FrameDocument
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("schema %s is empty: %w", path, ieeec37118.ErrNoConfiguration)
		}
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	return ieeec37118.ConfigurationFrameFromDocument(&doc)
}
