// Package config loads the stream definition used by the command line tools
package config

import (
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/JSchlarb/phasorprotocols/ieeec37118"
	"github.com/JSchlarb/phasorprotocols/internal/simulate"
)

// EnvPrefix prefixes every environment override, e.g. C37_LOG_LEVEL
const EnvPrefix = "C37"

// Config holds the tool configuration
type Config struct {
	LogLevel           string `mapstructure:"log_level"`
	MetricsFile        string `mapstructure:"metrics_file"`
	Header             string `mapstructure:"header"`
	MaximumFrameLength int    `mapstructure:"maximum_frame_length"`
	ValidateIDCode     bool   `mapstructure:"validate_id_code"`

	// Stream is the configuration frame document describing the device
	Stream ieeec37118.FrameDocument `mapstructure:"stream"`

	Simulation simulate.Settings `mapstructure:"simulation"`
}

// Load reads the configuration from path. An empty path searches c37tool.{yaml,json,toml} in the
// working directory, ./config and /etc/c37tool/, falling back to defaults when none exists.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("c37tool")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/c37tool/")
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		log.Info("No config file found, using defaults and environment variables")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("log_level")
	_ = v.BindEnv("metrics_file")
	_ = v.BindEnv("header")
	_ = v.BindEnv("stream.id_code")
	_ = v.BindEnv("stream.frame_rate")

	// Set defaults
	sim := simulate.DefaultSettings()
	v.SetDefault("log_level", "INFO")
	v.SetDefault("header", "C37.118 stream")
	v.SetDefault("maximum_frame_length", ieeec37118.MaximumFrameLength)
	v.SetDefault("validate_id_code", false)
	v.SetDefault("stream.version", ieeec37118.DocumentVersion)
	v.SetDefault("stream.type", ieeec37118.FrameTypeCfg2.String())
	v.SetDefault("stream.id_code", 1)
	v.SetDefault("stream.time_base", 1000000)
	v.SetDefault("stream.frame_rate", 30)
	v.SetDefault("simulation.voltage_base", sim.VoltageBase)
	v.SetDefault("simulation.current_base", sim.CurrentBase)
	v.SetDefault("simulation.voltage_variation", sim.VoltageVariation)
	v.SetDefault("simulation.current_variation", sim.CurrentVariation)
	v.SetDefault("simulation.frequency_variation", sim.FrequencyVariation)
	v.SetDefault("simulation.dfdt_variation", sim.DfDtVariation)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	for i := range cfg.Stream.Cells {
		c := &cfg.Stream.Cells[i]
		if c.IDCode == 0 {
			c.IDCode = cfg.Stream.IDCode + uint16(i)
		}
		if c.StationName == "" {
			c.StationName = fmt.Sprintf("PMU_%d", c.IDCode)
		}
	}
	if cfg.MaximumFrameLength <= 0 || cfg.MaximumFrameLength > ieeec37118.MaximumFrameLength {
		log.WithField("maximum_frame_length", cfg.MaximumFrameLength).Warn("Invalid maximum frame length, using protocol maximum")
		cfg.MaximumFrameLength = ieeec37118.MaximumFrameLength
	}

	return &cfg, nil
}

// ConfigurationFrame builds the configured stream as a validated configuration frame
func (c *Config) ConfigurationFrame() (*ieeec37118.ConfigurationFrame, error) {
	doc := c.Stream
	ft, err := ieeec37118.ParseFrameType(doc.Type)
	if err != nil {
		return nil, err
	}
	if !ft.IsConfiguration() {
		return nil, fmt.Errorf("stream type %s is not a configuration frame: %w", ft, ieeec37118.ErrInvalidParameter)
	}
	if len(doc.Cells) == 0 {
		return nil, fmt.Errorf("stream defines no PMU: %w", ieeec37118.ErrInvalidParameter)
	}
	return ieeec37118.ConfigurationFrameFromDocument(&doc)
}

// HeaderFrame builds the header frame of the configured stream
func (c *Config) HeaderFrame() *ieeec37118.HeaderFrame {
	return ieeec37118.NewHeaderFrameWithData(c.Stream.IDCode, c.Header)
}
