package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/binderkit/atom"
	"github.com/wippyai/binderkit/errors"
)

// Environment variables that override file settings.
const (
	EnvLogLevel    = "BINDERKIT_LOG_LEVEL"
	EnvTrackLeaks  = "BINDERKIT_TRACK_LEAKS"
	EnvTransport   = "BINDERKIT_TRANSPORT"
	EnvAddress     = "BINDERKIT_ADDRESS"
	EnvMetricsAddr = "BINDERKIT_METRICS_ADDRESS"
)

// Transport kinds.
const (
	TransportLoopback = "loopback"
	TransportUnix     = "unix"
	TransportTCP      = "tcp"
)

// Config is the full configuration of a binderkit process.
type Config struct {
	Process   ProcessConfig   `yaml:"process" toml:"process"`
	Transport TransportConfig `yaml:"transport" toml:"transport"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Tracking  TrackingConfig  `yaml:"tracking" toml:"tracking"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

type ProcessConfig struct {
	// Name appears in logs and leak reports. Empty picks a random one.
	Name string `yaml:"name" toml:"name"`
	// SerialDispatch makes published objects handle one call at a time.
	SerialDispatch bool `yaml:"serial_dispatch" toml:"serial_dispatch"`
}

type TransportConfig struct {
	Kind    string `yaml:"kind" toml:"kind"`
	Address string `yaml:"address" toml:"address"`
	// Workers bounds concurrent dispatch on the loopback transport.
	Workers int `yaml:"workers" toml:"workers"`
	// MaxPayloadBytes bounds frames read by the stream transport.
	MaxPayloadBytes uint32        `yaml:"max_payload_bytes" toml:"max_payload_bytes"`
	CallTimeout     time.Duration `yaml:"call_timeout" toml:"call_timeout"`
}

type LoggingConfig struct {
	Level       string `yaml:"level" toml:"level"`
	Development bool   `yaml:"development" toml:"development"`
	// Encoding is "console" or "json".
	Encoding string `yaml:"encoding" toml:"encoding"`
}

type TrackingConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
	// Owners records which owner holds each reference. Slower.
	Owners bool `yaml:"owners" toml:"owners"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Address string `yaml:"address" toml:"address"`
	Path    string `yaml:"path" toml:"path"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Transport: TransportConfig{
			Kind:            TransportLoopback,
			Workers:         8,
			MaxPayloadBytes: 16 * 1024 * 1024,
			CallTimeout:     30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "console",
		},
		Metrics: MetricsConfig{
			Address: "127.0.0.1:9464",
			Path:    "/metrics",
		},
	}
}

// Load reads a YAML (.yaml, .yml) or TOML (.toml) file over the defaults,
// applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.New(errors.PhaseConfig, errors.KindNotFound).
			Path(path).Cause(err).Detail("read config").Build()
	}
	var format string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	case ".toml":
		format = "toml"
	default:
		return Config{}, errors.Unsupported(errors.PhaseConfig, "config format "+filepath.Ext(path))
	}
	cfg, err := Parse(data, format)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv returns the defaults with environment overrides applied.
func FromEnv() (Config, error) {
	cfg := Default()
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Parse decodes data in format ("yaml" or "toml") over the defaults.
// Unknown keys are rejected.
func Parse(data []byte, format string) (Config, error) {
	cfg := Default()
	switch format {
	case "yaml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && err != io.EOF {
			return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "decode yaml")
		}
	case "toml":
		meta, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "decode toml")
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return Config{}, errors.InvalidData(errors.PhaseConfig, "unknown key "+undecoded[0].String())
		}
	default:
		return Config{}, errors.Unsupported(errors.PhaseConfig, "config format "+format)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Logging.Level = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup(EnvTrackLeaks); ok && v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Path(EnvTrackLeaks).Cause(err).Detail("not a boolean").Build()
		}
		c.Tracking.Enabled = b
	}
	if v, ok := lookup(EnvTransport); ok && v != "" {
		c.Transport.Kind = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvAddress); ok && v != "" {
		c.Transport.Address = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvMetricsAddr); ok && v != "" {
		c.Metrics.Enabled = true
		c.Metrics.Address = strings.TrimSpace(v)
	}
	return nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	invalid := func(path, detail string) error {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).Path(path).Detail("%s", detail).Build()
	}
	switch c.Transport.Kind {
	case TransportLoopback:
	case TransportUnix, TransportTCP:
		if c.Transport.Address == "" {
			return invalid("transport.address", "required for "+c.Transport.Kind+" transport")
		}
	default:
		return invalid("transport.kind", "unknown transport "+strconv.Quote(c.Transport.Kind))
	}
	if c.Transport.Workers < 1 {
		return invalid("transport.workers", "must be at least 1")
	}
	if c.Transport.MaxPayloadBytes < 1024 {
		return invalid("transport.max_payload_bytes", "must be at least 1024")
	}
	if c.Transport.CallTimeout < 0 {
		return invalid("transport.call_timeout", "must not be negative")
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return invalid("logging.level", err.Error())
	}
	switch c.Logging.Encoding {
	case "", "console", "json":
	default:
		return invalid("logging.encoding", "must be console or json")
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return invalid("metrics.address", "required when metrics are enabled")
	}
	if c.Tracking.Owners && !c.Tracking.Enabled {
		return invalid("tracking.owners", "requires tracking.enabled")
	}
	return nil
}

// Logger builds the zap logger described by the logging section.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Logging.Level)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "logging.level")
	}
	zc := zap.NewProductionConfig()
	if c.Logging.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	if c.Logging.Encoding != "" {
		zc.Encoding = c.Logging.Encoding
	}
	log, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "build logger")
	}
	return log, nil
}

// Tracker returns a leak tracker if tracking is enabled, nil otherwise.
func (c *Config) Tracker() *atom.Tracker {
	if !c.Tracking.Enabled {
		return nil
	}
	if c.Tracking.Owners {
		return atom.NewTracker(atom.WithOwners())
	}
	return atom.NewTracker()
}
