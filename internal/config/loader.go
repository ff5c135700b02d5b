package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ValidBackendNames lists the capture backends that ship with SilentTrace.
// Used by [Validate] to reject unknown backend names before the registry is
// consulted.
var ValidBackendNames = []string{"alsa", "portaudio", "mock"}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals. An empty document yields the full default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if !validBackend(cfg.Capture.Backend) {
		errs = append(errs, fmt.Errorf("capture.backend %q is unknown; valid values: %v", cfg.Capture.Backend, ValidBackendNames))
	}
	if cfg.Capture.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate must be positive, got %d", cfg.Capture.SampleRate))
	}
	if cfg.Capture.Channels <= 0 {
		errs = append(errs, fmt.Errorf("capture.channels must be positive, got %d", cfg.Capture.Channels))
	}
	if cfg.Capture.PeriodFrames <= 0 {
		errs = append(errs, fmt.Errorf("capture.period_frames must be positive, got %d", cfg.Capture.PeriodFrames))
	}
	if cfg.Capture.WindowSeconds <= 0 {
		errs = append(errs, fmt.Errorf("capture.window_seconds must be positive, got %d", cfg.Capture.WindowSeconds))
	}
	if cfg.Capture.MaxConsecutiveUnderruns < 0 {
		errs = append(errs, fmt.Errorf("capture.max_consecutive_underruns must not be negative, got %d", cfg.Capture.MaxConsecutiveUnderruns))
	}
	if cfg.Capture.SampleRate > 0 && cfg.Capture.PeriodFrames > cfg.Capture.SampleRate {
		errs = append(errs, fmt.Errorf("capture.period_frames (%d) must not exceed one second of audio (%d frames) or the flush cadence degenerates to zero",
			cfg.Capture.PeriodFrames, cfg.Capture.SampleRate))
	}

	if cfg.Stream.SocketPath == "" {
		errs = append(errs, errors.New("stream.socket_path must not be empty"))
	}

	return errors.Join(errs...)
}

func validBackend(name string) bool {
	for _, b := range ValidBackendNames {
		if name == b {
			return true
		}
	}
	return false
}
