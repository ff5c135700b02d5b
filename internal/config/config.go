// Package config provides the configuration schema, loader, and capture
// backend registry for the SilentTrace capture process.
package config

// LogLevel controls log verbosity for the capture process.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Defaults mirror the reference deployment: CD-rate mono capture in 2048-frame
// periods, one second of rolling history, the well-known socket path.
const (
	DefaultBackend       = "alsa"
	DefaultDevice        = "default"
	DefaultSampleRate    = 44100
	DefaultChannels      = 1
	DefaultPeriodFrames  = 2048
	DefaultWindowSeconds = 1
	DefaultSocketPath    = "/tmp/silenttrace.sock"
)

// Config is the root configuration structure for the capture process.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Capture CaptureConfig `yaml:"capture"`
	Stream  StreamConfig  `yaml:"stream"`
	Server  ServerConfig  `yaml:"server"`
}

// CaptureConfig selects the capture backend and the device parameters
// requested from it at open time.
type CaptureConfig struct {
	// Backend names the registered capture backend ("alsa", "portaudio", "mock").
	Backend string `yaml:"backend"`

	// Device is the backend-specific device name (e.g. "default", "hw:0").
	Device string `yaml:"device"`

	// SampleRate is the requested rate in Hz. The device may negotiate a
	// nearby rate; the mismatch is logged, not fatal.
	SampleRate int `yaml:"sample_rate"`

	// Channels is the fixed channel count.
	Channels int `yaml:"channels"`

	// PeriodFrames is the target period size in sample frames per device read.
	PeriodFrames int `yaml:"period_frames"`

	// WindowSeconds is the rolling history duration in seconds.
	WindowSeconds int `yaml:"window_seconds"`

	// MaxConsecutiveUnderruns trips the underrun guard when that many
	// underruns arrive back to back. Zero uses the guard's default.
	MaxConsecutiveUnderruns int `yaml:"max_consecutive_underruns"`
}

// StreamConfig holds the local channel settings.
type StreamConfig struct {
	// SocketPath is the well-known filesystem path of the Unix stream socket.
	SocketPath string `yaml:"socket_path"`
}

// ServerConfig holds logging and the optional observability endpoint.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address serving /metrics, /healthz and /readyz
	// (e.g. ":9102"). Empty disables the HTTP server entirely.
	MetricsAddr string `yaml:"metrics_addr"`
}

// ApplyDefaults fills every unset field with its default value. Called by the
// loader after decoding so a minimal (or empty) file yields the reference
// deployment.
func (c *Config) ApplyDefaults() {
	if c.Capture.Backend == "" {
		c.Capture.Backend = DefaultBackend
	}
	if c.Capture.Device == "" {
		c.Capture.Device = DefaultDevice
	}
	if c.Capture.SampleRate == 0 {
		c.Capture.SampleRate = DefaultSampleRate
	}
	if c.Capture.Channels == 0 {
		c.Capture.Channels = DefaultChannels
	}
	if c.Capture.PeriodFrames == 0 {
		c.Capture.PeriodFrames = DefaultPeriodFrames
	}
	if c.Capture.WindowSeconds == 0 {
		c.Capture.WindowSeconds = DefaultWindowSeconds
	}
	if c.Stream.SocketPath == "" {
		c.Stream.SocketPath = DefaultSocketPath
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
}
