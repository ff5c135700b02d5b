package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/meddje/silenttrace/pkg/audio"
)

// ErrBackendNotRegistered is returned by [Registry.OpenSource] when no
// factory has been registered under the requested backend name.
var ErrBackendNotRegistered = errors.New("config: capture backend not registered")

// SourceFactory opens a capture device for the requested parameters.
type SourceFactory func(cfg audio.Config) (audio.Source, error)

// Registry maps capture backend names to their open functions. It is safe
// for concurrent use. main wires the built-in backends in; tests register
// mocks.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]SourceFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]SourceFactory)}
}

// RegisterSource registers a capture backend factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSource(name string, factory SourceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[name] = factory
}

// OpenSource opens a capture device using the backend selected by
// cfg.Capture.Backend. Returns [ErrBackendNotRegistered] if the name has no
// factory.
func (r *Registry) OpenSource(cfg *Config) (audio.Source, error) {
	r.mu.RLock()
	factory, ok := r.sources[cfg.Capture.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotRegistered, cfg.Capture.Backend)
	}
	return factory(audio.Config{
		Device:       cfg.Capture.Device,
		SampleRate:   cfg.Capture.SampleRate,
		Channels:     cfg.Capture.Channels,
		PeriodFrames: cfg.Capture.PeriodFrames,
	})
}
