// Package audio defines the interfaces and types for audio capture device
// connectivity within SilentTrace.
//
// The central abstraction is [Source] — an opened capture device that delivers
// fixed-size periods of interleaved signed 16-bit PCM. Implementations are
// provided by backend-specific adapter packages (audio/alsa, audio/portaudio)
// and selected by name through the config registry.
//
// This package lives under pkg/ because external code (third-party capture
// backends) is expected to implement [Source].
package audio

import (
	"context"
	"errors"
)

// ErrUnderrun reports a transient capture overrun/underrun: the audio
// subsystem could not deliver data in time. It is recoverable — callers must
// call [Source.Prepare] and retry the read. Any other read error is fatal to
// the capture session.
var ErrUnderrun = errors.New("audio: capture underrun")

// Format describes the negotiated sample rate and channel count of a capture
// stream. After [Open] the format may differ from the requested configuration
// when the device only supports a nearby rate.
type Format struct {
	// SampleRate in Hz (e.g. 44100).
	SampleRate int

	// Channels per sample frame: 1 for mono, 2 for stereo.
	Channels int
}

// Config holds the capture parameters requested from a backend at open time.
type Config struct {
	// Device is the backend-specific device name (e.g. "default", "hw:0").
	Device string

	// SampleRate is the requested rate in Hz. Backends negotiate the nearest
	// supported rate; a mismatch is a warning, not an error.
	SampleRate int

	// Channels is the fixed channel count. A device that cannot provide it
	// fails to open.
	Channels int

	// PeriodFrames is the target period size in sample frames per read.
	PeriodFrames int
}

// Frame is one period of interleaved signed 16-bit PCM produced by a single
// device read. Samples is a view into the caller-provided read destination and
// is only valid until the next read.
type Frame struct {
	// Samples holds frames × channels interleaved 16-bit samples.
	Samples []int16

	// Format is the negotiated format of the stream that produced this frame.
	Format Format
}

// Frames returns the number of sample frames in f.
func (f Frame) Frames() int {
	if f.Format.Channels == 0 {
		return 0
	}
	return len(f.Samples) / f.Format.Channels
}

// Source is an opened audio capture device delivering fixed-size periods.
//
// A Source is not safe for concurrent use: exactly one goroutine owns the
// read loop. Close may be called from the same goroutine at any point and is
// idempotent.
type Source interface {
	// Read blocks until one full period of sample frames is available and
	// copies it into dst, which must hold at least PeriodFrames × channels
	// samples. It returns the number of sample frames read.
	//
	// A transient overrun is reported as [ErrUnderrun]; the caller must call
	// Prepare and retry. Every other error is fatal. Read performs no
	// allocation beyond dst.
	//
	// ctx is observed at read boundaries: implementations that cannot
	// interrupt an in-flight device read check ctx before blocking.
	Read(ctx context.Context, dst []int16) (int, error)

	// Prepare re-arms the capture stream after an [ErrUnderrun].
	Prepare() error

	// Format reports the format actually negotiated with the device.
	Format() Format

	// PeriodFrames reports the period size actually negotiated, in frames.
	PeriodFrames() int

	// Close releases the device. Safe to call more than once.
	Close() error
}
