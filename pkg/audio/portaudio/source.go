// Package portaudio provides an [audio.Source] implementation backed by the
// PortAudio library via gordonklaus/portaudio. It is the portable capture
// backend for hosts without ALSA.
//
// PortAudio owns the host API lifetime: Open initialises it and Close
// terminates it, so at most one Source may be open per process.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"

	"github.com/meddje/silenttrace/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Source = (*Source)(nil)

// Source implements [audio.Source] on top of a PortAudio input stream.
type Source struct {
	stream *portaudio.Stream
	buf    []int16

	format audio.Format
	period int

	closed bool
}

// Open initialises PortAudio and opens the default input device with the
// requested format. PortAudio accepts the rate as-is or fails, so no
// nearest-rate warning can occur with this backend. A non-default cfg.Device
// is ignored with a warning — stream routing is delegated to the host API.
func Open(cfg audio.Config) (*Source, error) {
	if cfg.Device != "" && cfg.Device != "default" {
		slog.Warn("portaudio: named device selection is not supported, using default input",
			"device", cfg.Device)
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialise: %w", err)
	}

	buf := make([]int16, cfg.PeriodFrames*cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), cfg.PeriodFrames, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("portaudio: open default stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("portaudio: start stream: %w", err)
	}

	slog.Info("portaudio capture initialised",
		"rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"period_frames", cfg.PeriodFrames,
	)

	return &Source{
		stream: stream,
		buf:    buf,
		format: audio.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels},
		period: cfg.PeriodFrames,
	}, nil
}

// Read blocks until one full period is captured and copies it into dst. An
// input overflow is reported as [audio.ErrUnderrun]. ctx is observed at the
// read boundary only; PortAudio reads cannot be interrupted.
func (s *Source) Read(ctx context.Context, dst []int16) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(dst) < len(s.buf) {
		return 0, fmt.Errorf("portaudio: destination holds %d samples, period needs %d",
			len(dst), len(s.buf))
	}

	if err := s.stream.Read(); err != nil {
		if errors.Is(err, portaudio.InputOverflowed) {
			return 0, audio.ErrUnderrun
		}
		return 0, fmt.Errorf("portaudio: read: %w", err)
	}

	copy(dst, s.buf)
	return s.period, nil
}

// Prepare is a no-op: PortAudio re-arms the stream internally after an
// overflow, so the next Read can proceed directly.
func (s *Source) Prepare() error { return nil }

// Format reports the stream format.
func (s *Source) Format() audio.Format { return s.format }

// PeriodFrames reports the period size in frames.
func (s *Source) PeriodFrames() int { return s.period }

// Close stops the stream and terminates PortAudio. Safe to call more than once.
func (s *Source) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if err := s.stream.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("portaudio: stop stream: %w", err))
	}
	if err := s.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("portaudio: close stream: %w", err))
	}
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("portaudio: terminate: %w", err))
	}
	return errors.Join(errs...)
}
