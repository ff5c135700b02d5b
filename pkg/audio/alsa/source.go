//go:build linux

// Package alsa provides an [audio.Source] implementation backed by the ALSA
// kernel interface via the pure-Go yobert/alsa library. It is the default
// capture backend on Linux.
//
// Device negotiation follows the fixed order interleaved access → S16_LE
// format → sample rate → channel count → period size; any step the device
// rejects aborts the open. A rate that differs from the requested one is
// reported as a warning through the negotiated [audio.Format], not an error.
package alsa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"syscall"

	"github.com/yobert/alsa"

	"github.com/meddje/silenttrace/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Source = (*Source)(nil)

// Source implements [audio.Source] on top of an ALSA capture device.
type Source struct {
	cards  []*alsa.Card
	device *alsa.Device

	format  audio.Format
	period  int
	readBuf []byte

	closed bool
}

// Open finds a recording device matching cfg.Device, negotiates the capture
// parameters, and prepares the stream. An empty or "default" device name
// selects the first recording-capable PCM device found.
func Open(cfg audio.Config) (*Source, error) {
	cards, err := alsa.OpenCards()
	if err != nil {
		return nil, fmt.Errorf("alsa: open cards: %w", err)
	}

	device, err := findRecordDevice(cards, cfg.Device)
	if err != nil {
		alsa.CloseCards(cards)
		return nil, err
	}

	s := &Source{cards: cards, device: device}
	if err := s.negotiate(cfg); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// findRecordDevice scans all cards for a recording-capable PCM device. A
// non-empty name other than "default" must match the device title as a
// substring, case-insensitively.
func findRecordDevice(cards []*alsa.Card, name string) (*alsa.Device, error) {
	for _, card := range cards {
		devices, err := card.Devices()
		if err != nil {
			return nil, fmt.Errorf("alsa: list devices on card %q: %w", card.Title, err)
		}
		for _, device := range devices {
			if device.Type != alsa.PCM || !device.Record {
				continue
			}
			if name == "" || name == "default" ||
				strings.Contains(strings.ToLower(device.Title), strings.ToLower(name)) {
				return device, nil
			}
		}
	}
	return nil, fmt.Errorf("alsa: no recording device matching %q", name)
}

// negotiate applies the capture parameters in hardware-parameter order. The
// negotiated rate and period may differ from the request; both are recorded
// so the wire header carries real values.
func (s *Source) negotiate(cfg audio.Config) error {
	if err := s.device.Open(); err != nil {
		return fmt.Errorf("alsa: open device %q: %w", s.device.Title, err)
	}

	channels, err := s.device.NegotiateChannels(cfg.Channels)
	if err != nil {
		return fmt.Errorf("alsa: set %d channels: %w", cfg.Channels, err)
	}

	rate, err := s.device.NegotiateRate(cfg.SampleRate)
	if err != nil {
		return fmt.Errorf("alsa: set rate %d: %w", cfg.SampleRate, err)
	}
	if rate != cfg.SampleRate {
		slog.Warn("alsa: device negotiated a different sample rate",
			"requested", cfg.SampleRate, "negotiated", rate)
	}

	if _, err := s.device.NegotiateFormat(alsa.S16_LE); err != nil {
		return fmt.Errorf("alsa: set S16_LE format: %w", err)
	}

	period, err := s.device.NegotiateBufferSize(cfg.PeriodFrames)
	if err != nil {
		return fmt.Errorf("alsa: set period %d frames: %w", cfg.PeriodFrames, err)
	}

	if err := s.device.Prepare(); err != nil {
		return fmt.Errorf("alsa: prepare stream: %w", err)
	}

	s.format = audio.Format{SampleRate: rate, Channels: channels}
	s.period = period
	s.readBuf = make([]byte, period*channels*2)

	slog.Info("alsa capture initialised",
		"device", s.device.Title,
		"rate", rate,
		"channels", channels,
		"period_frames", period,
	)
	return nil
}

// Read blocks until one full period is captured and unpacks it into dst.
// An EPIPE from the kernel marks an overrun and is reported as
// [audio.ErrUnderrun]; the stream must be re-prepared before the next read.
//
// The underlying ioctl cannot be interrupted, so ctx is only observed at the
// read boundary.
func (s *Source) Read(ctx context.Context, dst []int16) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(dst) < s.period*s.format.Channels {
		return 0, fmt.Errorf("alsa: destination holds %d samples, period needs %d",
			len(dst), s.period*s.format.Channels)
	}

	if err := s.device.Read(s.readBuf); err != nil {
		if errors.Is(err, syscall.EPIPE) {
			return 0, audio.ErrUnderrun
		}
		return 0, fmt.Errorf("alsa: read: %w", err)
	}

	n := audio.BytesToSamples(s.readBuf, dst)
	return n / s.format.Channels, nil
}

// Prepare re-arms the stream after an overrun.
func (s *Source) Prepare() error {
	if err := s.device.Prepare(); err != nil {
		return fmt.Errorf("alsa: re-prepare stream: %w", err)
	}
	return nil
}

// Format reports the negotiated format.
func (s *Source) Format() audio.Format { return s.format }

// PeriodFrames reports the negotiated period size in frames.
func (s *Source) PeriodFrames() int { return s.period }

// Close releases the device and card handles. Safe to call more than once.
func (s *Source) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.device != nil {
		s.device.Close()
	}
	alsa.CloseCards(s.cards)
	return nil
}
