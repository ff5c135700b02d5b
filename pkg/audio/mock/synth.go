package mock

import (
	"context"
	"math"
	"time"

	"github.com/meddje/silenttrace/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Source = (*Synth)(nil)

// Synth is a synthetic [audio.Source] that generates an endless sine tone,
// paced to real time. It backs the "mock" capture backend so the full
// pipeline can run on hosts without a microphone.
type Synth struct {
	format audio.Format
	period int
	toneHz float64
	phase  float64
	closed bool
}

// NewSynth creates a paced sine source with the requested geometry. toneHz
// values ≤ 0 default to 440 Hz.
func NewSynth(cfg audio.Config, toneHz float64) *Synth {
	if toneHz <= 0 {
		toneHz = 440
	}
	return &Synth{
		format: audio.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels},
		period: cfg.PeriodFrames,
		toneHz: toneHz,
	}
}

// Read sleeps for one period length to mimic a blocking device read, then
// fills dst with the next slice of the tone on every channel.
func (s *Synth) Read(ctx context.Context, dst []int16) (int, error) {
	wait := time.Duration(float64(s.period) / float64(s.format.SampleRate) * float64(time.Second))
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-time.After(wait):
	}

	step := 2 * math.Pi * s.toneHz / float64(s.format.SampleRate)
	for frame := 0; frame < s.period; frame++ {
		sample := int16(math.Sin(s.phase) * 0.3 * math.MaxInt16)
		for ch := 0; ch < s.format.Channels; ch++ {
			dst[frame*s.format.Channels+ch] = sample
		}
		s.phase += step
	}
	// Keep the phase bounded so precision holds over long runs.
	s.phase = math.Mod(s.phase, 2*math.Pi)
	return s.period, nil
}

// Prepare is a no-op; the synthetic source cannot underrun.
func (s *Synth) Prepare() error { return nil }

// Format returns the configured format.
func (s *Synth) Format() audio.Format { return s.format }

// PeriodFrames returns the configured period size.
func (s *Synth) PeriodFrames() int { return s.period }

// Close marks the source closed. Safe to call more than once.
func (s *Synth) Close() error {
	s.closed = true
	return nil
}
