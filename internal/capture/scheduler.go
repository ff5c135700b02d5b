package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meddje/silenttrace/internal/observe"
	"github.com/meddje/silenttrace/internal/resilience"
	"github.com/meddje/silenttrace/internal/stream"
	"github.com/meddje/silenttrace/pkg/audio"
)

// State is the scheduler lifecycle state.
type State int

const (
	// StateIdle is the initial state before the loop starts.
	StateIdle State = iota

	// StateRunning is the steady state: read → append → cadence flush.
	StateRunning

	// StateDraining is entered on a fatal fault or stop request; the loop has
	// exited and resources are being released by the owner.
	StateDraining

	// StateStopped is terminal.
	StateStopped
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Sink consumes flush messages. *stream.Channel implements it; tests inject
// recording fakes.
type Sink interface {
	Send(msg stream.Message) error
}

// SchedulerConfig wires a [Scheduler] to its collaborators.
type SchedulerConfig struct {
	// Source is the opened capture device. The scheduler owns its read loop
	// but not its lifetime.
	Source audio.Source

	// Sink receives one flush message per cadence tick.
	Sink Sink

	// WindowSeconds is the rolling history duration. Default: 1.
	WindowSeconds int

	// Guard converts underrun storms into fatal errors. When nil a guard with
	// default settings is created.
	Guard *resilience.UnderrunGuard

	// Metrics records pipeline instruments. Optional.
	Metrics *observe.Metrics
}

// Scheduler drives the capture loop: it pulls one period per iteration from
// the source into the rolling history and, every sampleRate/periodFrames
// successful periods, snapshots the history and pushes it through the sink.
//
// The integer division makes the cadence slightly shorter than one wall-clock
// second per window when it is inexact (44100/2048 = 21 periods ≈ 0.976 s);
// the approximation is deliberate and matched by the consumer.
//
// A Scheduler is single-use: construct, Run once, discard.
type Scheduler struct {
	src     audio.Source
	sink    Sink
	hist    *History
	guard   *resilience.UnderrunGuard
	metrics *observe.Metrics

	// period and snap are reused every iteration so the steady-state loop
	// performs no allocation.
	period []int16
	snap   []int16

	flushEvery int
	chunks     int
	state      State
	now        func() time.Time
}

// NewScheduler sizes the history buffer from the source's negotiated format
// and prepares the reusable read and snapshot destinations.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Source == nil {
		return nil, errors.New("capture: scheduler needs a source")
	}
	if cfg.Sink == nil {
		return nil, errors.New("capture: scheduler needs a sink")
	}
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = 1
	}
	if cfg.Guard == nil {
		cfg.Guard = resilience.NewUnderrunGuard(resilience.UnderrunGuardConfig{})
	}

	format := cfg.Source.Format()
	periodFrames := cfg.Source.PeriodFrames()
	if format.SampleRate <= 0 || format.Channels <= 0 || periodFrames <= 0 {
		return nil, fmt.Errorf("capture: invalid source geometry %dHz/%dch/%d frames",
			format.SampleRate, format.Channels, periodFrames)
	}

	flushEvery := format.SampleRate / periodFrames
	if flushEvery == 0 {
		return nil, fmt.Errorf("capture: period of %d frames exceeds one second at %d Hz",
			periodFrames, format.SampleRate)
	}

	capacity := format.SampleRate * cfg.WindowSeconds * format.Channels
	return &Scheduler{
		src:        cfg.Source,
		sink:       cfg.Sink,
		hist:       NewHistory(capacity),
		guard:      cfg.Guard,
		metrics:    cfg.Metrics,
		period:     make([]int16, periodFrames*format.Channels),
		snap:       make([]int16, capacity),
		flushEvery: flushEvery,
		now:        time.Now,
	}, nil
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State { return s.state }

// FlushEvery returns the number of successful periods between flushes.
func (s *Scheduler) FlushEvery() int { return s.flushEvery }

// Run executes the capture loop until ctx is cancelled or a fatal fault
// occurs. A cancelled context is a normal stop and returns nil; every other
// exit returns the fault. The stop request is observed once per iteration —
// it cannot interrupt an in-progress blocking read or send.
//
// In both cases the scheduler passes through Draining and ends Stopped.
// Resource release is the owner's job and happens after Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.state = StateRunning
	slog.Info("capture loop started",
		"flush_every_periods", s.flushEvery,
		"history_samples", s.hist.Capacity(),
	)

	err := s.loop(ctx)

	s.state = StateDraining
	if err != nil {
		slog.Error("capture loop fault", "err", err)
	}
	s.state = StateStopped
	slog.Info("capture loop stopped")
	return err
}

func (s *Scheduler) loop(ctx context.Context) error {
	format := s.src.Format()
	for {
		if ctx.Err() != nil {
			return nil
		}

		start := s.now()
		frames, err := s.src.Read(ctx, s.period)
		if s.metrics != nil {
			s.metrics.ReadDuration.Record(ctx, s.now().Sub(start).Seconds())
		}

		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		case errors.Is(err, audio.ErrUnderrun):
			// Transient: re-prepare and retry. The dropped period touches
			// neither the history nor the flush counter.
			if s.metrics != nil {
				s.metrics.Underruns.Add(ctx, 1)
			}
			if gerr := s.guard.Underrun(); gerr != nil {
				return gerr
			}
			if perr := s.src.Prepare(); perr != nil {
				return fmt.Errorf("capture: re-prepare after underrun: %w", perr)
			}
			continue
		case err != nil:
			return fmt.Errorf("capture: device read: %w", err)
		}

		s.guard.Success()
		if s.metrics != nil {
			s.metrics.FramesRead.Add(ctx, int64(frames))
		}

		s.hist.Append(s.period[:frames*format.Channels])
		s.chunks++

		if s.chunks >= s.flushEvery {
			if err := s.flush(ctx, format); err != nil {
				return err
			}
			s.chunks = 0
		}
	}
}

// flush snapshots the history oldest-first and sends it as one framed
// message. A send failure is fatal to the session.
func (s *Scheduler) flush(ctx context.Context, format audio.Format) error {
	n := s.hist.Snapshot(s.snap)
	msg := stream.Message{
		Timestamp:  uint64(s.now().UnixMilli()),
		SampleRate: uint32(format.SampleRate),
		Channels:   uint32(format.Channels),
		Samples:    s.snap[:n],
	}
	if err := s.sink.Send(msg); err != nil {
		return fmt.Errorf("capture: flush: %w", err)
	}
	if s.metrics != nil {
		s.metrics.FlushesSent.Add(ctx, 1)
		s.metrics.BytesSent.Add(ctx, int64(msg.PayloadBytes()))
	}
	slog.Debug("flushed history window", "frames", msg.FrameCount(), "bytes", msg.PayloadBytes())
	return nil
}
