// Package app wires the SilentTrace subsystems into a running capture
// process.
//
// The App struct owns the full lifecycle: [New] binds the stream channel and
// builds the scheduler around an opened capture source, [App.Run] waits for
// the consumer and executes the capture loop, and [App.Shutdown] releases
// every owned resource exactly once, in order, on every exit path.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/meddje/silenttrace/internal/capture"
	"github.com/meddje/silenttrace/internal/config"
	"github.com/meddje/silenttrace/internal/health"
	"github.com/meddje/silenttrace/internal/observe"
	"github.com/meddje/silenttrace/internal/resilience"
	"github.com/meddje/silenttrace/internal/stream"
	"github.com/meddje/silenttrace/pkg/audio"
)

// httpShutdownTimeout bounds how long the observability server may take to
// drain during Shutdown.
const httpShutdownTimeout = 5 * time.Second

// App owns the capture source, the stream channel, the scheduler, and the
// optional observability HTTP server.
type App struct {
	cfg   *config.Config
	src   audio.Source
	ch    *stream.Channel
	sched *capture.Scheduler
	srv   *http.Server

	// closers are called in order during Shutdown: device first, then the
	// channel (endpoint, listener, socket file).
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
	stopErr  error
}

// Option is a functional option for [New]. Use these to inject test doubles.
type Option func(*newOptions)

type newOptions struct {
	metrics *observe.Metrics
}

// WithMetrics injects a metrics instance instead of using the process-wide
// default. Tests use this with a private meter provider to avoid cross-test
// pollution.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *newOptions) { o.metrics = m }
}

// New binds the stream channel at the configured socket path and builds the
// capture scheduler around src. Ownership of src transfers to the App: it is
// closed during Shutdown regardless of how far construction got.
func New(cfg *config.Config, src audio.Source, opts ...Option) (*App, error) {
	var o newOptions
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, src: src}
	a.closers = append(a.closers, src.Close)

	ch, err := stream.Bind(cfg.Stream.SocketPath)
	if err != nil {
		a.Shutdown(context.Background())
		return nil, err
	}
	a.ch = ch
	a.closers = append(a.closers, ch.Close)

	metrics := o.metrics
	if metrics == nil {
		metrics, err = observe.DefaultMetrics()
		if err != nil {
			a.Shutdown(context.Background())
			return nil, fmt.Errorf("app: init metrics: %w", err)
		}
	}

	sched, err := capture.NewScheduler(capture.SchedulerConfig{
		Source:        src,
		Sink:          ch,
		WindowSeconds: cfg.Capture.WindowSeconds,
		Guard: resilience.NewUnderrunGuard(resilience.UnderrunGuardConfig{
			MaxConsecutive: cfg.Capture.MaxConsecutiveUnderruns,
		}),
		Metrics: metrics,
	})
	if err != nil {
		a.Shutdown(context.Background())
		return nil, err
	}
	a.sched = sched

	if cfg.Server.MetricsAddr != "" {
		a.srv = a.buildHTTPServer(cfg.Server.MetricsAddr)
	}
	return a, nil
}

// buildHTTPServer assembles the /metrics, /healthz and /readyz endpoints.
// Readiness requires the device to be delivering (scheduler running or still
// idle pre-loop) and a connected consumer.
func (a *App) buildHTTPServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(
		health.Checker{Name: "device", Check: func(context.Context) error {
			switch a.sched.State() {
			case capture.StateDraining, capture.StateStopped:
				return errors.New("capture loop stopped")
			}
			return nil
		}},
		health.Checker{Name: "consumer", Check: func(context.Context) error {
			if !a.ch.Connected() {
				return errors.New("no consumer connected")
			}
			return nil
		}},
	).Register(mux)
	return &http.Server{Addr: addr, Handler: mux}
}

// Scheduler exposes the capture scheduler, mainly for state inspection in
// tests.
func (a *App) Scheduler() *capture.Scheduler { return a.sched }

// Run blocks until the capture session ends: it waits for the single
// consumer, then drives the capture loop, with the observability server (if
// configured) running alongside. Context cancellation is the stop flag; it is
// observed at loop-iteration boundaries and returns nil. Any other exit
// reports the session-fatal fault.
func (a *App) Run(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)

	if a.srv != nil {
		eg.Go(func() error {
			slog.Info("observability server listening", "addr", a.srv.Addr)
			if err := a.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: observability server: %w", err)
			}
			return nil
		})
		eg.Go(func() error {
			<-egCtx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
			defer cancel()
			return a.srv.Shutdown(shutCtx)
		})
	}

	eg.Go(func() error {
		if err := a.ch.Accept(egCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		return a.sched.Run(egCtx)
	})

	err := eg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown releases all owned resources in order: capture device, consumer
// endpoint, listener, socket file. It is safe to call from any exit path and
// any number of times; the releases run exactly once.
func (a *App) Shutdown(_ context.Context) error {
	a.stopOnce.Do(func() {
		var errs []error
		for _, closeFn := range a.closers {
			if err := closeFn(); err != nil {
				errs = append(errs, err)
			}
		}
		a.stopErr = errors.Join(errs...)
		slog.Info("resources released")
	})
	return a.stopErr
}
