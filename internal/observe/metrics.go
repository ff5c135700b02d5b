// Package observe provides application-wide observability primitives for
// SilentTrace: OpenTelemetry metrics with a Prometheus exporter bridge so the
// capture process can be scraped via the standard /metrics endpoint.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all SilentTrace metrics.
const meterName = "github.com/meddje/silenttrace"

// Metrics holds all OpenTelemetry metric instruments for the capture
// pipeline. All fields are safe for concurrent use — the underlying OTel
// types handle their own synchronisation.
type Metrics struct {
	// FramesRead counts sample frames successfully read from the device.
	FramesRead metric.Int64Counter

	// Underruns counts recoverable capture underruns.
	Underruns metric.Int64Counter

	// FlushesSent counts flush messages delivered to the consumer.
	FlushesSent metric.Int64Counter

	// BytesSent counts payload bytes delivered to the consumer.
	BytesSent metric.Int64Counter

	// ReadDuration tracks how long a single blocking device read takes.
	ReadDuration metric.Float64Histogram
}

// readLatencyBuckets defines histogram bucket boundaries (in seconds) around
// the expected period length (~46 ms at 44100 Hz / 2048 frames).
var readLatencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesRead, err = m.Int64Counter("silenttrace.frames.read",
		metric.WithDescription("Sample frames read from the capture device."),
		metric.WithUnit("{frame}"),
	); err != nil {
		return nil, err
	}
	if met.Underruns, err = m.Int64Counter("silenttrace.underruns",
		metric.WithDescription("Recoverable capture underruns."),
		metric.WithUnit("{underrun}"),
	); err != nil {
		return nil, err
	}
	if met.FlushesSent, err = m.Int64Counter("silenttrace.flushes.sent",
		metric.WithDescription("Flush messages sent to the consumer."),
		metric.WithUnit("{message}"),
	); err != nil {
		return nil, err
	}
	if met.BytesSent, err = m.Int64Counter("silenttrace.bytes.sent",
		metric.WithDescription("Payload bytes sent to the consumer."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.ReadDuration, err = m.Float64Histogram("silenttrace.read.duration",
		metric.WithDescription("Duration of a single blocking device read."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(readLatencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics    *Metrics
	defaultMetricsErr error
	defaultOnce       sync.Once
)

// DefaultMetrics returns the process-wide [Metrics] instance backed by the
// global OTel meter provider. The first call creates the instruments; call it
// after [InitProvider] so they bind to the real provider.
func DefaultMetrics() (*Metrics, error) {
	defaultOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = NewMetrics(otel.GetMeterProvider())
	})
	return defaultMetrics, defaultMetricsErr
}
