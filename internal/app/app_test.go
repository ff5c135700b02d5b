package app_test

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/meddje/silenttrace/internal/app"
	"github.com/meddje/silenttrace/internal/capture"
	"github.com/meddje/silenttrace/internal/config"
	"github.com/meddje/silenttrace/internal/observe"
	"github.com/meddje/silenttrace/internal/stream"
	"github.com/meddje/silenttrace/pkg/audio"
	"github.com/meddje/silenttrace/pkg/audio/mock"
)

// testConfig uses a tiny geometry so one flush needs only ten periods:
// 100 Hz mono in 10-frame periods, one second of history.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Capture.Backend = "mock"
	cfg.Capture.SampleRate = 100
	cfg.Capture.PeriodFrames = 10
	cfg.Stream.SocketPath = filepath.Join(t.TempDir(), "capture.sock")
	cfg.Server.MetricsAddr = ""
	return cfg
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// scriptedSource returns a mock source delivering n ten-frame periods, each
// filled with its 1-based period number.
func scriptedSource(n int) *mock.Source {
	script := make([]mock.Read, n)
	for i := range script {
		samples := make([]int16, 10)
		for j := range samples {
			samples[j] = int16(i + 1)
		}
		script[i] = mock.Read{Samples: samples}
	}
	return &mock.Source{
		SourceFormat: audio.Format{SampleRate: 100, Channels: 1},
		Period:       10,
		Script:       script,
	}
}

func TestApp_EndToEndSession(t *testing.T) {
	cfg := testConfig(t)
	src := scriptedSource(10)

	application, err := app.New(cfg, src, app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer application.Shutdown(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- application.Run(ctx) }()

	// The listener exists as soon as New returns, so the consumer can dial
	// immediately; Accept picks the connection up from the backlog.
	conn, err := net.Dial("unix", cfg.Stream.SocketPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// One full window: 20-byte header + 100 samples.
	raw := make([]byte, stream.HeaderSize+100*2)
	if _, err := io.ReadFull(conn, raw); err != nil {
		t.Fatalf("read flush message: %v", err)
	}

	h, err := stream.ParseHeader(raw[:stream.HeaderSize])
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if h.SampleRate != 100 || h.Channels != 1 || h.FrameCount != 100 {
		t.Errorf("header = %+v", h)
	}
	if h.Timestamp == 0 {
		t.Error("timestamp not set")
	}

	// Ten periods exactly fill the window, so the payload is periods 1..10 in
	// chronological order with no leading silence.
	payload := make([]int16, 100)
	for i := range payload {
		payload[i] = int16(binary.NativeEndian.Uint16(raw[stream.HeaderSize+i*2:]))
	}
	for p := 1; p <= 10; p++ {
		if got := payload[(p-1)*10]; got != int16(p) {
			t.Errorf("sample %d = %d, want %d", (p-1)*10, got, p)
		}
	}

	// The script ends after the flush; the loop dies with a fatal device
	// fault, which Run reports.
	select {
	case err := <-runDone:
		if !errors.Is(err, io.EOF) {
			t.Fatalf("Run() = %v, want io.EOF", err)
		}
	case <-ctx.Done():
		t.Fatal("Run did not finish")
	}

	if got := application.Scheduler().State(); got != capture.StateStopped {
		t.Errorf("scheduler state = %v, want stopped", got)
	}
}

func TestApp_ShutdownReleasesOnceAndRemovesSocket(t *testing.T) {
	cfg := testConfig(t)
	src := scriptedSource(0)

	application, err := app.New(cfg, src, app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := os.Stat(cfg.Stream.SocketPath); err != nil {
		t.Fatalf("socket file missing after New: %v", err)
	}

	if err := application.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, err := os.Stat(cfg.Stream.SocketPath); !os.IsNotExist(err) {
		t.Errorf("socket file still present after Shutdown: %v", err)
	}

	// Second Shutdown is a no-op; the device is not closed twice.
	if err := application.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
	if src.CallCountClose != 1 {
		t.Errorf("source Close called %d times, want 1", src.CallCountClose)
	}
}

func TestApp_StopRequestEndsRunCleanly(t *testing.T) {
	cfg := testConfig(t)
	src := scriptedSource(1000)

	application, err := app.New(cfg, src, app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer application.Shutdown(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- application.Run(ctx) }()

	// Stop while Run is still waiting for a consumer.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("Run() after stop = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not observe the stop request")
	}
}

func TestApp_ConsumerLossEndsSession(t *testing.T) {
	cfg := testConfig(t)
	// Plenty of periods: the session must die from the send fault, not script
	// exhaustion.
	src := scriptedSource(10000)

	application, err := app.New(cfg, src, app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer application.Shutdown(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- application.Run(ctx) }()

	conn, err := net.Dial("unix", cfg.Stream.SocketPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	// Read one message to let the session establish, then drop the endpoint.
	raw := make([]byte, stream.HeaderSize+100*2)
	if _, err := io.ReadFull(conn, raw); err != nil {
		t.Fatalf("read first message: %v", err)
	}
	conn.Close()

	select {
	case err := <-runDone:
		if err == nil {
			t.Fatal("Run() = nil after consumer loss, want fatal send error")
		}
	case <-ctx.Done():
		t.Fatal("Run did not end after consumer loss")
	}

	if err := application.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, err := os.Stat(cfg.Stream.SocketPath); !os.IsNotExist(err) {
		t.Errorf("socket file still present after faulted session: %v", err)
	}
}
