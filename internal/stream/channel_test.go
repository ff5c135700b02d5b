package stream_test

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/meddje/silenttrace/internal/stream"
)

func bindTemp(t *testing.T) (*stream.Channel, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.sock")
	ch, err := stream.Bind(path)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	t.Cleanup(func() { ch.Close() })
	return ch, path
}

// acceptWithDial runs Accept while a consumer dials in, returning the
// consumer side of the connection.
func acceptWithDial(t *testing.T, ch *stream.Channel, path string) net.Conn {
	t.Helper()
	dialed := make(chan net.Conn, 1)
	go func() {
		conn, err := net.Dial("unix", path)
		if err != nil {
			t.Errorf("dial: %v", err)
			return
		}
		dialed <- conn
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ch.Accept(ctx); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	conn := <-dialed
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestChannel_SendDeliversHeaderThenPayload(t *testing.T) {
	ch, path := bindTemp(t)
	conn := acceptWithDial(t, ch, path)

	msg := stream.Message{
		Timestamp:  42,
		SampleRate: 44100,
		Channels:   1,
		Samples:    []int16{100, -200, 300, -32768, 32767},
	}
	if err := ch.Send(msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	raw := make([]byte, stream.HeaderSize+msg.PayloadBytes())
	if _, err := io.ReadFull(conn, raw); err != nil {
		t.Fatalf("read message: %v", err)
	}

	h, err := stream.ParseHeader(raw[:stream.HeaderSize])
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if h.Timestamp != 42 || h.SampleRate != 44100 || h.Channels != 1 {
		t.Errorf("header = %+v", h)
	}
	if int(h.FrameCount) != len(msg.Samples) {
		t.Errorf("frame count = %d, want %d", h.FrameCount, len(msg.Samples))
	}

	payload := raw[stream.HeaderSize:]
	if len(payload) != int(h.FrameCount)*int(h.Channels)*2 {
		t.Fatalf("payload = %d bytes, want frame_count × channels × 2 = %d",
			len(payload), h.FrameCount*h.Channels*2)
	}
	for i, want := range msg.Samples {
		got := int16(binary.NativeEndian.Uint16(payload[i*2:]))
		if got != want {
			t.Errorf("sample %d = %d, want %d", i, got, want)
		}
	}
}

func TestChannel_SendWithoutEndpointFails(t *testing.T) {
	ch, _ := bindTemp(t)
	if err := ch.Send(stream.Message{Channels: 1, Samples: []int16{1}}); err == nil {
		t.Fatal("Send without a consumer endpoint succeeded")
	}
}

func TestChannel_SendAfterConsumerCloseFails(t *testing.T) {
	ch, path := bindTemp(t)
	conn := acceptWithDial(t, ch, path)
	conn.Close()

	// The peer close propagates asynchronously; the send must fail once it has.
	msg := stream.Message{Channels: 1, Samples: make([]int16, 512)}
	var err error
	for range 50 {
		if err = ch.Send(msg); err != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err == nil {
		t.Fatal("Send kept succeeding after the consumer closed its endpoint")
	}
}

func TestChannel_AcceptHonoursCancellation(t *testing.T) {
	ch, _ := bindTemp(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := ch.Accept(ctx)
	if err == nil {
		t.Fatal("Accept returned nil without a consumer")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Accept took %v to observe cancellation", elapsed)
	}
}

func TestChannel_BindClearsStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stale.sock")
	first, err := stream.Bind(path)
	if err != nil {
		t.Fatalf("first Bind: %v", err)
	}
	// Simulate a crashed predecessor: the file exists, nobody listens.
	first.Close()
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("plant stale file: %v", err)
	}

	second, err := stream.Bind(path)
	if err != nil {
		t.Fatalf("Bind over stale socket: %v", err)
	}
	second.Close()
}

func TestChannel_CloseRemovesSocketAndIsIdempotent(t *testing.T) {
	ch, path := bindTemp(t)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("socket file missing after bind: %v", err)
	}

	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("socket file still present after close: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
