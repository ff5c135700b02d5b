// Package stream implements the framed handoff channel between the capture
// process and the single downstream analysis consumer: a Unix-domain stream
// socket carrying self-describing flush messages.
//
// Wire format, native byte order (same-host transport, no endianness
// negotiation, no version field):
//
//	timestamp   uint64  capture time, milliseconds since epoch
//	sample_rate uint32  negotiated device sample rate
//	frame_count uint32  sample frames in the payload
//	channels    uint32  channels per frame
//	payload     frame_count × channels × 2 bytes of interleaved S16 PCM
package stream

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed byte length of the message header.
const HeaderSize = 8 + 4 + 4 + 4

// Message is one immutable buffer snapshot handed to the consumer. It is
// constructed at flush time, sent once, then discarded.
type Message struct {
	// Timestamp is the capture time in milliseconds since the Unix epoch.
	Timestamp uint64

	// SampleRate is the negotiated device sample rate in Hz.
	SampleRate uint32

	// Channels is the number of channels per sample frame.
	Channels uint32

	// Samples is the interleaved S16 payload, FrameCount() × Channels long.
	Samples []int16
}

// FrameCount returns the number of sample frames in the payload.
func (m Message) FrameCount() uint32 {
	if m.Channels == 0 {
		return 0
	}
	return uint32(len(m.Samples)) / m.Channels
}

// PayloadBytes returns the byte length of the encoded payload.
func (m Message) PayloadBytes() int { return len(m.Samples) * 2 }

// putHeader encodes the message header into dst, which must hold at least
// HeaderSize bytes.
func putHeader(dst []byte, m Message) {
	binary.NativeEndian.PutUint64(dst[0:8], m.Timestamp)
	binary.NativeEndian.PutUint32(dst[8:12], m.SampleRate)
	binary.NativeEndian.PutUint32(dst[12:16], m.FrameCount())
	binary.NativeEndian.PutUint32(dst[16:20], m.Channels)
}

// Header is the decoded form of a message header, used by consumer-side code
// and tests to validate what was written.
type Header struct {
	Timestamp  uint64
	SampleRate uint32
	FrameCount uint32
	Channels   uint32
}

// ParseHeader decodes a message header from b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("stream: header needs %d bytes, have %d", HeaderSize, len(b))
	}
	return Header{
		Timestamp:  binary.NativeEndian.Uint64(b[0:8]),
		SampleRate: binary.NativeEndian.Uint32(b[8:12]),
		FrameCount: binary.NativeEndian.Uint32(b[12:16]),
		Channels:   binary.NativeEndian.Uint32(b[16:20]),
	}, nil
}
