// Package capture implements the core capture pipeline: a fixed-duration
// rolling history of the most recent audio samples and the scheduler that
// drives the device-read → buffer → periodic-flush loop.
package capture

// History is a fixed-capacity circular store of interleaved int16 PCM
// samples. The newest samples overwrite the oldest; once the write cursor has
// wrapped at least once the buffer always holds exactly the most recent
// Capacity samples. The zero-filled initial contents count as history, so a
// snapshot taken before the first wrap leads with silence.
//
// History is owned by a single goroutine (the [Scheduler] loop) and performs
// no locking and no allocation after construction.
type History struct {
	buf    []int16
	cursor int
}

// NewHistory allocates a zero-initialised history holding capacity samples.
func NewHistory(capacity int) *History {
	return &History{buf: make([]int16, capacity)}
}

// Capacity returns the fixed sample capacity.
func (h *History) Capacity() int { return len(h.buf) }

// Append copies samples into the buffer at the write cursor, wrapping without
// reallocation. The frame is fully consumed: input longer than the capacity
// degenerates to its trailing Capacity samples, since everything earlier
// would be overwritten within the same call anyway.
func (h *History) Append(samples []int16) {
	if len(h.buf) == 0 || len(samples) == 0 {
		return
	}
	if len(samples) >= len(h.buf) {
		samples = samples[len(samples)-len(h.buf):]
	}

	n := copy(h.buf[h.cursor:], samples)
	if n < len(samples) {
		copy(h.buf, samples[n:])
	}
	h.cursor = (h.cursor + len(samples)) % len(h.buf)
}

// Snapshot copies the full buffer contents into dst in chronological order,
// oldest sample first: the region from the cursor to the end, then the region
// from the start up to the cursor. dst must hold at least Capacity samples.
// Returns the number of samples written.
func (h *History) Snapshot(dst []int16) int {
	n := copy(dst, h.buf[h.cursor:])
	n += copy(dst[n:], h.buf[:h.cursor])
	return n
}
