package capture

import "testing"

// fill returns n samples all set to v.
func fill(n int, v int16) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func TestHistory_SnapshotBeforeWrapLeadsWithSilence(t *testing.T) {
	h := NewHistory(10)
	h.Append([]int16{1, 2, 3, 4})

	dst := make([]int16, 10)
	n := h.Snapshot(dst)
	if n != 10 {
		t.Fatalf("snapshot wrote %d samples, want 10", n)
	}
	want := []int16{0, 0, 0, 0, 0, 0, 1, 2, 3, 4}
	for i := range want {
		if dst[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, dst[i], want[i])
		}
	}
}

func TestHistory_ChronologicalOrderAcrossWrap(t *testing.T) {
	h := NewHistory(10)
	// 14 samples into a 10-sample buffer: the first 4 are overwritten.
	h.Append([]int16{1, 2, 3, 4, 5, 6, 7})
	h.Append([]int16{8, 9, 10, 11, 12, 13, 14})

	dst := make([]int16, 10)
	h.Snapshot(dst)
	want := []int16{5, 6, 7, 8, 9, 10, 11, 12, 13, 14}
	for i := range want {
		if dst[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, dst[i], want[i])
		}
	}
}

func TestHistory_ManyWraps(t *testing.T) {
	h := NewHistory(7)
	var counter int16
	for range 13 {
		frame := make([]int16, 3)
		for i := range frame {
			counter++
			frame[i] = counter
		}
		h.Append(frame)
	}

	// 39 samples total; the buffer must hold exactly the last 7 in order.
	dst := make([]int16, 7)
	h.Snapshot(dst)
	for i, want := range []int16{33, 34, 35, 36, 37, 38, 39} {
		if dst[i] != want {
			t.Errorf("sample %d: got %d, want %d", i, dst[i], want)
		}
	}
}

func TestHistory_OversizedAppendKeepsTail(t *testing.T) {
	h := NewHistory(4)
	h.Append([]int16{9, 9})
	h.Append([]int16{1, 2, 3, 4, 5, 6})

	dst := make([]int16, 4)
	h.Snapshot(dst)
	for i, want := range []int16{3, 4, 5, 6} {
		if dst[i] != want {
			t.Errorf("sample %d: got %d, want %d", i, dst[i], want)
		}
	}
}

func TestHistory_EmptyAppendIsNoop(t *testing.T) {
	h := NewHistory(3)
	h.Append([]int16{1, 2, 3})
	h.Append(nil)

	dst := make([]int16, 3)
	h.Snapshot(dst)
	for i, want := range []int16{1, 2, 3} {
		if dst[i] != want {
			t.Errorf("sample %d: got %d, want %d", i, dst[i], want)
		}
	}
}
