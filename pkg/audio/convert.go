package audio

// SamplesToBytes packs interleaved int16 samples into dst as little-endian
// bytes and returns the number of bytes written. dst must hold at least
// 2×len(samples) bytes. Packing into a caller-provided destination keeps the
// steady-state capture loop allocation-free.
func SamplesToBytes(samples []int16, dst []byte) int {
	for i, s := range samples {
		dst[i*2] = byte(s)
		dst[i*2+1] = byte(s >> 8)
	}
	return len(samples) * 2
}

// BytesToSamples unpacks little-endian 16-bit PCM bytes into dst and returns
// the number of samples written. Trailing odd bytes are ignored. dst must hold
// at least len(b)/2 samples.
func BytesToSamples(b []byte, dst []int16) int {
	n := len(b) / 2
	for i := 0; i < n; i++ {
		dst[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return n
}
