// Package pcm decodes raw little-endian 16-bit signed PCM into normalized
// float32 samples and converts between sample counts and durations at the
// fixed 16 kHz mono rate the recognizer consumes.
package pcm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const (
	// SampleRate is the fixed input rate in Hz. All byte/duration math in
	// this package assumes mono audio at this rate.
	SampleRate = 16000

	// BytesPerSample is the width of one s16le sample on the wire.
	BytesPerSample = 2
)

// ErrTruncated reports that a byte sequence ends in the middle of a sample.
var ErrTruncated = errors.New("pcm: truncated sample")

// Decode converts s16le bytes to float32 samples normalised to the range
// [-1.0, 1.0]. The input length must be even (two bytes per sample);
// otherwise Decode fails with an error wrapping ErrTruncated.
func Decode(raw []byte) ([]float32, error) {
	if len(raw)%BytesPerSample != 0 {
		return nil, fmt.Errorf("pcm: decode %d bytes: %w", len(raw), ErrTruncated)
	}
	return decodeAligned(raw), nil
}

func decodeAligned(raw []byte) []float32 {
	n := len(raw) / BytesPerSample
	samples := make([]float32, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
		samples[i] = float32(sample) / 32768.0
	}
	return samples
}

// Decoder converts an s16le byte stream that arrives in arbitrary fragments.
// A fragment boundary may split a sample in half; Decoder carries the stray
// byte into the next call, so the decoded output depends only on the
// concatenated stream, never on how it was chunked.
//
// The zero value is ready to use. Create one per stream; not designed for
// shared use across goroutines.
type Decoder struct {
	carry   byte
	pending bool
}

// Decode converts the next fragment of the stream and returns the samples
// completed by it. An empty fragment yields no samples.
func (d *Decoder) Decode(raw []byte) []float32 {
	if len(raw) == 0 {
		return nil
	}
	if d.pending {
		joined := make([]byte, 0, len(raw)+1)
		joined = append(joined, d.carry)
		joined = append(joined, raw...)
		raw = joined
		d.pending = false
	}
	if len(raw)%BytesPerSample != 0 {
		d.carry = raw[len(raw)-1]
		d.pending = true
		raw = raw[:len(raw)-1]
	}
	return decodeAligned(raw)
}

// Pending reports whether the decoder holds half of an unfinished sample.
func (d *Decoder) Pending() bool {
	return d.pending
}

// Close checks that the stream ended on a sample boundary. It fails with an
// error wrapping ErrTruncated when half a sample is still pending.
func (d *Decoder) Close() error {
	if d.pending {
		return fmt.Errorf("pcm: stream ended mid-sample: %w", ErrTruncated)
	}
	return nil
}

// Duration returns the play time of n samples at SampleRate.
func Duration(n int) time.Duration {
	return time.Duration(n) * time.Second / SampleRate
}

// SampleCount returns the number of whole samples spanning d at SampleRate.
func SampleCount(d time.Duration) int {
	return int(d * SampleRate / time.Second)
}
