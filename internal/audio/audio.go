// Package audio normalizes uploaded recordings into the canonical form the
// inference models require: mono float32 samples at 16kHz.
package audio

import "fmt"

// TargetSampleRate is the fixed sample rate both models expect.
const TargetSampleRate = 16000

// Decoded is raw decoded audio before normalization. Samples are interleaved
// when Channels > 1.
type Decoded struct {
	Samples    []float32
	Channels   int
	SampleRate int
}

// Buffer is a normalized mono waveform.
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the buffer length in seconds.
func (b *Buffer) Duration() float64 {
	if b.SampleRate == 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}

// Slice returns the samples for the half-open interval [start, end) seconds,
// clamped to the buffer bounds.
func (b *Buffer) Slice(start, end float64) []float32 {
	lo := int(start * float64(b.SampleRate))
	hi := int(end * float64(b.SampleRate))
	if lo < 0 {
		lo = 0
	}
	if hi > len(b.Samples) {
		hi = len(b.Samples)
	}
	if lo >= hi {
		return nil
	}
	return b.Samples[lo:hi]
}

// UnsupportedAudioError indicates input that could not be decoded.
type UnsupportedAudioError struct {
	Path   string
	Reason string
	Err    error
}

func (e *UnsupportedAudioError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unsupported audio %q: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("unsupported audio %q: %s", e.Path, e.Reason)
}

func (e *UnsupportedAudioError) Unwrap() error { return e.Err }

// Normalize converts decoded audio to a mono buffer at the target rate.
// Multi-channel input is downmixed by per-sample channel averaging; off-rate
// input is resampled with a windowed-sinc kernel.
func Normalize(d *Decoded) *Buffer {
	mono := downmix(d.Samples, d.Channels)
	if d.SampleRate != TargetSampleRate {
		mono = resample(mono, d.SampleRate, TargetSampleRate)
	}
	return &Buffer{Samples: mono, SampleRate: TargetSampleRate}
}

func downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
