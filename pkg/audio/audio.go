// Package audio provides the real-time capture pipeline for go-astro.
//
// The pipeline owns the physical input device, reads fixed-size frames on a
// dedicated goroutine, adapts the hardware sample rate to the target rate
// with a rational polyphase resampler, and recovers from transient device
// failures with bounded retries. Frames are delivered synchronously to a
// single registered consumer; the consumer's critical section must stay
// short because capture stalls while it runs.
package audio

// Frame is one fixed-size block of mono 16-bit PCM samples.
// It is immutable once produced; ownership passes to the consumer.
type Frame struct {
	// Samples holds the PCM data.
	Samples []int16

	// Rate is the sample rate the frame was produced at, in Hz.
	Rate int
}

// Duration returns the frame length in seconds.
func (f Frame) Duration() float64 {
	if f.Rate == 0 {
		return 0
	}
	return float64(len(f.Samples)) / float64(f.Rate)
}

// Consumer receives frames from the capture pipeline.
type Consumer func(Frame)

// MeanAbs returns the mean absolute amplitude of a sample block.
// Used as the short-time energy estimate for end-of-utterance detection.
func MeanAbs(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		if s < 0 {
			sum -= float64(s)
		} else {
			sum += float64(s)
		}
	}
	return sum / float64(len(samples))
}

// Normalize converts PCM16 samples to float32 in [-1, 1) for
// speech-to-text input.
func Normalize(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// Concat flattens an ordered frame sequence into one sample slice.
func Concat(frames []Frame) []int16 {
	var n int
	for _, f := range frames {
		n += len(f.Samples)
	}
	out := make([]int16, 0, n)
	for _, f := range frames {
		out = append(out, f.Samples...)
	}
	return out
}
