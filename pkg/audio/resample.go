package audio

import (
	"fmt"
	"math"
)

// Resampler converts PCM16 audio between sample rates related by a rational
// ratio, e.g. 44100 -> 16000 uses 160/441. It is a streaming polyphase
// filter: a windowed-sinc lowpass evaluated only at the phases each output
// sample needs, so there is no intermediate upsampled buffer and no aliasing
// from naive decimation.
//
// No gain is applied. Boosting at capture time risks clipping and corrupts
// wake-word scoring; amplification belongs to playback paths.
type Resampler struct {
	up   int
	down int

	taps    []float64 // prototype lowpass
	perPhase int      // taps consumed per output sample

	hist []int16 // trailing input samples carried between calls
	t    int     // next output position on the upsampled grid
}

// tapsPerZero controls filter length (quality vs. cost). Eight zero
// crossings per side is plenty for speech into a 16 kHz wake-word model.
const tapsPerZero = 8

// NewResampler creates a streaming resampler from inRate to outRate.
func NewResampler(inRate, outRate int) (*Resampler, error) {
	if inRate <= 0 || outRate <= 0 {
		return nil, fmt.Errorf("audio: invalid resample rates %d -> %d", inRate, outRate)
	}
	if inRate == outRate {
		return nil, fmt.Errorf("audio: resampler not needed for equal rates %d", inRate)
	}

	g := gcd(inRate, outRate)
	up := outRate / g
	down := inRate / g

	taps := lowpass(up, down)
	perPhase := (len(taps) + up - 1) / up

	return &Resampler{
		up:       up,
		down:     down,
		taps:     taps,
		perPhase: perPhase,
		hist:     make([]int16, perPhase-1),
		t:        (perPhase - 1) * up,
	}, nil
}

// Ratio returns the rational up/down factors in lowest terms.
func (r *Resampler) Ratio() (up, down int) {
	return r.up, r.down
}

// Process resamples one block of input, returning the output samples that
// are fully determined so far. Filter history carries across calls, so
// consecutive blocks resample as one continuous stream.
func (r *Resampler) Process(in []int16) []int16 {
	buf := make([]int16, 0, len(r.hist)+len(in))
	buf = append(buf, r.hist...)
	buf = append(buf, in...)

	out := make([]int16, 0, len(in)*r.up/r.down+1)
	t := r.t
	for {
		base := t / r.up
		if base >= len(buf) {
			break
		}
		phase := t % r.up

		var acc float64
		for k := 0; k < r.perPhase; k++ {
			idx := phase + k*r.up
			if idx >= len(r.taps) {
				break
			}
			acc += r.taps[idx] * float64(buf[base-k])
		}
		out = append(out, clamp16(acc*float64(r.up)))
		t += r.down
	}

	// Keep exactly perPhase-1 samples of history for the next block.
	keep := len(buf) - (r.perPhase - 1)
	r.hist = append(r.hist[:0], buf[keep:]...)
	r.t = t - keep*r.up

	return out
}

// Reset drops filter history. Call when the input stream is discontinuous,
// e.g. after a capture session is recreated.
func (r *Resampler) Reset() {
	for i := range r.hist {
		r.hist[i] = 0
	}
	r.t = (r.perPhase - 1) * r.up
}

// lowpass designs the prototype windowed-sinc filter for an up/down pair.
// Cutoff sits at the narrower of the two Nyquist limits on the upsampled
// grid; a Blackman window keeps stopband leakage below speech noise floors.
func lowpass(up, down int) []float64 {
	m := up
	if down > m {
		m = down
	}
	n := 2*tapsPerZero*m + 1
	fc := 0.5 / float64(m)
	mid := float64(n-1) / 2

	taps := make([]float64, n)
	var sum float64
	for i := range taps {
		x := float64(i) - mid
		s := 2 * fc * sinc(2*fc*x)
		w := 0.42 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1)) +
			0.08*math.Cos(4*math.Pi*float64(i)/float64(n-1))
		taps[i] = s * w
		sum += taps[i]
	}
	// Normalize to unity DC gain so levels survive the trip.
	for i := range taps {
		taps[i] /= sum
	}
	return taps
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	return math.Sin(math.Pi*x) / (math.Pi * x)
}

func clamp16(v float64) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	default:
		return int16(math.Round(v))
	}
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
