package audio

import "math"

// TargetRate is the sample rate every downstream stage operates on.
const TargetRate = 16000

// Resample converts mono samples at sourceRate to TargetRate using linear
// interpolation. Input already at TargetRate (or with a non-positive rate)
// is returned unchanged.
func Resample(samples []float32, sourceRate int) []float32 {
	if sourceRate == TargetRate || sourceRate <= 0 {
		return samples
	}
	n := len(samples)
	outLen := n * TargetRate / sourceRate
	out := make([]float32, outLen)
	if n == 0 {
		return out
	}

	ratio := float64(sourceRate) / float64(TargetRate)
	for i := range out {
		pos := float64(i) * ratio
		lo := int(pos)
		if lo > n-1 {
			lo = n - 1
		}
		hi := lo + 1
		if hi > n-1 {
			hi = n - 1
		}
		frac := float32(pos - float64(lo))
		out[i] = samples[lo]*(1-frac) + samples[hi]*frac
	}
	return out
}

// Seconds returns the duration of n samples at TargetRate.
func Seconds(n int) float64 {
	return float64(n) / TargetRate
}

// Resampler converts a stream delivered in frames. Output sample k sits
// at source position k*sourceRate/TargetRate across the whole stream, so
// frame boundaries neither drop fractional samples nor add seams.
type Resampler struct {
	rate  int
	ratio float64
	out   int64   // output samples produced
	in    int64   // source samples consumed by earlier frames
	prev  float32 // last sample of the previous frame
}

// NewResampler returns a resampler for a stream at sourceRate.
func NewResampler(sourceRate int) *Resampler {
	return &Resampler{rate: sourceRate, ratio: float64(sourceRate) / float64(TargetRate)}
}

// Process resamples the next frame. A stream already at TargetRate (or
// with a non-positive rate) passes through unchanged.
func (r *Resampler) Process(frame []float32) []float32 {
	if r.rate == TargetRate || r.rate <= 0 {
		return frame
	}
	n := len(frame)
	if n == 0 {
		return nil
	}
	at := func(i int) float32 {
		if i < 0 {
			return r.prev
		}
		return frame[i]
	}

	out := make([]float32, 0, int(float64(n)/r.ratio)+1)
	for {
		pos := float64(r.out)*r.ratio - float64(r.in)
		lo := int(math.Floor(pos))
		if lo+1 > n-1 {
			break
		}
		frac := float32(pos - float64(lo))
		out = append(out, at(lo)*(1-frac)+at(lo+1)*frac)
		r.out++
	}
	r.prev = frame[n-1]
	r.in += int64(n)
	return out
}
