package audio

import "math"

// resampleTaps is the one-sided kernel width in source samples.
const resampleTaps = 16

// resample converts in from srcRate to dstRate using a Hann-windowed sinc
// kernel with the low-pass cutoff at the lower of the two Nyquist rates.
func resample(in []float32, srcRate, dstRate int) []float32 {
	if srcRate == dstRate || len(in) == 0 {
		return in
	}

	ratio := float64(dstRate) / float64(srcRate)
	cutoff := 1.0
	if dstRate < srcRate {
		cutoff = ratio
	}

	outLen := int(math.Round(float64(len(in)) * ratio))
	out := make([]float32, outLen)

	for i := range out {
		center := float64(i) / ratio
		left := int(math.Floor(center)) - resampleTaps + 1

		var acc, norm float64
		for j := left; j < left+2*resampleTaps; j++ {
			if j < 0 || j >= len(in) {
				continue
			}
			w := kernel(center-float64(j), cutoff)
			acc += float64(in[j]) * w
			norm += w
		}
		if norm != 0 {
			out[i] = float32(acc / norm)
		}
	}
	return out
}

func kernel(x, cutoff float64) float64 {
	if math.Abs(x) >= resampleTaps {
		return 0
	}
	// Hann-windowed sinc
	window := 0.5 + 0.5*math.Cos(math.Pi*x/resampleTaps)
	return cutoff * sinc(math.Pi*cutoff*x) * window
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	return math.Sin(x) / x
}
