package audio

import "math"

// RMS returns the root mean square energy of samples on the same [0, 1]
// scale as the samples themselves. An empty window has zero energy.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
