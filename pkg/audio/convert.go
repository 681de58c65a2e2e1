package audio

import (
	"log/slog"
	"sync"
)

// FormatConverter adapts 16-bit PCM between a device format and the session
// wire format. One side of every conversion is mono because the wire carries
// mono only; channel mixing therefore always happens on the mono boundary
// and the resampler only ever sees mono data. Each distinct conversion pair
// is logged once so a misconfigured device shows up without flooding logs.
type FormatConverter struct {
	log *slog.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewFormatConverter returns a converter that logs via log, or the default
// logger when log is nil.
func NewFormatConverter(log *slog.Logger) *FormatConverter {
	if log == nil {
		log = slog.Default()
	}
	return &FormatConverter{log: log, seen: make(map[string]struct{})}
}

// Convert transforms s16le PCM from one format to another. It returns data
// unchanged when the formats already match.
func (c *FormatConverter) Convert(data []byte, from, to Format) []byte {
	if from == to || len(data) == 0 {
		return data
	}
	c.noteOnce(from, to)

	samples := BytesToInt16(data)
	if from.Channels == 2 && to.Channels == 1 {
		samples = StereoToMono(samples)
	}
	if from.SampleRate != to.SampleRate {
		samples = ResampleMono16(samples, from.SampleRate, to.SampleRate)
	}
	if from.Channels == 1 && to.Channels == 2 {
		samples = MonoToStereo(samples)
	}
	return Int16ToBytes(samples)
}

func (c *FormatConverter) noteOnce(from, to Format) {
	key := from.String() + ">" + to.String()
	c.mu.Lock()
	_, dup := c.seen[key]
	if !dup {
		c.seen[key] = struct{}{}
	}
	c.mu.Unlock()
	if !dup {
		c.log.Info("audio format conversion active", "from", from.String(), "to", to.String())
	}
}

// StereoToMono averages interleaved stereo sample pairs into mono.
func StereoToMono(samples []int16) []int16 {
	out := make([]int16, len(samples)/2)
	for i := range out {
		sum := int32(samples[2*i]) + int32(samples[2*i+1])
		out[i] = int16(sum / 2)
	}
	return out
}

// MonoToStereo duplicates each mono sample into both channels.
func MonoToStereo(samples []int16) []int16 {
	out := make([]int16, len(samples)*2)
	for i, s := range samples {
		out[2*i] = s
		out[2*i+1] = s
	}
	return out
}

// ResampleMono16 converts mono PCM between sample rates using linear
// interpolation.
func ResampleMono16(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}
	n := int(int64(len(samples)) * int64(toRate) / int64(fromRate))
	if n == 0 {
		return nil
	}
	out := make([]int16, n)
	ratio := float64(fromRate) / float64(toRate)
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(j)
		a := float64(samples[j])
		b := float64(samples[j+1])
		out[i] = int16(a + (b-a)*frac)
	}
	return out
}
