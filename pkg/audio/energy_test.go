package audio_test

import (
	"math"
	"testing"

	"github.com/snakescriptdev/voice-ninja-client/pkg/audio"
)

func TestRMS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []float32
		want float64
	}{
		{"empty", nil, 0},
		{"silence", make([]float32, 160), 0},
		{"constant half", []float32{0.5, 0.5, 0.5, 0.5}, 0.5},
		{"alternating sign", []float32{0.5, -0.5, 0.5, -0.5}, 0.5},
		{"full scale", []float32{1, -1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := audio.RMS(tt.in)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("RMS = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRMSMonotonicInAmplitude(t *testing.T) {
	t.Parallel()

	quiet := audio.RMS([]float32{0.01, -0.01, 0.01, -0.01})
	loud := audio.RMS([]float32{0.8, -0.8, 0.8, -0.8})
	if quiet >= loud {
		t.Errorf("RMS(quiet) = %v not below RMS(loud) = %v", quiet, loud)
	}
}
