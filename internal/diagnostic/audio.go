package diagnostic

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/wav"
)

// fullScale normalises signed 16-bit samples to [-1, 1).
const fullScale = 32768.0

// ErrUnsupportedClip is returned for clips that are not 16-bit PCM WAV.
var ErrUnsupportedClip = errors.New("diagnostic: clip must be 16-bit PCM WAV")

// AnalyzeRMS returns the root-mean-square amplitude of a 16-bit WAV file,
// normalised to full scale. An empty clip has RMS 0.
func AnalyzeRMS(path string) (float64, error) {
	f, err := os.Open(path) //nolint:gosec // Path comes from the microphone driver
	if err != nil {
		return 0, fmt.Errorf("opening clip: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, ErrUnsupportedClip
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return 0, fmt.Errorf("decoding clip: %w", err)
	}
	if dec.BitDepth != 16 {
		return 0, fmt.Errorf("%w: got %d-bit", ErrUnsupportedClip, dec.BitDepth)
	}
	return rms(buf.Data), nil
}

func rms(samples []int) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / fullScale
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
