package hardware

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/zombieplant/hydrocore/internal/infrastructure/config"
	"github.com/zombieplant/hydrocore/internal/process"
)

// captureSlack is added to the recording length to bound the external
// command (device open and file flush).
const captureSlack = 5 * time.Second

// CommandRunner runs an external program. *process.Runner satisfies it.
type CommandRunner interface {
	Run(ctx context.Context, c process.Command) (process.Result, error)
}

// Arecord records from an ALSA device with arecord as mono 16-bit PCM.
type Arecord struct {
	runner CommandRunner
	cfg    config.MicrophoneConfig
	seq    atomic.Int64
}

// NewArecord creates an ALSA microphone.
func NewArecord(runner CommandRunner, cfg config.MicrophoneConfig) *Arecord {
	return &Arecord{runner: runner, cfg: cfg}
}

// RecordClip blocks for d while arecord captures, then returns the WAV path.
// The caller owns (and should remove) the file.
func (a *Arecord) RecordClip(ctx context.Context, d time.Duration) (string, error) {
	dir := a.cfg.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, fmt.Sprintf("hydrocore-clip-%d-%d.wav", os.Getpid(), a.seq.Add(1)))
	samples := int(d.Seconds() * float64(a.cfg.SampleRate))

	_, err := a.runner.Run(ctx, process.Command{
		Name:   "arecord",
		Binary: a.cfg.Binary,
		Args: []string{
			"-q",
			"-D", a.cfg.Device,
			"-f", "S16_LE",
			"-r", strconv.Itoa(a.cfg.SampleRate),
			"-c", "1",
			"-s", strconv.Itoa(samples),
			path,
		},
		Timeout: d + captureSlack,
	})
	if err != nil {
		os.Remove(path) //nolint:errcheck // best effort cleanup of a partial file
		return "", fmt.Errorf("recording clip: %w", err)
	}
	return path, nil
}
