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

const stillTimeout = 30 * time.Second

// RPiCamera captures stills with rpicam-still (Raspberry Pi OS Bookworm+).
type RPiCamera struct {
	runner CommandRunner
	cfg    config.CameraConfig
	seq    atomic.Int64
}

// NewRPiCamera creates a camera driver.
func NewRPiCamera(runner CommandRunner, cfg config.CameraConfig) *RPiCamera {
	return &RPiCamera{runner: runner, cfg: cfg}
}

// CaptureImage takes one still and returns its path.
func (c *RPiCamera) CaptureImage(ctx context.Context, opts CaptureOptions) (string, error) {
	if opts.Path == "" {
		opts.Path = filepath.Join(os.TempDir(), fmt.Sprintf("hydrocore-still-%d-%d.jpg", os.Getpid(), c.seq.Add(1)))
	}
	if opts.Width == 0 && opts.Height == 0 {
		opts.Width, opts.Height = c.cfg.Width, c.cfg.Height
	}

	if _, err := c.runner.Run(ctx, process.Command{
		Name:    "rpicam-still",
		Binary:  c.cfg.Binary,
		Args:    stillArgs(opts),
		Timeout: stillTimeout,
	}); err != nil {
		return "", fmt.Errorf("capturing image: %w", err)
	}
	return opts.Path, nil
}

func stillArgs(o CaptureOptions) []string {
	args := []string{"-o", o.Path, "--immediate", "--nopreview"}
	if o.Shutter > 0 {
		args = append(args, "--shutter", strconv.FormatInt(o.Shutter.Microseconds(), 10))
	}
	if o.Gain > 0 {
		args = append(args, "--gain", formatFloat(o.Gain))
	}
	if o.EV != nil {
		args = append(args, "--ev", formatFloat(*o.EV))
	}
	if o.Metering != "" {
		args = append(args, "--metering", o.Metering)
	}
	if o.Saturation != nil {
		args = append(args, "--saturation", formatFloat(*o.Saturation))
	}
	if o.Brightness != nil {
		args = append(args, "--brightness", formatFloat(*o.Brightness))
	}
	if o.Contrast != nil {
		args = append(args, "--contrast", formatFloat(*o.Contrast))
	}
	if o.Width > 0 {
		args = append(args, "--width", strconv.Itoa(o.Width))
	}
	if o.Height > 0 {
		args = append(args, "--height", strconv.Itoa(o.Height))
	}
	return args
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
