package timelapse

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/zombieplant/hydrocore/internal/gate"
	"github.com/zombieplant/hydrocore/internal/hardware"
	"github.com/zombieplant/hydrocore/internal/infrastructure/config"
	"github.com/zombieplant/hydrocore/internal/procedure"
	"github.com/zombieplant/hydrocore/internal/process"
)

const (
	gateOwner = "timelapse"

	overlayFont    = "/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf"
	overlayTimeout = 30 * time.Second
	encodeTimeout  = 30 * time.Minute
)

var (
	// ErrNoFrames is returned by Encode when the image directory is empty.
	ErrNoFrames = errors.New("timelapse: no frames to encode")

	// ErrCameraUnavailable is returned while the camera breaker is open.
	ErrCameraUnavailable = errors.New("timelapse: camera unavailable")
)

// Outcome is the result of one scheduled tick.
type Outcome string

// Tick outcomes.
const (
	OutcomeCaptured    Outcome = "ok"
	OutcomeBusy        Outcome = "busy"
	OutcomeBreakerOpen Outcome = "breaker_open"
	OutcomeError       Outcome = "error"
)

// Observer receives capture outcomes. *metrics.Recorder implements it.
type Observer interface {
	TimelapseCapture(outcome string)
}

// Logger is the logging interface used by the timelapse service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Service captures frames and encodes videos.
type Service struct {
	gate    *gate.Gate
	relay   hardware.Actuator
	camera  hardware.Camera
	runner  hardware.CommandRunner
	cfg     config.TimelapseConfig
	breaker *gobreaker.CircuitBreaker
	sleeper procedure.Sleeper
	logger  Logger
	now     func() time.Time

	observer Observer

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a timelapse service.
//
// Parameters:
//   - g: Exclusive gate shared with the procedures
//   - relay: Actuator owning the AC relay (grow light)
//   - camera: Still camera
//   - runner: External command runner for ffmpeg
//   - cfg: Timelapse section of config.yaml
//   - logger: Logger instance (may be nil)
func New(g *gate.Gate, relay hardware.Actuator, camera hardware.Camera, runner hardware.CommandRunner, cfg config.TimelapseConfig, logger Logger) *Service {
	if logger == nil {
		logger = noopLogger{}
	}
	failures := cfg.BreakerFailures
	if failures <= 0 {
		failures = 3
	}
	s := &Service{
		gate:    g,
		relay:   relay,
		camera:  camera,
		runner:  runner,
		cfg:     cfg,
		sleeper: procedure.TimerSleeper{},
		logger:  logger,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "camera",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(failures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("camera breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return s
}

// SetSleeper replaces the warm-up sleeper. Tests use an instant one.
func (s *Service) SetSleeper(sl procedure.Sleeper) { s.sleeper = sl }

// SetObserver attaches an outcome observer.
func (s *Service) SetObserver(o Observer) { s.observer = o }

// Start launches the capture loop. Each successful capture is followed by
// a re-encode of the day's video.
func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("timelapse started", "interval", s.cfg.Interval)
}

// Stop ends the loop and waits for an in-flight capture or encode.
// Safe to call multiple times.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}

func (s *Service) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			if s.Tick(ctx) != OutcomeCaptured {
				continue
			}
			if _, err := s.Encode(ctx); err != nil {
				s.logger.Error("timelapse encode failed", "error", err)
			}
		}
	}
}

// Tick is one scheduled capture. It never waits for the gate.
func (s *Service) Tick(ctx context.Context) Outcome {
	outcome := s.tick(ctx)
	if s.observer != nil {
		s.observer.TimelapseCapture(string(outcome))
	}
	return outcome
}

func (s *Service) tick(ctx context.Context) Outcome {
	if s.breaker.State() == gobreaker.StateOpen {
		s.logger.Debug("timelapse tick skipped: camera breaker open")
		return OutcomeBreakerOpen
	}
	if !s.gate.TryAcquire(gateOwner) {
		s.logger.Debug("timelapse tick skipped: system busy")
		return OutcomeBusy
	}
	defer s.gate.Release()

	if _, err := s.capture(ctx); err != nil {
		s.logger.Error("timelapse capture failed", "error", err)
		return OutcomeError
	}
	return OutcomeCaptured
}

// Capture takes one frame on demand.
//
// Returns:
//   - string: Path of the stored frame
//   - error: gate.ErrBusy if a procedure holds the gate,
//     ErrCameraUnavailable while the breaker is open, or the capture error
func (s *Service) Capture(ctx context.Context) (string, error) {
	if err := s.gate.AcquireOrBusy(gateOwner); err != nil {
		return "", err
	}
	defer s.gate.Release()
	return s.capture(ctx)
}

// capture runs with the gate held.
func (s *Service) capture(ctx context.Context) (path string, err error) {
	// Raw stills live below ImageDir so Encode's glob never picks them up.
	rawDir := filepath.Join(s.cfg.ImageDir, "raw")
	if err := os.MkdirAll(rawDir, 0o755); err != nil {
		return "", fmt.Errorf("creating image dir: %w", err)
	}

	if !s.relay.IsActive(hardware.ACRelay) {
		if err := s.relay.Activate(hardware.ACRelay); err != nil {
			return "", fmt.Errorf("switching grow light on: %w", err)
		}
		defer func() {
			if derr := s.relay.Deactivate(hardware.ACRelay); derr != nil {
				s.logger.Error("failed to restore grow light", "error", derr)
				if err == nil {
					err = fmt.Errorf("switching grow light off: %w", derr)
				}
			}
		}()
		if err := s.sleeper.Sleep(ctx, s.cfg.WarmUp); err != nil {
			return "", fmt.Errorf("warm-up: %w", err)
		}
	}

	taken := s.now()
	raw := filepath.Join(rawDir, fmt.Sprintf("%d.jpg", taken.UnixMilli()))
	ev, saturation := -1.0, 0.8
	res, err := s.breaker.Execute(func() (interface{}, error) {
		return s.camera.CaptureImage(ctx, hardware.CaptureOptions{
			Path:       raw,
			EV:         &ev,
			Saturation: &saturation,
			Metering:   "average",
		})
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", ErrCameraUnavailable
	}
	if err != nil {
		return "", err
	}
	captured := res.(string)

	target := filepath.Join(s.cfg.ImageDir, fmt.Sprintf("%d.jpg", taken.UnixMilli()))
	if oerr := s.overlay(ctx, captured, target, taken); oerr != nil {
		s.logger.Warn("timestamp overlay failed; keeping raw frame", "error", oerr)
		if rerr := os.Rename(captured, target); rerr != nil {
			return "", fmt.Errorf("storing frame: %w", rerr)
		}
	} else {
		_ = os.Remove(captured) //nolint:errcheck // raw copy is disposable
	}

	s.logger.Info("timelapse frame captured", "path", target)
	return target, nil
}

// overlay burns the capture time into the bottom-left corner.
func (s *Service) overlay(ctx context.Context, src, dst string, taken time.Time) error {
	if s.cfg.FFmpegBinary == "" {
		return errors.New("ffmpeg not configured")
	}
	// drawtext treats ':' as an option separator.
	stamp := strings.ReplaceAll(taken.Format("01/02/2006 15:04"), ":", `\:`)
	filter := fmt.Sprintf(
		"drawtext=fontfile=%s:text='%s':fontcolor=white:fontsize=48:box=1:boxcolor=black@0.5:boxborderw=5:x=20:y=h-th-20",
		overlayFont, stamp,
	)
	_, err := s.runner.Run(ctx, process.Command{
		Name:    "ffmpeg-overlay",
		Binary:  s.cfg.FFmpegBinary,
		Args:    []string{"-y", "-loglevel", "error", "-i", src, "-vf", filter, dst},
		Timeout: overlayTimeout,
	})
	if err != nil {
		return err
	}
	if _, err := os.Stat(dst); err != nil {
		return fmt.Errorf("overlay output missing: %w", err)
	}
	return nil
}

// Encode stitches every stored frame into VideoDir/YYYY-MM-DD.mp4. It
// touches no actuator and does not take the gate.
//
// Returns:
//   - string: Path of the written video
//   - error: ErrNoFrames, or the ffmpeg failure
func (s *Service) Encode(ctx context.Context) (string, error) {
	frames, err := filepath.Glob(filepath.Join(s.cfg.ImageDir, "*.jpg"))
	if err != nil {
		return "", fmt.Errorf("listing frames: %w", err)
	}
	if len(frames) == 0 {
		return "", ErrNoFrames
	}
	if err := os.MkdirAll(s.cfg.VideoDir, 0o755); err != nil {
		return "", fmt.Errorf("creating video dir: %w", err)
	}

	out := filepath.Join(s.cfg.VideoDir, s.now().Format("2006-01-02")+".mp4")
	rate := s.cfg.FrameRate
	if rate <= 0 {
		rate = 24
	}

	s.logger.Info("encoding timelapse", "frames", len(frames), "output", out)
	if _, err := s.runner.Run(ctx, process.Command{
		Name:   "ffmpeg-encode",
		Binary: s.cfg.FFmpegBinary,
		Args: []string{
			"-y", "-loglevel", "error",
			"-framerate", strconv.Itoa(rate),
			"-pattern_type", "glob",
			"-i", filepath.Join(s.cfg.ImageDir, "*.jpg"),
			"-c:v", "libx264",
			"-pix_fmt", "yuv420p",
			"-vf", "scale=1920:-2",
			"-crf", "28",
			"-preset", "slow",
			out,
		},
		Timeout: encodeTimeout,
	}); err != nil {
		return "", fmt.Errorf("encoding video: %w", err)
	}
	return out, nil
}

// BreakerState reports the camera breaker state ("closed", "open", "half-open").
func (s *Service) BreakerState() string {
	return s.breaker.State().String()
}
