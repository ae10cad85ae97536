package procedure

import (
	"context"
	"math"
	"time"

	"github.com/zombieplant/hydrocore/internal/hardware"
	"github.com/zombieplant/hydrocore/internal/infrastructure/config"
)

// Pump run outcomes reported to the Observer.
const (
	OutcomeOK        = "ok"
	OutcomeTimeout   = "timeout"
	OutcomeCancelled = "cancelled"
	OutcomeError     = "error"
)

// Sleeper suspends until d has passed or ctx is done.
// It is the only suspension point inside a phase.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// TimerSleeper sleeps on a real timer.
type TimerSleeper struct{}

// Sleep waits for d, returning ctx.Err() if ctx finishes first.
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Observer receives pump telemetry. Implementations must not block.
type Observer interface {
	PumpRun(ch hardware.Channel, d time.Duration, outcome string)
}

// Logger defines the logging interface for procedures.
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

type noopObserver struct{}

func (noopObserver) PumpRun(hardware.Channel, time.Duration, string) {}

// Runner executes the composite procedures against a set of devices.
//
// Runner does not take the exclusive gate. Callers (controller, jobs,
// watchdog) hold it around each call.
type Runner struct {
	dev         hardware.Devices
	cfg         config.ProceduresConfig
	mlPerSec    float64
	maxDispense time.Duration

	sleeper  Sleeper
	observer Observer
	logger   Logger
}

// NewRunner creates a procedure runner.
//
// Parameters:
//   - dev: Device collaborators
//   - cfg: Poll interval, ceilings and mix/soak timings
//   - hw: Calibration ratio and the single-activation bound
//   - logger: Optional; nil discards
func NewRunner(dev hardware.Devices, cfg config.ProceduresConfig, hw config.HardwareConfig, logger Logger) *Runner {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Runner{
		dev:         dev,
		cfg:         cfg,
		mlPerSec:    hw.CalibrationMLPerSec,
		maxDispense: hw.MaxDispense,
		sleeper:     TimerSleeper{},
		observer:    noopObserver{},
		logger:      logger,
	}
}

// SetSleeper replaces the time source for waits and poll ticks.
func (r *Runner) SetSleeper(s Sleeper) {
	r.sleeper = s
}

// SetObserver registers a telemetry observer.
func (r *Runner) SetObserver(o Observer) {
	if o == nil {
		o = noopObserver{}
	}
	r.observer = o
}

// Devices returns the collaborators the runner drives.
func (r *Runner) Devices() hardware.Devices {
	return r.dev
}

// phase is one activate → poll → deactivate segment.
type phase struct {
	name    string
	channel hardware.Channel
	ceiling time.Duration
	done    func(hardware.Level) bool
}

// phaseResult reports how a phase ended. A nil err with met=false is a
// ceiling timeout; the caller words the failure.
type phaseResult struct {
	elapsed time.Duration
	met     bool
}

// runPhase activates the channel and polls the level sensor until done
// reports true or the ceiling is reached. Elapsed time accumulates one poll
// interval per tick. The channel is deactivated on every return path.
//
// A condition observed at the ceiling counts as met.
func (r *Runner) runPhase(ctx context.Context, p phase) (res phaseResult, err error) {
	if err := ctx.Err(); err != nil {
		return res, cancelledErr(p.name, err)
	}
	if err := r.dev.Actuator.Activate(p.channel); err != nil {
		r.observer.PumpRun(p.channel, 0, OutcomeError)
		return res, hardwareErr(p.name, err)
	}
	r.logger.Debug("phase started", "phase", p.name, "channel", p.channel, "ceiling", p.ceiling)

	defer func() {
		outcome := OutcomeOK
		switch {
		case err != nil && KindOf(err) == KindCancelled:
			outcome = OutcomeCancelled
		case err != nil:
			outcome = OutcomeError
		case !res.met:
			outcome = OutcomeTimeout
		}
		if derr := r.dev.Actuator.Deactivate(p.channel); derr != nil {
			r.logger.Error("deactivate failed", "phase", p.name, "channel", p.channel, "error", derr)
			if err == nil {
				err = hardwareErr(p.name, derr)
				outcome = OutcomeError
			}
		}
		r.observer.PumpRun(p.channel, res.elapsed, outcome)
		r.logger.Debug("phase finished", "phase", p.name, "elapsed", res.elapsed, "outcome", outcome)
	}()

	for {
		lvl, rerr := r.dev.Level.ReadLevel()
		if rerr != nil {
			return res, hardwareErr(p.name, rerr)
		}
		if p.done(lvl) {
			res.met = true
			return res, nil
		}
		if res.elapsed >= p.ceiling {
			return res, nil
		}
		if serr := r.sleeper.Sleep(ctx, r.cfg.PollInterval); serr != nil {
			return res, cancelledErr(p.name, serr)
		}
		res.elapsed += r.cfg.PollInterval
	}
}

// wait is a cancellable hold (mix, soak, settle).
func (r *Runner) wait(ctx context.Context, what string, d time.Duration) error {
	if err := r.sleeper.Sleep(ctx, d); err != nil {
		return cancelledErr(what, err)
	}
	return nil
}

func (r *Runner) readLevel(prefix string) (hardware.Level, error) {
	lvl, err := r.dev.Level.ReadLevel()
	if err != nil {
		return lvl, hardwareErr(prefix, err)
	}
	return lvl, nil
}

func (r *Runner) readTDS() (float64, error) {
	v, err := r.dev.TDS.ReadConcentration()
	if err != nil {
		return 0, hardwareErr("TDS read failed", err)
	}
	return v, nil
}

// seconds rounds d to two decimal places of seconds.
func seconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}
