package diagnostic

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/zombieplant/hydrocore/internal/hardware"
	"github.com/zombieplant/hydrocore/internal/infrastructure/config"
	"github.com/zombieplant/hydrocore/internal/procedure"
)

// Plausible sensor ranges. pH is tightened inward from 0-14 so a probe
// pinned at a rail (usually disconnected) fails.
const (
	PHMin       = 0.1
	PHMax       = 13.9
	TDSMin      = 0.0
	TempMinF    = 32.0
	TempMaxF    = 120.0
	HumidityMin = 0.0
	HumidityMax = 100.0
)

// Status is the overall diagnostic outcome.
type Status string

// Overall outcomes. A pump failure outranks sensor warnings.
const (
	StatusHealthy Status = "healthy"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// SensorCheck is the result of one sensor plausibility check.
type SensorCheck struct {
	Passed  bool   `json:"passed"`
	Value   any    `json:"value"`
	Message string `json:"message"`
}

// PumpCheck is the result of the acoustic pump check.
type PumpCheck struct {
	Passed     bool    `json:"passed"`
	PumpID     string  `json:"pump_id,omitempty"`
	NoiseLevel float64 `json:"noise_level"`
	Message    string  `json:"message"`
	Skipped    bool    `json:"skipped"`
}

// Report is a full diagnostic run.
type Report struct {
	Status  Status                 `json:"status"`
	Sensors map[string]SensorCheck `json:"sensors"`
	Pumps   PumpCheck              `json:"pumps"`
}

// PumpRunner runs one bounded pump activation.
type PumpRunner interface {
	Dispense(ctx context.Context, ch hardware.Channel, d time.Duration) (procedure.DispenseResult, error)
}

// Observer receives diagnostic telemetry.
type Observer interface {
	DiagnosticCompleted(status string, pumpPassed bool, rms float64)
	SensorSample(sensor string, value float64)
}

// Logger defines the logging interface for the checker.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopObserver struct{}

func (noopObserver) DiagnosticCompleted(string, bool, float64) {}
func (noopObserver) SensorSample(string, float64)              {}

// Checker runs sensor plausibility checks and the acoustic pump check.
// Like the procedures, it expects the caller to hold the exclusive gate.
type Checker struct {
	dev      hardware.Devices
	pumps    PumpRunner
	cfg      config.DiagnosticsConfig
	sleeper  procedure.Sleeper
	observer Observer
	logger   Logger
}

// NewChecker creates a diagnostic checker.
func NewChecker(dev hardware.Devices, pumps PumpRunner, cfg config.DiagnosticsConfig, logger Logger) *Checker {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Checker{
		dev:      dev,
		pumps:    pumps,
		cfg:      cfg,
		sleeper:  procedure.TimerSleeper{},
		observer: noopObserver{},
		logger:   logger,
	}
}

// SetSleeper replaces the lead-in timer.
func (c *Checker) SetSleeper(s procedure.Sleeper) {
	c.sleeper = s
}

// SetObserver registers a telemetry observer.
func (c *Checker) SetObserver(o Observer) {
	if o == nil {
		o = noopObserver{}
	}
	c.observer = o
}

// Run checks every sensor, then the pump, and classifies the result.
//
// Returns:
//   - Report: Always populated unless err is non-nil
//   - error: Only a *procedure.Error of KindCancelled when ctx ends during
//     the pump check; every hardware problem is reported in the Report
func (c *Checker) Run(ctx context.Context) (Report, error) {
	sensors := c.CheckSensors()
	pump, err := c.CheckPump(ctx)
	if err != nil {
		return Report{}, err
	}

	rep := Report{Status: Classify(sensors, pump), Sensors: sensors, Pumps: pump}
	c.observer.DiagnosticCompleted(string(rep.Status), pump.Passed, pump.NoiseLevel)
	c.logger.Info("diagnostic complete", "status", rep.Status, "pump", pump.PumpID, "rms", pump.NoiseLevel)
	return rep, nil
}

// Classify derives the overall status.
func Classify(sensors map[string]SensorCheck, pump PumpCheck) Status {
	status := StatusHealthy
	for _, s := range sensors {
		if !s.Passed {
			status = StatusWarning
		}
	}
	if !pump.Passed && !pump.Skipped {
		status = StatusError
	}
	return status
}

// CheckSensors reads pH, TDS and the environment sensor independently.
func (c *Checker) CheckSensors() map[string]SensorCheck {
	out := make(map[string]SensorCheck, 3)

	if v, err := c.dev.PH.ReadConcentration(); err != nil {
		out["ph"] = SensorCheck{Value: 0.0, Message: "Error: " + err.Error()}
	} else {
		c.observer.SensorSample("ph", v)
		passed := v >= PHMin && v <= PHMax
		msg := "Normal"
		if !passed {
			msg = fmt.Sprintf("Out of bounds (%g-%g)", PHMin, PHMax)
		}
		out["ph"] = SensorCheck{Passed: passed, Value: v, Message: msg}
	}

	if v, err := c.dev.TDS.ReadConcentration(); err != nil {
		out["tds"] = SensorCheck{Value: 0.0, Message: "Error: " + err.Error()}
	} else {
		c.observer.SensorSample("tds", v)
		passed := v >= TDSMin
		msg := "Normal"
		if !passed {
			msg = "Negative value"
		}
		out["tds"] = SensorCheck{Passed: passed, Value: v, Message: msg}
	}

	if env, err := c.dev.Environment.ReadEnvironment(); err != nil {
		out["environment"] = SensorCheck{Value: map[string]any{}, Message: err.Error()}
	} else {
		c.observer.SensorSample("temperature_f", env.TemperatureF)
		c.observer.SensorSample("humidity_percent", env.HumidityPercent)
		passed := env.TemperatureF >= TempMinF && env.TemperatureF <= TempMaxF &&
			env.HumidityPercent >= HumidityMin && env.HumidityPercent <= HumidityMax
		msg := "Normal"
		if !passed {
			msg = fmt.Sprintf("Out of bounds (Temp: %g, Hum: %g)", env.TemperatureF, env.HumidityPercent)
		}
		out["environment"] = SensorCheck{Passed: passed, Value: env, Message: msg}
	}

	return out
}

// SelectPump picks the safest pump to test: the inlet if the tank is not
// full, else the outlet if it is not empty. ok is false when neither is
// safe (including the full-and-empty fault).
func SelectPump(l hardware.Level) (ch hardware.Channel, ok bool) {
	switch {
	case !l.Full:
		return hardware.WaterIn, true
	case !l.Empty:
		return hardware.WaterOut, true
	default:
		return "", false
	}
}

type clip struct {
	path string
	err  error
}

// CheckPump runs the selected pump briefly while recording and passes if
// the recording is loud enough.
//
// The recording is started on its own goroutine and spans the pump run:
// it begins LeadIn before the pump starts and lasts CaptureWindow. Both are
// joined before analysis, and on every return path.
func (c *Checker) CheckPump(ctx context.Context) (PumpCheck, error) {
	lvl, err := c.dev.Level.ReadLevel()
	if err != nil {
		return PumpCheck{PumpID: "unknown", Message: "Error testing pump: " + err.Error()}, nil
	}
	ch, ok := SelectPump(lvl)
	if !ok {
		return PumpCheck{
			Passed:  true,
			Skipped: true,
			Message: "Skipped: Cannot safely run pumps (Tank state ambiguous or full/empty constraints).",
		}, nil
	}
	failed := func(err error) PumpCheck {
		return PumpCheck{PumpID: string(ch), Message: "Error testing pump: " + err.Error()}
	}

	capCtx, cancelCapture := context.WithCancel(ctx)
	defer cancelCapture()
	done := make(chan clip, 1)
	go func() {
		path, err := c.dev.Microphone.RecordClip(capCtx, c.cfg.CaptureWindow)
		done <- clip{path: path, err: err}
	}()
	// join cancels the capture if still running, waits for it and returns
	// the clip. Abandoned clips are removed.
	join := func(abort bool) clip {
		if abort {
			cancelCapture()
		}
		rec := <-done
		if abort && rec.path != "" {
			os.Remove(rec.path) //nolint:errcheck // temp file
		}
		return rec
	}

	if err := c.sleeper.Sleep(ctx, c.cfg.LeadIn); err != nil {
		join(true)
		return PumpCheck{}, &procedure.Error{Kind: procedure.KindCancelled, Msg: "Diagnostic cancelled", Err: err}
	}

	if _, err := c.pumps.Dispense(ctx, ch, c.cfg.PumpDuration); err != nil {
		join(true)
		if procedure.KindOf(err) == procedure.KindCancelled {
			return PumpCheck{}, err
		}
		return failed(err), nil
	}

	rec := join(false)
	if rec.err != nil {
		if ctx.Err() != nil {
			return PumpCheck{}, &procedure.Error{Kind: procedure.KindCancelled, Msg: "Diagnostic cancelled", Err: ctx.Err()}
		}
		return failed(rec.err), nil
	}
	defer os.Remove(rec.path) //nolint:errcheck // temp file

	level, err := AnalyzeRMS(rec.path)
	if err != nil {
		c.logger.Warn("clip analysis failed", "path", rec.path, "error", err)
		level = 0
	}

	passed := level > c.cfg.NoiseThreshold
	msg := fmt.Sprintf("Pump %s ran. Audio detected.", ch)
	if !passed {
		msg = fmt.Sprintf("Pump %s ran, but little audio detected.", ch)
	}
	return PumpCheck{Passed: passed, PumpID: string(ch), NoiseLevel: level, Message: msg}, nil
}
