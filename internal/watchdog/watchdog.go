package watchdog

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/zombieplant/hydrocore/internal/gate"
	"github.com/zombieplant/hydrocore/internal/hardware"
	"github.com/zombieplant/hydrocore/internal/infrastructure/mqtt"
	"github.com/zombieplant/hydrocore/internal/procedure"
)

// gateOwner labels the watchdog in gate status and metrics.
const gateOwner = "watchdog"

// Outcome is the result of one watchdog cycle.
type Outcome string

// Cycle outcomes.
const (
	OutcomeBusy      Outcome = "busy"
	OutcomeOK        Outcome = "ok"
	OutcomeFixed     Outcome = "fixed"
	OutcomeFault     Outcome = "sensor_fault"
	OutcomeReadError Outcome = "read_error"
)

// Fixer drains an overflowing tank. *procedure.Runner implements it.
type Fixer interface {
	FixOverflow(ctx context.Context) procedure.OverflowResult
}

// Observer receives watchdog measurements. *metrics.Recorder implements it.
type Observer interface {
	TankLevel(full, empty bool)
	WatchdogCycle(outcome string)
}

// MQTTClient publishes safety alerts.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger is the logging interface used by the watchdog.
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

// Watchdog periodically checks for overflow.
type Watchdog struct {
	gate     *gate.Gate
	level    hardware.LevelSensor
	fixer    Fixer
	interval time.Duration
	logger   Logger

	mqtt     MQTTClient
	observer Observer
	topics   mqtt.Topics

	// faulted tracks the sensor-fault state so the alert fires once per
	// episode rather than every cycle. Only the loop goroutine touches it.
	faulted bool

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a watchdog.
//
// Parameters:
//   - g: Exclusive gate shared with every foreground sequence
//   - level: Tank level switches
//   - fixer: Overflow fix procedure
//   - interval: Cycle period
//   - logger: Logger instance (may be nil)
func New(g *gate.Gate, level hardware.LevelSensor, fixer Fixer, interval time.Duration, logger Logger) *Watchdog {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Watchdog{
		gate:     g,
		level:    level,
		fixer:    fixer,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// SetMQTT attaches an alert publisher. Call before Start.
func (w *Watchdog) SetMQTT(c MQTTClient) { w.mqtt = c }

// SetObserver attaches a measurement observer. Call before Start.
func (w *Watchdog) SetObserver(o Observer) { w.observer = o }

// Start launches the check loop. Call Stop to shut it down.
func (w *Watchdog) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.loop(ctx)
	w.logger.Info("overflow watchdog started", "interval", w.interval)
}

// Stop ends the loop and waits for an in-flight cycle to finish.
// Safe to call multiple times.
func (w *Watchdog) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.wg.Wait()
	})
}

func (w *Watchdog) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}

// Check runs one cycle. It never blocks on the gate.
func (w *Watchdog) Check(ctx context.Context) Outcome {
	outcome := w.check(ctx)
	if w.observer != nil {
		w.observer.WatchdogCycle(string(outcome))
	}
	return outcome
}

func (w *Watchdog) check(ctx context.Context) Outcome {
	if !w.gate.TryAcquire(gateOwner) {
		w.logger.Debug("watchdog skipped: system busy")
		return OutcomeBusy
	}
	defer w.gate.Release()

	lvl, err := w.level.ReadLevel()
	if err != nil {
		w.logger.Error("watchdog: level read failed", "error", err)
		return OutcomeReadError
	}
	if w.observer != nil {
		w.observer.TankLevel(lvl.Full, lvl.Empty)
	}

	if lvl.Fault() {
		w.logger.Warn("watchdog: tank reports both full and empty; not attempting a fix")
		if !w.faulted {
			w.faulted = true
			w.alert("sensor_fault", "Tank reports BOTH Full and Empty.")
		}
		return OutcomeFault
	}
	w.faulted = false

	if !lvl.Full {
		return OutcomeOK
	}

	res := w.fixer.FixOverflow(ctx)
	w.logger.Warn("watchdog: overflow handled", "result", res.Message, "duration_s", res.Duration)
	w.alert("overflow", res.Message)
	return OutcomeFixed
}

func (w *Watchdog) alert(kind, message string) {
	if w.mqtt == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"kind":      kind,
		"message":   message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		w.logger.Error("watchdog: encoding alert", "error", err)
		return
	}
	if err := w.mqtt.Publish(w.topics.Alert(kind), payload, 1, false); err != nil {
		w.logger.Warn("watchdog: publishing alert failed", "kind", kind, "error", err)
	}
}
