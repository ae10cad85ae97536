package controller

import (
	"context"
	"time"

	"github.com/zombieplant/hydrocore/internal/diagnostic"
	"github.com/zombieplant/hydrocore/internal/gate"
	"github.com/zombieplant/hydrocore/internal/hardware"
	"github.com/zombieplant/hydrocore/internal/procedure"
)

// Logger is the logging interface used by the controller.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Controller runs direct, gated calls against the procedure runner.
type Controller struct {
	gate    *gate.Gate
	runner  *procedure.Runner
	checker *diagnostic.Checker
	logger  Logger
	wait    bool
}

// Snapshot is the hardware status plus the gate's current holder.
type Snapshot struct {
	hardware.Status
	Busy   bool         `json:"busy"`
	Holder *gate.Holder `json:"holder,omitempty"`
}

// New creates a controller that rejects calls while the gate is held.
func New(g *gate.Gate, runner *procedure.Runner, checker *diagnostic.Checker, logger Logger) *Controller {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Controller{gate: g, runner: runner, checker: checker, logger: logger}
}

// Blocking returns a controller sharing c's collaborators whose calls
// wait for the gate instead of failing with gate.ErrBusy.
func (c *Controller) Blocking() *Controller {
	b := *c
	b.wait = true
	return &b
}

func (c *Controller) acquire(ctx context.Context, owner string) error {
	if c.wait {
		return c.gate.Acquire(ctx, owner)
	}
	if err := c.gate.AcquireOrBusy(owner); err != nil {
		c.logger.Warn("request rejected: system busy", "operation", owner, "error", err)
		return err
	}
	return nil
}

// Status reads every device without taking the gate. Sensor errors are
// reported per field.
func (c *Controller) Status() Snapshot {
	snap := Snapshot{Status: hardware.ReadStatus(c.runner.Devices())}
	if h, ok := c.gate.Holder(); ok {
		snap.Busy = true
		snap.Holder = &h
	}
	return snap
}

// FillToMax fills the tank and levels it at the full switch.
func (c *Controller) FillToMax(ctx context.Context) (procedure.FillResult, error) {
	if err := c.acquire(ctx, "fill_to_max"); err != nil {
		return procedure.FillResult{}, err
	}
	defer c.gate.Release()
	return c.runner.FillToMax(ctx)
}

// EmptyTank drains the tank.
func (c *Controller) EmptyTank(ctx context.Context) (procedure.EmptyResult, error) {
	if err := c.acquire(ctx, "empty_tank"); err != nil {
		return procedure.EmptyResult{}, err
	}
	defer c.gate.Release()
	return c.runner.EmptyTank(ctx)
}

// FixOverflow runs the bounded overflow drain on demand.
func (c *Controller) FixOverflow(ctx context.Context) (procedure.OverflowResult, error) {
	if err := c.acquire(ctx, "fix_overflow"); err != nil {
		return procedure.OverflowResult{}, err
	}
	defer c.gate.Release()
	return c.runner.FixOverflow(ctx), nil
}

// SystemFlush runs the drain/fill/soak/drain/fill rinse.
func (c *Controller) SystemFlush(ctx context.Context, soak time.Duration) (procedure.FlushResult, error) {
	if err := c.acquire(ctx, "system_flush"); err != nil {
		return procedure.FlushResult{}, err
	}
	defer c.gate.Release()
	return c.runner.SystemFlush(ctx, soak)
}

// FeedCycle replaces the water with a fresh nutrient mix.
func (c *Controller) FeedCycle(ctx context.Context, req procedure.FeedRequest) (procedure.FeedResult, error) {
	// Reject bad recipes before competing for the gate.
	if _, err := req.Amounts(); err != nil {
		return procedure.FeedResult{}, err
	}
	if err := c.acquire(ctx, "feed"); err != nil {
		return procedure.FeedResult{}, err
	}
	defer c.gate.Release()
	return c.runner.FeedCycle(ctx, req)
}

// Dose adds a single nutrient to the current water.
func (c *Controller) Dose(ctx context.Context, req procedure.DoseRequest) (procedure.DoseResult, error) {
	if err := c.runner.ValidateDose(req); err != nil {
		return procedure.DoseResult{}, err
	}
	if err := c.acquire(ctx, "dose"); err != nil {
		return procedure.DoseResult{}, err
	}
	defer c.gate.Release()
	return c.runner.Dose(ctx, req)
}

// Dispense runs one pump for d.
func (c *Controller) Dispense(ctx context.Context, ch hardware.Channel, d time.Duration) (procedure.DispenseResult, error) {
	if err := c.acquire(ctx, "dispense:"+ch.String()); err != nil {
		return procedure.DispenseResult{}, err
	}
	defer c.gate.Release()
	return c.runner.Dispense(ctx, ch, d)
}

// SetRelay switches the AC relay.
func (c *Controller) SetRelay(ctx context.Context, on bool) (procedure.RelayResult, error) {
	if err := c.acquire(ctx, "ac_relay"); err != nil {
		return procedure.RelayResult{}, err
	}
	defer c.gate.Release()
	return c.runner.SetRelay(on)
}

// Diagnose runs the sensor and acoustic pump checks.
func (c *Controller) Diagnose(ctx context.Context) (diagnostic.Report, error) {
	if err := c.acquire(ctx, "diagnose"); err != nil {
		return diagnostic.Report{}, err
	}
	defer c.gate.Release()
	return c.checker.Run(ctx)
}
