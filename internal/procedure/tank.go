package procedure

import (
	"context"
	"fmt"

	"github.com/zombieplant/hydrocore/internal/hardware"
)

// Failure messages surfaced to callers.
const (
	msgFillTimeout   = "Fill timed out"
	msgAdjustTimeout = "Adjustment Error: Could not lower water level below sensor (Sensor stuck or tank severely overfilled?)"
	msgBothFullEmpty = "Sensor Failure: Tank reports BOTH Full and Empty."
)

// FillToMax fills the tank until the full switch trips, then drains until it
// releases so the water sits just below the sensor.
//
// Phase A runs the inlet pump only if the tank is not already full. Phase B
// runs the outlet pump whenever the tank reads full, whether initially or
// after phase A.
//
// Returns:
//   - FillResult: Both phase durations in seconds (zero for a skipped phase)
//   - error: *Error with KindTimeout, KindCancelled or KindHardware
func (r *Runner) FillToMax(ctx context.Context) (FillResult, error) {
	var res FillResult

	lvl, err := r.readLevel("Fill Error")
	if err != nil {
		return res, err
	}

	if !lvl.Full {
		pr, err := r.runPhase(ctx, phase{
			name:    "Fill",
			channel: hardware.WaterIn,
			ceiling: r.cfg.FillCeiling,
			done:    func(l hardware.Level) bool { return l.Full },
		})
		res.FillDuration = seconds(pr.elapsed)
		if err != nil {
			return res, err
		}
		if !pr.met {
			return res, &Error{Kind: KindTimeout, Msg: msgFillTimeout}
		}
		// The phase just saw the full switch trip.
		lvl.Full = true
	}

	if lvl.Full {
		pr, err := r.runPhase(ctx, phase{
			name:    "Adjustment",
			channel: hardware.WaterOut,
			ceiling: r.cfg.AdjustCeiling,
			done:    func(l hardware.Level) bool { return !l.Full },
		})
		res.AdjustDuration = seconds(pr.elapsed)
		if err != nil {
			return res, err
		}
		if !pr.met {
			return res, &Error{Kind: KindTimeout, Msg: msgAdjustTimeout}
		}
	}

	res.Status = StatusSuccess
	res.Message = "Tank filled and leveled"
	r.logger.Info("fill to max complete", "fill_s", res.FillDuration, "adjust_s", res.AdjustDuration)
	return res, nil
}

// EmptyTank drains until the empty switch trips.
//
// A tank reporting both full and empty fails immediately without touching
// the pump. An already-empty tank succeeds with zero duration and no
// activation.
func (r *Runner) EmptyTank(ctx context.Context) (EmptyResult, error) {
	lvl, err := r.readLevel("Drain Error")
	if err != nil {
		return EmptyResult{}, err
	}
	if lvl.Fault() {
		return EmptyResult{}, &Error{Kind: KindSensorFault, Msg: msgBothFullEmpty}
	}
	if lvl.Empty {
		return EmptyResult{Status: StatusSuccess, Message: "Tank already empty"}, nil
	}

	pr, err := r.runPhase(ctx, phase{
		name:    "Drain",
		channel: hardware.WaterOut,
		ceiling: r.cfg.DrainCeiling,
		done:    func(l hardware.Level) bool { return l.Empty },
	})
	if err != nil {
		return EmptyResult{Duration: seconds(pr.elapsed)}, err
	}
	if !pr.met {
		return EmptyResult{Duration: seconds(pr.elapsed)}, &Error{
			Kind: KindTimeout,
			Msg:  fmt.Sprintf("Pump stopped after %gs safety limit", r.cfg.DrainCeiling.Seconds()),
		}
	}

	r.logger.Info("tank emptied", "duration_s", seconds(pr.elapsed))
	return EmptyResult{Status: StatusSuccess, Message: "Tank emptied", Duration: seconds(pr.elapsed)}, nil
}

// FixOverflow drains a full tank back below the full switch with the short
// overflow ceiling. It runs unattended, so every failure is logged and
// swallowed; the result only says whether draining happened.
//
// A contradictory full-and-empty reading is logged and left alone.
func (r *Runner) FixOverflow(ctx context.Context) OverflowResult {
	res := OverflowResult{Status: StatusSuccess, Message: "No overflow detected"}

	lvl, err := r.dev.Level.ReadLevel()
	if err != nil {
		r.logger.Error("overflow check: level read failed", "error", err)
		res.Message = "Level read failed"
		return res
	}
	if lvl.Fault() {
		r.logger.Warn("overflow check skipped: tank reports both full and empty")
		res.Message = "Skipped: sensor fault"
		return res
	}
	if !lvl.Full {
		return res
	}

	r.logger.Warn("overflow detected, draining")
	pr, err := r.runPhase(ctx, phase{
		name:    "Overflow fix",
		channel: hardware.WaterOut,
		ceiling: r.cfg.OverflowCeiling,
		done:    func(l hardware.Level) bool { return !l.Full },
	})
	res.Drained = true
	res.Duration = seconds(pr.elapsed)

	switch {
	case err != nil:
		r.logger.Error("error during overflow fix", "error", err)
		res.Message = "Overflow fix interrupted"
	case !pr.met:
		r.logger.Error("overflow fix hit its ceiling; full switch still tripped",
			"ceiling", r.cfg.OverflowCeiling)
		res.Message = "Overflow fix reached safety limit"
	default:
		res.Message = "Overflow corrected"
	}
	return res
}
