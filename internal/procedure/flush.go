package procedure

import (
	"context"
	"fmt"
	"time"

	"github.com/zombieplant/hydrocore/internal/hardware"
)

// SystemFlush rinses the roots: drain, fresh fill, circulate for the soak
// duration, drain the rinse water and refill.
//
// The air relay is switched on for the soak and back off afterwards only if
// it was off before. A negative soak is rejected before any hardware action.
//
// Returns:
//   - FlushResult: Carries the final FillToMax result
//   - error: The first failing step's *Error
func (r *Runner) SystemFlush(ctx context.Context, soak time.Duration) (FlushResult, error) {
	if soak < 0 {
		return FlushResult{}, validationf("soak_duration must not be negative")
	}

	if _, err := r.EmptyTank(ctx); err != nil {
		return FlushResult{}, err
	}
	if _, err := r.FillToMax(ctx); err != nil {
		return FlushResult{}, err
	}
	if err := r.holdRelay(ctx, "Soak", soak, true); err != nil {
		return FlushResult{}, err
	}
	if _, err := r.EmptyTank(ctx); err != nil {
		return FlushResult{}, err
	}
	final, err := r.FillToMax(ctx)
	if err != nil {
		return FlushResult{}, err
	}

	return FlushResult{
		Status:    StatusSuccess,
		Message:   fmt.Sprintf("System flush complete (Soak: %gs)", soak.Seconds()),
		FinalFill: final,
	}, nil
}

// holdRelay ensures the AC relay is on for d. With restore set, a relay that
// was off beforehand is switched off again on every exit path.
func (r *Runner) holdRelay(ctx context.Context, what string, d time.Duration, restore bool) (err error) {
	act := r.dev.Actuator
	wasActive := act.IsActive(hardware.ACRelay)
	if !wasActive {
		if err := act.Activate(hardware.ACRelay); err != nil {
			return hardwareErr(what+" Error", err)
		}
		if restore {
			defer func() {
				if derr := act.Deactivate(hardware.ACRelay); derr != nil {
					r.logger.Error("restoring relay failed", "step", what, "error", derr)
					if err == nil {
						err = hardwareErr(what+" Error", derr)
					}
				}
			}()
		}
	}
	return r.wait(ctx, what, d)
}
