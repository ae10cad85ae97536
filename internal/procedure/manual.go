package procedure

import (
	"context"
	"time"

	"github.com/zombieplant/hydrocore/internal/hardware"
)

// Dispense runs one pump for d. Any pump may be used, bounded by the
// configured single-run maximum.
func (r *Runner) Dispense(ctx context.Context, ch hardware.Channel, d time.Duration) (DispenseResult, error) {
	if !ch.IsPump() {
		return DispenseResult{}, validationf("Pump %s not found.", ch)
	}
	if d <= 0 || d > r.maxDispense {
		return DispenseResult{}, validationf("duration must be between 0 and %gs", r.maxDispense.Seconds())
	}
	if err := r.runPump(ctx, ch, d); err != nil {
		return DispenseResult{}, err
	}
	return DispenseResult{Status: StatusSuccess, Pump: string(ch), Duration: d.Seconds()}, nil
}

// SetRelay switches the AC relay (grow light and air pump).
func (r *Runner) SetRelay(on bool) (RelayResult, error) {
	act := r.dev.Actuator
	var err error
	if on {
		err = act.Activate(hardware.ACRelay)
	} else {
		err = act.Deactivate(hardware.ACRelay)
	}
	if err != nil {
		return RelayResult{}, hardwareErr("Relay Error", err)
	}
	state := "off"
	if on {
		state = "on"
	}
	r.logger.Info("ac relay switched", "state", state)
	return RelayResult{Status: StatusSuccess, ACPower: state}, nil
}
