package procedure

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/zombieplant/hydrocore/internal/hardware"
)

// Recipe names a nutrient mix.
type Recipe string

// Known recipes. Custom requires explicit amounts.
const (
	Vegetative Recipe = "vegetative"
	Flowering  Recipe = "flowering"
	Custom     Recipe = "custom"
)

// presets are per-fill volumes in millilitres.
var presets = map[Recipe]map[hardware.Channel]float64{
	Vegetative: {hardware.FloraMicro: 4.0, hardware.FloraGro: 5.0, hardware.FloraBloom: 1.0},
	Flowering:  {hardware.FloraMicro: 4.0, hardware.FloraGro: 1.0, hardware.FloraBloom: 5.0},
}

// FeedRequest selects a recipe. AmountsML is required for Custom and
// ignored otherwise; keys are nutrient channel names.
type FeedRequest struct {
	Recipe    Recipe             `json:"recipe"`
	AmountsML map[string]float64 `json:"amounts_ml,omitempty"`
}

// DoseRequest adds a single nutrient to the current water.
type DoseRequest struct {
	Nutrient string        `json:"nutrient"`
	AmountML float64       `json:"amount_ml"`
	Mix      time.Duration `json:"-"`
}

// Amounts resolves the request to per-channel volumes.
//
// Returns:
//   - map: Volume in mL per nutrient channel
//   - error: KindValidation for an unknown recipe, a custom recipe without
//     amounts, an unknown nutrient key, or a negative volume
func (req FeedRequest) Amounts() (map[hardware.Channel]float64, error) {
	switch req.Recipe {
	case Vegetative, Flowering:
		return presets[req.Recipe], nil
	case Custom:
	default:
		return nil, validationf("Invalid recipe: %s", req.Recipe)
	}

	if len(req.AmountsML) == 0 {
		return nil, validationf("Custom recipe requires 'amounts_ml' parameter.")
	}
	out := make(map[hardware.Channel]float64, len(req.AmountsML))
	for key, ml := range req.AmountsML {
		ch := hardware.Channel(key)
		if !ch.IsNutrient() {
			return nil, validationf("Invalid nutrient type: %s", key)
		}
		if ml < 0 || math.IsNaN(ml) || math.IsInf(ml, 0) {
			return nil, validationf("Invalid amount for %s: %v", key, ml)
		}
		out[ch] = ml
	}
	return out, nil
}

// doseDuration converts a volume to a pump run with the calibration ratio.
func (r *Runner) doseDuration(ch hardware.Channel, ml float64) (time.Duration, error) {
	d := time.Duration(ml / r.mlPerSec * float64(time.Second))
	if d > r.maxDispense {
		return 0, validationf("%s: %.1f mL needs %s, above the %s single-run limit", ch, ml, d, r.maxDispense)
	}
	return d, nil
}

// FeedCycle replaces the reservoir water with a fresh nutrient mix.
//
// Steps: validate the recipe, drain, dose each nutrient in turn into the
// empty tank (micro, gro, bloom), fill to max, then mix with the air relay
// on. The relay is left on afterwards. The final TDS is read and returned.
func (r *Runner) FeedCycle(ctx context.Context, req FeedRequest) (FeedResult, error) {
	amounts, err := req.Amounts()
	if err != nil {
		return FeedResult{}, err
	}
	durations := make(map[hardware.Channel]time.Duration, len(amounts))
	for ch, ml := range amounts {
		if ml <= 0 {
			continue
		}
		if durations[ch], err = r.doseDuration(ch, ml); err != nil {
			return FeedResult{}, err
		}
	}

	if _, err := r.EmptyTank(ctx); err != nil {
		return FeedResult{}, err
	}

	dispensed := make(map[string]float64, len(durations))
	for _, ch := range hardware.Nutrients {
		d, ok := durations[ch]
		if !ok {
			continue
		}
		if err := r.runPump(ctx, ch, d); err != nil {
			return FeedResult{}, err
		}
		dispensed[string(ch)] = amounts[ch]
	}

	if _, err := r.FillToMax(ctx); err != nil {
		return FeedResult{}, err
	}

	// Mixing also lights the canopy; the relay stays as mixing left it.
	if err := r.holdRelay(ctx, "Mix", r.cfg.FeedMix, false); err != nil {
		return FeedResult{}, err
	}

	tds, err := r.readTDS()
	if err != nil {
		return FeedResult{}, err
	}

	r.logger.Info("feed cycle complete", "recipe", req.Recipe, "final_tds", tds)
	return FeedResult{
		Status:           StatusSuccess,
		Message:          "Feed cycle complete",
		Recipe:           req.Recipe,
		AmountsDispensed: dispensed,
		FinalTDS:         tds,
	}, nil
}

// Dose dispenses one nutrient into the current water and mixes for
// req.Mix. If the relay was off it is switched off again, followed by a
// short settle so bubbles do not skew the TDS reading.
func (r *Runner) Dose(ctx context.Context, req DoseRequest) (DoseResult, error) {
	ch, d, err := r.planDose(req)
	if err != nil {
		return DoseResult{}, err
	}

	if err := r.runPump(ctx, ch, d); err != nil {
		return DoseResult{}, err
	}

	wasActive := r.dev.Actuator.IsActive(hardware.ACRelay)
	if err := r.holdRelay(ctx, "Mix", req.Mix, true); err != nil {
		return DoseResult{}, err
	}
	if !wasActive {
		if err := r.wait(ctx, "Settle", r.cfg.DoseSettle); err != nil {
			return DoseResult{}, err
		}
	}

	tds, err := r.readTDS()
	if err != nil {
		return DoseResult{}, err
	}
	return DoseResult{
		Status:            StatusSuccess,
		Message:           "Dose complete",
		Nutrient:          req.Nutrient,
		AmountDispensedML: req.AmountML,
		FinalTDS:          tds,
	}, nil
}

// ValidateDose checks req without touching hardware. It returns the same
// KindValidation errors Dose would.
func (r *Runner) ValidateDose(req DoseRequest) error {
	_, _, err := r.planDose(req)
	return err
}

// planDose resolves a dose to its pump channel and run time.
func (r *Runner) planDose(req DoseRequest) (hardware.Channel, time.Duration, error) {
	ch := hardware.Channel(req.Nutrient)
	if !ch.IsNutrient() {
		return "", 0, validationf("Invalid nutrient pump: %s", req.Nutrient)
	}
	if !(req.AmountML > 0) || math.IsInf(req.AmountML, 0) {
		return "", 0, validationf("amount_ml must be positive")
	}
	if req.Mix < 0 {
		return "", 0, validationf("mix_seconds must not be negative")
	}
	d, err := r.doseDuration(ch, req.AmountML)
	if err != nil {
		return "", 0, err
	}
	return ch, d, nil
}

// runPump is a bounded activation: on, wait d, off. The pump is switched
// off on every return path.
func (r *Runner) runPump(ctx context.Context, ch hardware.Channel, d time.Duration) (err error) {
	if err := ctx.Err(); err != nil {
		return cancelledErr(fmt.Sprintf("Dispense %s", ch), err)
	}
	if err := r.dev.Actuator.Activate(ch); err != nil {
		r.observer.PumpRun(ch, 0, OutcomeError)
		return hardwareErr(fmt.Sprintf("Dispense %s", ch), err)
	}
	defer func() {
		if derr := r.dev.Actuator.Deactivate(ch); derr != nil {
			r.logger.Error("deactivate failed", "channel", ch, "error", derr)
			if err == nil {
				err = hardwareErr(fmt.Sprintf("Dispense %s", ch), derr)
			}
		}
		outcome := OutcomeOK
		if err != nil {
			outcome = OutcomeError
			if KindOf(err) == KindCancelled {
				outcome = OutcomeCancelled
			}
		}
		r.observer.PumpRun(ch, d, outcome)
	}()
	return r.wait(ctx, fmt.Sprintf("Dispense %s", ch), d)
}
