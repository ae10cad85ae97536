package procedure

import (
	"context"
	"testing"
	"time"

	"github.com/zombieplant/hydrocore/internal/hardware"
)

// cycleTank drains to empty after 2 outlet polls and fills after 2 inlet
// polls; a full tank drops below the sensor after 1 outlet poll.
func cycleTank(f *fakeTank) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case f.active[hardware.WaterIn] && f.polls[hardware.WaterIn]%2 == 0:
		f.level = hardware.Level{Full: true}
	case f.active[hardware.WaterOut] && f.level.Full:
		f.level = hardware.Level{}
	case f.active[hardware.WaterOut] && f.polls[hardware.WaterOut]%2 == 0:
		f.level = hardware.Level{Empty: true}
	}
}

func TestSystemFlush_RestoresRelayWhenOff(t *testing.T) {
	tank := newFakeTank(hardware.Level{Empty: true})
	tank.rules = cycleTank
	r, s := newTestRunner(t, tank)

	res, err := r.SystemFlush(context.Background(), 90*time.Second)
	if err != nil {
		t.Fatalf("SystemFlush() error = %v", err)
	}
	if res.Message != "System flush complete (Soak: 90s)" {
		t.Errorf("Message = %q", res.Message)
	}
	if res.FinalFill.Status != StatusSuccess {
		t.Errorf("FinalFill = %+v", res.FinalFill)
	}
	if tank.IsActive(hardware.ACRelay) {
		t.Error("relay left on after flush that found it off")
	}

	var soaked bool
	for _, rec := range s.records() {
		if rec.d == 90*time.Second {
			soaked = true
			if len(rec.active) != 1 || rec.active[0] != hardware.ACRelay {
				t.Errorf("soak ran with %v active", rec.active)
			}
		}
	}
	if !soaked {
		t.Error("no soak wait recorded")
	}
	assertAllOff(t, tank)
}

func TestSystemFlush_LeavesRelayOnWhenOn(t *testing.T) {
	tank := newFakeTank(hardware.Level{Empty: true})
	tank.rules = cycleTank
	tank.active[hardware.ACRelay] = true
	r, _ := newTestRunner(t, tank)

	if _, err := r.SystemFlush(context.Background(), time.Second); err != nil {
		t.Fatalf("SystemFlush() error = %v", err)
	}
	if !tank.IsActive(hardware.ACRelay) {
		t.Error("relay switched off although it was on before the soak")
	}
}

func TestSystemFlush_StopsAtFirstFailure(t *testing.T) {
	tank := newFakeTank(hardware.Level{Full: true, Empty: true})
	r, _ := newTestRunner(t, tank)

	_, err := r.SystemFlush(context.Background(), time.Second)
	wantKind(t, err, KindSensorFault)
	if len(tank.eventLog()) != 0 {
		t.Errorf("events = %v", tank.eventLog())
	}
}

func TestSystemFlush_NegativeSoak(t *testing.T) {
	tank := newFakeTank(hardware.Level{})
	r, _ := newTestRunner(t, tank)

	_, err := r.SystemFlush(context.Background(), -time.Second)
	wantKind(t, err, KindValidation)
}

func TestSystemFlush_CancelledDuringSoakRestoresRelay(t *testing.T) {
	tank := newFakeTank(hardware.Level{Empty: true})
	tank.rules = cycleTank
	r, s := newTestRunner(t, tank)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.onSleep = func(int) {
		if tank.IsActive(hardware.ACRelay) {
			cancel()
		}
	}

	_, err := r.SystemFlush(ctx, time.Minute)
	wantKind(t, err, KindCancelled)
	if tank.IsActive(hardware.ACRelay) {
		t.Error("relay left on after cancelled soak")
	}
	assertAllOff(t, tank)
}

// ─── Manual control ─────────────────────────────────────────────────

func TestDispense(t *testing.T) {
	tank := newFakeTank(hardware.Level{})
	r, s := newTestRunner(t, tank)
	obs := &recordingObserver{}
	r.SetObserver(obs)

	res, err := r.Dispense(context.Background(), hardware.WaterIn, 2500*time.Millisecond)
	if err != nil {
		t.Fatalf("Dispense() error = %v", err)
	}
	if res.Pump != "water_in" || res.Duration != 2.5 {
		t.Errorf("result = %+v", res)
	}
	if recs := s.records(); len(recs) != 1 || recs[0].d != 2500*time.Millisecond {
		t.Errorf("waits = %+v", recs)
	}
	if len(obs.runs) != 1 || obs.runs[0].outcome != OutcomeOK {
		t.Errorf("observer runs = %+v", obs.runs)
	}
	assertAllOff(t, tank)
}

func TestDispense_Validation(t *testing.T) {
	tank := newFakeTank(hardware.Level{})
	r, _ := newTestRunner(t, tank)

	_, err := r.Dispense(context.Background(), hardware.ACRelay, time.Second)
	wantKind(t, err, KindValidation)

	_, err = r.Dispense(context.Background(), hardware.WaterOut, 0)
	wantKind(t, err, KindValidation)

	_, err = r.Dispense(context.Background(), hardware.WaterOut, r.maxDispense+time.Second)
	wantKind(t, err, KindValidation)
}

func TestSetRelay(t *testing.T) {
	tank := newFakeTank(hardware.Level{})
	r, _ := newTestRunner(t, tank)

	res, err := r.SetRelay(true)
	if err != nil || res.ACPower != "on" || !tank.IsActive(hardware.ACRelay) {
		t.Fatalf("SetRelay(true) = %+v, %v", res, err)
	}
	res, err = r.SetRelay(false)
	if err != nil || res.ACPower != "off" || tank.IsActive(hardware.ACRelay) {
		t.Fatalf("SetRelay(false) = %+v, %v", res, err)
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(nil) != "" {
		t.Error("KindOf(nil) not empty")
	}
	if KindOf(context.Canceled) != KindCancelled {
		t.Error("bare context.Canceled not classified as cancelled")
	}
	if KindOf(errBus) != KindHardware {
		t.Error("unknown error not classified as hardware")
	}
	if !IsValidation(validationf("x")) {
		t.Error("IsValidation() = false")
	}
}
