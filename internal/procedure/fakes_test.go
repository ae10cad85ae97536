package procedure

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zombieplant/hydrocore/internal/hardware"
	"github.com/zombieplant/hydrocore/internal/infrastructure/config"
)

// fakeTank is a scripted reservoir. Rules run once per sleep and move the
// float switches based on which channels are on.
type fakeTank struct {
	mu       sync.Mutex
	level    hardware.Level
	active   map[hardware.Channel]bool
	events   []string
	polls    map[hardware.Channel]int
	rules    func(t *fakeTank)
	tds      float64
	readErr  error
	actErr   map[hardware.Channel]error
	deactErr map[hardware.Channel]error
}

func newFakeTank(level hardware.Level) *fakeTank {
	return &fakeTank{
		level:    level,
		active:   make(map[hardware.Channel]bool),
		polls:    make(map[hardware.Channel]int),
		actErr:   make(map[hardware.Channel]error),
		deactErr: make(map[hardware.Channel]error),
		tds:      650,
	}
}

func (f *fakeTank) Activate(ch hardware.Channel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !ch.Valid() {
		return hardware.ErrUnknownChannel
	}
	if err := f.actErr[ch]; err != nil {
		return err
	}
	f.active[ch] = true
	f.events = append(f.events, "on:"+string(ch))
	return nil
}

func (f *fakeTank) Deactivate(ch hardware.Channel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active[ch] = false
	f.events = append(f.events, "off:"+string(ch))
	return f.deactErr[ch]
}

func (f *fakeTank) IsActive(ch hardware.Channel) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[ch]
}

func (f *fakeTank) ReadLevel() (hardware.Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.level, f.readErr
}

func (f *fakeTank) ReadConcentration() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tds, nil
}

func (f *fakeTank) ReadVoltage() (float64, error) { return 1.2, nil }

// tick advances per-channel poll counters and applies the rules.
func (f *fakeTank) tick() {
	f.mu.Lock()
	for ch, on := range f.active {
		if on {
			f.polls[ch]++
		}
	}
	rules := f.rules
	f.mu.Unlock()
	if rules != nil {
		rules(f)
	}
}

func (f *fakeTank) setLevel(l hardware.Level) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.level = l
}

func (f *fakeTank) pollCount(ch hardware.Channel) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls[ch]
}

func (f *fakeTank) eventLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *fakeTank) devices() hardware.Devices {
	return hardware.Devices{Actuator: f, Level: f, PH: f, TDS: f}
}

// sleepRecord is one Sleep call and the channels on while it ran.
type sleepRecord struct {
	d      time.Duration
	active []hardware.Channel
}

// fakeSleeper returns immediately, ticking the tank. onSleep may cancel.
type fakeSleeper struct {
	mu      sync.Mutex
	tank    *fakeTank
	sleeps  []sleepRecord
	onSleep func(n int)
}

func (s *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var on []hardware.Channel
	for _, ch := range hardware.Channels {
		if s.tank.IsActive(ch) {
			on = append(on, ch)
		}
	}
	s.mu.Lock()
	s.sleeps = append(s.sleeps, sleepRecord{d: d, active: on})
	n := len(s.sleeps)
	hook := s.onSleep
	s.mu.Unlock()

	s.tank.tick()
	if hook != nil {
		hook(n)
	}
	return ctx.Err()
}

func (s *fakeSleeper) records() []sleepRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sleepRecord(nil), s.sleeps...)
}

type pumpRun struct {
	ch      hardware.Channel
	outcome string
}

type recordingObserver struct {
	mu   sync.Mutex
	runs []pumpRun
}

func (o *recordingObserver) PumpRun(ch hardware.Channel, _ time.Duration, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs = append(o.runs, pumpRun{ch, outcome})
}

func newTestRunner(t *testing.T, tank *fakeTank) (*Runner, *fakeSleeper) {
	t.Helper()
	cfg := config.Default()
	r := NewRunner(tank.devices(), cfg.Procedures, cfg.Hardware, nil)
	s := &fakeSleeper{tank: tank}
	r.SetSleeper(s)
	return r, s
}

// fillsAfter makes the tank read full once water_in has run n polls, and
// drop below full once water_out has run m polls.
func fillsAfter(n, m int) func(*fakeTank) {
	return func(f *fakeTank) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.active[hardware.WaterIn] && f.polls[hardware.WaterIn] >= n {
			f.level = hardware.Level{Full: true}
		}
		if f.active[hardware.WaterOut] && f.polls[hardware.WaterOut] >= m {
			f.level = hardware.Level{}
		}
	}
}

// assertAllOff checks every activated pump was switched off exactly once
// per activation and ends inactive.
func assertAllOff(t *testing.T, f *fakeTank) {
	t.Helper()
	on := map[string]int{}
	off := map[string]int{}
	for _, e := range f.eventLog() {
		if len(e) > 3 && e[:3] == "on:" {
			on[e[3:]]++
		} else if len(e) > 4 && e[:4] == "off:" {
			off[e[4:]]++
		}
	}
	for _, ch := range hardware.Pumps {
		if on[string(ch)] != off[string(ch)] {
			t.Errorf("%s activated %d times, deactivated %d times", ch, on[string(ch)], off[string(ch)])
		}
		if f.IsActive(ch) {
			t.Errorf("%s still active", ch)
		}
	}
}

func wantKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("error = nil, want kind %s", kind)
	}
	if got := KindOf(err); got != kind {
		t.Fatalf("KindOf(%v) = %s, want %s", err, got, kind)
	}
}

var errBus = errors.New("i2c bus error")
