package timelapse

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zombieplant/hydrocore/internal/gate"
	"github.com/zombieplant/hydrocore/internal/hardware"
	"github.com/zombieplant/hydrocore/internal/infrastructure/config"
	"github.com/zombieplant/hydrocore/internal/process"
)

// ─── Mock Dependencies ──────────────────────────────────────────────────────

type fakeRelay struct {
	mu     sync.Mutex
	on     bool
	events []string
}

func (r *fakeRelay) Activate(ch hardware.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.on = true
	r.events = append(r.events, "on:"+ch.String())
	return nil
}

func (r *fakeRelay) Deactivate(ch hardware.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.on = false
	r.events = append(r.events, "off:"+ch.String())
	return nil
}

func (r *fakeRelay) IsActive(hardware.Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.on
}

// fakeCamera writes a small file, or fails when err is set. It records
// whether the relay was on at capture time.
type fakeCamera struct {
	mu      sync.Mutex
	relay   *fakeRelay
	err     error
	calls   int
	litShot bool
}

func (c *fakeCamera) CaptureImage(_ context.Context, opts hardware.CaptureOptions) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.litShot = c.relay.IsActive(hardware.ACRelay)
	if c.err != nil {
		return "", c.err
	}
	if err := os.WriteFile(opts.Path, []byte("jpeg"), 0o600); err != nil {
		return "", err
	}
	return opts.Path, nil
}

// fakeRunner records ffmpeg invocations. When writeOutput is set it creates
// the file named by the last argument, as ffmpeg would.
type fakeRunner struct {
	mu          sync.Mutex
	commands    []process.Command
	writeOutput bool
	err         error
}

func (r *fakeRunner) Run(_ context.Context, c process.Command) (process.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, c)
	if r.err != nil {
		return process.Result{}, r.err
	}
	if r.writeOutput {
		if err := os.WriteFile(c.Args[len(c.Args)-1], []byte("out"), 0o600); err != nil {
			return process.Result{}, err
		}
	}
	return process.Result{}, nil
}

type recordingSleeper struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.slept = append(s.slept, d)
	s.mu.Unlock()
	return ctx.Err()
}

type harness struct {
	svc     *Service
	gate    *gate.Gate
	relay   *fakeRelay
	camera  *fakeCamera
	runner  *fakeRunner
	sleeper *recordingSleeper
	cfg     config.TimelapseConfig
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default().Timelapse
	cfg.ImageDir = filepath.Join(dir, "images")
	cfg.VideoDir = filepath.Join(dir, "videos")
	cfg.BreakerFailures = 2
	cfg.BreakerTimeout = time.Hour

	h := &harness{
		gate:    gate.New(),
		relay:   &fakeRelay{},
		runner:  &fakeRunner{writeOutput: true},
		sleeper: &recordingSleeper{},
		cfg:     cfg,
	}
	h.camera = &fakeCamera{relay: h.relay}
	h.svc = New(h.gate, h.relay, h.camera, h.runner, cfg, nil)
	h.svc.SetSleeper(h.sleeper)
	clock := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)
	h.svc.now = func() time.Time { return clock }
	return h
}

func frames(t *testing.T, dir string) []string {
	t.Helper()
	out, err := filepath.Glob(filepath.Join(dir, "*.jpg"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	return out
}

// ─── Capture ────────────────────────────────────────────────────────────────

func TestTick_CapturesWithLightAndRestores(t *testing.T) {
	h := newHarness(t)

	if got := h.svc.Tick(context.Background()); got != OutcomeCaptured {
		t.Fatalf("Tick() = %q, want ok", got)
	}
	if !h.camera.litShot {
		t.Error("frame captured with the grow light off")
	}
	if h.relay.IsActive(hardware.ACRelay) {
		t.Error("grow light left on after capture")
	}
	if len(h.sleeper.slept) != 1 || h.sleeper.slept[0] != h.cfg.WarmUp {
		t.Errorf("warm-up sleeps = %v, want [%v]", h.sleeper.slept, h.cfg.WarmUp)
	}
	if h.gate.Busy() {
		t.Error("gate left held")
	}

	got := frames(t, h.cfg.ImageDir)
	if len(got) != 1 || filepath.Base(got[0]) != "1792402200000.jpg" {
		t.Errorf("frames = %v", got)
	}
	if raw := frames(t, filepath.Join(h.cfg.ImageDir, "raw")); len(raw) != 0 {
		t.Errorf("raw stills left behind: %v", raw)
	}

	if len(h.runner.commands) != 1 {
		t.Fatalf("ffmpeg runs = %d, want 1 overlay", len(h.runner.commands))
	}
	filter := h.runner.commands[0].Args[6]
	if !strings.Contains(filter, `text='10/19/2026 09\:30'`) {
		t.Errorf("overlay filter = %s", filter)
	}
}

func TestTick_LightAlreadyOnIsLeftOn(t *testing.T) {
	h := newHarness(t)
	h.relay.on = true

	if got := h.svc.Tick(context.Background()); got != OutcomeCaptured {
		t.Fatalf("Tick() = %q, want ok", got)
	}
	if !h.relay.IsActive(hardware.ACRelay) {
		t.Error("grow light switched off")
	}
	if len(h.relay.events) != 0 {
		t.Errorf("relay events = %v, want none", h.relay.events)
	}
	if len(h.sleeper.slept) != 0 {
		t.Errorf("warm-up ran with light already on: %v", h.sleeper.slept)
	}
}

func TestTick_SkipsWhenBusy(t *testing.T) {
	h := newHarness(t)
	if err := h.gate.Acquire(context.Background(), "job:feed"); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer h.gate.Release()

	if got := h.svc.Tick(context.Background()); got != OutcomeBusy {
		t.Errorf("Tick() = %q, want busy", got)
	}
	if h.camera.calls != 0 || len(h.relay.events) != 0 {
		t.Error("hardware touched while gate held")
	}
}

func TestCapture_BusyError(t *testing.T) {
	h := newHarness(t)
	if err := h.gate.Acquire(context.Background(), "job:flush"); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer h.gate.Release()

	if _, err := h.svc.Capture(context.Background()); !errors.Is(err, gate.ErrBusy) {
		t.Errorf("Capture() error = %v, want ErrBusy", err)
	}
}

func TestTick_OverlayFailureKeepsRawFrame(t *testing.T) {
	h := newHarness(t)
	h.runner.err = errors.New("ffmpeg: exit status 1")

	if got := h.svc.Tick(context.Background()); got != OutcomeCaptured {
		t.Fatalf("Tick() = %q, want ok", got)
	}
	if got := frames(t, h.cfg.ImageDir); len(got) != 1 {
		t.Errorf("frames = %v, want the raw frame", got)
	}
}

// ─── Breaker ────────────────────────────────────────────────────────────────

func TestTick_BreakerOpensAfterFailures(t *testing.T) {
	h := newHarness(t)
	h.camera.err = errors.New("no cameras available")

	for i := 0; i < 2; i++ {
		if got := h.svc.Tick(context.Background()); got != OutcomeError {
			t.Fatalf("Tick() #%d = %q, want error", i, got)
		}
		if h.relay.IsActive(hardware.ACRelay) {
			t.Fatal("grow light left on after failed capture")
		}
	}
	if h.svc.BreakerState() != "open" {
		t.Fatalf("breaker = %q, want open", h.svc.BreakerState())
	}

	eventsBefore := len(h.relay.events)
	if got := h.svc.Tick(context.Background()); got != OutcomeBreakerOpen {
		t.Errorf("Tick() = %q, want breaker_open", got)
	}
	if h.camera.calls != 2 {
		t.Errorf("camera calls = %d, want 2", h.camera.calls)
	}
	if len(h.relay.events) != eventsBefore {
		t.Error("light toggled while breaker open")
	}

	if _, err := h.svc.Capture(context.Background()); !errors.Is(err, ErrCameraUnavailable) {
		t.Errorf("Capture() error = %v, want ErrCameraUnavailable", err)
	}
}

// ─── Encode ─────────────────────────────────────────────────────────────────

func TestEncode_NoFrames(t *testing.T) {
	h := newHarness(t)
	if _, err := h.svc.Encode(context.Background()); !errors.Is(err, ErrNoFrames) {
		t.Errorf("Encode() error = %v, want ErrNoFrames", err)
	}
}

func TestEncode_StitchesFrames(t *testing.T) {
	h := newHarness(t)
	if got := h.svc.Tick(context.Background()); got != OutcomeCaptured {
		t.Fatalf("Tick() = %q", got)
	}

	out, err := h.svc.Encode(context.Background())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if want := filepath.Join(h.cfg.VideoDir, "2026-10-19.mp4"); out != want {
		t.Errorf("Encode() = %q, want %q", out, want)
	}

	cmd := h.runner.commands[len(h.runner.commands)-1]
	args := strings.Join(cmd.Args, " ")
	for _, want := range []string{"-framerate 24", "-pattern_type glob", "-c:v libx264", filepath.Join(h.cfg.ImageDir, "*.jpg")} {
		if !strings.Contains(args, want) {
			t.Errorf("encode args %q missing %q", args, want)
		}
	}
}

func TestStartStop(t *testing.T) {
	h := newHarness(t)
	h.svc.cfg.Interval = 5 * time.Millisecond

	h.svc.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for {
		h.camera.mu.Lock()
		calls := h.camera.calls
		h.camera.mu.Unlock()
		if calls > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("loop never captured")
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.svc.Stop()
	h.svc.Stop()
}
