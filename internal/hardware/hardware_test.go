package hardware

import (
	"context"
	"errors"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/wav"

	"github.com/zombieplant/hydrocore/internal/infrastructure/config"
	"github.com/zombieplant/hydrocore/internal/infrastructure/mqtt"
	"github.com/zombieplant/hydrocore/internal/process"
)

// ─── Helpers ────────────────────────────────────────────────────────

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testHardwareConfig(t *testing.T) config.HardwareConfig {
	t.Helper()
	cfg := config.Default().Hardware
	cfg.Microphone.Dir = t.TempDir()
	return cfg
}

func newTestSimulator(t *testing.T) (*Simulator, *fakeClock) {
	t.Helper()
	sim := NewSimulator(testHardwareConfig(t))
	clock := newFakeClock()
	sim.SetClock(clock.Now)
	return sim, clock
}

// ─── Channels ───────────────────────────────────────────────────────

func TestParseChannel(t *testing.T) {
	for _, ch := range Channels {
		got, err := ParseChannel(string(ch))
		if err != nil || got != ch {
			t.Errorf("ParseChannel(%q) = %q, %v", ch, got, err)
		}
	}

	if _, err := ParseChannel("flora_kelp"); !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("ParseChannel(flora_kelp) error = %v, want ErrUnknownChannel", err)
	}
}

func TestChannelKinds(t *testing.T) {
	if !FloraGro.IsNutrient() || WaterIn.IsNutrient() {
		t.Error("IsNutrient() misclassifies channels")
	}
	if !WaterOut.IsPump() || ACRelay.IsPump() {
		t.Error("IsPump() misclassifies channels")
	}
	if Channel("x").Valid() {
		t.Error("Valid() accepted unknown channel")
	}
}

func TestLevelFault(t *testing.T) {
	if !(Level{Full: true, Empty: true}).Fault() {
		t.Error("Fault() = false for full and empty")
	}
	if (Level{Full: true}).Fault() {
		t.Error("Fault() = true for full only")
	}
}

// ─── Simulator ──────────────────────────────────────────────────────

func TestSimulator_FillReachesFull(t *testing.T) {
	sim, clock := newTestSimulator(t)

	lvl, _ := sim.ReadLevel()
	if lvl.Full || lvl.Empty {
		t.Fatalf("initial level = %+v, want neither", lvl)
	}

	if err := sim.Activate(WaterIn); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	clock.Advance(80 * time.Second)

	lvl, _ = sim.ReadLevel()
	if !lvl.Full {
		t.Errorf("level after 80s fill = %+v, want full (litres %.2f)", lvl, sim.Litres())
	}
	if sim.Litres() > 40 {
		t.Errorf("Litres() = %v, exceeds capacity", sim.Litres())
	}
}

func TestSimulator_DrainReachesEmpty(t *testing.T) {
	sim, clock := newTestSimulator(t)
	sim.SetLitres(10)

	sim.Activate(WaterOut) //nolint:errcheck // known channel
	clock.Advance(20 * time.Second)
	if lvl, _ := sim.ReadLevel(); lvl.Empty {
		t.Fatal("tank empty after 20s, want 5 litres left")
	}

	clock.Advance(30 * time.Second)
	if lvl, _ := sim.ReadLevel(); !lvl.Empty {
		t.Errorf("tank not empty after 50s drain (litres %.2f)", sim.Litres())
	}
}

func TestSimulator_NutrientsRaiseTDS(t *testing.T) {
	sim, clock := newTestSimulator(t)
	sim.SetLitres(10)
	tds := sim.Devices().TDS

	if v, _ := tds.ReadConcentration(); v != 0 {
		t.Fatalf("initial TDS = %v, want 0", v)
	}

	sim.Activate(FloraMicro) //nolint:errcheck // known channel
	clock.Advance(4 * time.Second)
	sim.Deactivate(FloraMicro) //nolint:errcheck // known channel

	v, _ := tds.ReadConcentration()
	if v < 47 || v > 48 {
		t.Errorf("TDS after 4ml in 10L = %v, want ~48", v)
	}
}

func TestSimulator_UnknownChannel(t *testing.T) {
	sim, _ := newTestSimulator(t)
	if err := sim.Activate("flora_kelp"); !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("Activate(unknown) error = %v, want ErrUnknownChannel", err)
	}
}

func TestSimulator_StickLevel(t *testing.T) {
	sim, _ := newTestSimulator(t)
	sim.StickLevel(Level{Full: true, Empty: true})

	lvl, _ := sim.ReadLevel()
	if !lvl.Fault() {
		t.Errorf("ReadLevel() = %+v, want stuck fault", lvl)
	}

	sim.ClearStuckLevel()
	lvl, _ = sim.ReadLevel()
	if lvl.Fault() {
		t.Errorf("ReadLevel() after clear = %+v", lvl)
	}
}

func TestSimulator_RecordClipHearsPump(t *testing.T) {
	sim, _ := newTestSimulator(t)
	sim.Activate(WaterIn) //nolint:errcheck // known channel

	path, err := sim.RecordClip(context.Background(), 100*time.Millisecond)
	if err != nil {
		t.Fatalf("RecordClip() error = %v", err)
	}
	defer os.Remove(path)

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening clip: %v", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decoding clip: %v", err)
	}
	if dec.BitDepth != 16 || len(buf.Data) == 0 {
		t.Fatalf("clip bit depth %d, %d samples", dec.BitDepth, len(buf.Data))
	}

	var peak int
	for _, s := range buf.Data {
		if s > peak {
			peak = s
		}
	}
	if float64(peak)/math.MaxInt16 < 0.1 {
		t.Errorf("peak amplitude %d too low for a running pump", peak)
	}
}

func TestSimulator_RecordClipCancelled(t *testing.T) {
	sim, _ := newTestSimulator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := sim.RecordClip(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("RecordClip() error = %v, want Canceled", err)
	}
}

func TestSimulator_CaptureImage(t *testing.T) {
	sim, _ := newTestSimulator(t)
	path := filepath.Join(t.TempDir(), "still.jpg")

	got, err := sim.CaptureImage(context.Background(), CaptureOptions{Path: path, Width: 32, Height: 24})
	if err != nil {
		t.Fatalf("CaptureImage() error = %v", err)
	}
	if got != path {
		t.Errorf("CaptureImage() = %q, want %q", got, path)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening image: %v", err)
	}
	defer f.Close()
	img, err := jpeg.Decode(f)
	if err != nil {
		t.Fatalf("decoding image: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 32 || b.Dy() != 24 {
		t.Errorf("image bounds = %v, want 32x24", b)
	}
}

// ─── Status ─────────────────────────────────────────────────────────

func TestReadStatus_ReportsSensorErrorsPerField(t *testing.T) {
	sim, _ := newTestSimulator(t)
	sim.FailEnvironment(errors.New("checksum did not validate"))
	sim.Activate(ACRelay) //nolint:errcheck // known channel

	st := ReadStatus(sim.Devices())

	if !st.ACRelay {
		t.Error("ACRelay = false, want true")
	}
	if len(st.Pumps) != len(Pumps) {
		t.Errorf("Pumps has %d entries, want %d", len(st.Pumps), len(Pumps))
	}
	if st.Environment.Error == "" {
		t.Error("Environment.Error empty, want sensor fault")
	}
	if st.PH.Error != "" || st.PH.Value != simulatedPH {
		t.Errorf("PH = %+v", st.PH)
	}
	if st.WaterLevel.Error != "" {
		t.Errorf("WaterLevel.Error = %q", st.WaterLevel.Error)
	}
}

// ─── Bridge ─────────────────────────────────────────────────────────

type published struct {
	topic    string
	payload  string
	qos      byte
	retained bool
}

type fakeBridgeClient struct {
	mu        sync.Mutex
	published []published
	handlers  map[string]mqtt.MessageHandler
	pubErr    error
}

func newFakeBridgeClient() *fakeBridgeClient {
	return &fakeBridgeClient{handlers: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeBridgeClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pubErr != nil {
		return f.pubErr
	}
	f.published = append(f.published, published{topic, string(payload), qos, retained})
	return nil
}

func (f *fakeBridgeClient) Subscribe(topic string, _ byte, h mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = h
	return nil
}

func (f *fakeBridgeClient) deliver(t *testing.T, pattern, topic, payload string) {
	t.Helper()
	f.mu.Lock()
	h := f.handlers[pattern]
	f.mu.Unlock()
	if h == nil {
		t.Fatalf("no handler for %s", pattern)
	}
	if err := h(topic, []byte(payload)); err != nil {
		t.Fatalf("handler(%s) error = %v", topic, err)
	}
}

func newTestBridge(t *testing.T) (*Bridge, *fakeBridgeClient, *fakeClock) {
	t.Helper()
	client := newFakeBridgeClient()
	b := NewBridge(client, config.Default().Hardware, nil)
	clock := newFakeClock()
	b.now = clock.Now
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return b, client, clock
}

func TestBridge_ActivatePublishesUnretainedCommand(t *testing.T) {
	b, client, _ := newTestBridge(t)

	if err := b.Activate(WaterIn); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if !b.IsActive(WaterIn) {
		t.Error("IsActive(water_in) = false after Activate")
	}

	if len(client.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(client.published))
	}
	p := client.published[0]
	if p.topic != "hydrocore/hardware/command/water_in" || p.payload != `{"on":true}` {
		t.Errorf("published %+v", p)
	}
	if p.retained || p.qos != 1 {
		t.Errorf("command qos=%d retained=%v, want qos 1 unretained", p.qos, p.retained)
	}
}

func TestBridge_PublishFailureKeepsState(t *testing.T) {
	b, client, _ := newTestBridge(t)
	client.pubErr = mqtt.ErrNotConnected

	if err := b.Activate(WaterOut); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Activate() error = %v, want ErrNotConnected", err)
	}
	if b.IsActive(WaterOut) {
		t.Error("IsActive() = true after failed command")
	}
}

func TestBridge_UnknownChannel(t *testing.T) {
	b, _, _ := newTestBridge(t)
	if err := b.Deactivate("heater"); !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("Deactivate(heater) error = %v, want ErrUnknownChannel", err)
	}
}

func TestBridge_ChannelStateUpdatesCache(t *testing.T) {
	b, client, _ := newTestBridge(t)
	topics := mqtt.Topics{}

	client.deliver(t, topics.AllChannelStates(), topics.ChannelState("ac_relay"), `{"on":true}`)
	if !b.IsActive(ACRelay) {
		t.Error("IsActive(ac_relay) = false after state message")
	}
}

func TestBridge_SensorReadings(t *testing.T) {
	b, client, _ := newTestBridge(t)
	topics := mqtt.Topics{}
	all := topics.AllSensorStates()

	if _, err := b.ReadLevel(); !errors.Is(err, ErrNoReading) {
		t.Errorf("ReadLevel() before data error = %v, want ErrNoReading", err)
	}

	client.deliver(t, all, topics.SensorState(SensorLevel), `{"full":true,"empty":false}`)
	client.deliver(t, all, topics.SensorState(SensorPH), `{"value":6.4,"voltage":1.753}`)
	client.deliver(t, all, topics.SensorState(SensorTDS), `{"value":612.5,"voltage":1.4}`)
	client.deliver(t, all, topics.SensorState(SensorEnvironment), `{"temperature_f":74.3,"humidity_percent":61}`)

	lvl, err := b.ReadLevel()
	if err != nil || !lvl.Full || lvl.Empty {
		t.Errorf("ReadLevel() = %+v, %v", lvl, err)
	}
	if v, _ := b.PHSensor().ReadConcentration(); v != 6.4 {
		t.Errorf("pH = %v, want 6.4", v)
	}
	if v, _ := b.TDSSensor().ReadVoltage(); v != 1.4 {
		t.Errorf("TDS voltage = %v, want 1.4", v)
	}
	env, err := b.ReadEnvironment()
	if err != nil || env.TemperatureF != 74.3 || env.HumidityPercent != 61 {
		t.Errorf("ReadEnvironment() = %+v, %v", env, err)
	}
}

func TestBridge_EnvironmentErrorPayload(t *testing.T) {
	b, client, _ := newTestBridge(t)
	topics := mqtt.Topics{}

	client.deliver(t, topics.AllSensorStates(), topics.SensorState(SensorEnvironment), `{"error":"DHT sensor not found"}`)
	if _, err := b.ReadEnvironment(); !errors.Is(err, ErrSensorFault) {
		t.Errorf("ReadEnvironment() error = %v, want ErrSensorFault", err)
	}
}

func TestBridge_StaleReading(t *testing.T) {
	b, client, clock := newTestBridge(t)
	topics := mqtt.Topics{}

	client.deliver(t, topics.AllSensorStates(), topics.SensorState(SensorLevel), `{"full":false,"empty":false}`)
	clock.Advance(b.staleAfter + time.Second)

	if _, err := b.ReadLevel(); !errors.Is(err, ErrStaleReading) {
		t.Errorf("ReadLevel() error = %v, want ErrStaleReading", err)
	}
}

// ─── External commands ──────────────────────────────────────────────

type fakeRunner struct {
	mu   sync.Mutex
	cmds []process.Command
	err  error
}

func (f *fakeRunner) Run(_ context.Context, c process.Command) (process.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, c)
	return process.Result{}, f.err
}

func TestArecord_RecordClipArgs(t *testing.T) {
	runner := &fakeRunner{}
	cfg := config.MicrophoneConfig{Binary: "arecord", Device: "plughw:1,0", SampleRate: 44100, Dir: t.TempDir()}
	mic := NewArecord(runner, cfg)

	path, err := mic.RecordClip(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatalf("RecordClip() error = %v", err)
	}
	if filepath.Dir(path) != cfg.Dir {
		t.Errorf("clip path %q not in %q", path, cfg.Dir)
	}

	c := runner.cmds[0]
	want := []string{"-q", "-D", "plughw:1,0", "-f", "S16_LE", "-r", "44100", "-c", "1", "-s", "88200", path}
	if len(c.Args) != len(want) {
		t.Fatalf("Args = %v, want %v", c.Args, want)
	}
	for i := range want {
		if c.Args[i] != want[i] {
			t.Errorf("Args[%d] = %q, want %q", i, c.Args[i], want[i])
		}
	}
	if c.Timeout <= 2*time.Second {
		t.Errorf("Timeout = %v, want slack beyond the clip", c.Timeout)
	}
}

func TestArecord_RunFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("exit status 1")}
	mic := NewArecord(runner, config.MicrophoneConfig{Binary: "arecord", SampleRate: 8000})

	if _, err := mic.RecordClip(context.Background(), time.Second); err == nil {
		t.Error("RecordClip() expected error")
	}
}

func TestRPiCamera_Args(t *testing.T) {
	runner := &fakeRunner{}
	cam := NewRPiCamera(runner, config.CameraConfig{Binary: "rpicam-still", Width: 1920, Height: 1080})
	ev, sat := -1.0, 0.8

	path, err := cam.CaptureImage(context.Background(), CaptureOptions{
		Path:       "/tmp/x.jpg",
		EV:         &ev,
		Saturation: &sat,
		Metering:   "average",
	})
	if err != nil || path != "/tmp/x.jpg" {
		t.Fatalf("CaptureImage() = %q, %v", path, err)
	}

	got := map[string]string{}
	args := runner.cmds[0].Args
	for i := 0; i < len(args)-1; i++ {
		got[args[i]] = args[i+1]
	}
	for flag, want := range map[string]string{
		"-o": "/tmp/x.jpg", "--ev": "-1", "--saturation": "0.8",
		"--metering": "average", "--width": "1920", "--height": "1080",
	} {
		if got[flag] != want {
			t.Errorf("%s = %q, want %q (args %v)", flag, got[flag], want, args)
		}
	}
}
