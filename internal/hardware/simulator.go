package hardware

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/zombieplant/hydrocore/internal/infrastructure/config"
)

const (
	// Float switch trip points as a fraction of capacity.
	fullFraction  = 0.95
	emptyFraction = 0.02

	// ppmPerMLPerLitre approximates a three-part base nutrient.
	ppmPerMLPerLitre = 120.0

	simulatedPH = 6.2

	// Acoustic model for recorded clips (full scale = 1.0).
	pumpHumAmplitude = 0.2
	roomNoiseFloor   = 0.002
	pumpHumHz        = 120.0
	clipStep         = 10 * time.Millisecond
)

// Simulator is an in-process reservoir model that implements every device
// interface. Pumps change the tank volume at the configured rates; nutrient
// pumps add dissolved solids; recorded clips contain pump hum while any pump
// is running.
//
// It is the default driver and lets the whole service run on a laptop.
type Simulator struct {
	mu sync.Mutex

	capacity  float64
	fillRate  float64
	drainRate float64
	mlPerSec  float64

	litres     float64
	nutrientML float64
	active     map[Channel]bool
	updated    time.Time

	stuck  *Level
	envErr error

	clipDir    string
	sampleRate int
	now        func() time.Time
	seq        int
}

// NewSimulator builds a simulator from the hardware section of the config.
func NewSimulator(cfg config.HardwareConfig) *Simulator {
	s := &Simulator{
		capacity:   cfg.Simulation.CapacityLitres,
		fillRate:   cfg.Simulation.FillRate,
		drainRate:  cfg.Simulation.DrainRate,
		mlPerSec:   cfg.CalibrationMLPerSec,
		litres:     cfg.Simulation.InitialLitres,
		active:     make(map[Channel]bool),
		clipDir:    cfg.Microphone.Dir,
		sampleRate: cfg.Microphone.SampleRate,
		now:        time.Now,
	}
	if s.clipDir == "" {
		s.clipDir = os.TempDir()
	}
	if s.sampleRate <= 0 {
		s.sampleRate = 44100
	}
	s.updated = s.now()
	return s
}

// Devices returns the simulator wired into every collaborator slot.
func (s *Simulator) Devices() Devices {
	return Devices{
		Actuator:    s,
		Level:       s,
		PH:          simPH{s},
		TDS:         simTDS{s},
		Environment: s,
		Microphone:  s,
		Camera:      s,
	}
}

// SetClock replaces the time source. The model integrates pump flow over
// the clock, so tests drive it with a fake.
func (s *Simulator) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	s.updated = now()
}

// SetLitres sets the tank volume directly.
func (s *Simulator) SetLitres(litres float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advanceLocked()
	s.litres = math.Max(0, math.Min(litres, s.capacity))
}

// Litres returns the current tank volume.
func (s *Simulator) Litres() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advanceLocked()
	return s.litres
}

// StickLevel pins the float switches to l regardless of volume, e.g. to
// reproduce a jammed switch. ClearStuckLevel restores normal behaviour.
func (s *Simulator) StickLevel(l Level) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stuck = &l
}

// ClearStuckLevel undoes StickLevel.
func (s *Simulator) ClearStuckLevel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stuck = nil
}

// FailEnvironment makes ReadEnvironment return err (nil clears it).
func (s *Simulator) FailEnvironment(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envErr = err
}

// Activate turns a channel on.
func (s *Simulator) Activate(ch Channel) error {
	return s.set(ch, true)
}

// Deactivate turns a channel off.
func (s *Simulator) Deactivate(ch Channel) error {
	return s.set(ch, false)
}

// IsActive reports whether a channel is on.
func (s *Simulator) IsActive(ch Channel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[ch]
}

func (s *Simulator) set(ch Channel, on bool) error {
	if !ch.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advanceLocked()
	s.active[ch] = on
	return nil
}

// advanceLocked integrates pump flow since the last update.
func (s *Simulator) advanceLocked() {
	now := s.now()
	dt := now.Sub(s.updated).Seconds()
	s.updated = now
	if dt <= 0 {
		return
	}

	if s.active[WaterIn] {
		s.litres += s.fillRate * dt
	}
	if s.active[WaterOut] && s.litres > 0 {
		drained := math.Min(s.drainRate*dt, s.litres)
		// Nutrients leave with the water at the current concentration.
		s.nutrientML -= s.nutrientML * drained / s.litres
		s.litres -= drained
	}
	for _, ch := range Nutrients {
		if s.active[ch] {
			ml := s.mlPerSec * dt
			s.nutrientML += ml
			s.litres += ml / 1000
		}
	}
	s.litres = math.Max(0, math.Min(s.litres, s.capacity))
	if s.litres == 0 {
		s.nutrientML = 0
	}
}

// ReadLevel reports the float switches.
func (s *Simulator) ReadLevel() (Level, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advanceLocked()
	if s.stuck != nil {
		return *s.stuck, nil
	}
	return Level{
		Full:  s.litres >= s.capacity*fullFraction,
		Empty: s.litres <= s.capacity*emptyFraction,
	}, nil
}

func (s *Simulator) tdsLocked() float64 {
	if s.litres <= 0 {
		return 0
	}
	return math.Round(s.nutrientML/s.litres*ppmPerMLPerLitre*100) / 100
}

// ReadEnvironment returns a fixed comfortable grow-room reading.
func (s *Simulator) ReadEnvironment() (Environment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.envErr != nil {
		return Environment{}, fmt.Errorf("%w: %w", ErrSensorFault, s.envErr)
	}
	return Environment{TemperatureF: 75.2, HumidityPercent: 55}, nil
}

// RecordClip blocks for d and writes a WAV whose content follows pump
// activity: a 120 Hz hum while any pump runs, a faint noise floor otherwise.
func (s *Simulator) RecordClip(ctx context.Context, d time.Duration) (string, error) {
	steps := int(d / clipStep)
	running := make([]bool, 0, steps)

	ticker := time.NewTicker(clipStep)
	defer ticker.Stop()
	for range steps {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
		running = append(running, s.anyPumpActive())
	}

	s.mu.Lock()
	s.seq++
	path := filepath.Join(s.clipDir, fmt.Sprintf("hydrocore-sim-%d-%d.wav", os.Getpid(), s.seq))
	rate := s.sampleRate
	s.mu.Unlock()

	if err := writeClip(path, rate, running); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Simulator) anyPumpActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range Pumps {
		if s.active[ch] {
			return true
		}
	}
	return false
}

func writeClip(path string, rate int, running []bool) error {
	perStep := rate * int(clipStep) / int(time.Second)
	data := make([]int, 0, perStep*len(running))
	for i, on := range running {
		amp := roomNoiseFloor
		if on {
			amp = pumpHumAmplitude
		}
		for j := range perStep {
			t := float64(i*perStep+j) / float64(rate)
			data = append(data, int(amp*math.Sin(2*math.Pi*pumpHumHz*t)*math.MaxInt16))
		}
	}

	f, err := os.Create(path) //nolint:gosec // Path built from configured clip dir
	if err != nil {
		return fmt.Errorf("creating clip: %w", err)
	}
	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("encoding clip: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalising clip: %w", err)
	}
	return f.Close()
}

// CaptureImage writes a solid green JPEG. It is brighter while the grow
// light (AC relay) is on.
func (s *Simulator) CaptureImage(ctx context.Context, opts CaptureOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	w, h := opts.Width, opts.Height
	if w <= 0 || h <= 0 {
		w, h = 640, 480
	}

	s.mu.Lock()
	lit := s.active[ACRelay]
	s.seq++
	path := opts.Path
	if path == "" {
		path = filepath.Join(os.TempDir(), fmt.Sprintf("hydrocore-sim-%d-%d.jpg", os.Getpid(), s.seq))
	}
	s.mu.Unlock()

	shade := color.RGBA{R: 10, G: 40, B: 10, A: 255}
	if lit {
		shade = color.RGBA{R: 60, G: 170, B: 60, A: 255}
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetRGBA(x, y, shade)
		}
	}

	f, err := os.Create(path) //nolint:gosec // Caller-controlled output path
	if err != nil {
		return "", fmt.Errorf("creating image: %w", err)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 80}); err != nil {
		f.Close()
		return "", fmt.Errorf("encoding image: %w", err)
	}
	return path, f.Close()
}

type simPH struct{ s *Simulator }

func (p simPH) ReadConcentration() (float64, error) {
	return simulatedPH, nil
}

// ReadVoltage follows the probe calibration: 1.65 V at pH 7, 0.173 V per pH.
func (p simPH) ReadVoltage() (float64, error) {
	return math.Round((1.65-(simulatedPH-7)*0.173)*1000) / 1000, nil
}

type simTDS struct{ s *Simulator }

func (t simTDS) ReadConcentration() (float64, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.advanceLocked()
	return t.s.tdsLocked(), nil
}

func (t simTDS) ReadVoltage() (float64, error) {
	ppm, _ := t.ReadConcentration()
	// Linear region of the analog TDS board.
	return math.Round(ppm/428.7*1000) / 1000, nil
}
