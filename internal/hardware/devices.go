package hardware

import (
	"context"
	"time"
)

// Level is a float switch reading. The two switches are independent, so
// Full and Empty can both be true; that combination is a wiring or switch
// fault and is reported by Fault.
type Level struct {
	Full  bool `json:"full"`
	Empty bool `json:"empty"`
}

// Fault reports the contradictory full-and-empty state.
func (l Level) Fault() bool {
	return l.Full && l.Empty
}

// Environment is an air temperature/humidity reading.
type Environment struct {
	TemperatureF    float64 `json:"temperature_f"`
	HumidityPercent float64 `json:"humidity_percent"`
}

// CaptureOptions tunes a still capture. Zero values leave the camera default.
type CaptureOptions struct {
	// Path is the output file. Empty lets the camera pick a temp file.
	Path string

	Width  int
	Height int

	Shutter    time.Duration
	Gain       float64
	EV         *float64
	Metering   string // centre, spot, average
	Saturation *float64
	Brightness *float64
	Contrast   *float64
}

// Actuator drives pump and relay outputs.
//
// Activate and Deactivate take no context: shutting a pump off must still
// work while a cancelled procedure unwinds.
type Actuator interface {
	Activate(ch Channel) error
	Deactivate(ch Channel) error
	IsActive(ch Channel) bool
}

// LevelSensor reads the float switches.
type LevelSensor interface {
	ReadLevel() (Level, error)
}

// ChemicalSensor is an analog probe (pH or dissolved solids).
type ChemicalSensor interface {
	ReadConcentration() (float64, error)
	ReadVoltage() (float64, error)
}

// EnvironmentSensor reads air temperature and humidity.
type EnvironmentSensor interface {
	ReadEnvironment() (Environment, error)
}

// Microphone records a mono 16-bit WAV clip. RecordClip blocks for d.
type Microphone interface {
	RecordClip(ctx context.Context, d time.Duration) (string, error)
}

// Camera captures a still image and returns its path.
type Camera interface {
	CaptureImage(ctx context.Context, opts CaptureOptions) (string, error)
}

// Devices bundles the collaborators constructed once at startup and passed
// to the orchestration packages.
type Devices struct {
	Actuator    Actuator
	Level       LevelSensor
	PH          ChemicalSensor
	TDS         ChemicalSensor
	Environment EnvironmentSensor
	Microphone  Microphone
	Camera      Camera
}

// Logger defines the logging interface used by the drivers.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
