package hardware

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/zombieplant/hydrocore/internal/infrastructure/config"
	"github.com/zombieplant/hydrocore/internal/infrastructure/mqtt"
)

// Sensor names published by the GPIO bridge under hydrocore/hardware/sensor/.
const (
	SensorLevel       = "level"
	SensorPH          = "ph"
	SensorTDS         = "tds"
	SensorEnvironment = "environment"
)

// defaultStaleAfter is how old a retained sensor reading may be before the
// bridge driver refuses to act on it.
const defaultStaleAfter = 30 * time.Second

// BridgeClient is the subset of the MQTT client the bridge driver uses.
type BridgeClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Bridge drives the reservoir through a GPIO bridge process reachable over
// MQTT. Commands are published unretained at QoS 1; channel state and sensor
// readings arrive as retained messages and are cached.
//
// Bridge implements Actuator, LevelSensor and EnvironmentSensor. Use
// PHSensor and TDSSensor for the chemical probes.
type Bridge struct {
	client     BridgeClient
	topics     mqtt.Topics
	staleAfter time.Duration
	now        func() time.Time
	logger     Logger

	mu       sync.RWMutex
	active   map[Channel]bool
	readings map[string]reading
}

type reading struct {
	payload []byte
	at      time.Time
}

type commandPayload struct {
	On bool `json:"on"`
}

type levelPayload struct {
	Full  bool `json:"full"`
	Empty bool `json:"empty"`
}

type probePayload struct {
	Value   float64 `json:"value"`
	Voltage float64 `json:"voltage"`
}

type environmentPayload struct {
	TemperatureF float64 `json:"temperature_f"`
	Humidity     float64 `json:"humidity_percent"`
	Error        string  `json:"error,omitempty"`
}

// NewBridge creates a bridge driver. Call Start to subscribe.
func NewBridge(client BridgeClient, cfg config.HardwareConfig, logger Logger) *Bridge {
	if logger == nil {
		logger = noopLogger{}
	}
	stale := defaultStaleAfter
	if cfg.CommandTimeout > 0 && 6*cfg.CommandTimeout > stale {
		stale = 6 * cfg.CommandTimeout
	}
	return &Bridge{
		client:     client,
		staleAfter: stale,
		now:        time.Now,
		logger:     logger,
		active:     make(map[Channel]bool),
		readings:   make(map[string]reading),
	}
}

// Start subscribes to channel state and sensor topics.
func (b *Bridge) Start() error {
	if err := b.client.Subscribe(b.topics.AllChannelStates(), 1, b.handleChannelState); err != nil {
		return fmt.Errorf("subscribing to channel state: %w", err)
	}
	if err := b.client.Subscribe(b.topics.AllSensorStates(), 1, b.handleSensor); err != nil {
		return fmt.Errorf("subscribing to sensors: %w", err)
	}
	return nil
}

// Activate publishes an "on" command for ch.
func (b *Bridge) Activate(ch Channel) error {
	return b.command(ch, true)
}

// Deactivate publishes an "off" command for ch.
func (b *Bridge) Deactivate(ch Channel) error {
	return b.command(ch, false)
}

// IsActive returns the last commanded or reported state of ch.
func (b *Bridge) IsActive(ch Channel) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active[ch]
}

func (b *Bridge) command(ch Channel, on bool) error {
	if !ch.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
	}
	payload, err := json.Marshal(commandPayload{On: on})
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}
	// Commands are never retained: a restarting bridge must not replay a
	// stale "on".
	if err := b.client.Publish(b.topics.ChannelCommand(string(ch)), payload, 1, false); err != nil {
		return fmt.Errorf("commanding %s: %w", ch, err)
	}
	b.mu.Lock()
	b.active[ch] = on
	b.mu.Unlock()
	return nil
}

func (b *Bridge) handleChannelState(topic string, payload []byte) error {
	ch, err := ParseChannel(lastSegment(topic))
	if err != nil {
		return err
	}
	var p commandPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decoding %s state: %w", ch, err)
	}
	b.mu.Lock()
	b.active[ch] = p.On
	b.mu.Unlock()
	return nil
}

func (b *Bridge) handleSensor(topic string, payload []byte) error {
	name := lastSegment(topic)
	b.mu.Lock()
	b.readings[name] = reading{payload: append([]byte(nil), payload...), at: b.now()}
	b.mu.Unlock()
	b.logger.Debug("sensor reading", "sensor", name, "bytes", len(payload))
	return nil
}

// latest decodes the cached reading for sensor into v.
func (b *Bridge) latest(sensor string, v any) error {
	b.mu.RLock()
	r, ok := b.readings[sensor]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoReading, sensor)
	}
	if age := b.now().Sub(r.at); age > b.staleAfter {
		return fmt.Errorf("%w: %s is %s old", ErrStaleReading, sensor, age.Round(time.Second))
	}
	if err := json.Unmarshal(r.payload, v); err != nil {
		return fmt.Errorf("decoding %s reading: %w", sensor, err)
	}
	return nil
}

// ReadLevel returns the cached float switch reading.
func (b *Bridge) ReadLevel() (Level, error) {
	var p levelPayload
	if err := b.latest(SensorLevel, &p); err != nil {
		return Level{}, err
	}
	return Level{Full: p.Full, Empty: p.Empty}, nil
}

// ReadEnvironment returns the cached DHT reading.
func (b *Bridge) ReadEnvironment() (Environment, error) {
	var p environmentPayload
	if err := b.latest(SensorEnvironment, &p); err != nil {
		return Environment{}, err
	}
	if p.Error != "" {
		return Environment{}, fmt.Errorf("%w: %s", ErrSensorFault, p.Error)
	}
	return Environment{TemperatureF: p.TemperatureF, HumidityPercent: p.Humidity}, nil
}

// PHSensor returns the pH probe view of the bridge.
func (b *Bridge) PHSensor() ChemicalSensor {
	return bridgeProbe{b: b, sensor: SensorPH}
}

// TDSSensor returns the dissolved-solids probe view of the bridge.
func (b *Bridge) TDSSensor() ChemicalSensor {
	return bridgeProbe{b: b, sensor: SensorTDS}
}

type bridgeProbe struct {
	b      *Bridge
	sensor string
}

func (p bridgeProbe) ReadConcentration() (float64, error) {
	var v probePayload
	if err := p.b.latest(p.sensor, &v); err != nil {
		return 0, err
	}
	return v.Value, nil
}

func (p bridgeProbe) ReadVoltage() (float64, error) {
	var v probePayload
	if err := p.b.latest(p.sensor, &v); err != nil {
		return 0, err
	}
	return v.Voltage, nil
}

func lastSegment(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}
