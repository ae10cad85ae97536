package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Hardware driver names accepted by hardware.driver.
const (
	DriverSimulated = "simulated"
	DriverMQTT      = "mqtt"
)

// Config is the root configuration structure for HydroCore.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site        SiteConfig        `yaml:"site"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	API         APIConfig         `yaml:"api"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Logging     LoggingConfig     `yaml:"logging"`
	Security    SecurityConfig    `yaml:"security"`
	Hardware    HardwareConfig    `yaml:"hardware"`
	Procedures  ProceduresConfig  `yaml:"procedures"`
	Watchdog    WatchdogConfig    `yaml:"watchdog"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	Timelapse   TimelapseConfig   `yaml:"timelapse"`

	// LockFile is held for the lifetime of the process so two instances
	// never drive the same pumps.
	LockFile string `yaml:"lock_file"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
//
// InitialDelay and MaxDelay are in seconds. MaxAttempts bounds the initial
// connection retries; 0 means a single attempt.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
//
// Write must outlast the longest direct procedure call (a full flush with
// default ceilings runs for well over ten minutes).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains bearer token settings.
//
// When Secret is empty the API runs without authentication, which is the
// normal setup for a controller on an isolated grow-room network.
type JWTConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// HardwareConfig selects and tunes the device drivers.
type HardwareConfig struct {
	// Driver is "simulated" (in-process tank model) or "mqtt" (GPIO bridge
	// reachable over the broker).
	Driver string `yaml:"driver"`

	// CalibrationMLPerSec converts a nutrient volume into a pump run time.
	CalibrationMLPerSec float64 `yaml:"calibration_ml_per_sec"`

	// MaxDispense bounds a single manual or nutrient pump activation.
	MaxDispense time.Duration `yaml:"max_dispense"`

	// CommandTimeout bounds a single actuator command round trip on the
	// MQTT bridge driver.
	CommandTimeout time.Duration `yaml:"command_timeout"`

	Microphone MicrophoneConfig `yaml:"microphone"`
	Camera     CameraConfig     `yaml:"camera"`
	Simulation SimulationConfig `yaml:"simulation"`
}

// MicrophoneConfig configures the arecord-based capture.
type MicrophoneConfig struct {
	Binary     string `yaml:"binary"`
	Device     string `yaml:"device"`
	SampleRate int    `yaml:"sample_rate"`
	Dir        string `yaml:"dir"`
}

// CameraConfig configures the still camera used by the timelapse.
type CameraConfig struct {
	Binary string `yaml:"binary"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// SimulationConfig tunes the simulated tank. Rates are in litres per second.
type SimulationConfig struct {
	CapacityLitres float64 `yaml:"capacity_litres"`
	InitialLitres  float64 `yaml:"initial_litres"`
	FillRate       float64 `yaml:"fill_rate"`
	DrainRate      float64 `yaml:"drain_rate"`
}

// ProceduresConfig holds poll interval and phase ceilings.
type ProceduresConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	FillCeiling     time.Duration `yaml:"fill_ceiling"`
	AdjustCeiling   time.Duration `yaml:"adjust_ceiling"`
	DrainCeiling    time.Duration `yaml:"drain_ceiling"`
	OverflowCeiling time.Duration `yaml:"overflow_ceiling"`
	FeedMix         time.Duration `yaml:"feed_mix"`
	FlushSoak       time.Duration `yaml:"flush_soak"`
	DoseMix         time.Duration `yaml:"dose_mix"`
	DoseSettle      time.Duration `yaml:"dose_settle"`
}

// WatchdogConfig controls the overflow watchdog.
type WatchdogConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// DiagnosticsConfig holds the pump acoustic check timing.
//
// CaptureWindow must be long enough to cover LeadIn plus PumpDuration so
// the recording hears silence before the pump and the pump itself.
type DiagnosticsConfig struct {
	CaptureWindow  time.Duration `yaml:"capture_window"`
	LeadIn         time.Duration `yaml:"lead_in"`
	PumpDuration   time.Duration `yaml:"pump_duration"`
	NoiseThreshold float64       `yaml:"noise_threshold"`
}

// TimelapseConfig controls periodic image capture.
type TimelapseConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Interval     time.Duration `yaml:"interval"`
	WarmUp       time.Duration `yaml:"warm_up"`
	ImageDir     string        `yaml:"image_dir"`
	VideoDir     string        `yaml:"video_dir"`
	FFmpegBinary string        `yaml:"ffmpeg_binary"`
	FrameRate    int           `yaml:"frame_rate"`

	// BreakerFailures consecutive camera failures open the breaker for
	// BreakerTimeout.
	BreakerFailures int           `yaml:"breaker_failures"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HYDROCORE_SECTION_KEY
// For example: HYDROCORE_DATABASE_PATH, HYDROCORE_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration without reading any file.
// It is what Load starts from before the YAML is applied.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with the reference timings of the
// reservoir hardware.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "reservoir-01",
			Name:     "HydroCore",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/hydrocore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: false,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "hydrocore",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  5,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 1800,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{Issuer: "hydrocore"},
		},
		Hardware: HardwareConfig{
			Driver:              DriverSimulated,
			CalibrationMLPerSec: 1.0,
			MaxDispense:         60 * time.Second,
			CommandTimeout:      5 * time.Second,
			Microphone: MicrophoneConfig{
				Binary:     "arecord",
				Device:     "default",
				SampleRate: 44100,
				Dir:        os.TempDir(),
			},
			Camera: CameraConfig{
				Binary: "rpicam-still",
				Width:  1920,
				Height: 1080,
			},
			Simulation: SimulationConfig{
				CapacityLitres: 40,
				InitialLitres:  20,
				FillRate:       0.25,
				DrainRate:      0.25,
			},
		},
		Procedures: ProceduresConfig{
			PollInterval:    500 * time.Millisecond,
			FillCeiling:     280 * time.Second,
			AdjustCeiling:   200 * time.Second,
			DrainCeiling:    280 * time.Second,
			OverflowCeiling: 60 * time.Second,
			FeedMix:         180 * time.Second,
			FlushSoak:       180 * time.Second,
			DoseMix:         30 * time.Second,
			DoseSettle:      2 * time.Second,
		},
		Watchdog: WatchdogConfig{
			Enabled:  true,
			Interval: 5 * time.Second,
		},
		Diagnostics: DiagnosticsConfig{
			CaptureWindow:  2 * time.Second,
			LeadIn:         500 * time.Millisecond,
			PumpDuration:   1 * time.Second,
			NoiseThreshold: 0.01,
		},
		Timelapse: TimelapseConfig{
			Enabled:         false,
			Interval:        30 * time.Minute,
			WarmUp:          2 * time.Second,
			ImageDir:        "./data/timelapse/images",
			VideoDir:        "./data/timelapse/videos",
			FFmpegBinary:    "ffmpeg",
			FrameRate:       24,
			BreakerFailures: 3,
			BreakerTimeout:  time.Hour,
		},
		LockFile: "./data/hydrocore.lock",
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: HYDROCORE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("HYDROCORE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("HYDROCORE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HYDROCORE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HYDROCORE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("HYDROCORE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("HYDROCORE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("HYDROCORE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security
	if v := os.Getenv("HYDROCORE_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	// Hardware
	if v := os.Getenv("HYDROCORE_HARDWARE_DRIVER"); v != "" {
		cfg.Hardware.Driver = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	const minJWTSecretLength = 32
	if s := c.Security.JWT.Secret; s != "" && len(s) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters when set")
	}

	switch c.Hardware.Driver {
	case DriverSimulated:
	case DriverMQTT:
		if !c.MQTT.Enabled {
			errs = append(errs, "hardware.driver mqtt requires mqtt.enabled")
		}
	default:
		errs = append(errs, fmt.Sprintf("hardware.driver %q must be simulated or mqtt", c.Hardware.Driver))
	}
	if c.Hardware.CalibrationMLPerSec <= 0 {
		errs = append(errs, "hardware.calibration_ml_per_sec must be positive")
	}
	if c.Hardware.MaxDispense <= 0 {
		errs = append(errs, "hardware.max_dispense must be positive")
	}

	p := c.Procedures
	for name, d := range map[string]time.Duration{
		"procedures.poll_interval":    p.PollInterval,
		"procedures.fill_ceiling":     p.FillCeiling,
		"procedures.adjust_ceiling":   p.AdjustCeiling,
		"procedures.drain_ceiling":    p.DrainCeiling,
		"procedures.overflow_ceiling": p.OverflowCeiling,
		"watchdog.interval":           c.Watchdog.Interval,
		"diagnostics.capture_window":  c.Diagnostics.CaptureWindow,
		"diagnostics.pump_duration":   c.Diagnostics.PumpDuration,
	} {
		if d <= 0 {
			errs = append(errs, name+" must be positive")
		}
	}
	if p.FeedMix < 0 || p.FlushSoak < 0 || p.DoseMix < 0 || p.DoseSettle < 0 {
		errs = append(errs, "procedures mix, soak and settle durations must not be negative")
	}

	d := c.Diagnostics
	if d.LeadIn < 0 {
		errs = append(errs, "diagnostics.lead_in must not be negative")
	}
	if d.LeadIn+d.PumpDuration > d.CaptureWindow {
		errs = append(errs, "diagnostics.capture_window must cover lead_in plus pump_duration")
	}
	if d.PumpDuration > c.Hardware.MaxDispense {
		errs = append(errs, "diagnostics.pump_duration must not exceed hardware.max_dispense")
	}
	if d.NoiseThreshold <= 0 {
		errs = append(errs, "diagnostics.noise_threshold must be positive")
	}

	if c.Timelapse.Enabled && c.Timelapse.Interval <= 0 {
		errs = append(errs, "timelapse.interval must be positive when enabled")
	}

	if len(errs) > 0 {
		// Map iteration order is random; keep the message stable.
		sort.Strings(errs)
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
