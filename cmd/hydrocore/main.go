// HydroCore - Reservoir Orchestration Core
//
// This is the main entry point for the HydroCore service. HydroCore runs the
// water and nutrient procedures of a single hydroponic reservoir:
//   - One exclusive gate in front of every actuator
//   - Background jobs for long procedures (fill, drain, flush, feed)
//   - A safety watchdog that drains an overflowing tank
//   - Acoustic pump diagnostics and an optional timelapse camera
//
// Usage:
//
//	hydrocore                          # run the service
//	hydrocore -issue-token dashboard   # print an API token and exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	_ "github.com/zombieplant/hydrocore/migrations"

	"github.com/zombieplant/hydrocore/internal/api"
	"github.com/zombieplant/hydrocore/internal/controller"
	"github.com/zombieplant/hydrocore/internal/diagnostic"
	"github.com/zombieplant/hydrocore/internal/gate"
	"github.com/zombieplant/hydrocore/internal/hardware"
	"github.com/zombieplant/hydrocore/internal/infrastructure/config"
	"github.com/zombieplant/hydrocore/internal/infrastructure/database"
	"github.com/zombieplant/hydrocore/internal/infrastructure/influxdb"
	"github.com/zombieplant/hydrocore/internal/infrastructure/logging"
	"github.com/zombieplant/hydrocore/internal/infrastructure/mqtt"
	"github.com/zombieplant/hydrocore/internal/jobs"
	"github.com/zombieplant/hydrocore/internal/metrics"
	"github.com/zombieplant/hydrocore/internal/procedure"
	"github.com/zombieplant/hydrocore/internal/process"
	"github.com/zombieplant/hydrocore/internal/timelapse"
	"github.com/zombieplant/hydrocore/internal/watchdog"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// jobShutdownTimeout bounds how long shutdown waits for cancelled jobs to
// switch their actuators off and record a terminal state.
const jobShutdownTimeout = 30 * time.Second

// errAlreadyRunning is returned when another process holds the lock file.
var errAlreadyRunning = errors.New("another hydrocore instance holds the hardware lock")

func main() {
	issueFor := flag.String("issue-token", "", "print a signed API token for `subject` and exit")
	tokenTTL := flag.Duration("token-ttl", 90*24*time.Hour, "lifetime of a token printed by -issue-token")
	flag.Parse()

	if *issueFor != "" {
		if err := issueToken(os.Stdout, *issueFor, *tokenTTL); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Cancelling on SIGINT/SIGTERM stops running jobs; their procedures
	// switch every actuator off on the way out.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting HydroCore",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Only one process may drive the GPIO outputs.
	lock, err := acquireLock(cfg.LockFile)
	if err != nil {
		return err
	}
	if lock != nil {
		defer func() {
			if unlockErr := lock.Unlock(); unlockErr != nil {
				log.Error("error releasing lock file", "error", unlockErr)
			}
		}()
		log.Info("hardware lock acquired", "path", cfg.LockFile)
	}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Connect to MQTT broker (optional unless the hardware driver needs it)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(ctx, cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	var sink metrics.Sink
	if influxClient != nil {
		sink = influxClient
	}
	recorder := metrics.New(sink)

	commands := process.NewRunner(log)
	devices, err := buildDevices(cfg, mqttClient, commands, log)
	if err != nil {
		return err
	}
	log.Info("hardware driver ready", "driver", cfg.Hardware.Driver)

	g := gate.New()
	g.SetObserver(recorder)

	procs := procedure.NewRunner(devices, cfg.Procedures, cfg.Hardware, log)
	procs.SetObserver(recorder)

	checker := diagnostic.NewChecker(devices, procs, cfg.Diagnostics, log)
	checker.SetObserver(recorder)

	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	jobManager := jobs.NewManager(g, procs, checker, jobs.NewSQLiteRepository(db.DB), log)
	jobManager.SetHub(hub)
	jobManager.SetObserver(recorder)
	jobManager.SetDefaultSoak(cfg.Procedures.FlushSoak)
	if mqttClient != nil {
		jobManager.SetMQTT(mqttClient)
	}
	if n, recoverErr := jobManager.Recover(ctx); recoverErr != nil {
		log.Warn("failed to recover interrupted jobs", "error", recoverErr)
	} else if n > 0 {
		log.Warn("marked interrupted jobs as failed", "count", n)
	}
	defer func() {
		log.Info("stopping jobs")
		shutdownCtx, done := context.WithTimeout(context.Background(), jobShutdownTimeout)
		defer done()
		if shutdownErr := jobManager.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error("jobs did not stop in time", "error", shutdownErr)
		}
	}()

	if cfg.Watchdog.Enabled {
		wd := watchdog.New(g, devices.Level, procs, cfg.Watchdog.Interval, log)
		wd.SetObserver(recorder)
		if mqttClient != nil {
			wd.SetMQTT(mqttClient)
		}
		wd.Start(ctx)
		defer func() {
			log.Info("stopping watchdog")
			wd.Stop()
		}()
		log.Info("watchdog started", "interval", cfg.Watchdog.Interval)
	} else {
		log.Warn("watchdog disabled; overflow will not be drained automatically")
	}

	var tl *timelapse.Service
	if cfg.Timelapse.Enabled {
		tl = timelapse.New(g, devices.Actuator, devices.Camera, commands, cfg.Timelapse, log)
		tl.SetObserver(recorder)
		tl.Start(ctx)
		defer func() {
			log.Info("stopping timelapse")
			tl.Stop()
		}()
		log.Info("timelapse started", "interval", cfg.Timelapse.Interval)
	}

	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Procedures:  cfg.Procedures,
		Logger:      log,
		Controller:  controller.New(g, procs, checker, log),
		Jobs:        jobManager,
		Timelapse:   tl,
		Metrics:     recorder,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API server, timelapse, watchdog,
	// jobs, InfluxDB, MQTT, database, lock file.

	log.Info("HydroCore stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses HYDROCORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HYDROCORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// acquireLock takes the single-instance lock. An empty path disables it.
//
// Returns:
//   - *flock.Flock: The held lock, or nil when disabled
//   - error: errAlreadyRunning if another process holds it
func acquireLock(path string) (*flock.Flock, error) {
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", errAlreadyRunning, path)
	}
	return lock, nil
}

// buildDevices constructs the hardware collaborators for the configured
// driver.
func buildDevices(cfg *config.Config, mqttClient *mqtt.Client, commands *process.Runner, log *logging.Logger) (hardware.Devices, error) {
	switch cfg.Hardware.Driver {
	case config.DriverMQTT:
		if mqttClient == nil {
			return hardware.Devices{}, fmt.Errorf("hardware driver %q requires mqtt.enabled", cfg.Hardware.Driver)
		}
		bridge := hardware.NewBridge(mqttClient, cfg.Hardware, log)
		if err := bridge.Start(); err != nil {
			return hardware.Devices{}, fmt.Errorf("starting hardware bridge: %w", err)
		}
		return hardware.Devices{
			Actuator:    bridge,
			Level:       bridge,
			PH:          bridge.PHSensor(),
			TDS:         bridge.TDSSensor(),
			Environment: bridge,
			Microphone:  hardware.NewArecord(commands, cfg.Hardware.Microphone),
			Camera:      hardware.NewRPiCamera(commands, cfg.Hardware.Camera),
		}, nil
	default:
		log.Warn("using simulated hardware; no pump will actually run")
		return hardware.NewSimulator(cfg.Hardware).Devices(), nil
	}
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
