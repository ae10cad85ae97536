// Package logging provides structured logging for HydroCore.
//
// This package wraps Go's standard log/slog package so every component logs
// with the same shape and default fields.
//
// # Features
//
//   - JSON output for production, text output for a bench setup
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("job completed", "job_id", id, "type", "feed")
//	logger.Error("pump deactivate failed", "channel", "water_in", "error", err)
//
// Never log the MQTT password, InfluxDB token or JWT secret.
package logging
