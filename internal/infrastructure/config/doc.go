// Package config handles loading and validating HydroCore configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields and timing relationships
//   - Default values matching the reference reservoir hardware
//
// Every phase ceiling, poll interval and diagnostic timing is a configuration
// value. Durations are written as Go duration strings ("500ms", "4m40s").
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token, JWT secret) should be
//     set via HYDROCORE_* environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Procedures.FillCeiling)
package config
