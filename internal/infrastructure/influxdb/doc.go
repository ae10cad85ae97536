// Package influxdb records reservoir telemetry in InfluxDB v2.
//
// Points written:
//   - pump_run: channel, outcome, seconds active
//   - tank_level: full/empty float switch samples
//   - job: type, terminal status, seconds
//   - diagnostic: overall status, pump check result, RMS
//   - sensor: TDS, pH and environment readings
//
// Writes are non-blocking and batched; a disconnected or closed client drops
// them silently. Telemetry is optional: when influxdb.enabled is false,
// Connect returns ErrDisabled and main runs without it.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.WritePumpRun("water_in", 42*time.Second, "ok")
package influxdb
