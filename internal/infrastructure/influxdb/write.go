package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by HydroCore.
const (
	MeasurementPumpRun    = "pump_run"
	MeasurementTankLevel  = "tank_level"
	MeasurementJob        = "job"
	MeasurementDiagnostic = "diagnostic"
	MeasurementSensor     = "sensor"
)

// WritePumpRun records one completed actuator activation.
//
// Parameters:
//   - channel: Pump or relay channel (e.g., "water_in")
//   - duration: How long the channel was active
//   - outcome: "ok", "timeout", "cancelled" or "error"
func (c *Client) WritePumpRun(channel string, duration time.Duration, outcome string) {
	c.writePoint(pumpRunPoint(channel, duration, outcome, time.Now()))
}

// WriteTankLevel records a float switch sample.
func (c *Client) WriteTankLevel(full, empty bool) {
	c.writePoint(tankLevelPoint(full, empty, time.Now()))
}

// WriteJobOutcome records a finished job.
func (c *Client) WriteJobOutcome(jobType, status string, duration time.Duration) {
	c.writePoint(jobPoint(jobType, status, duration, time.Now()))
}

// WriteDiagnostic records a diagnostic report summary.
func (c *Client) WriteDiagnostic(status string, pumpPassed bool, rms float64) {
	c.writePoint(diagnosticPoint(status, pumpPassed, rms, time.Now()))
}

// WriteSensor records a single chemical or environment reading.
//
// Example:
//
//	client.WriteSensor("tds", 812.0)
//	client.WriteSensor("temperature_f", 71.6)
func (c *Client) WriteSensor(sensor string, value float64) {
	c.writePoint(write.NewPoint(
		MeasurementSensor,
		map[string]string{"sensor": sensor},
		map[string]interface{}{"value": value},
		time.Now(),
	))
}

// WritePoint writes a custom point with full control over tags and fields.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.writePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func (c *Client) writePoint(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}

func pumpRunPoint(channel string, duration time.Duration, outcome string, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementPumpRun,
		map[string]string{"channel": channel, "outcome": outcome},
		map[string]interface{}{"seconds": duration.Seconds()},
		ts,
	)
}

func tankLevelPoint(full, empty bool, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementTankLevel,
		nil,
		map[string]interface{}{"full": full, "empty": empty},
		ts,
	)
}

func jobPoint(jobType, status string, duration time.Duration, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementJob,
		map[string]string{"type": jobType, "status": status},
		map[string]interface{}{"seconds": duration.Seconds()},
		ts,
	)
}

func diagnosticPoint(status string, pumpPassed bool, rms float64, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementDiagnostic,
		map[string]string{"status": status},
		map[string]interface{}{"pump_passed": pumpPassed, "rms": rms},
		ts,
	)
}
