package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zombieplant/hydrocore/internal/hardware"
)

const namespace = "hydrocore"

// Sink receives the events worth keeping as history.
// *influxdb.Client implements it.
type Sink interface {
	WritePumpRun(channel string, duration time.Duration, outcome string)
	WriteTankLevel(full, empty bool)
	WriteJobOutcome(jobType, status string, duration time.Duration)
	WriteDiagnostic(status string, pumpPassed bool, rms float64)
	WriteSensor(sensor string, value float64)
}

// Recorder holds every instrument.
type Recorder struct {
	registry *prometheus.Registry
	sink     Sink

	gateAcquired *prometheus.CounterVec
	gateSkipped  *prometheus.CounterVec
	gateWait     prometheus.Histogram

	pumpRuns    *prometheus.CounterVec
	pumpSeconds *prometheus.CounterVec

	jobsRunning  prometheus.Gauge
	jobsFinished *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec

	tankFull       prometheus.Gauge
	tankEmpty      prometheus.Gauge
	watchdogCycles *prometheus.CounterVec

	diagnostics *prometheus.CounterVec
	pumpRMS     prometheus.Gauge
	sensor      *prometheus.GaugeVec

	captures *prometheus.CounterVec
}

// New creates a Recorder with its own registry, including the Go runtime
// and process collectors.
//
// Parameters:
//   - sink: Optional history sink (nil to disable forwarding)
func New(sink Sink) *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		sink:     sink,

		gateAcquired: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "gate", Name: "acquired_total",
			Help: "Gate acquisitions by owner.",
		}, []string{"owner"}),
		gateSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "gate", Name: "skipped_total",
			Help: "Non-blocking acquisitions refused because the gate was held.",
		}, []string{"owner"}),
		gateWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "gate", Name: "wait_seconds",
			Help:    "Time spent waiting for the gate.",
			Buckets: []float64{0.001, 0.01, 0.1, 1, 10, 60, 300, 900},
		}),

		pumpRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pump", Name: "runs_total",
			Help: "Pump activations by channel and outcome.",
		}, []string{"channel", "outcome"}),
		pumpSeconds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pump", Name: "run_seconds_total",
			Help: "Cumulative pump run time by channel.",
		}, []string{"channel"}),

		jobsRunning: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "jobs", Name: "running",
			Help: "Jobs started but not finished.",
		}),
		jobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "jobs", Name: "finished_total",
			Help: "Finished jobs by type and terminal status.",
		}, []string{"type", "status"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "jobs", Name: "duration_seconds",
			Help:    "Job run time by type.",
			Buckets: []float64{1, 10, 60, 180, 300, 600, 1200, 1800},
		}, []string{"type"}),

		tankFull: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "tank", Name: "full",
			Help: "Full float switch state (1 tripped).",
		}),
		tankEmpty: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "tank", Name: "empty",
			Help: "Empty float switch state (1 tripped).",
		}),
		watchdogCycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "watchdog", Name: "cycles_total",
			Help: "Watchdog cycles by outcome.",
		}, []string{"outcome"}),

		diagnostics: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "diagnostic", Name: "runs_total",
			Help: "Diagnostic runs by overall status.",
		}, []string{"status"}),
		pumpRMS: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "diagnostic", Name: "pump_rms",
			Help: "RMS amplitude captured by the last acoustic pump check.",
		}),
		sensor: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "sensor", Name: "value",
			Help: "Last sensor value sampled by a diagnostic run.",
		}, []string{"sensor"}),

		captures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "timelapse", Name: "captures_total",
			Help: "Timelapse capture attempts by outcome.",
		}, []string{"outcome"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// GateAcquired implements gate.Observer.
func (r *Recorder) GateAcquired(owner string, waited time.Duration) {
	if r == nil {
		return
	}
	r.gateAcquired.WithLabelValues(ownerLabel(owner)).Inc()
	r.gateWait.Observe(waited.Seconds())
}

// GateSkipped implements gate.Observer.
func (r *Recorder) GateSkipped(owner string) {
	if r == nil {
		return
	}
	r.gateSkipped.WithLabelValues(ownerLabel(owner)).Inc()
}

// PumpRun implements procedure.Observer.
func (r *Recorder) PumpRun(ch hardware.Channel, d time.Duration, outcome string) {
	if r == nil {
		return
	}
	r.pumpRuns.WithLabelValues(ch.String(), outcome).Inc()
	r.pumpSeconds.WithLabelValues(ch.String()).Add(d.Seconds())
	if r.sink != nil {
		r.sink.WritePumpRun(ch.String(), d, outcome)
	}
}

// JobStarted implements jobs.Observer.
func (r *Recorder) JobStarted(string) {
	if r == nil {
		return
	}
	r.jobsRunning.Inc()
}

// JobFinished implements jobs.Observer.
func (r *Recorder) JobFinished(jobType, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.jobsRunning.Dec()
	r.jobsFinished.WithLabelValues(jobType, status).Inc()
	r.jobDuration.WithLabelValues(jobType).Observe(d.Seconds())
	if r.sink != nil {
		r.sink.WriteJobOutcome(jobType, status, d)
	}
}

// TankLevel implements watchdog.Observer.
func (r *Recorder) TankLevel(full, empty bool) {
	if r == nil {
		return
	}
	r.tankFull.Set(boolValue(full))
	r.tankEmpty.Set(boolValue(empty))
	if r.sink != nil {
		r.sink.WriteTankLevel(full, empty)
	}
}

// WatchdogCycle implements watchdog.Observer.
func (r *Recorder) WatchdogCycle(outcome string) {
	if r == nil {
		return
	}
	r.watchdogCycles.WithLabelValues(outcome).Inc()
}

// DiagnosticCompleted implements diagnostic.Observer.
func (r *Recorder) DiagnosticCompleted(status string, pumpPassed bool, rms float64) {
	if r == nil {
		return
	}
	r.diagnostics.WithLabelValues(status).Inc()
	r.pumpRMS.Set(rms)
	if r.sink != nil {
		r.sink.WriteDiagnostic(status, pumpPassed, rms)
	}
}

// SensorSample implements diagnostic.Observer.
func (r *Recorder) SensorSample(sensor string, value float64) {
	if r == nil {
		return
	}
	r.sensor.WithLabelValues(sensor).Set(value)
	if r.sink != nil {
		r.sink.WriteSensor(sensor, value)
	}
}

// TimelapseCapture implements timelapse.Observer.
func (r *Recorder) TimelapseCapture(outcome string) {
	if r == nil {
		return
	}
	r.captures.WithLabelValues(outcome).Inc()
}

// ownerLabel folds per-channel owners such as "dispense:water_in" into
// their operation so label cardinality stays fixed.
func ownerLabel(owner string) string {
	if strings.HasPrefix(owner, "dispense:") {
		return "dispense"
	}
	return owner
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
