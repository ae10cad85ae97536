package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/zombieplant/hydrocore/internal/hardware"
)

// mockSink captures forwarded events.
type mockSink struct {
	mu     sync.Mutex
	events []string
}

func (s *mockSink) add(e string) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *mockSink) WritePumpRun(channel string, _ time.Duration, outcome string) {
	s.add("pump:" + channel + ":" + outcome)
}
func (s *mockSink) WriteTankLevel(bool, bool) { s.add("tank") }
func (s *mockSink) WriteJobOutcome(jobType, status string, _ time.Duration) {
	s.add("job:" + jobType + ":" + status)
}
func (s *mockSink) WriteDiagnostic(status string, _ bool, _ float64) { s.add("diag:" + status) }
func (s *mockSink) WriteSensor(sensor string, _ float64)             { s.add("sensor:" + sensor) }

func TestRecorder_Counters(t *testing.T) {
	sink := &mockSink{}
	r := New(sink)

	r.GateAcquired("job:feed", 2*time.Second)
	r.GateAcquired("dispense:water_in", 0)
	r.GateSkipped("watchdog")
	r.PumpRun(hardware.WaterIn, 1500*time.Millisecond, "ok")
	r.PumpRun(hardware.WaterIn, 500*time.Millisecond, "ok")
	r.JobStarted("feed")
	r.JobFinished("feed", "completed", time.Minute)
	r.TankLevel(true, false)
	r.WatchdogCycle("fixed")
	r.DiagnosticCompleted("healthy", true, 0.2)
	r.SensorSample("ph", 6.1)
	r.TimelapseCapture("ok")

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"gate acquired job:feed", testutil.ToFloat64(r.gateAcquired.WithLabelValues("job:feed")), 1},
		{"gate acquired dispense", testutil.ToFloat64(r.gateAcquired.WithLabelValues("dispense")), 1},
		{"gate skipped", testutil.ToFloat64(r.gateSkipped.WithLabelValues("watchdog")), 1},
		{"pump runs", testutil.ToFloat64(r.pumpRuns.WithLabelValues("water_in", "ok")), 2},
		{"pump seconds", testutil.ToFloat64(r.pumpSeconds.WithLabelValues("water_in")), 2},
		{"jobs running", testutil.ToFloat64(r.jobsRunning), 0},
		{"jobs finished", testutil.ToFloat64(r.jobsFinished.WithLabelValues("feed", "completed")), 1},
		{"tank full", testutil.ToFloat64(r.tankFull), 1},
		{"tank empty", testutil.ToFloat64(r.tankEmpty), 0},
		{"watchdog", testutil.ToFloat64(r.watchdogCycles.WithLabelValues("fixed")), 1},
		{"diagnostics", testutil.ToFloat64(r.diagnostics.WithLabelValues("healthy")), 1},
		{"rms", testutil.ToFloat64(r.pumpRMS), 0.2},
		{"ph", testutil.ToFloat64(r.sensor.WithLabelValues("ph")), 6.1},
		{"captures", testutil.ToFloat64(r.captures.WithLabelValues("ok")), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	want := []string{
		"pump:water_in:ok", "pump:water_in:ok", "job:feed:completed",
		"tank", "diag:healthy", "sensor:ph",
	}
	if strings.Join(sink.events, ",") != strings.Join(want, ",") {
		t.Errorf("sink events = %v, want %v", sink.events, want)
	}
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	r.GateAcquired("x", time.Second)
	r.GateSkipped("x")
	r.PumpRun(hardware.WaterOut, time.Second, "ok")
	r.JobStarted("feed")
	r.JobFinished("feed", "failed", time.Second)
	r.TankLevel(true, true)
	r.WatchdogCycle("busy")
	r.DiagnosticCompleted("error", false, 0)
	r.SensorSample("tds", 1)
	r.TimelapseCapture("error")

	if r.Registry() != nil {
		t.Error("nil recorder returned a registry")
	}
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("nil handler status = %d, want 404", rec.Code)
	}
}

func TestRecorder_Handler(t *testing.T) {
	r := New(nil)
	r.WatchdogCycle("ok")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `hydrocore_watchdog_cycles_total{outcome="ok"} 1`) {
		t.Errorf("exposition missing watchdog counter:\n%s", body)
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Error("exposition missing Go runtime collector")
	}
}
