package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/zombieplant/hydrocore/internal/controller"
	"github.com/zombieplant/hydrocore/internal/gate"
	"github.com/zombieplant/hydrocore/internal/hardware"
	"github.com/zombieplant/hydrocore/internal/infrastructure/config"
	"github.com/zombieplant/hydrocore/internal/infrastructure/logging"
	"github.com/zombieplant/hydrocore/internal/jobs"
	"github.com/zombieplant/hydrocore/internal/procedure"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// ─── Shutdown ───────────────────────────────────────────────────────────────

func TestClose_CancelsDirectProcedure(t *testing.T) {
	cfg := config.Default()
	cfg.Hardware.Microphone.Dir = t.TempDir()
	cfg.API.Host = "127.0.0.1"
	cfg.API.Port = freePort(t)
	cfg.Procedures.PollInterval = 10 * time.Millisecond

	// The tank never reports full, so the fill phase runs until cancelled.
	sim := hardware.NewSimulator(cfg.Hardware)
	sim.StickLevel(hardware.Level{})
	runner := procedure.NewRunner(sim.Devices(), cfg.Procedures, cfg.Hardware, nil)

	g := gate.New()
	mgr := jobs.NewManager(g, runner, nil, nil, nil)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mgr.Shutdown(ctx) //nolint:errcheck // test cleanup
	}()

	srv, err := New(Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		Procedures: cfg.Procedures,
		Logger:     logging.Discard(),
		Controller: controller.New(g, runner, nil, nil),
		Jobs:       mgr,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	url := fmt.Sprintf("http://127.0.0.1:%d/api/v1/control/fill_to_max", cfg.API.Port)
	respCh := make(chan error, 1)
	go func() {
		var resp *http.Response
		var postErr error
		// The listener starts in the background; retry until it accepts.
		for i := 0; i < 100; i++ {
			resp, postErr = http.Post(url, "application/json", nil)
			if postErr == nil {
				resp.Body.Close()
				break
			}
			time.Sleep(20 * time.Millisecond)
		}
		respCh <- postErr
	}()

	deadline := time.Now().Add(5 * time.Second)
	for !sim.IsActive(hardware.WaterIn) {
		if time.Now().After(deadline) {
			t.Fatal("fill never started")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	start := time.Now()
	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Close() took %v, want prompt return", elapsed)
	}

	if sim.IsActive(hardware.WaterIn) {
		t.Error("inlet pump still active after Close()")
	}
	if g.Busy() {
		t.Error("gate still held after Close()")
	}

	select {
	case <-respCh:
	case <-time.After(5 * time.Second):
		t.Error("client request never finished")
	}
}
