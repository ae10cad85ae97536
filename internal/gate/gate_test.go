package gate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingObserver struct {
	mu       sync.Mutex
	acquired []string
	skipped  []string
}

func (o *countingObserver) GateAcquired(owner string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.acquired = append(o.acquired, owner)
}

func (o *countingObserver) GateSkipped(owner string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.skipped = append(o.skipped, owner)
}

func TestAcquireRelease(t *testing.T) {
	g := New()

	if g.Busy() {
		t.Fatal("new gate should be free")
	}
	if err := g.Acquire(context.Background(), "fill"); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	h, ok := g.Holder()
	if !ok || h.Owner != "fill" {
		t.Errorf("Holder() = %+v, %v; want owner fill", h, ok)
	}

	g.Release()
	if g.Busy() {
		t.Error("gate should be free after Release")
	}
}

func TestTryAcquire_NeverBlocks(t *testing.T) {
	g := New()
	if err := g.Acquire(context.Background(), "flush"); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer g.Release()

	done := make(chan bool, 1)
	go func() { done <- g.TryAcquire("watchdog") }()

	select {
	case got := <-done:
		if got {
			t.Error("TryAcquire() = true while gate held")
		}
	case <-time.After(time.Second):
		t.Fatal("TryAcquire blocked while gate held")
	}
}

func TestAcquire_WaitsForRelease(t *testing.T) {
	g := New()
	if err := g.Acquire(context.Background(), "first"); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		if err := g.Acquire(context.Background(), "second"); err != nil {
			t.Errorf("second Acquire() error = %v", err)
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire returned while gate held")
	case <-time.After(50 * time.Millisecond):
	}

	g.Release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Acquire did not proceed after Release")
	}
	if h, _ := g.Holder(); h.Owner != "second" {
		t.Errorf("Holder().Owner = %q, want second", h.Owner)
	}
	g.Release()
}

func TestAcquire_ContextCancelled(t *testing.T) {
	g := New()
	if err := g.Acquire(context.Background(), "first"); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer g.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := g.Acquire(ctx, "second")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire() error = %v, want DeadlineExceeded", err)
	}
	if h, _ := g.Holder(); h.Owner != "first" {
		t.Errorf("abandoned wait must not change holder, got %q", h.Owner)
	}
}

func TestAcquireOrBusy(t *testing.T) {
	g := New()
	if err := g.AcquireOrBusy("feed"); err != nil {
		t.Fatalf("AcquireOrBusy() on free gate error = %v", err)
	}

	err := g.AcquireOrBusy("dose")
	if !errors.Is(err, ErrBusy) {
		t.Errorf("AcquireOrBusy() error = %v, want ErrBusy", err)
	}
	g.Release()
}

func TestMutualExclusion(t *testing.T) {
	g := New()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.Acquire(context.Background(), "worker"); err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			g.Release()
		}()
	}

	// Opportunistic callers interleave without ever blocking.
	for i := 0; i < 50; i++ {
		if g.TryAcquire("watchdog") {
			if n := atomic.AddInt32(&inside, 1); n > 1 {
				t.Errorf("watchdog entered alongside %d holders", n-1)
			}
			atomic.AddInt32(&inside, -1)
			g.Release()
		}
	}

	wg.Wait()
	if maxInside != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxInside)
	}
}

func TestObserver(t *testing.T) {
	g := New()
	obs := &countingObserver{}
	g.SetObserver(obs)

	if !g.TryAcquire("watchdog") {
		t.Fatal("TryAcquire() on free gate = false")
	}
	if g.TryAcquire("timelapse") {
		t.Fatal("TryAcquire() on held gate = true")
	}
	g.Release()

	if len(obs.acquired) != 1 || obs.acquired[0] != "watchdog" {
		t.Errorf("acquired = %v, want [watchdog]", obs.acquired)
	}
	if len(obs.skipped) != 1 || obs.skipped[0] != "timelapse" {
		t.Errorf("skipped = %v, want [timelapse]", obs.skipped)
	}
}
