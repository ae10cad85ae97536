// Package gate provides the process-wide exclusive lock that serializes
// every hardware-affecting sequence.
//
// Composite procedures drive physical pumps; two sequences running at once
// could fill and drain the reservoir simultaneously. Exactly one holder may
// own the gate at any instant. Foreground callers block in Acquire; the
// overflow watchdog and the timelapse only ever call TryAcquire and skip
// their cycle when the gate is busy.
package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrBusy is returned by AcquireOrBusy when another holder owns the gate.
var ErrBusy = errors.New("gate: system is busy")

// Observer receives gate contention events. *metrics.Recorder implements it.
type Observer interface {
	GateAcquired(owner string, waited time.Duration)
	GateSkipped(owner string)
}

// Holder describes the current owner of the gate.
type Holder struct {
	Owner string    `json:"owner"`
	Since time.Time `json:"since"`
}

// Gate is a binary lock with blocking and non-blocking acquisition.
//
// Release must be called exactly once per successful acquisition, on every
// exit path. The usual shape is:
//
//	if err := g.Acquire(ctx, "feed"); err != nil {
//	    return err
//	}
//	defer g.Release()
type Gate struct {
	sem *semaphore.Weighted

	mu     sync.Mutex
	holder *Holder

	observer Observer
}

// New creates an unlocked gate.
func New() *Gate {
	return &Gate{sem: semaphore.NewWeighted(1)}
}

// SetObserver attaches a contention observer. Call before first use.
func (g *Gate) SetObserver(o Observer) {
	g.observer = o
}

// Acquire blocks until the gate is free or ctx is done.
//
// Parameters:
//   - ctx: Cancelling ctx abandons the wait; the gate is not held on error
//   - owner: Short label recorded for status reporting (e.g. "job:feed")
//
// Returns:
//   - error: ctx.Err() wrapped, if the wait was abandoned
func (g *Gate) Acquire(ctx context.Context, owner string) error {
	start := time.Now()
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("gate: waiting for %s: %w", owner, err)
	}
	g.setHolder(owner)
	if g.observer != nil {
		g.observer.GateAcquired(owner, time.Since(start))
	}
	return nil
}

// TryAcquire takes the gate only if it is free right now. It never blocks.
func (g *Gate) TryAcquire(owner string) bool {
	if !g.sem.TryAcquire(1) {
		if g.observer != nil {
			g.observer.GateSkipped(owner)
		}
		return false
	}
	g.setHolder(owner)
	if g.observer != nil {
		g.observer.GateAcquired(owner, 0)
	}
	return true
}

// AcquireOrBusy is TryAcquire returning ErrBusy on contention. Direct
// entry points exposed to remote callers use it so a request is rejected
// instead of queueing behind a long foreground sequence.
func (g *Gate) AcquireOrBusy(owner string) error {
	if !g.TryAcquire(owner) {
		if h, ok := g.Holder(); ok {
			return fmt.Errorf("%w: held by %s", ErrBusy, h.Owner)
		}
		return ErrBusy
	}
	return nil
}

// Release frees the gate. Releasing an unheld gate panics, as with
// sync.Mutex.
func (g *Gate) Release() {
	g.mu.Lock()
	g.holder = nil
	g.mu.Unlock()
	g.sem.Release(1)
}

// Holder reports the current owner, if any.
func (g *Gate) Holder() (Holder, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.holder == nil {
		return Holder{}, false
	}
	return *g.holder, true
}

// Busy reports whether the gate is currently held.
func (g *Gate) Busy() bool {
	_, held := g.Holder()
	return held
}

func (g *Gate) setHolder(owner string) {
	g.mu.Lock()
	g.holder = &Holder{Owner: owner, Since: time.Now()}
	g.mu.Unlock()
}
