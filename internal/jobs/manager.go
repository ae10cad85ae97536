package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zombieplant/hydrocore/internal/diagnostic"
	"github.com/zombieplant/hydrocore/internal/gate"
	"github.com/zombieplant/hydrocore/internal/infrastructure/mqtt"
	"github.com/zombieplant/hydrocore/internal/procedure"
)

// StaleReason is the error recorded on jobs a previous process left unfinished.
const StaleReason = "interrupted by restart"

// DefaultSoak is the flush soak used when a job omits soak_duration.
const DefaultSoak = 180 * time.Second

// maxRetained bounds the finished jobs kept in memory when a repository
// backs the registry. Older ones are still served from the repository.
const maxRetained = 256

// Procedures is the subset of *procedure.Runner the manager drives.
type Procedures interface {
	FillToMax(ctx context.Context) (procedure.FillResult, error)
	EmptyTank(ctx context.Context) (procedure.EmptyResult, error)
	SystemFlush(ctx context.Context, soak time.Duration) (procedure.FlushResult, error)
	FeedCycle(ctx context.Context, req procedure.FeedRequest) (procedure.FeedResult, error)
}

// Diagnostics is the subset of *diagnostic.Checker the manager drives.
type Diagnostics interface {
	Run(ctx context.Context) (diagnostic.Report, error)
}

// MQTTClient is the interface for publishing job transitions.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// WSHub is the interface for broadcasting WebSocket events.
type WSHub interface {
	// Broadcast sends an event to all clients subscribed to the given channel.
	Broadcast(channel string, payload any)
}

// Observer receives job lifecycle measurements. *metrics.Recorder implements it.
type Observer interface {
	JobStarted(jobType string)
	JobFinished(jobType, status string, d time.Duration)
}

// Logger is the logging interface used by the manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopObserver struct{}

func (noopObserver) JobStarted(string)                         {}
func (noopObserver) JobFinished(string, string, time.Duration) {}

type entry struct {
	job    Job
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager owns the job registry and runs submitted jobs.
//
// Thread Safety: all methods are safe for concurrent use.
type Manager struct {
	gate   *gate.Gate
	procs  Procedures
	diag   Diagnostics
	repo   Repository
	mqtt   MQTTClient
	hub    WSHub
	obs    Observer
	logger Logger
	soak   time.Duration
	topics mqtt.Topics

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	jobs     map[string]*entry
	finished []string
	closed   bool
}

// NewManager creates a job manager.
//
// Parameters:
//   - g: Exclusive gate every job holds for its procedure
//   - procs: Composite procedures (usually *procedure.Runner)
//   - diag: Diagnostic checker (usually *diagnostic.Checker)
//   - repo: Job persistence (may be nil for in-memory only)
//   - logger: Logger instance (may be nil)
func NewManager(g *gate.Gate, procs Procedures, diag Diagnostics, repo Repository, logger Logger) *Manager {
	if logger == nil {
		logger = noopLogger{}
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Manager{
		gate:    g,
		procs:   procs,
		diag:    diag,
		repo:    repo,
		obs:     noopObserver{},
		logger:  logger,
		soak:    DefaultSoak,
		baseCtx: ctx,
		stop:    stop,
		jobs:    make(map[string]*entry),
	}
}

// SetMQTT attaches an MQTT publisher for job transitions.
func (m *Manager) SetMQTT(c MQTTClient) { m.mqtt = c }

// SetHub attaches a WebSocket hub for job transitions.
func (m *Manager) SetHub(h WSHub) { m.hub = h }

// SetObserver attaches a lifecycle observer.
func (m *Manager) SetObserver(o Observer) {
	if o == nil {
		o = noopObserver{}
	}
	m.obs = o
}

// SetDefaultSoak sets the flush soak used when soak_duration is omitted.
func (m *Manager) SetDefaultSoak(d time.Duration) { m.soak = d }

// Recover marks jobs left queued or running by a previous process as
// failed. Call once at startup, before Submit.
func (m *Manager) Recover(ctx context.Context) (int, error) {
	if m.repo == nil {
		return 0, nil
	}
	n, err := m.repo.RecoverStale(ctx, StaleReason)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.logger.Warn("marked interrupted jobs as failed", "count", n)
	}
	return n, nil
}

// Submit registers a job in state queued and starts it asynchronously.
//
// Parameters are not inspected here; a malformed parameter fails the job
// with a validation reason once it runs.
//
// Returns:
//   - string: The new job id
//   - error: ErrUnknownType, or ErrClosed after Shutdown
func (m *Manager) Submit(t Type, params map[string]any) (string, error) {
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, t)
	}

	job := Job{
		ID:        uuid.New().String(),
		Type:      t,
		Status:    StateQueued,
		Params:    params,
		CreatedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrClosed
	}
	ctx, cancel := context.WithCancel(m.baseCtx)
	e := &entry{job: job, cancel: cancel, done: make(chan struct{})}
	m.jobs[job.ID] = e
	snapshot := e.job.clone()
	m.wg.Add(1)
	m.mu.Unlock()

	if m.repo != nil {
		if err := m.repo.Create(context.Background(), &snapshot); err != nil {
			m.logger.Error("failed to persist job", "job_id", job.ID, "error", err)
		}
	}
	m.emit(snapshot)
	m.logger.Info("job submitted", "job_id", job.ID, "type", t)

	go m.run(ctx, e)
	return job.ID, nil
}

// run is the execution wrapper: it marks the job running, holds the gate
// for the whole procedure and records the terminal state.
func (m *Manager) run(ctx context.Context, e *entry) {
	defer m.wg.Done()
	defer e.cancel()

	m.mu.Lock()
	now := time.Now().UTC()
	e.job.Status = StateRunning
	e.job.StartedAt = &now
	jobType, params := e.job.Type, e.job.Params
	m.mu.Unlock()
	m.save(e)
	m.obs.JobStarted(string(jobType))

	result, err := m.execute(ctx, jobType, params)
	m.finish(e, result, err)
}

// execute holds the gate for the procedure and releases it before returning.
func (m *Manager) execute(ctx context.Context, t Type, params map[string]any) (any, error) {
	if err := m.gate.Acquire(ctx, "job:"+string(t)); err != nil {
		return nil, &procedure.Error{Kind: procedure.KindCancelled, Msg: "Job cancelled", Err: err}
	}
	defer m.gate.Release()

	switch t {
	case TypeFillToMax:
		res, err := m.procs.FillToMax(ctx)
		return res, err
	case TypeEmptyTank:
		res, err := m.procs.EmptyTank(ctx)
		return res, err
	case TypeSystemFlush:
		soak, err := m.soakParam(params)
		if err != nil {
			return nil, err
		}
		res, err := m.procs.SystemFlush(ctx, soak)
		return res, err
	case TypeFeed:
		var req procedure.FeedRequest
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		res, err := m.procs.FeedCycle(ctx, req)
		return res, err
	case TypeDiagnose:
		res, err := m.diag.Run(ctx)
		return res, err
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
}

func (m *Manager) finish(e *entry, result any, runErr error) {
	var raw json.RawMessage
	if runErr == nil {
		b, err := json.Marshal(result)
		if err != nil {
			runErr = fmt.Errorf("encoding result: %w", err)
		} else {
			raw = b
		}
	}

	m.mu.Lock()
	now := time.Now().UTC()
	e.job.CompletedAt = &now
	if runErr != nil {
		e.job.Status = StateFailed
		e.job.Error = failureMessage(runErr)
	} else {
		e.job.Status = StateCompleted
		e.job.Result = raw
	}
	m.retain(e.job.ID)
	close(e.done)
	m.mu.Unlock()

	snapshot := m.save(e)
	m.obs.JobFinished(string(snapshot.Type), string(snapshot.Status), snapshot.Duration())

	if runErr != nil {
		m.logger.Warn("job failed",
			"job_id", snapshot.ID,
			"type", snapshot.Type,
			"kind", procedure.KindOf(runErr),
			"error", snapshot.Error,
		)
		return
	}
	m.logger.Info("job completed",
		"job_id", snapshot.ID,
		"type", snapshot.Type,
		"duration_ms", snapshot.Duration().Milliseconds(),
	)
}

// retain records a finished id and evicts the oldest finished jobs beyond
// maxRetained. Without a repository nothing is evicted. Caller holds m.mu.
func (m *Manager) retain(id string) {
	if m.repo == nil {
		return
	}
	m.finished = append(m.finished, id)
	for len(m.finished) > maxRetained {
		delete(m.jobs, m.finished[0])
		m.finished = m.finished[1:]
	}
}

// save persists and broadcasts the job's current snapshot.
func (m *Manager) save(e *entry) Job {
	m.mu.Lock()
	snapshot := e.job.clone()
	m.mu.Unlock()

	if m.repo != nil {
		if err := m.repo.Update(context.Background(), &snapshot); err != nil {
			m.logger.Error("failed to persist job update",
				"job_id", snapshot.ID, "status", snapshot.Status, "error", err)
		}
	}
	m.emit(snapshot)
	return snapshot
}

func (m *Manager) emit(job Job) {
	if m.hub != nil {
		m.hub.Broadcast("job.updated", job)
	}
	if m.mqtt != nil {
		payload, err := json.Marshal(job)
		if err != nil {
			m.logger.Error("failed to encode job state", "job_id", job.ID, "error", err)
			return
		}
		if err := m.mqtt.Publish(m.topics.JobState(job.ID), payload, 1, false); err != nil {
			m.logger.Warn("failed to publish job state", "job_id", job.ID, "error", err)
		}
	}
}

// Get returns the job's current snapshot, falling back to the repository
// for jobs no longer held in memory.
func (m *Manager) Get(ctx context.Context, id string) (Job, error) {
	m.mu.Lock()
	e, ok := m.jobs[id]
	if ok {
		snapshot := e.job.clone()
		m.mu.Unlock()
		return snapshot, nil
	}
	m.mu.Unlock()

	if m.repo == nil {
		return Job{}, ErrJobNotFound
	}
	job, err := m.repo.Get(ctx, id)
	if err != nil {
		return Job{}, err
	}
	return *job, nil
}

// Cancel asks a queued or running job to stop.
//
// Returns true if a cancellation signal was delivered; false if the job is
// not tracked or has already finished.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.jobs[id]
	if !ok || e.job.Status.Terminal() {
		return false
	}
	e.cancel()
	m.logger.Info("job cancellation requested", "job_id", id)
	return true
}

// Wait blocks until the job is finished or ctx is done.
func (m *Manager) Wait(ctx context.Context, id string) (Job, error) {
	m.mu.Lock()
	e, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return m.Get(ctx, id)
	}

	select {
	case <-e.done:
		return m.Get(ctx, id)
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

// List returns up to limit jobs, most recent first. In-memory state takes
// precedence over stored rows for the same id.
func (m *Manager) List(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}

	byID := make(map[string]Job)
	if m.repo != nil {
		stored, err := m.repo.List(ctx, limit)
		if err != nil {
			return nil, err
		}
		for _, j := range stored {
			byID[j.ID] = j
		}
	}

	m.mu.Lock()
	for id, e := range m.jobs {
		byID[id] = e.job.clone()
	}
	m.mu.Unlock()

	out := make([]Job, 0, len(byID))
	for _, j := range byID {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Shutdown cancels every job and waits for them to finish or ctx to end.
// Submit fails with ErrClosed afterwards.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.stop()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for jobs: %w", ctx.Err())
	}
}

func (m *Manager) soakParam(params map[string]any) (time.Duration, error) {
	var p struct {
		SoakDuration *float64 `json:"soak_duration"`
	}
	if err := decodeParams(params, &p); err != nil {
		return 0, err
	}
	if p.SoakDuration == nil {
		return m.soak, nil
	}
	return time.Duration(*p.SoakDuration * float64(time.Second)), nil
}

// decodeParams converts free-form params into a typed request.
func decodeParams(params map[string]any, v any) error {
	if len(params) == 0 {
		return nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return &procedure.Error{Kind: procedure.KindValidation, Msg: "Invalid params", Err: err}
	}
	if err := json.Unmarshal(b, v); err != nil {
		return &procedure.Error{
			Kind: procedure.KindValidation,
			Msg:  fmt.Sprintf("Invalid params: %v", err),
			Err:  err,
		}
	}
	return nil
}

func failureMessage(err error) string {
	if procedure.KindOf(err) == procedure.KindCancelled {
		return CancelledMessage
	}
	return err.Error()
}
