package jobs

import (
	"encoding/json"
	"time"
)

// Type names the procedure a job runs.
type Type string

// Job types.
const (
	TypeFillToMax   Type = "fill_to_max"
	TypeEmptyTank   Type = "empty_tank"
	TypeSystemFlush Type = "system_flush"
	TypeFeed        Type = "feed"
	TypeDiagnose    Type = "diagnose"
)

// AllTypes lists every submittable job type.
var AllTypes = []Type{TypeFillToMax, TypeEmptyTank, TypeSystemFlush, TypeFeed, TypeDiagnose}

// Valid reports whether t is a known job type.
func (t Type) Valid() bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}

// State is a job's lifecycle state.
type State string

// Job states.
const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Terminal reports whether the state can never change again.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CancelledMessage is the error text of a job stopped by Cancel or shutdown.
const CancelledMessage = "Job cancelled"

// Job is a snapshot of one submitted procedure.
//
// Result holds the procedure's JSON result once the job has completed.
// Error holds the failure text once it has failed.
type Job struct {
	ID          string          `json:"job_id"`
	Type        Type            `json:"type"`
	Status      State           `json:"status"`
	Params      map[string]any  `json:"params,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Duration is the running time of a finished job, or zero.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}

// clone returns a copy that shares nothing mutable with j.
func (j *Job) clone() Job {
	c := *j
	if j.Params != nil {
		c.Params = make(map[string]any, len(j.Params))
		for k, v := range j.Params {
			c.Params[k] = v
		}
	}
	if j.Result != nil {
		c.Result = append(json.RawMessage(nil), j.Result...)
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return c
}
