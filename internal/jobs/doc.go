// Package jobs runs long reservoir procedures asynchronously.
//
// A caller submits a job type with free-form parameters and immediately
// receives an id. The job then moves through a fixed state machine:
//
//	queued -> running -> completed | failed
//
// Every job holds the exclusive hardware gate for the whole of its
// procedure, so at most one job drives the pumps at a time; later jobs wait
// in Acquire. Cancellation is cooperative: Cancel cancels the job's context
// and the procedure stops at its next poll or wait point, shutting its
// actuator off on the way out.
//
// Each transition is persisted (best effort) to the SQLite jobs table,
// broadcast to WebSocket clients as "job.updated" and published to MQTT
// on hydrocore/job/{id}/state.
//
// Usage:
//
//	mgr := jobs.NewManager(g, runner, checker, jobs.NewSQLiteRepository(db.DB), log)
//	id, err := mgr.Submit(jobs.TypeFeed, map[string]any{"recipe": "vegetative"})
//	job, err := mgr.Wait(ctx, id)
package jobs
