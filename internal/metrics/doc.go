// Package metrics records operational measurements for HydroCore.
//
// A Recorder owns a private Prometheus registry served on /metrics and
// optionally forwards the same events to a time-series sink (InfluxDB) for
// long-term history. It implements the observer interfaces of the gate,
// procedure, diagnostic, jobs, watchdog and timelapse packages, so each
// component reports through a narrow interface and never imports this one.
//
// A nil *Recorder is valid and records nothing.
package metrics
