// Package controller exposes the synchronous entry points: composite
// procedures, dosing, manual pump and relay control, and diagnostics, each
// run to completion while holding the exclusive gate.
//
// A Controller returned by New rejects a call with gate.ErrBusy when
// another sequence holds the gate. Remote callers get an immediate
// "busy" answer instead of an open-ended wait. Blocking returns a variant
// that queues on the gate instead, for in-process callers that prefer to
// wait.
package controller
