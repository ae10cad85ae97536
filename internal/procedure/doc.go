// Package procedure implements the composite reservoir sequences: fill to
// max, empty, overflow fix, system flush, feed cycle and dose, plus manual
// pump and relay control.
//
// Every sequence is built from phases. A phase activates one actuator,
// polls the float switches once per poll interval and deactivates the
// actuator on every exit path: condition met, ceiling reached, sensor or
// actuator error, or context cancellation. Reaching a ceiling is always a
// reported failure.
//
// Failures are *Error values carrying a Kind (validation, timeout,
// sensor_fault, cancelled, hardware). Validation happens before any
// hardware is touched.
//
// The AC relay powers both the grow light and the air stones. Feed cycles
// leave it on after mixing; flush and dose restore it to off if they found
// it off.
//
// The Runner never takes the exclusive gate itself.
package procedure
