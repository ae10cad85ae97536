package procedure

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a procedure failure.
type Kind string

// Failure kinds.
const (
	// KindValidation: bad input, rejected before any hardware action.
	KindValidation Kind = "validation"

	// KindTimeout: a phase exceeded its ceiling. The actuator was shut off.
	KindTimeout Kind = "timeout"

	// KindSensorFault: contradictory readings; no hardware action attempted.
	KindSensorFault Kind = "sensor_fault"

	// KindCancelled: the context was cancelled at a poll or wait point.
	KindCancelled Kind = "cancelled"

	// KindHardware: an actuator or sensor call failed.
	KindHardware Kind = "hardware"
)

// Error is the structured failure returned by every procedure.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err. Context errors that escaped unwrapped are
// reported as cancellations; anything else unknown is a hardware failure.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindHardware
}

// IsValidation reports whether err was a rejected request.
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}

func validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func hardwareErr(prefix string, err error) *Error {
	return &Error{Kind: KindHardware, Msg: fmt.Sprintf("%s: %v", prefix, err), Err: err}
}

func cancelledErr(what string, err error) *Error {
	return &Error{Kind: KindCancelled, Msg: what + " cancelled", Err: err}
}
