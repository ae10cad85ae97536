package jobs

import "errors"

// Domain errors for job management.
var (
	// ErrJobNotFound is returned when an id is neither tracked nor stored.
	ErrJobNotFound = errors.New("jobs: not found")

	// ErrUnknownType is returned by Submit for an unrecognised job type.
	ErrUnknownType = errors.New("jobs: unknown job type")

	// ErrClosed is returned by Submit after Shutdown.
	ErrClosed = errors.New("jobs: manager is shut down")
)
