package hardware

import "errors"

// Domain errors for the device drivers.
var (
	// ErrUnknownChannel is returned for a pump or relay id that is not wired.
	ErrUnknownChannel = errors.New("hardware: unknown channel")

	// ErrNoReading is returned when a sensor has not reported yet.
	ErrNoReading = errors.New("hardware: no sensor reading")

	// ErrStaleReading is returned when the last reading is too old to act on.
	ErrStaleReading = errors.New("hardware: sensor reading is stale")

	// ErrSensorFault is returned by a sensor that reports its own failure
	// (e.g. a DHT checksum error).
	ErrSensorFault = errors.New("hardware: sensor fault")
)
