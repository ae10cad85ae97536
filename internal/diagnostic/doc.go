// Package diagnostic implements the reservoir self-check: sensor
// plausibility ranges and an acoustic pump test.
//
// The pump test records a clip on a separate goroutine while the selected
// pump runs, joins the two, and computes the RMS amplitude of the clip.
// Timing (capture window, lead-in, pump duration) and the noise threshold
// come from configuration.
package diagnostic
