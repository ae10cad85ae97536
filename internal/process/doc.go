// Package process runs short-lived external programs on behalf of the
// device drivers and the timelapse pipeline.
//
// Features:
//   - Process-group isolation so cancellation reaches child processes
//   - SIGTERM on cancellation, SIGKILL after a grace period
//   - Bounded stdout/stderr capture, logged at debug level
//   - Error messages carrying the last stderr line
//
// Example usage:
//
//	r := process.NewRunner(logger)
//	_, err := r.Run(ctx, process.Command{
//	    Name:    "arecord",
//	    Binary:  "arecord",
//	    Args:    []string{"-f", "S16_LE", "-r", "44100", "-c", "1", "-s", "88200", path},
//	    Timeout: 10 * time.Second,
//	})
package process
