// Package timelapse photographs the plants on a fixed interval and stitches
// the frames into a video.
//
// A capture switches the grow light (the AC relay) on if it was off, waits
// for it to warm up, takes a still and restores the light. Because that
// touches an actuator, a capture holds the exclusive gate; scheduled ticks
// only try the gate and skip when a procedure is running.
//
// Camera calls go through a circuit breaker. After a run of consecutive
// failures the breaker opens and ticks are skipped outright, without
// taking the gate or toggling the light, until the breaker's timeout lets a
// trial capture through.
//
// Each frame gets a timestamp burned in with ffmpeg's drawtext filter; if
// that fails the raw frame is kept.
package timelapse
