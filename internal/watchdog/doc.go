// Package watchdog guards the reservoir against overflow while nobody is
// watching.
//
// Every interval the watchdog tries to take the exclusive gate without
// waiting. If a foreground sequence holds it, the cycle is skipped: queueing
// behind a long feed or flush would stall overflow protection for minutes,
// while the next short cycle retries soon anyway. With the gate held it
// reads the level switches and, when the full switch is tripped, runs the
// bounded overflow fix. A contradictory full-and-empty reading is reported
// as a sensor fault and never acted on.
//
// Nothing the watchdog does can stop its loop; all failures are logged.
package watchdog
