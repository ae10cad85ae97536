// Package hardware defines the device collaborators the orchestration core
// drives, and the drivers that implement them.
//
// Outputs are addressed by Channel: two water pumps, three nutrient pumps
// and the AC relay feeding the grow light and air stones. Sensors are the
// two float switches (full, empty), pH and TDS probes, a DHT air sensor, a
// USB microphone and a still camera.
//
// Drivers:
//   - Simulator: in-process tank model, the default; implements everything
//   - Bridge: pumps and sensors behind a GPIO bridge process over MQTT
//   - Arecord: ALSA microphone via the arecord binary
//   - RPiCamera: still camera via rpicam-still
//
// Orchestration code receives a Devices bundle built once in main and never
// reaches for global handles.
package hardware
