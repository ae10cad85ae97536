package mqtt

import "fmt"

// TopicPrefix is the root of every HydroCore topic.
const TopicPrefix = "hydrocore"

// Topics provides builders for HydroCore MQTT topics.
//
// The hardware topics form the contract with the GPIO bridge running next
// to the pumps:
//
//	hydrocore/hardware/command/{channel}   core → bridge  {"on":true}
//	hydrocore/hardware/state/{channel}     bridge → core  {"on":true}   retained
//	hydrocore/hardware/sensor/{sensor}     bridge → core  sensor JSON   retained
type Topics struct{}

// ChannelCommand returns the command topic for a pump or relay channel.
//
// Example: hydrocore/hardware/command/water_in
func (Topics) ChannelCommand(channel string) string {
	return fmt.Sprintf("%s/hardware/command/%s", TopicPrefix, channel)
}

// ChannelState returns the state topic the bridge publishes for a channel.
//
// Example: hydrocore/hardware/state/ac_relay
func (Topics) ChannelState(channel string) string {
	return fmt.Sprintf("%s/hardware/state/%s", TopicPrefix, channel)
}

// SensorState returns the topic the bridge publishes a sensor reading on.
//
// Example: hydrocore/hardware/sensor/level
func (Topics) SensorState(sensor string) string {
	return fmt.Sprintf("%s/hardware/sensor/%s", TopicPrefix, sensor)
}

// AllChannelStates matches every channel state topic.
//
// Pattern: hydrocore/hardware/state/+
func (Topics) AllChannelStates() string {
	return fmt.Sprintf("%s/hardware/state/+", TopicPrefix)
}

// AllSensorStates matches every sensor topic.
//
// Pattern: hydrocore/hardware/sensor/+
func (Topics) AllSensorStates() string {
	return fmt.Sprintf("%s/hardware/sensor/+", TopicPrefix)
}

// JobState returns the topic job lifecycle transitions are published on.
//
// Example: hydrocore/job/3f2a.../state
func (Topics) JobState(jobID string) string {
	return fmt.Sprintf("%s/job/%s/state", TopicPrefix, jobID)
}

// Alert returns the topic for unattended safety alerts (watchdog).
//
// Example: hydrocore/alert/sensor_fault
func (Topics) Alert(kind string) string {
	return fmt.Sprintf("%s/alert/%s", TopicPrefix, kind)
}

// SystemStatus returns the online/offline status topic (also the LWT).
//
// Example: hydrocore/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", TopicPrefix)
}
