// Package mqtt provides MQTT client connectivity for HydroCore.
//
// This package manages:
//   - Connection to the broker with backoff on the first attempt and
//     auto-reconnect afterwards
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support, restored on reconnect
//   - Last Will and Testament (LWT) so the GPIO bridge can fail safe
//
// # Architecture
//
// On the reference hardware the pumps are switched by a small GPIO bridge
// process. HydroCore talks to it only through the broker:
//
//	HydroCore ↔ MQTT Broker ↔ GPIO bridge ↔ pumps, relay, float switches
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllSensorStates(), 1,
//	    func(topic string, payload []byte) error {
//	        return cache.Update(topic, payload)
//	    })
//
//	client.Publish(mqtt.Topics{}.ChannelCommand("water_in"), []byte(`{"on":true}`), 1, false)
package mqtt
