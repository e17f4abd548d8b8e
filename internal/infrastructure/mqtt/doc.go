// Package mqtt provides MQTT connectivity for the access bridge.
//
// The bridge only publishes: device events, command results and health
// records leave through this client for downstream consumers.
//
// # Reliability
//
//   - Auto-reconnect with exponential backoff between the configured delays
//   - Last Will and Testament on accessbridge/system/status so consumers can
//     tell a crash from a graceful shutdown
//   - Publishes fail fast with ErrNotConnected while the broker is away
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.DeviceHealth("door-1")
//	err = client.PublishJSON(topic, health, true)
package mqtt
