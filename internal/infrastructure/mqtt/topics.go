package mqtt

import "fmt"

// TopicPrefix is the root of every access bridge topic.
const TopicPrefix = "accessbridge"

// Topics provides builders for access bridge MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.DeviceEvent("door-1", "access_granted")
//	// Returns: "accessbridge/device/door-1/event/access_granted"
type Topics struct{}

// DeviceEvent returns the topic for one device event type.
//
// Example: accessbridge/device/door-1/event/access_denied
func (Topics) DeviceEvent(deviceID, eventType string) string {
	return fmt.Sprintf("%s/device/%s/event/%s", TopicPrefix, deviceID, eventType)
}

// DeviceHealth returns the retained device health topic.
//
// Example: accessbridge/device/door-1/health
func (Topics) DeviceHealth(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/health", TopicPrefix, deviceID)
}

// CommandResult returns the topic for command outcomes on a device.
//
// Example: accessbridge/device/door-1/command/result
func (Topics) CommandResult(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/command/result", TopicPrefix, deviceID)
}

// AdapterHealth returns the retained health topic of an adapter variant.
//
// Example: accessbridge/adapter/hikvision/health
func (Topics) AdapterHealth(adapterType string) string {
	return fmt.Sprintf("%s/adapter/%s/health", TopicPrefix, adapterType)
}

// SystemStatus returns the bridge status topic carrying the LWT.
//
// Example: accessbridge/system/status
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}
