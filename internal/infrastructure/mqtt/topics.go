package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every watchdog topic.
const TopicPrefix = "watchdog"

// Topics provides builders for watchdog MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
// Device names are hierarchical (e.g. "sys/tg_test/1") and occupy as many
// topic levels as they have segments:
//
//	topics := mqtt.Topics{}
//	t := topics.DeviceAttribute("sys/tg_test/1", "State")
//	// Returns: "watchdog/device/sys/tg_test/1/attr/State"
type Topics struct{}

// =============================================================================
// Device Topics
// =============================================================================

// DeviceAttribute returns the topic on which a device server publishes
// change events for one attribute.
//
// Example: watchdog/device/sys/tg_test/1/attr/State
func (Topics) DeviceAttribute(device, attribute string) string {
	return fmt.Sprintf("%s/device/%s/attr/%s", TopicPrefix, device, attribute)
}

// DeviceRequest returns the topic on which a device server accepts
// read, write and command requests.
//
// Example: watchdog/device/sys/tg_test/1/request
func (Topics) DeviceRequest(device string) string {
	return fmt.Sprintf("%s/device/%s/request", TopicPrefix, device)
}

// Response returns the reply topic for one request.
//
// Example: watchdog/response/6f1c...
func (Topics) Response(requestID string) string {
	return fmt.Sprintf("%s/response/%s", TopicPrefix, requestID)
}

// =============================================================================
// Watchdog Topics
// =============================================================================

// Attribute returns the retained topic mirroring one of the watchdog's own
// attributes.
//
// Example: watchdog/attr/RunningDevices
func (Topics) Attribute(name string) string {
	return fmt.Sprintf("%s/attr/%s", TopicPrefix, name)
}

// Alert returns the topic carrying operator notifications.
//
// Example: watchdog/alert
func (Topics) Alert() string {
	return TopicPrefix + "/alert"
}

// Status returns the watchdog online/offline status topic (retained, LWT).
//
// Example: watchdog/status
func (Topics) Status() string {
	return TopicPrefix + "/status"
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllResponses returns a pattern matching every reply topic.
//
// Pattern: watchdog/response/+
func (Topics) AllResponses() string {
	return TopicPrefix + "/response/+"
}

// AllAttributes returns a pattern matching every mirrored watchdog attribute.
//
// Pattern: watchdog/attr/+
func (Topics) AllAttributes() string {
	return TopicPrefix + "/attr/+"
}

// AllTopics returns a pattern matching all watchdog topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: watchdog/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}

// ParseDeviceAttribute splits a DeviceAttribute topic back into its device
// and attribute parts. ok is false for any other topic.
func ParseDeviceAttribute(topic string) (device, attribute string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefix+"/device/")
	if !found {
		return "", "", false
	}
	idx := strings.LastIndex(rest, "/attr/")
	if idx <= 0 {
		return "", "", false
	}
	device, attribute = rest[:idx], rest[idx+len("/attr/"):]
	if attribute == "" || strings.Contains(attribute, "/") {
		return "", "", false
	}
	return device, attribute, true
}

// ParseResponse extracts the request ID from a Response topic.
func ParseResponse(topic string) (string, bool) {
	id, found := strings.CutPrefix(topic, TopicPrefix+"/response/")
	if !found || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
