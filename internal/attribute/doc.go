// Package attribute is the watchdog's published attribute surface.
//
// The Registry is built once at startup: one binding per logical
// attribute (fleet counts and lists, per-device states and mirrored
// values, the dealer selection, the watchdog's own state). Producers
// publish changes through Registry.PublishChange; the registry caches the
// value and fans it out to every sink (MQTT, WebSocket clients, InfluxDB).
// Sink failures are logged and never reach the producer.
package attribute
