// Package mqtt is the watchdog's connection to the MQTT broker that carries
// the device bus.
//
// Device servers publish attribute events under watchdog/device/... and
// answer requests on watchdog/response/<id>. The watchdog mirrors its own
// aggregated attributes as retained messages under watchdog/attr/ and
// announces itself on watchdog/status, with a retained offline will for
// crashes. Topics builds every topic name.
//
// Client reconnects with backoff and restores its subscriptions after each
// reconnect. HealthCheck and Stats feed the API health and metrics
// endpoints.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
package mqtt
