// Package bus binds the watchdog's device contracts to MQTT.
//
// Device servers publish attribute changes on
// watchdog/device/{device}/attr/{attr} and accept requests on
// watchdog/device/{device}/request. Every request carries a UUID and a
// reply topic (watchdog/response/{id}); the bus waits for the matching
// reply up to its request timeout.
//
//	b := bus.New(mqttClient, bus.Options{Timeout: 3 * time.Second})
//	if err := b.Start(); err != nil {
//	    return err
//	}
//	h := b.Handle("sys/tg_test/1", "State")
//	state, err := h.QueryState(ctx)
//
// The same Bus implements device.Subscriber and device.Publisher;
// NewNotifier publishes operator alerts on watchdog/alert.
package bus
