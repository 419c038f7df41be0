// Package influxdb records the watchdog's telemetry in InfluxDB v2.
//
// The watchdog writes device state transitions, numeric mirrored attribute
// values, recovery outcomes, poll-cycle overlaps and fleet set sizes. Points
// are batched by influxdb-client-go and written in the background; the
// write methods never block and a closed client drops them.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.WriteDeviceState("sys/tg_test/1", "FAULT")
//
// Background write failures reach the SetOnError callback and are counted
// by WriteErrors. HealthCheck pings the server for the API health endpoint.
package influxdb
