package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the watchdog.
const (
	MeasurementDeviceState = "device_state"
	MeasurementAttribute   = "device_attribute"
	MeasurementRecovery    = "recovery"
	MeasurementOverlap     = "poll_overlap"
	MeasurementFleet       = "fleet"
)

// WriteDeviceState records a state transition of a watched device.
func (c *Client) WriteDeviceState(device, state string) {
	c.write(deviceStatePoint(device, state, time.Now()))
}

// WriteAttribute records a numeric mirrored attribute value.
func (c *Client) WriteAttribute(device, attribute string, value float64) {
	c.write(attributePoint(device, attribute, value, time.Now()))
}

// WriteRecovery records the outcome of a fault or hang recovery.
func (c *Client) WriteRecovery(device, kind, outcome string, elapsed time.Duration) {
	c.write(recoveryPoint(device, kind, outcome, elapsed, time.Now()))
}

// WriteOverlap records a check that ran longer than the poll period.
func (c *Client) WriteOverlap(device string, overlaps int, elapsed time.Duration) {
	c.write(overlapPoint(device, overlaps, elapsed, time.Now()))
}

// WriteFleetCounts records the size of each fleet set.
func (c *Client) WriteFleetCounts(running, fault, hang int) {
	c.write(fleetPoint(running, fault, hang, time.Now()))
}

// write queues p unless the client is closed.
func (c *Client) write(p *write.Point) {
	if !c.open.Load() {
		return
	}
	c.writer.WritePoint(p)
}

func deviceStatePoint(device, state string, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementDeviceState,
		map[string]string{"device": device},
		map[string]any{"state": state},
		ts,
	)
}

func attributePoint(device, attribute string, value float64, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementAttribute,
		map[string]string{"device": device, "attribute": attribute},
		map[string]any{"value": value},
		ts,
	)
}

func recoveryPoint(device, kind, outcome string, elapsed time.Duration, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementRecovery,
		map[string]string{"device": device, "kind": kind, "outcome": outcome},
		map[string]any{"elapsed_ms": elapsed.Milliseconds()},
		ts,
	)
}

func overlapPoint(device string, overlaps int, elapsed time.Duration, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementOverlap,
		map[string]string{"device": device},
		map[string]any{"overlaps": overlaps, "elapsed_ms": elapsed.Milliseconds()},
		ts,
	)
}

func fleetPoint(running, fault, hang int, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementFleet,
		nil,
		map[string]any{"running": running, "fault": fault, "hang": hang},
		ts,
	)
}
