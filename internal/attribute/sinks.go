package attribute

import (
	"github.com/nerrad567/gray-logic-watchdog/internal/device"
)

// PublisherSink forwards values to a device.Publisher, such as the MQTT bus.
func PublisherSink(p device.Publisher) Sink {
	return SinkFunc(func(v Value) error {
		return p.PublishChange(device.Change{
			Name:      v.Name,
			Value:     v.Value,
			Timestamp: v.Timestamp,
			Quality:   v.Quality,
		})
	})
}

// AttributeWriter records numeric attribute values. *influxdb.Client satisfies it.
type AttributeWriter interface {
	WriteAttribute(device, attribute string, value float64)
}

// InfluxSink records numeric values of valid quality. Watchdog-level
// attributes are recorded under source.
func InfluxSink(w AttributeWriter, source string) Sink {
	return SinkFunc(func(v Value) error {
		if v.Quality != device.QualityValid {
			return nil
		}
		f, ok := numeric(v.Value)
		if !ok {
			return nil
		}
		dev, attr := v.Device, v.Attribute
		if dev == "" {
			dev, attr = source, v.Name
		}
		w.WriteAttribute(dev, attr, f)
		return nil
	})
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
