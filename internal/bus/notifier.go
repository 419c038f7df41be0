package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-watchdog/internal/device"
	"github.com/nerrad567/gray-logic-watchdog/internal/infrastructure/mqtt"
)

// trailer ends every notification body.
const trailer = "\n--\nEnd transmission."

// Notifier publishes operator alerts for downstream mail delivery.
type Notifier struct {
	transport  Transport
	qos        byte
	source     string
	recipients []string
}

var _ device.Notifier = (*Notifier)(nil)

// NewNotifier creates a Notifier. Subjects are prefixed with "[source]".
func NewNotifier(transport Transport, qos byte, source string, recipients []string) *Notifier {
	return &Notifier{
		transport:  transport,
		qos:        qos,
		source:     source,
		recipients: recipients,
	}
}

// Notify publishes one alert.
func (n *Notifier) Notify(ctx context.Context, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(AlertMessage{
		Source:     n.source,
		Subject:    fmt.Sprintf("[%s] %s", n.source, subject),
		Body:       body + trailer,
		Recipients: n.recipients,
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding alert: %w", err)
	}
	if err := n.transport.Publish(mqtt.Topics{}.Alert(), payload, n.qos, false); err != nil {
		return fmt.Errorf("publishing alert %q: %w", subject, err)
	}
	return nil
}
