package mqtt

import "fmt"

// Publish sends payload on topic and waits for the broker's
// acknowledgement. Retained messages hold watchdog attributes and the
// status topic; requests and alerts are not retained.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d bytes on %s", ErrPayloadTooLarge, len(payload), topic)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if err := await(c.paho.Publish(topic, qos, retained, payload), ackTimeout); err != nil {
		c.publishErrors.Add(1)
		return fmt.Errorf("%w: %s: %w", ErrPublish, topic, err)
	}
	c.published.Add(1)
	return nil
}

func checkTopic(topic string, qos byte) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	if qos > maxQoS {
		return fmt.Errorf("%w: got %d", ErrInvalidQoS, qos)
	}
	return nil
}
