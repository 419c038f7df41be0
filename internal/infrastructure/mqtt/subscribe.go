package mqtt

import "fmt"

// Subscribe routes messages matching topic (wildcards allowed) to handler.
// The route is restored after every reconnect until Unsubscribe.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return ErrNilHandler
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.mu.Lock()
	c.routes[topic] = route{qos: qos, handler: handler}
	c.mu.Unlock()

	if err := await(c.paho.Subscribe(topic, qos, c.deliver(handler)), ackTimeout); err != nil {
		c.mu.Lock()
		delete(c.routes, topic)
		c.mu.Unlock()
		return fmt.Errorf("%w: %s: %w", ErrSubscribe, topic, err)
	}
	return nil
}

// Unsubscribe drops the route for topic. Messages already in flight may
// still reach the handler.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.mu.Lock()
	delete(c.routes, topic)
	c.mu.Unlock()

	if err := await(c.paho.Unsubscribe(topic), ackTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnsubscribe, topic, err)
	}
	return nil
}
