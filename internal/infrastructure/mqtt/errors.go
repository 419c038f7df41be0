package mqtt

import "errors"

// Errors returned by Client. Callers match them with errors.Is.
var (
	ErrNotConnected    = errors.New("mqtt: broker connection down")
	ErrConnect         = errors.New("mqtt: cannot reach broker")
	ErrPublish         = errors.New("mqtt: publish not acknowledged")
	ErrSubscribe       = errors.New("mqtt: subscribe not acknowledged")
	ErrUnsubscribe     = errors.New("mqtt: unsubscribe not acknowledged")
	ErrEmptyTopic      = errors.New("mqtt: empty topic")
	ErrInvalidQoS      = errors.New("mqtt: QoS must be 0, 1 or 2")
	ErrPayloadTooLarge = errors.New("mqtt: payload too large")
	ErrNilHandler      = errors.New("mqtt: nil message handler")
	ErrTimeout         = errors.New("mqtt: broker did not answer in time")
)
