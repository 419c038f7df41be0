package bus

import "time"

// Request operations.
const (
	OpRead    = "read"
	OpWrite   = "write"
	OpCommand = "command"
)

// Well-known device attributes and commands.
const (
	AttributeStatus = "Status"
	CommandInit     = "Init"
)

// RequestMessage is published on a device's request topic.
type RequestMessage struct {
	ID        string    `json:"id"`
	Op        string    `json:"op"`
	Attribute string    `json:"attribute,omitempty"`
	Command   string    `json:"command,omitempty"`
	Value     any       `json:"value,omitempty"`
	ReplyTo   string    `json:"reply_to"`
	Timestamp time.Time `json:"timestamp"`
}

// ResponseMessage is a device's reply to a RequestMessage.
type ResponseMessage struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Value any    `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

// AttributeMessage is a device's attribute change event.
type AttributeMessage struct {
	Value     any       `json:"value"`
	Quality   string    `json:"quality,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// PublishedAttribute is the retained payload of a watchdog attribute.
type PublishedAttribute struct {
	Name      string    `json:"name"`
	Value     any       `json:"value"`
	Quality   string    `json:"quality"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertMessage is an operator notification.
type AlertMessage struct {
	Source     string    `json:"source"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	Recipients []string  `json:"recipients,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
