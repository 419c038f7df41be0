package fleet

import (
	"context"
	"errors"
	"sync"

	"github.com/nerrad567/gray-logic-watchdog/internal/device"
)

type recordingPublisher struct {
	mu      sync.Mutex
	changes []device.Change
}

func (p *recordingPublisher) PublishChange(c device.Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, c)
	return nil
}

func (p *recordingPublisher) last(name string) (device.Change, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.changes) - 1; i >= 0; i-- {
		if p.changes[i].Name == name {
			return p.changes[i], true
		}
	}
	return device.Change{}, false
}

type notification struct {
	subject string
	body    string
}

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []notification
	fails int // number of leading calls that fail
}

var errSendFailed = errors.New("smtp down")

func (n *recordingNotifier) Notify(_ context.Context, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{subject: subject, body: body})
	if n.fails > 0 {
		n.fails--
		return errSendFailed
	}
	return nil
}

func (n *recordingNotifier) all() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.sent...)
}
