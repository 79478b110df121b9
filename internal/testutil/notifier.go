package testutil

import (
	"context"
	"sync"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Notifier records every event it is handed. Err, when set, is returned from
// Notify after recording.
type Notifier struct {
	mu     sync.Mutex
	events []shared.Event
	Err    error
}

// Notify implements shared.Notifier.
func (n *Notifier) Notify(_ context.Context, events ...shared.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, events...)
	return n.Err
}

// Events returns the recorded events.
func (n *Notifier) Events() []shared.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]shared.Event(nil), n.events...)
}

// Types returns the recorded event types in order.
func (n *Notifier) Types() []shared.EventType {
	var types []shared.EventType
	for _, e := range n.Events() {
		types = append(types, e.Type)
	}
	return types
}

// Reset forgets recorded events.
func (n *Notifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = nil
}
