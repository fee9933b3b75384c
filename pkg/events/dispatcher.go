// Package events delivers auth change events to subscribers in order.
package events

import (
	"context"
	"sync"

	"github.com/lborres/portal/core"
)

// Dispatcher fans events out to handlers synchronously, in subscription
// order. Emit calls are serialized so every handler sees the same sequence.
// Handlers must not call Emit.
type Dispatcher struct {
	mu       sync.Mutex
	handlers map[uint64]core.AuthEventHandler
	order    []uint64
	seq      uint64

	emitMu sync.Mutex
}

type subscription struct {
	d  *Dispatcher
	id uint64
}

func (s subscription) Unsubscribe() {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	delete(s.d.handlers, s.id)
}

func (d *Dispatcher) Subscribe(handler core.AuthEventHandler) core.Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handlers == nil {
		d.handlers = make(map[uint64]core.AuthEventHandler)
	}
	d.seq++
	d.handlers[d.seq] = handler
	d.order = append(d.order, d.seq)
	return subscription{d: d, id: d.seq}
}

// Emit delivers event to every current subscriber.
func (d *Dispatcher) Emit(ctx context.Context, event core.AuthEvent) {
	d.emitMu.Lock()
	defer d.emitMu.Unlock()

	for _, h := range d.snapshot() {
		h(ctx, event)
	}
}

// Len returns the number of live subscribers.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handlers)
}

func (d *Dispatcher) snapshot() []core.AuthEventHandler {
	d.mu.Lock()
	defer d.mu.Unlock()

	handlers := make([]core.AuthEventHandler, 0, len(d.handlers))
	live := d.order[:0]
	for _, id := range d.order {
		if h, ok := d.handlers[id]; ok {
			handlers = append(handlers, h)
			live = append(live, id)
		}
	}
	d.order = live
	return handlers
}
