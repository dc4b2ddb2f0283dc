// Package eventbus provides a synchronous in-process event bus. The
// persistence layer publishes collected domain events here after its
// transaction commits; handlers run inline on the triggering request.
package eventbus

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Event is anything publishable on the bus, keyed by kind.
type Event interface {
	EventKind() string
}

// Handler consumes one event. A handler error does not stop delivery to
// later handlers; Publish reports the accumulated errors to the caller.
type Handler func(ctx context.Context, evt Event) error

// Bus delivers events sequentially, in append order, to handlers in
// registration order. Subscriptions are expected at startup; Publish is
// safe for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *zap.Logger
}

// New creates an empty bus.
func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for an event kind.
func (b *Bus) Subscribe(kind string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

// Publish delivers each event to every handler subscribed to its kind.
// Events within one call are delivered in order; no ordering is promised
// across concurrent calls.
func (b *Bus) Publish(ctx context.Context, events ...Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var errs []error
	for _, evt := range events {
		for _, h := range b.handlers[evt.EventKind()] {
			if err := h(ctx, evt); err != nil {
				b.logger.Error("event handler failed",
					zap.String("kind", evt.EventKind()),
					zap.Error(err))
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
