package engine

import (
	"context"
	"sync"

	apperrors "github.com/emberline/catalogstore/internal/platform/errors"
	"github.com/emberline/catalogstore/internal/storage"
)

// Handler applies one event to a read model inside the same logical unit of
// work that produced the event. A handler error aborts the whole unit.
type Handler func(ctx context.Context, scope *Scope, evt storage.EventRecord) error

// Dispatcher routes committed-to-be events to the projection handlers
// registered for their type.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string][]Handler)}
}

// RegisterHandler subscribes h to events of the given type. Handlers run in
// registration order.
func (d *Dispatcher) RegisterHandler(eventType string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], h)
}

// Dispatch runs every handler registered for the event's type. The first
// handler error is returned as a projection failure; events with no handlers
// dispatch as a no-op.
func (d *Dispatcher) Dispatch(ctx context.Context, scope *Scope, evt storage.EventRecord) error {
	d.mu.RLock()
	handlers := d.handlers[evt.EventType]
	d.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, scope, evt); err != nil {
			return apperrors.WrapWithMetadata(apperrors.CodeProjectionFailed, "projection handler failed", map[string]string{
				"event_type":   evt.EventType,
				"aggregate_id": evt.AggregateID,
			}, err)
		}
	}
	return nil
}
