// internal/events/bus.go
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrBusClosed возвращается при публикации после Shutdown
	ErrBusClosed = errors.New("event bus is shutting down")
	// ErrBusFull возвращается, когда буфер событий переполнен
	ErrBusFull = errors.New("event channel full")
)

// Bus is an in-memory event bus. Events are dispatched by a single goroutine,
// so handlers observe them in publish order and must not block for long.
type Bus struct {
	mu         sync.RWMutex
	handlers   map[EventType]map[string]Handler
	logger     *zap.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	eventChan  chan Event
	bufferSize int
	closed     bool

	statsMu   sync.Mutex
	published uint64
	dropped   uint64
	failed    uint64
}

// NewBus creates a new event bus.
func NewBus(logger *zap.Logger, bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	bus := &Bus{
		handlers:   make(map[EventType]map[string]Handler),
		logger:     logger.Named("event_bus"),
		ctx:        ctx,
		cancel:     cancel,
		eventChan:  make(chan Event, bufferSize),
		bufferSize: bufferSize,
	}

	bus.wg.Add(1)
	go bus.processEvents()

	return bus
}

// Subscribe registers a handler for a specific event type or AllEvents.
func (b *Bus) Subscribe(eventType EventType, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()

	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[string]Handler)
	}
	b.handlers[eventType][id] = handler

	b.logger.Debug("Handler subscribed",
		zap.String("event_type", string(eventType)),
		zap.String("subscription_id", id))

	return &subscription{
		id:       id,
		eventBus: b,
		typ:      eventType,
	}
}

// SubscribeFunc is a convenience method for subscribing with a function.
func (b *Bus) SubscribeFunc(eventType EventType, fn func(context.Context, Event) error) Subscription {
	return b.Subscribe(eventType, HandlerFunc(fn))
}

// Publish queues an event for asynchronous delivery. It never blocks.
func (b *Bus) Publish(event Event) error {
	// closed is flipped under the write lock, so an accepted event is
	// always queued before the dispatcher drains
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}
	select {
	case b.eventChan <- event:
		b.count(&b.published)
		return nil
	default:
		b.count(&b.dropped)
		b.logger.Warn("Event channel full, dropping event",
			zap.String("event_type", string(event.Type())))
		return ErrBusFull
	}
}

// PublishSync delivers an event to all matching handlers on the caller's goroutine.
func (b *Bus) PublishSync(ctx context.Context, event Event) error {
	handlers := b.handlersFor(event.Type())
	if len(handlers) == 0 {
		return nil
	}

	var errs []error
	for id, handler := range handlers {
		if err := handler.Handle(ctx, event); err != nil {
			b.count(&b.failed)
			b.logger.Error("Handler error",
				zap.String("event_type", string(event.Type())),
				zap.String("handler_id", id),
				zap.Error(err))
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("handlers failed: %w", errors.Join(errs...))
	}
	return nil
}

// handlersFor copies the handlers of t plus wildcard handlers so the lock is
// not held while they run.
func (b *Bus) handlersFor(t EventType) map[string]Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]Handler, len(b.handlers[t])+len(b.handlers[AllEvents]))
	for id, h := range b.handlers[t] {
		out[id] = h
	}
	if t != AllEvents {
		for id, h := range b.handlers[AllEvents] {
			out[id] = h
		}
	}
	return out
}

// processEvents is the main event processing loop.
func (b *Bus) processEvents() {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			// Drain remaining events
			for {
				select {
				case event := <-b.eventChan:
					_ = b.PublishSync(context.Background(), event)
				default:
					return
				}
			}
		case event := <-b.eventChan:
			if err := b.PublishSync(b.ctx, event); err != nil {
				b.logger.Debug("Event processed with errors",
					zap.String("event_type", string(event.Type())),
					zap.Error(err))
			}
		}
	}
}

// unsubscribe removes a handler subscription.
func (b *Bus) unsubscribe(id string, eventType EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if handlers, ok := b.handlers[eventType]; ok {
		delete(handlers, id)
		if len(handlers) == 0 {
			delete(b.handlers, eventType)
		}
	}

	b.logger.Debug("Handler unsubscribed",
		zap.String("event_type", string(eventType)),
		zap.String("subscription_id", id))
}

// Shutdown stops accepting events, delivers what is queued and waits for
// the dispatcher or ctx.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.logger.Info("Shutting down event bus")

	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("Event bus shutdown complete")
		return nil
	case <-ctx.Done():
		b.logger.Warn("Event bus shutdown timeout")
		return ctx.Err()
	}
}

// Stats – снимок счетчиков шины
type Stats struct {
	BufferSize      int            `json:"bufferSize"`
	PendingEvents   int            `json:"pendingEvents"`
	Published       uint64         `json:"published"`
	Dropped         uint64         `json:"dropped"`
	HandlerFailures uint64         `json:"handlerFailures"`
	HandlersPerType map[string]int `json:"handlersPerType"`
}

// Stats returns statistics about the event bus.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	handlerCounts := make(map[string]int, len(b.handlers))
	for eventType, handlers := range b.handlers {
		handlerCounts[string(eventType)] = len(handlers)
	}
	b.mu.RUnlock()

	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	return Stats{
		BufferSize:      b.bufferSize,
		PendingEvents:   len(b.eventChan),
		Published:       b.published,
		Dropped:         b.dropped,
		HandlerFailures: b.failed,
		HandlersPerType: handlerCounts,
	}
}

func (b *Bus) count(c *uint64) {
	b.statsMu.Lock()
	*c++
	b.statsMu.Unlock()
}
