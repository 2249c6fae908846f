// internal/events/types.go
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event.
type EventType string

const (
	// Strategy lifecycle events
	StrategyStarted          EventType = "strategy.started"
	StrategyStopped          EventType = "strategy.stopped"
	StrategyResourceAssigned EventType = "strategy.resourceAssigned"
	StrategyConfigUpdated    EventType = "strategy.configUpdated"

	// Wallet session events
	WalletConnected    EventType = "wallet.connected"
	WalletDisconnected EventType = "wallet.disconnected"

	// Portfolio events
	PortfolioRefreshed EventType = "portfolio.refreshed"

	// AllEvents subscribes a handler to every event type.
	AllEvents EventType = "*"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	ID        string    `json:"id"`
	EventType EventType `json:"type"`
	EventTime time.Time `json:"time"`
}

// NewBaseEvent stamps an event of type t with a fresh id and the current time.
func NewBaseEvent(t EventType) BaseEvent {
	return BaseEvent{ID: uuid.NewString(), EventType: t, EventTime: time.Now().UTC()}
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// StrategyEvent is emitted by the orchestrator on every real lifecycle or
// configuration change of one strategy slot.
type StrategyEvent struct {
	BaseEvent
	Kind     string  `json:"kind"`
	State    string  `json:"state"`
	Resource *string `json:"resource,omitempty"`
	PnL      string  `json:"pnl"`
}

// WalletEvent is emitted when the connected identity changes.
type WalletEvent struct {
	BaseEvent
	Identity string `json:"identity,omitempty"`
	Previous string `json:"previous,omitempty"`
}

// PortfolioRefreshedEvent is emitted after a snapshot has been rebuilt.
type PortfolioRefreshedEvent struct {
	BaseEvent
	Identity   string `json:"identity"`
	SnapshotID string `json:"snapshotId"`
	TotalValue string `json:"totalValue"`
	Degraded   bool   `json:"degraded"`
}

// Handler processes delivered events. Handle runs on the dispatcher goroutine.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls f(ctx, event).
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Subscription is returned by Subscribe.
type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	id       string
	eventBus *Bus
	typ      EventType
}

func (s *subscription) Unsubscribe() {
	s.eventBus.unsubscribe(s.id, s.typ)
}
