package schema

import (
	"time"

	"github.com/google/uuid"

	"github.com/printforge/cartsync/errs"
)

// EventType names a cart bus event category.
type EventType string

const (
	// EventCartChanged signals that the storefront cart content changed.
	EventCartChanged EventType = "cart.changed"
	// EventCartRefresh requests a reconciliation pass without a known change.
	EventCartRefresh EventType = "cart.refresh"
)

// CartEvent is the message delivered over the cart bus.
type CartEvent struct {
	EventID    string    `json:"eventId"`
	Type       EventType `json:"type"`
	Source     string    `json:"source"`
	OccurredAt time.Time `json:"occurredAt"`
}

// NewCartEvent constructs a cart event stamped with a fresh identifier.
func NewCartEvent(typ EventType, source string) *CartEvent {
	return &CartEvent{
		EventID:    uuid.NewString(),
		Type:       typ,
		Source:     source,
		OccurredAt: time.Now().UTC(),
	}
}

// Validate ensures the event is deliverable.
func (e *CartEvent) Validate() error {
	if e == nil {
		return errs.New("schema/event", errs.CodeInvalid, errs.WithMessage("nil event"))
	}
	switch e.Type {
	case EventCartChanged, EventCartRefresh:
		return nil
	default:
		return errs.New("schema/event", errs.CodeInvalid, errs.WithMessage("unknown event type "+string(e.Type)))
	}
}
