// Package cartbus defines the pub/sub channel carrying cart change signals.
//
// Every component that mutates or observes the cart publishes events here;
// the reconciliation engine subscribes instead of polling for side effects.
package cartbus

import (
	"context"

	"github.com/printforge/cartsync/internal/schema"
)

// SubscriptionID uniquely identifies a bus subscription.
type SubscriptionID string

// Bus delivers cart events to interested subscribers.
type Bus interface {
	Publish(ctx context.Context, evt *schema.CartEvent) error
	Subscribe(ctx context.Context, typ schema.EventType) (SubscriptionID, <-chan *schema.CartEvent, error)
	Unsubscribe(id SubscriptionID)
	Close()
}

// MemoryConfig configures the in-memory bus buffers.
type MemoryConfig struct {
	BufferSize int
}

func (c MemoryConfig) normalize() MemoryConfig {
	if c.BufferSize <= 0 {
		c.BufferSize = 16
	}
	return c
}
