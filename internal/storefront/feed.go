package storefront

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	json "github.com/goccy/go-json"

	"github.com/printforge/cartsync/internal/bus/cartbus"
	"github.com/printforge/cartsync/internal/observability"
	"github.com/printforge/cartsync/internal/schema"
)

const (
	feedMaxReconnectInterval = 30 * time.Second
	feedReadLimit            = 64 * 1024
)

// Cart-update event names emitted by the storefront relay.
const (
	feedEventCartUpdated   = "cart:updated"
	feedEventCartRefreshed = "cart:refresh"
)

// Feed maintains a websocket subscription to the storefront's cart-update
// relay and republishes notifications onto the cart bus.
type Feed struct {
	url string
	bus cartbus.Bus
}

type feedMessage struct {
	Event string `json:"event"`
	Shop  string `json:"shop,omitempty"`
}

// NewFeed constructs a feed for the given websocket URL.
func NewFeed(url string, bus cartbus.Bus) *Feed {
	return &Feed{url: url, bus: bus}
}

// Run keeps the websocket session alive until the context terminates,
// reconnecting with exponential backoff on failure.
func (f *Feed) Run(ctx context.Context) error {
	if f == nil || f.url == "" {
		return nil
	}
	boff := backoff.NewExponentialBackOff()
	boff.MaxInterval = feedMaxReconnectInterval

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn, _, err := websocket.Dial(ctx, f.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			observability.Log().Warn("cart feed dial failed",
				observability.String("url", f.url), observability.Err(err))
			if err := f.sleep(ctx, boff); err != nil {
				return err
			}
			continue
		}
		conn.SetReadLimit(feedReadLimit)
		boff.Reset()

		if err := f.readLoop(ctx, conn); err != nil && ctx.Err() == nil {
			observability.Log().Warn("cart feed disconnected", observability.Err(err))
		}
		_ = conn.Close(websocket.StatusNormalClosure, "reconnecting")

		if err := f.sleep(ctx, boff); err != nil {
			return err
		}
	}
}

func (f *Feed) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("feed read: %w", err)
		}
		var msg feedMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			observability.Log().Debug("cart feed skipped malformed message", observability.Err(err))
			continue
		}
		switch msg.Event {
		case feedEventCartUpdated:
			f.publish(ctx, schema.EventCartChanged)
		case feedEventCartRefreshed:
			f.publish(ctx, schema.EventCartRefresh)
		default:
		}
	}
}

func (f *Feed) publish(ctx context.Context, typ schema.EventType) {
	evt := schema.NewCartEvent(typ, "storefront/feed")
	if err := f.bus.Publish(ctx, evt); err != nil {
		observability.Log().Warn("cart feed publish failed", observability.Err(err))
	}
}

func (f *Feed) sleep(ctx context.Context, boff *backoff.ExponentialBackOff) error {
	sleep := boff.NextBackOff()
	if sleep == backoff.Stop {
		sleep = feedMaxReconnectInterval
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(sleep):
		return nil
	}
}
