// Package journal defines the audit trail for fee line mutations. Support
// teams use it to reconstruct why a shopper's cart carried a given surcharge.
package journal

import (
	"context"
	"time"
)

// Action mirrors the synchronizer's mutation vocabulary.
type Action string

const (
	// ActionAdd records a fee line creation.
	ActionAdd Action = "add"
	// ActionUpdate records a fee line quantity change.
	ActionUpdate Action = "update"
	// ActionRemove records a fee line removal, including orphan cleanup.
	ActionRemove Action = "remove"
)

// Entry is one journaled fee mutation.
type Entry struct {
	ID          string    `json:"id"`
	PassID      string    `json:"passId"`
	ProjectID   string    `json:"projectId"`
	Action      Action    `json:"action"`
	LineKey     string    `json:"lineKey,omitempty"`
	Quantity    int64     `json:"quantity"`
	Delta       int64     `json:"delta"`
	EditorTotal int64     `json:"editorTotal"`
	ShopifyLine int64     `json:"shopifyLine"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Query scopes journal lookups.
type Query struct {
	ProjectID string `json:"projectId,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// Store persists fee mutation entries.
type Store interface {
	// Record appends one entry. Implementations assign ID and CreatedAt
	// when unset.
	Record(ctx context.Context, entry Entry) error
	// List returns entries newest-first, optionally scoped to a project.
	List(ctx context.Context, query Query) ([]Entry, error)
}
