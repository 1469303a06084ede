package journal

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreRecordDefaults(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Record(ctx, Entry{PassID: "pass-1", ProjectID: "prj-1", Action: ActionAdd, Quantity: 500}); err != nil {
		t.Fatalf("Record() error: %v", err)
	}

	entries, err := store.List(ctx, Query{})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].ID == "" {
		t.Fatal("expected a generated id")
	}
	if entries[0].CreatedAt.IsZero() {
		t.Fatal("expected a populated timestamp")
	}
}

func TestMemoryStoreRejectsEmptyProject(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Record(context.Background(), Entry{Action: ActionAdd}); err == nil {
		t.Fatal("expected error for missing project id")
	}
}

func TestMemoryStoreListNewestFirstWithFilter(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	seed := []Entry{
		{ID: "e1", ProjectID: "prj-1", Action: ActionAdd, CreatedAt: base},
		{ID: "e2", ProjectID: "prj-2", Action: ActionAdd, CreatedAt: base.Add(time.Minute)},
		{ID: "e3", ProjectID: "prj-1", Action: ActionUpdate, CreatedAt: base.Add(2 * time.Minute)},
		{ID: "e4", ProjectID: "prj-1", Action: ActionRemove, CreatedAt: base.Add(3 * time.Minute)},
	}
	for _, entry := range seed {
		if err := store.Record(ctx, entry); err != nil {
			t.Fatalf("Record(%s) error: %v", entry.ID, err)
		}
	}

	all, err := store.List(ctx, Query{})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(all) != 4 || all[0].ID != "e4" || all[3].ID != "e1" {
		t.Fatalf("unexpected order: %+v", all)
	}

	filtered, err := store.List(ctx, Query{ProjectID: "prj-1", Limit: 2})
	if err != nil {
		t.Fatalf("List(filtered) error: %v", err)
	}
	if len(filtered) != 2 {
		t.Fatalf("filtered entries = %d, want 2", len(filtered))
	}
	if filtered[0].ID != "e4" || filtered[1].ID != "e3" {
		t.Fatalf("unexpected filtered order: %+v", filtered)
	}
}
