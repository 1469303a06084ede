package reconcile

import (
	"context"
	"strconv"
	"testing"

	"github.com/printforge/cartsync/internal/schema"
)

func TestSyncStateTable(t *testing.T) {
	existing := feeLine("fee-1", "prj-1", 500)

	cases := []struct {
		name       string
		delta      int64
		feeLine    *schema.CartLine
		wantAction SyncAction
		wantMut    bool
		wantQty    int64
	}{
		{name: "absent zero delta", delta: 0, feeLine: nil, wantAction: ActionNone},
		{name: "absent negative delta", delta: -300, feeLine: nil, wantAction: ActionNone},
		{name: "absent positive delta", delta: 750, feeLine: nil, wantAction: ActionAdd, wantMut: true, wantQty: 750},
		{name: "present zero delta", delta: 0, feeLine: &existing, wantAction: ActionRemove, wantMut: true},
		{name: "present negative delta", delta: -10, feeLine: &existing, wantAction: ActionRemove, wantMut: true},
		{name: "present matching quantity", delta: 500, feeLine: &existing, wantAction: ActionNone},
		{name: "present differing quantity", delta: 900, feeLine: &existing, wantAction: ActionUpdate, wantMut: true, wantQty: 900},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cart := &fakeCart{}
			if tc.feeLine != nil {
				cart.lines = []schema.CartLine{*tc.feeLine}
			}
			syncer := NewSynchronizer(cart, "40000999")

			rec := &FeeReconciliation{ProjectID: "prj-1", EditorTotal: 10000, ShopifyLine: 10000 - tc.delta, Delta: tc.delta}
			result, err := syncer.Sync(context.Background(), rec, tc.feeLine)
			if err != nil {
				t.Fatalf("Sync() error: %v", err)
			}
			if result.Action != tc.wantAction {
				t.Fatalf("Action = %s, want %s", result.Action, tc.wantAction)
			}
			if result.Mutated != tc.wantMut {
				t.Fatalf("Mutated = %v, want %v", result.Mutated, tc.wantMut)
			}
			if tc.wantMut && tc.wantAction != ActionRemove && result.Quantity != tc.wantQty {
				t.Fatalf("Quantity = %d, want %d", result.Quantity, tc.wantQty)
			}

			wantCalls := 0
			if tc.wantMut {
				wantCalls = 1
			}
			if got := cart.mutations(); got != wantCalls {
				t.Fatalf("cart mutations = %d, want %d", got, wantCalls)
			}
		})
	}
}

func TestSyncAddSetsMarkerProperties(t *testing.T) {
	cart := &fakeCart{}
	syncer := NewSynchronizer(cart, "gid://shopify/ProductVariant/40000999")

	rec := &FeeReconciliation{ProjectID: "prj-1", EditorTotal: 10050, ShopifyLine: 9000, Delta: 1050}
	if _, err := syncer.Sync(context.Background(), rec, nil); err != nil {
		t.Fatalf("Sync() error: %v", err)
	}

	line, ok := cart.lineByProject("prj-1", true)
	if !ok {
		t.Fatal("expected a fee line for prj-1")
	}
	if line.VariantID != "40000999" {
		t.Fatalf("variant = %q, want normalized 40000999", line.VariantID)
	}
	if line.Quantity != 1050 {
		t.Fatalf("quantity = %d, want 1050", line.Quantity)
	}
	if line.Properties[schema.PropPersonalisationFee] != "true" {
		t.Fatal("missing fee marker property")
	}
	if line.Properties[schema.PropEditorTotalCents] != strconv.Itoa(10050) {
		t.Fatalf("editor total property = %q", line.Properties[schema.PropEditorTotalCents])
	}
	if line.Properties[schema.PropShopifyLineCents] != strconv.Itoa(9000) {
		t.Fatalf("shopify line property = %q", line.Properties[schema.PropShopifyLineCents])
	}
}

func TestSyncDisabledWithoutFeeVariant(t *testing.T) {
	cart := &fakeCart{}
	syncer := NewSynchronizer(cart, "")
	if syncer.Enabled() {
		t.Fatal("expected synchronizer disabled")
	}

	rec := &FeeReconciliation{ProjectID: "prj-1", Delta: 999}
	result, err := syncer.Sync(context.Background(), rec, nil)
	if err != nil {
		t.Fatalf("Sync() error: %v", err)
	}
	if result.Action != ActionNone || cart.mutations() != 0 {
		t.Fatal("disabled synchronizer must not mutate the cart")
	}
}

func TestSyncSurfacesCartErrors(t *testing.T) {
	cart := &fakeCart{failAdd: true}
	syncer := NewSynchronizer(cart, "40000999")

	rec := &FeeReconciliation{ProjectID: "prj-1", Delta: 100}
	result, err := syncer.Sync(context.Background(), rec, nil)
	if err == nil {
		t.Fatal("expected add failure to surface")
	}
	if result.Mutated {
		t.Fatal("failed mutation must not report Mutated")
	}
	if result.Action != ActionAdd {
		t.Fatalf("Action = %s, want %s", result.Action, ActionAdd)
	}
}
