package reconcile

import (
	"context"
	"strconv"

	"github.com/printforge/cartsync/errs"
	"github.com/printforge/cartsync/internal/observability"
	"github.com/printforge/cartsync/internal/schema"
)

// CartMutator is the slice of the storefront client the synchronizer needs.
type CartMutator interface {
	AddLine(ctx context.Context, variantID string, quantity int64, properties map[string]string) error
	ChangeLine(ctx context.Context, key schema.LineKey, quantity int64) error
}

// SyncAction names the mutation a sync invocation decided on.
type SyncAction string

const (
	// ActionNone means the cart already matched the editor total.
	ActionNone SyncAction = "none"
	// ActionAdd created a new fee line.
	ActionAdd SyncAction = "add"
	// ActionUpdate changed an existing fee line's quantity.
	ActionUpdate SyncAction = "update"
	// ActionRemove deleted an existing fee line.
	ActionRemove SyncAction = "remove"
)

// SyncResult reports what one sync invocation did.
type SyncResult struct {
	Action   SyncAction
	Quantity int64
	LineKey  schema.LineKey
	// Mutated is true when a cart mutation was issued and succeeded.
	Mutated bool
	// Refresh is true when callers should re-read the cart (add/update).
	Refresh bool
}

// Synchronizer drives a project's fee line toward the computed delta.
//
// The fee variant is priced at exactly one minor currency unit per unit of
// quantity, so the delta is encoded directly as the line quantity. The
// encoding lives entirely in this type: a storefront with custom line
// pricing would swap the mechanism without touching callers.
type Synchronizer struct {
	cart         CartMutator
	feeVariantID string
}

// NewSynchronizer constructs a synchronizer. An empty feeVariantID disables
// synchronization: Sync becomes a no-op.
func NewSynchronizer(cart CartMutator, feeVariantID string) *Synchronizer {
	return &Synchronizer{
		cart:         cart,
		feeVariantID: schema.NormalizeVariantID(feeVariantID),
	}
}

// Enabled reports whether fee synchronization is active.
func (s *Synchronizer) Enabled() bool {
	return s != nil && s.feeVariantID != ""
}

// Sync reconciles one project's fee line against the computed delta. feeLine
// is the project's existing fee line, nil when absent. At most one cart
// mutation is issued per invocation.
//
// Transitions, driven by (delta, existing fee line):
//
//	absent,  delta <= 0  -> no-op
//	absent,  delta  > 0  -> add fee line with quantity = delta
//	present, delta <= 0  -> remove fee line (quantity 0)
//	present, delta  > 0, quantity == delta -> no-op
//	present, delta  > 0, quantity != delta -> update quantity to delta
func (s *Synchronizer) Sync(ctx context.Context, rec *FeeReconciliation, feeLine *schema.CartLine) (SyncResult, error) {
	if !s.Enabled() {
		return SyncResult{Action: ActionNone}, nil
	}
	if rec == nil {
		return SyncResult{Action: ActionNone}, errs.New("reconcile/sync", errs.CodeInvalid, errs.WithMessage("reconciliation state required"))
	}

	switch {
	case feeLine == nil && rec.Delta <= 0:
		return SyncResult{Action: ActionNone}, nil

	case feeLine == nil:
		properties := map[string]string{
			schema.PropPersonalisationFee: "true",
			schema.PropProjectID:          rec.ProjectID,
			schema.PropEditorTotalCents:   strconv.FormatInt(rec.EditorTotal, 10),
			schema.PropShopifyLineCents:   strconv.FormatInt(rec.ShopifyLine, 10),
		}
		if err := s.cart.AddLine(ctx, s.feeVariantID, rec.Delta, properties); err != nil {
			return SyncResult{Action: ActionAdd}, err
		}
		observability.Log().Info("added personalisation fee line",
			observability.String("project_id", rec.ProjectID),
			observability.Int64("quantity", rec.Delta))
		return SyncResult{Action: ActionAdd, Quantity: rec.Delta, Mutated: true, Refresh: true}, nil

	case rec.Delta <= 0:
		if err := s.cart.ChangeLine(ctx, feeLine.Key, 0); err != nil {
			return SyncResult{Action: ActionRemove, LineKey: feeLine.Key}, err
		}
		observability.Log().Info("removed personalisation fee line",
			observability.String("project_id", rec.ProjectID),
			observability.Int64("delta", rec.Delta))
		return SyncResult{Action: ActionRemove, LineKey: feeLine.Key, Mutated: true}, nil

	case feeLine.Quantity == rec.Delta:
		return SyncResult{Action: ActionNone, LineKey: feeLine.Key, Quantity: feeLine.Quantity}, nil

	default:
		if err := s.cart.ChangeLine(ctx, feeLine.Key, rec.Delta); err != nil {
			return SyncResult{Action: ActionUpdate, LineKey: feeLine.Key}, err
		}
		observability.Log().Info("updated personalisation fee line",
			observability.String("project_id", rec.ProjectID),
			observability.Int64("quantity", rec.Delta))
		return SyncResult{Action: ActionUpdate, LineKey: feeLine.Key, Quantity: rec.Delta, Mutated: true, Refresh: true}, nil
	}
}
