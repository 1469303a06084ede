package reconcile

import (
	"github.com/printforge/cartsync/errs"
	"github.com/printforge/cartsync/internal/schema"
)

// FeeReconciliation is the per-project reconciliation signal: the gap, in
// minor currency units, between the editor's computed total and the price
// the storefront is currently billing on the project's main line.
type FeeReconciliation struct {
	ProjectID   string
	EditorTotal int64
	ShopifyLine int64
	Delta       int64
	MainLineKey schema.LineKey
}

// ComputeDelta derives the reconciliation state for one project from the
// snapshot and its cached editor details. It is a pure function of its
// inputs: identical snapshot and details always yield an identical result.
//
// Returns CodeNotFound when the project has no main line (nothing to
// reconcile against) and CodeInvalid when the editor total cannot be parsed;
// either way the project is skipped for this pass.
func ComputeDelta(snapshot *schema.CartSnapshot, classifier *Classifier, details *schema.ProjectDetails) (*FeeReconciliation, error) {
	if snapshot == nil || details == nil {
		return nil, errs.New("reconcile/delta", errs.CodeInvalid, errs.WithMessage("snapshot and details required"))
	}

	var main *schema.CartLine
	for i := range snapshot.Lines {
		line := snapshot.Lines[i]
		cls := classifier.Classify(line)
		if cls.Fee || cls.ProjectID != details.ProjectID {
			continue
		}
		main = &snapshot.Lines[i]
		break
	}
	if main == nil {
		return nil, errs.New("reconcile/delta", errs.CodeNotFound,
			errs.WithMessage("no main line for project "+details.ProjectID))
	}

	editorTotal, err := details.TotalPriceMinorUnits()
	if err != nil {
		return nil, err
	}

	billed := main.BilledPrice()
	return &FeeReconciliation{
		ProjectID:   details.ProjectID,
		EditorTotal: editorTotal,
		ShopifyLine: billed,
		Delta:       editorTotal - billed,
		MainLineKey: main.Key,
	}, nil
}
