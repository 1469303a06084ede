package reconcile

import (
	"context"

	"github.com/printforge/cartsync/internal/observability"
	"github.com/printforge/cartsync/internal/schema"
)

// CleanOrphans removes fee lines whose project no longer has a main line,
// e.g. after the shopper deleted the product row. Removals are independent:
// a failed removal is logged and does not block the others. onRemoved, when
// non-nil, is invoked after each successful removal. Returns the number of
// fee lines successfully removed.
func CleanOrphans(ctx context.Context, snapshot *schema.CartSnapshot, classifier *Classifier, cart CartMutator, onRemoved func(projectID string, key schema.LineKey)) int {
	if snapshot == nil {
		return 0
	}

	mainProjects := make(map[string]struct{})
	type orphanCandidate struct {
		key       schema.LineKey
		projectID string
	}
	var feeLines []orphanCandidate

	for _, line := range snapshot.Lines {
		cls := classifier.Classify(line)
		if cls.ProjectID == "" {
			continue
		}
		if cls.Fee {
			feeLines = append(feeLines, orphanCandidate{key: line.Key, projectID: cls.ProjectID})
			continue
		}
		mainProjects[cls.ProjectID] = struct{}{}
	}

	removed := 0
	for _, fee := range feeLines {
		if _, ok := mainProjects[fee.projectID]; ok {
			continue
		}
		if err := cart.ChangeLine(ctx, fee.key, 0); err != nil {
			observability.Log().Warn("orphan fee removal failed",
				observability.String("project_id", fee.projectID),
				observability.String("line_key", string(fee.key)),
				observability.Err(err))
			continue
		}
		observability.Log().Info("removed orphan fee line",
			observability.String("project_id", fee.projectID),
			observability.String("line_key", string(fee.key)))
		removed++
		if onRemoved != nil {
			onRemoved(fee.projectID, fee.key)
		}
	}
	return removed
}
