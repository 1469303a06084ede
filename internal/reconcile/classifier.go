// Package reconcile implements the cart price-reconciliation engine: it keeps
// a synthetic per-project "personalisation fee" line in step with the total
// price computed by the external project editor.
package reconcile

import (
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/printforge/cartsync/internal/schema"
)

const feeTextMarker = "personalisation fee"

// projectIDPattern matches free-text "projectid: <value>" annotations left in
// line titles or property values by older storefront templates.
var projectIDPattern = regexp.MustCompile(`(?i)projectid[:\s]+([A-Za-z0-9_-]+)`)

// Classification is the reconciliation-relevant identity of one cart line.
type Classification struct {
	// ProjectID is the extracted editor project identifier, "" when the
	// line carries none (such lines are excluded from reconciliation).
	ProjectID string
	// Fee marks the line as a synthetic personalisation fee line.
	Fee bool
}

// Classifier assigns each cart line a project id and a fee/main role.
//
// Classification is memoized per line key. A line once classified as a fee
// line stays a fee line for as long as its key exists in the cart, even if
// the signals that produced the classification disappear. Entries are pruned
// when their key leaves the snapshot.
type Classifier struct {
	feeVariantID string

	mu    sync.Mutex
	byKey map[schema.LineKey]Classification
}

// NewClassifier constructs a classifier. feeVariantID may be raw or GID-style;
// it is normalized to its trailing digit run. Empty disables variant matching
// and leaves only the text heuristic for fee detection.
func NewClassifier(feeVariantID string) *Classifier {
	return &Classifier{
		feeVariantID: schema.NormalizeVariantID(feeVariantID),
		byKey:        make(map[schema.LineKey]Classification),
	}
}

// Prune drops memoized classifications whose line key is no longer present
// in the snapshot. Called at the start of every reconciliation pass.
func (c *Classifier) Prune(snapshot *schema.CartSnapshot) {
	keys := snapshot.KeySet()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.byKey {
		if _, ok := keys[key]; !ok {
			delete(c.byKey, key)
		}
	}
}

// Classify returns the classification for the line, computing and memoizing
// it on first sight.
func (c *Classifier) Classify(line schema.CartLine) Classification {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.byKey[line.Key]; ok {
		// Fee status is sticky. The project id can surface late (e.g. a
		// template rendering the property on a later pass), so re-extract
		// only while it is still unknown.
		if cached.ProjectID == "" {
			cached.ProjectID = extractProjectID(line)
			c.byKey[line.Key] = cached
		}
		return cached
	}

	cls := Classification{
		ProjectID: extractProjectID(line),
		Fee:       c.isFeeLine(line),
	}
	if line.Key != "" {
		c.byKey[line.Key] = cls
	}
	return cls
}

// extractProjectID tries, in order: an explicit attribute, a labeled
// property, a free-text annotation, and a projectid= URL parameter.
// First match wins.
func extractProjectID(line schema.CartLine) string {
	for _, attr := range []string{"data-project-id", "project-id"} {
		if v := strings.TrimSpace(line.Attributes[attr]); v != "" {
			return v
		}
	}
	if v := line.Property(schema.PropProjectID); v != "" {
		return v
	}
	if m := projectIDPattern.FindStringSubmatch(line.Title); m != nil {
		return m[1]
	}
	for _, v := range line.Properties {
		if m := projectIDPattern.FindStringSubmatch(v); m != nil {
			return m[1]
		}
	}
	if line.URL != "" {
		if parsed, err := url.Parse(line.URL); err == nil {
			if v := strings.TrimSpace(parsed.Query().Get(schema.PropProjectID)); v != "" {
				return v
			}
		}
	}
	return ""
}

func (c *Classifier) isFeeLine(line schema.CartLine) bool {
	if strings.EqualFold(line.Property(schema.PropPersonalisationFee), "true") {
		return true
	}
	if c.feeVariantID != "" {
		if normalized := schema.NormalizeVariantID(line.VariantID); normalized != "" {
			return normalized == c.feeVariantID
		}
	}
	return strings.Contains(strings.ToLower(line.Title), feeTextMarker)
}
