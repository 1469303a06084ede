// Package schema defines the canonical cart and project types shared across cartsync.
package schema

import "strings"

// Line item property keys carried on storefront cart lines.
const (
	// PropProjectID links a cart line to an external editor project.
	PropProjectID = "projectid"
	// PropPersonalisationFee marks a synthetic fee line ("true").
	PropPersonalisationFee = "is_personalisation_fee"
	// PropEditorTotalCents records the editor total at fee creation time.
	PropEditorTotalCents = "editor_total_price_cents"
	// PropShopifyLineCents records the billed main-line price at fee creation time.
	PropShopifyLineCents = "shopify_line_price_cents"
)

// LineKey is the storefront's opaque line identity, stable across quantity changes.
type LineKey string

// CartLine represents one storefront cart line item. Prices are in minor
// currency units and already quantity-multiplied.
type CartLine struct {
	Key            LineKey           `json:"key"`
	VariantID      string            `json:"variant_id"`
	Quantity       int64             `json:"quantity"`
	Title          string            `json:"title"`
	URL            string            `json:"url,omitempty"`
	LinePrice      int64             `json:"line_price"`
	FinalLinePrice *int64            `json:"final_line_price,omitempty"`
	Properties     map[string]string `json:"properties,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty"`
}

// Property returns the value for the named line property, matching the key
// case-insensitively with surrounding whitespace ignored.
func (l CartLine) Property(name string) string {
	want := strings.ToLower(strings.TrimSpace(name))
	if want == "" {
		return ""
	}
	for k, v := range l.Properties {
		if strings.ToLower(strings.TrimSpace(k)) == want {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// BilledPrice returns the authoritative billed line price in minor units,
// preferring the discount-inclusive final price when the storefront sent one.
func (l CartLine) BilledPrice() int64 {
	if l.FinalLinePrice != nil {
		return *l.FinalLinePrice
	}
	return l.LinePrice
}

// CartSnapshot is a point-in-time view of the storefront cart. Lines keep
// the storefront's ordering.
type CartSnapshot struct {
	Token      string     `json:"token"`
	Currency   string     `json:"currency"`
	TotalPrice int64      `json:"total_price"`
	Lines      []CartLine `json:"items"`
}

// Line returns the cart line with the given key.
func (s *CartSnapshot) Line(key LineKey) (CartLine, bool) {
	if s == nil {
		return CartLine{}, false
	}
	for _, line := range s.Lines {
		if line.Key == key {
			return line, true
		}
	}
	return CartLine{}, false
}

// KeySet returns the set of line keys present in the snapshot.
func (s *CartSnapshot) KeySet() map[LineKey]struct{} {
	if s == nil {
		return map[LineKey]struct{}{}
	}
	keys := make(map[LineKey]struct{}, len(s.Lines))
	for _, line := range s.Lines {
		keys[line.Key] = struct{}{}
	}
	return keys
}

// NormalizeVariantID reduces a variant identifier to its trailing digit run,
// tolerating GID-style identifiers such as "gid://shopify/ProductVariant/123".
// It returns "" when the input carries no digits.
func NormalizeVariantID(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	end := len(trimmed)
	start := end
	for start > 0 && trimmed[start-1] >= '0' && trimmed[start-1] <= '9' {
		start--
	}
	if start == end {
		return ""
	}
	return trimmed[start:end]
}
