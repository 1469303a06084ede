package schema

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/printforge/cartsync/errs"
)

// BreakdownEntry is one priced component of an editor project.
type BreakdownEntry struct {
	Description string `json:"description"`
	PriceTotal  string `json:"priceTotal"`
}

// ProjectDetails carries the externally computed pricing and display metadata
// for one editor project. TotalPrice is a decimal string in major currency
// units as sent by the editor, e.g. "100.50" or "100,50".
type ProjectDetails struct {
	ProjectID   string           `json:"projectId"`
	DisplayName string           `json:"displayName"`
	TotalPrice  string           `json:"totalPrice"`
	Breakdown   []BreakdownEntry `json:"breakdown,omitempty"`
}

// TotalPriceMinorUnits converts the editor total to minor currency units,
// rounding to the nearest unit. The parse is locale-neutral: surrounding
// whitespace is stripped and a comma decimal separator is accepted.
func (d ProjectDetails) TotalPriceMinorUnits() (int64, error) {
	raw := strings.TrimSpace(d.TotalPrice)
	raw = strings.ReplaceAll(raw, " ", "")
	raw = strings.ReplaceAll(raw, ",", ".")
	if raw == "" {
		return 0, errs.New("schema/project", errs.CodeInvalid, errs.WithMessage("empty editor total price"))
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, errs.New("schema/project", errs.CodeInvalid,
			errs.WithMessage("unparsable editor total price "+strings.TrimSpace(d.TotalPrice)),
			errs.WithCause(err))
	}
	return price.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), nil
}
