package reconcile

import (
	"context"
	"fmt"
	"sync"

	"github.com/printforge/cartsync/errs"
	"github.com/printforge/cartsync/internal/schema"
)

// fakeCart simulates the storefront cart: mutations apply to the in-memory
// line set, and the fee variant is priced at one minor unit per quantity.
type fakeCart struct {
	mu      sync.Mutex
	lines   []schema.CartLine
	nextKey int

	addCalls    int
	changeCalls int
	failAdd     bool
	failChange  bool
}

func (f *fakeCart) Cart(context.Context) (*schema.CartSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot := &schema.CartSnapshot{Lines: make([]schema.CartLine, len(f.lines))}
	copy(snapshot.Lines, f.lines)
	return snapshot, nil
}

func (f *fakeCart) AddLine(_ context.Context, variantID string, quantity int64, properties map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalls++
	if f.failAdd {
		return errs.New("storefront/add", errs.CodeNetwork)
	}
	f.nextKey++
	props := make(map[string]string, len(properties))
	for k, v := range properties {
		props[k] = v
	}
	f.lines = append(f.lines, schema.CartLine{
		Key:        schema.LineKey(fmt.Sprintf("fee-%d", f.nextKey)),
		VariantID:  variantID,
		Quantity:   quantity,
		Title:      "Personalisation Fee",
		LinePrice:  quantity,
		Properties: props,
	})
	return nil
}

func (f *fakeCart) ChangeLine(_ context.Context, key schema.LineKey, quantity int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changeCalls++
	if f.failChange {
		return errs.New("storefront/change", errs.CodeNetwork)
	}
	for i := range f.lines {
		if f.lines[i].Key != key {
			continue
		}
		if quantity == 0 {
			f.lines = append(f.lines[:i], f.lines[i+1:]...)
			return nil
		}
		f.lines[i].Quantity = quantity
		f.lines[i].LinePrice = quantity
		return nil
	}
	return errs.New("storefront/change", errs.CodeNotFound)
}

func (f *fakeCart) mutations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addCalls + f.changeCalls
}

func (f *fakeCart) lineByProject(projectID string, fee bool) (schema.CartLine, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, line := range f.lines {
		isFee := line.Properties[schema.PropPersonalisationFee] == "true"
		if isFee == fee && line.Properties[schema.PropProjectID] == projectID {
			return line, true
		}
	}
	return schema.CartLine{}, false
}

func mainLine(key, projectID string, billed int64) schema.CartLine {
	return schema.CartLine{
		Key:        schema.LineKey(key),
		VariantID:  "40000111",
		Quantity:   1,
		Title:      "Photo Mug",
		LinePrice:  billed,
		Properties: map[string]string{schema.PropProjectID: projectID},
	}
}

func feeLine(key, projectID string, quantity int64) schema.CartLine {
	return schema.CartLine{
		Key:       schema.LineKey(key),
		VariantID: "40000999",
		Quantity:  quantity,
		Title:     "Personalisation Fee",
		LinePrice: quantity,
		Properties: map[string]string{
			schema.PropPersonalisationFee: "true",
			schema.PropProjectID:          projectID,
		},
	}
}

// fakeDetails serves editor details from a fixed map.
type fakeDetails struct {
	mu      sync.Mutex
	byID    map[string]schema.ProjectDetails
	fetches int
}

func newFakeDetails() *fakeDetails {
	return &fakeDetails{byID: make(map[string]schema.ProjectDetails)}
}

func (f *fakeDetails) set(projectID, totalPrice string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[projectID] = schema.ProjectDetails{ProjectID: projectID, DisplayName: projectID, TotalPrice: totalPrice}
}

func (f *fakeDetails) Details(_ context.Context, projectID string) (*schema.ProjectDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	details, ok := f.byID[projectID]
	if !ok {
		return nil, errs.New("editor/details", errs.CodeNotFound)
	}
	return &details, nil
}
