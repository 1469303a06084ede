package storefront

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/printforge/cartsync/errs"
	"github.com/printforge/cartsync/internal/config"
	"github.com/printforge/cartsync/internal/schema"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(config.StorefrontConfig{
		BaseURL:           server.URL,
		RequestsPerSecond: 1000,
		Burst:             1000,
	})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	return client
}

const cartBody = `{
  "token": "tok-1",
  "currency": "EUR",
  "total_price": 12500,
  "items": [
    {
      "key": "line-a:1",
      "id": 111,
      "variant_id": 40000111,
      "quantity": 1,
      "title": "Photo Mug",
      "url": "/products/mug?projectid=p-1",
      "line_price": 9000,
      "final_line_price": 8500,
      "properties": {"projectid": "p-1", "sides": 2}
    },
    {
      "key": "line-b:1",
      "id": 222,
      "variant_id": 40000222,
      "quantity": 3500,
      "title": "Personalisation Fee",
      "line_price": 3500,
      "properties": {"is_personalisation_fee": "true", "projectid": "p-1"}
    }
  ]
}`

func TestCartDecodesSnapshot(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cart.js" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(cartBody))
	}))

	snapshot, err := client.Cart(context.Background())
	if err != nil {
		t.Fatalf("Cart() error: %v", err)
	}
	if snapshot.Token != "tok-1" || snapshot.TotalPrice != 12500 {
		t.Fatalf("snapshot header = %+v", snapshot)
	}
	if len(snapshot.Lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(snapshot.Lines))
	}

	main := snapshot.Lines[0]
	if main.VariantID != "40000111" {
		t.Fatalf("variant id = %q", main.VariantID)
	}
	if main.BilledPrice() != 8500 {
		t.Fatalf("billed price = %d, want final_line_price 8500", main.BilledPrice())
	}
	if main.Property(schema.PropProjectID) != "p-1" {
		t.Fatalf("projectid property = %q", main.Property(schema.PropProjectID))
	}
	if main.Properties["sides"] != "2" {
		t.Fatalf("numeric property = %q", main.Properties["sides"])
	}

	fee := snapshot.Lines[1]
	if fee.FinalLinePrice != nil {
		t.Fatal("absent final_line_price should stay nil")
	}
	if fee.BilledPrice() != 3500 {
		t.Fatalf("fee billed price = %d", fee.BilledPrice())
	}
}

func TestCartRetriesTransientFailures(t *testing.T) {
	var hits atomic.Int64
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"token":"t","items":[]}`))
	}))

	if _, err := client.Cart(context.Background()); err != nil {
		t.Fatalf("Cart() error after retries: %v", err)
	}
	if got := hits.Load(); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
}

func TestCartDoesNotRetryMalformedPayload(t *testing.T) {
	var hits atomic.Int64
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{not json`))
	}))

	if _, err := client.Cart(context.Background()); err == nil {
		t.Fatal("expected decode error")
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("attempts = %d, want 1", got)
	}
}

func TestAddLineSendsNormalizedVariant(t *testing.T) {
	type addPayload struct {
		ID         int64             `json:"id"`
		Quantity   int64             `json:"quantity"`
		Properties map[string]string `json:"properties"`
	}
	var got addPayload
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cart/add.js" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode add payload: %v", err)
		}
		_, _ = w.Write([]byte(`{}`))
	}))

	props := map[string]string{schema.PropPersonalisationFee: "true", schema.PropProjectID: "p-1"}
	err := client.AddLine(context.Background(), "gid://shopify/ProductVariant/40000333", 3000, props)
	if err != nil {
		t.Fatalf("AddLine() error: %v", err)
	}
	if got.ID != 40000333 || got.Quantity != 3000 {
		t.Fatalf("add payload = %+v", got)
	}
	if got.Properties[schema.PropProjectID] != "p-1" {
		t.Fatalf("properties = %+v", got.Properties)
	}
}

func TestAddLineValidatesInput(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be sent")
	}))
	if err := client.AddLine(context.Background(), "no-digits", 1, nil); err == nil {
		t.Fatal("expected variant id error")
	}
	if err := client.AddLine(context.Background(), "123", 0, nil); err == nil {
		t.Fatal("expected quantity error")
	}
}

func TestChangeLineSendsKeyAndQuantity(t *testing.T) {
	type changePayload struct {
		ID       string `json:"id"`
		Quantity int64  `json:"quantity"`
	}
	var got changePayload
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cart/change.js" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode change payload: %v", err)
		}
		_, _ = w.Write([]byte(`{}`))
	}))

	if err := client.ChangeLine(context.Background(), "line-b:1", 0); err != nil {
		t.Fatalf("ChangeLine() error: %v", err)
	}
	if got.ID != "line-b:1" || got.Quantity != 0 {
		t.Fatalf("change payload = %+v", got)
	}
}

func TestMutationErrorsCarryStatusCode(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	err := client.ChangeLine(context.Background(), "k", 1)
	if err == nil {
		t.Fatal("expected error")
	}
	if errs.CodeOf(err) != errs.CodeRateLimited {
		t.Fatalf("code = %q, want rate_limited", errs.CodeOf(err))
	}
}
