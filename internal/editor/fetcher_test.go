package editor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/printforge/cartsync/internal/config"
)

func newTestFetcher(t *testing.T, handler http.HandlerFunc) (*Fetcher, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	fetcher, err := NewFetcher(config.EditorConfig{BaseURL: server.URL}, "shop.example.com")
	if err != nil {
		t.Fatalf("NewFetcher() error: %v", err)
	}
	return fetcher, server
}

func TestDetailsDecodesProxyPayload(t *testing.T) {
	fetcher, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("projectid"); got != "p-1" {
			t.Errorf("projectid query = %q", got)
		}
		if got := r.URL.Query().Get("shop"); got != "shop.example.com" {
			t.Errorf("shop query = %q", got)
		}
		_, _ = w.Write([]byte(`{"success":true,"project":{"name":"Mug Design","result":{"totalprice":"100.50","breakdown":[{"description":"Base","pricetotal":90},{"description":"Text","pricetotal":"10.50"}]}}}`))
	})

	details, err := fetcher.Details(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("Details() error: %v", err)
	}
	if details.DisplayName != "Mug Design" {
		t.Fatalf("display name = %q", details.DisplayName)
	}
	if details.TotalPrice != "100.50" {
		t.Fatalf("total price = %q", details.TotalPrice)
	}
	if len(details.Breakdown) != 2 || details.Breakdown[0].PriceTotal != "90" || details.Breakdown[1].PriceTotal != "10.50" {
		t.Fatalf("breakdown = %+v", details.Breakdown)
	}
}

func TestDetailsCachesPermanently(t *testing.T) {
	var hits atomic.Int64
	fetcher, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"success":true,"project":{"name":"n","result":{"totalprice":"1.00"}}}`))
	})

	for i := 0; i < 5; i++ {
		if _, err := fetcher.Details(context.Background(), "p-1"); err != nil {
			t.Fatalf("Details() error: %v", err)
		}
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("backend hits = %d, want 1", got)
	}
	if !fetcher.Cached("p-1") {
		t.Fatal("p-1 should be cached")
	}
}

func TestDetailsDeduplicatesInflightRequests(t *testing.T) {
	var hits atomic.Int64
	release := make(chan struct{})
	fetcher, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		_, _ = w.Write([]byte(`{"success":true,"project":{"name":"n","result":{"totalprice":"2.00"}}}`))
	})

	const callers = 8
	var wg sync.WaitGroup
	errors := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fetcher.Details(context.Background(), "p-1")
			errors <- err
		}()
	}
	// Let the callers pile up on the single in-flight request.
	deadline := time.Now().Add(2 * time.Second)
	for hits.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	close(release)
	wg.Wait()
	close(errors)

	for err := range errors {
		if err != nil {
			t.Fatalf("Details() error: %v", err)
		}
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("backend hits = %d, want 1", got)
	}
}

func TestDetailsDoesNotCacheFailures(t *testing.T) {
	var hits atomic.Int64
	fetcher, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"project":{"name":"n","result":{"totalprice":"3.00"}}}`))
	})

	if _, err := fetcher.Details(context.Background(), "p-1"); err == nil {
		t.Fatal("first call should fail")
	}
	details, err := fetcher.Details(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("second call error: %v", err)
	}
	if details.TotalPrice != "3.00" {
		t.Fatalf("total price = %q", details.TotalPrice)
	}
	if got := hits.Load(); got != 2 {
		t.Fatalf("backend hits = %d, want 2", got)
	}
}

func TestDetailsRejectsUnsuccessfulEnvelope(t *testing.T) {
	fetcher, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false}`))
	})
	if _, err := fetcher.Details(context.Background(), "p-1"); err == nil {
		t.Fatal("unsuccessful envelope should error")
	}
}
