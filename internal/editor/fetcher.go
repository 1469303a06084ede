// Package editor fetches project pricing details from the backend proxy
// fronting the external project editor.
package editor

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/printforge/cartsync/errs"
	"github.com/printforge/cartsync/internal/config"
	"github.com/printforge/cartsync/internal/observability"
	"github.com/printforge/cartsync/internal/schema"
)

const detailsPath = "/api/project-details"

// Fetcher retrieves per-project pricing details. Successful lookups are
// cached for the lifetime of the process; concurrent lookups for the same
// project share one in-flight request. Failures are never cached, so the
// next reconciliation pass retries naturally.
type Fetcher struct {
	baseURL string
	shop    string
	http    *http.Client

	mu      sync.Mutex
	cache   map[string]*schema.ProjectDetails
	pending map[string]*call
}

type call struct {
	done    chan struct{}
	details *schema.ProjectDetails
	err     error
}

// NewFetcher constructs a project detail fetcher.
func NewFetcher(cfg config.EditorConfig, shop string) (*Fetcher, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errs.New("editor", errs.CodeInvalid, errs.WithMessage("base URL required"))
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		shop:    shop,
		http:    &http.Client{Timeout: timeout},
		cache:   make(map[string]*schema.ProjectDetails),
		pending: make(map[string]*call),
	}, nil
}

// Details returns the pricing details for projectID, from cache when possible.
func (f *Fetcher) Details(ctx context.Context, projectID string) (*schema.ProjectDetails, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, errs.New("editor/details", errs.CodeInvalid, errs.WithMessage("project id required"))
	}
	if ctx == nil {
		ctx = context.Background()
	}

	f.mu.Lock()
	if details, ok := f.cache[projectID]; ok {
		f.mu.Unlock()
		return details, nil
	}
	if inflight, ok := f.pending[projectID]; ok {
		f.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-inflight.done:
			return inflight.details, inflight.err
		}
	}
	inflight := &call{done: make(chan struct{})}
	f.pending[projectID] = inflight
	f.mu.Unlock()

	details, err := f.fetch(ctx, projectID)

	f.mu.Lock()
	delete(f.pending, projectID)
	if err == nil {
		f.cache[projectID] = details
	}
	f.mu.Unlock()

	inflight.details = details
	inflight.err = err
	close(inflight.done)

	return details, err
}

// Cached reports whether details for projectID are already resident.
func (f *Fetcher) Cached(projectID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.cache[projectID]
	return ok
}

// detailsPayload mirrors the proxy response:
// {success, project: {name, result: {totalprice, breakdown}}}.
type detailsPayload struct {
	Success bool `json:"success"`
	Project struct {
		Name   string `json:"name"`
		Result struct {
			TotalPrice json.RawMessage `json:"totalprice"`
			Breakdown  []struct {
				Description string          `json:"description"`
				PriceTotal  json.RawMessage `json:"pricetotal"`
			} `json:"breakdown"`
		} `json:"result"`
	} `json:"project"`
}

func (f *Fetcher) fetch(ctx context.Context, projectID string) (*schema.ProjectDetails, error) {
	query := url.Values{}
	query.Set("projectid", projectID)
	if f.shop != "" {
		query.Set("shop", f.shop)
	}
	endpoint := f.baseURL + detailsPath + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errs.New("editor/details", errs.CodeInvalid, errs.WithCause(err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, errs.New("editor/details", errs.CodeNetwork, errs.WithCause(err))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.New("editor/details", errs.CodeNetwork, errs.WithCause(err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		code := errs.CodeUpstream
		if resp.StatusCode >= 500 {
			code = errs.CodeUnavailable
		}
		return nil, errs.New("editor/details", code, errs.WithHTTP(resp.StatusCode))
	}

	var payload detailsPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errs.New("editor/details", errs.CodeUpstream,
			errs.WithMessage("malformed details payload"), errs.WithCause(err))
	}
	if !payload.Success {
		return nil, errs.New("editor/details", errs.CodeUpstream,
			errs.WithMessage("editor reported failure for project "+projectID))
	}

	details := &schema.ProjectDetails{
		ProjectID:   projectID,
		DisplayName: payload.Project.Name,
		TotalPrice:  rawToString(payload.Project.Result.TotalPrice),
		Breakdown:   make([]schema.BreakdownEntry, 0, len(payload.Project.Result.Breakdown)),
	}
	for _, entry := range payload.Project.Result.Breakdown {
		details.Breakdown = append(details.Breakdown, schema.BreakdownEntry{
			Description: entry.Description,
			PriceTotal:  rawToString(entry.PriceTotal),
		})
	}

	observability.Log().Debug("fetched project details",
		observability.String("project_id", projectID),
		observability.String("total_price", details.TotalPrice))
	return details, nil
}

// rawToString preserves the editor's number formatting exactly: the proxy
// sends totals either as JSON strings or bare numbers.
func rawToString(raw json.RawMessage) string {
	text := strings.TrimSpace(string(raw))
	if len(text) >= 2 && text[0] == '"' && text[len(text)-1] == '"' {
		var decoded string
		if err := json.Unmarshal(raw, &decoded); err == nil {
			return strings.TrimSpace(decoded)
		}
		return strings.Trim(text, `"`)
	}
	if text == "null" {
		return ""
	}
	return text
}
