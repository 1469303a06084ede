// Package storefront talks to the storefront AJAX cart API.
package storefront

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/printforge/cartsync/errs"
	"github.com/printforge/cartsync/internal/config"
	"github.com/printforge/cartsync/internal/schema"
)

const (
	cartReadPath   = "/cart.js"
	cartAddPath    = "/cart/add.js"
	cartChangePath = "/cart/change.js"

	cartReadMaxAttempts = 3
	cartReadMaxInterval = 2 * time.Second
)

// Client issues cart reads and mutations against one storefront.
type Client struct {
	baseURL string
	shop    string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient constructs a storefront cart client.
func NewClient(cfg config.StorefrontConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errs.New("storefront", errs.CodeInvalid, errs.WithMessage("base URL required"))
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 4
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		shop:    cfg.Shop,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}, nil
}

// cart.js wire shapes. Prices arrive as integers in minor currency units.
type cartPayload struct {
	Token      string            `json:"token"`
	Currency   string            `json:"currency"`
	TotalPrice int64             `json:"total_price"`
	Items      []cartItemPayload `json:"items"`
}

type cartItemPayload struct {
	Key            string         `json:"key"`
	ID             int64          `json:"id"`
	VariantID      int64          `json:"variant_id"`
	Quantity       int64          `json:"quantity"`
	Title          string         `json:"title"`
	URL            string         `json:"url"`
	LinePrice      int64          `json:"line_price"`
	FinalLinePrice *int64         `json:"final_line_price"`
	Properties     map[string]any `json:"properties"`
}

// Cart fetches the current cart snapshot. Transient failures are retried a
// handful of times with exponential backoff; mutations are never retried.
func (c *Client) Cart(ctx context.Context) (*schema.CartSnapshot, error) {
	boff := backoff.NewExponentialBackOff()
	boff.MaxInterval = cartReadMaxInterval

	var lastErr error
	for attempt := 0; attempt < cartReadMaxAttempts; attempt++ {
		snapshot, err := c.readCart(ctx)
		if err == nil {
			return snapshot, nil
		}
		lastErr = err
		if !errs.IsRetryable(err) {
			return nil, err
		}
		sleep := boff.NextBackOff()
		if sleep == backoff.Stop {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("cart read context: %w", ctx.Err())
		case <-time.After(sleep):
		}
	}
	return nil, lastErr
}

func (c *Client) readCart(ctx context.Context) (*schema.CartSnapshot, error) {
	body, err := c.do(ctx, http.MethodGet, cartReadPath, nil)
	if err != nil {
		return nil, err
	}
	var payload cartPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errs.New("storefront/cart", errs.CodeUpstream,
			errs.WithMessage("malformed cart payload"), errs.WithCause(err))
	}

	snapshot := &schema.CartSnapshot{
		Token:      payload.Token,
		Currency:   payload.Currency,
		TotalPrice: payload.TotalPrice,
		Lines:      make([]schema.CartLine, 0, len(payload.Items)),
	}
	for _, item := range payload.Items {
		variant := item.VariantID
		if variant == 0 {
			variant = item.ID
		}
		snapshot.Lines = append(snapshot.Lines, schema.CartLine{
			Key:            schema.LineKey(item.Key),
			VariantID:      strconv.FormatInt(variant, 10),
			Quantity:       item.Quantity,
			Title:          item.Title,
			URL:            item.URL,
			LinePrice:      item.LinePrice,
			FinalLinePrice: item.FinalLinePrice,
			Properties:     stringifyProperties(item.Properties),
			Attributes:     nil,
		})
	}
	return snapshot, nil
}

// AddLine adds a line for the variant with the given quantity and properties.
func (c *Client) AddLine(ctx context.Context, variantID string, quantity int64, properties map[string]string) error {
	normalized := schema.NormalizeVariantID(variantID)
	if normalized == "" {
		return errs.New("storefront/add", errs.CodeInvalid, errs.WithMessage("variant id required"))
	}
	id, err := strconv.ParseInt(normalized, 10, 64)
	if err != nil {
		return errs.New("storefront/add", errs.CodeInvalid,
			errs.WithMessage("non-numeric variant id "+variantID), errs.WithCause(err))
	}
	if quantity <= 0 {
		return errs.New("storefront/add", errs.CodeInvalid, errs.WithMessage("quantity must be positive"))
	}
	payload := map[string]any{
		"id":       id,
		"quantity": quantity,
	}
	if len(properties) > 0 {
		payload["properties"] = properties
	}
	_, err = c.do(ctx, http.MethodPost, cartAddPath, payload)
	return err
}

// ChangeLine sets the quantity for the line identified by key. Quantity zero
// removes the line.
func (c *Client) ChangeLine(ctx context.Context, key schema.LineKey, quantity int64) error {
	if key == "" {
		return errs.New("storefront/change", errs.CodeInvalid, errs.WithMessage("line key required"))
	}
	if quantity < 0 {
		return errs.New("storefront/change", errs.CodeInvalid, errs.WithMessage("quantity must be >= 0"))
	}
	payload := map[string]any{
		"id":       string(key),
		"quantity": quantity,
	}
	_, err := c.do(ctx, http.MethodPost, cartChangePath, payload)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("storefront rate limit: %w", err)
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, errs.New("storefront", errs.CodeInvalid,
				errs.WithMessage("encode request payload"), errs.WithCause(err))
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errs.New("storefront", errs.CodeInvalid, errs.WithCause(err))
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errs.New("storefront"+path, errs.CodeNetwork, errs.WithCause(err))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.New("storefront"+path, errs.CodeNetwork, errs.WithCause(err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errs.New("storefront"+path, statusCode(resp.StatusCode),
			errs.WithHTTP(resp.StatusCode), errs.WithMessage(string(truncate(raw, 256))))
	}
	return raw, nil
}

func statusCode(status int) errs.Code {
	switch {
	case status == http.StatusTooManyRequests:
		return errs.CodeRateLimited
	case status == http.StatusNotFound:
		return errs.CodeNotFound
	case status == http.StatusConflict:
		return errs.CodeConflict
	case status >= 500:
		return errs.CodeUnavailable
	default:
		return errs.CodeUpstream
	}
}

func truncate(raw []byte, limit int) []byte {
	if len(raw) <= limit {
		return raw
	}
	return raw[:limit]
}

func stringifyProperties(raw map[string]any) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch value := v.(type) {
		case string:
			out[k] = value
		case float64:
			out[k] = strconv.FormatFloat(value, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(value)
		case nil:
			out[k] = ""
		default:
			encoded, err := json.Marshal(value)
			if err != nil {
				continue
			}
			out[k] = string(encoded)
		}
	}
	return out
}
