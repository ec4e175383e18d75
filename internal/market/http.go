package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lepinkainen/shelfscan/internal/errors"
	"github.com/lepinkainen/shelfscan/internal/ratelimit"
)

// HTTPConfig configures HTTPJSONSource.
type HTTPConfig struct {
	BaseURL string

	// Optional: Authorization header value for the upstream API.
	AuthHeader string

	// User agent. If empty, a generic default is used.
	UserAgent string

	RequestTimeout time.Duration

	// Retries for 408/429/5xx responses. Zero disables retrying.
	RetryMax         int
	FallbackThrottle time.Duration

	// Limiter paces requests. Nil selects 2 requests per second.
	Limiter *ratelimit.Limiter

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// HTTPJSONSource queries a JSON search endpoint:
//
//	GET {BaseURL}/api/search?q=...&condition=...&limit=...
//	200 {"items": [{"id": "...", "price": "12.50", "shipping_cost": "3.99", ...}]}
type HTTPJSONSource struct {
	cfg    HTTPConfig
	client *http.Client
}

// Compile-time check that HTTPJSONSource implements Source.
var _ Source = (*HTTPJSONSource)(nil)

// NewHTTPJSONSource validates cfg and fills in defaults.
func NewHTTPJSONSource(cfg HTTPConfig) (*HTTPJSONSource, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid market base URL: %q", cfg.BaseURL)
	}

	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.FallbackThrottle <= 0 {
		cfg.FallbackThrottle = 3 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 20 * time.Second
	}
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.New("market", 2)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}

	return &HTTPJSONSource{cfg: cfg, client: client}, nil
}

type searchResponse struct {
	Items []Listing `json:"items"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// SearchActive runs one search. Listings with a non-positive price are dropped.
func (h *HTTPJSONSource) SearchActive(ctx context.Context, q Query) ([]Listing, error) {
	u, _ := url.Parse(strings.TrimRight(h.cfg.BaseURL, "/") + "/api/search")
	params := u.Query()
	params.Set("q", q.Text)
	if q.Condition != "" {
		params.Set("condition", q.Condition)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	u.RawQuery = params.Encode()

	body, code, retryAfter, err := h.get(ctx, u.String())
	if err != nil {
		return nil, err
	}

	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return nil, errors.NewMarketAuthError(code, apiMessage(body))
	case code == http.StatusTooManyRequests:
		return nil, errors.NewRateLimitErrorWithRetry("market search rate limited", retryAfter)
	case code == http.StatusNotFound:
		return nil, nil
	case code < 200 || code >= 300:
		return nil, fmt.Errorf("market search returned status %d", code)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding market response: %w", err)
	}

	listings := make([]Listing, 0, len(resp.Items))
	for _, l := range resp.Items {
		if !l.Price.IsPositive() {
			continue
		}
		listings = append(listings, l)
	}

	slog.Debug("Market search complete", "query", q.Text, "condition", q.Condition, "results", len(listings))
	return listings, nil
}

func (h *HTTPJSONSource) setHeaders(req *http.Request) {
	ua := strings.TrimSpace(h.cfg.UserAgent)
	if ua == "" {
		ua = "shelfscan/1.0"
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "application/json")

	if strings.TrimSpace(h.cfg.AuthHeader) != "" {
		req.Header.Set("Authorization", h.cfg.AuthHeader)
	}
}

// get performs a GET with retry on 408/429/5xx. It returns the last body and
// status code; only transport failures are errors.
func (h *HTTPJSONSource) get(ctx context.Context, u string) ([]byte, int, time.Duration, error) {
	var (
		lastBody       []byte
		lastCode       int
		lastRetryAfter time.Duration
	)

	for attempt := 0; attempt <= h.cfg.RetryMax; attempt++ {
		if err := h.cfg.Limiter.Wait(ctx); err != nil {
			return nil, 0, 0, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("creating request: %w", err)
		}
		h.setHeaders(req)

		resp, err := h.client.Do(req)
		if err != nil {
			if attempt < h.cfg.RetryMax && ctx.Err() == nil {
				continue
			}
			return nil, 0, 0, fmt.Errorf("market request: %w", err)
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		_ = resp.Body.Close()

		code := resp.StatusCode
		lastBody, lastCode = body, code
		lastRetryAfter = errors.ParseRetryAfter(resp.Header)

		retryable := code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || (code >= 500 && code <= 599)
		if !retryable || attempt >= h.cfg.RetryMax {
			return body, code, lastRetryAfter, nil
		}

		ra := lastRetryAfter
		if ra == 0 {
			ra = h.cfg.FallbackThrottle
		}
		backoff := ra + time.Duration(attempt*attempt)*250*time.Millisecond + time.Duration(rand.Intn(151))*time.Millisecond
		slog.Debug("Market search throttled, retrying", "status", code, "backoff", backoff, "attempt", attempt+1)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return body, code, lastRetryAfter, ctx.Err()
		}
	}

	return lastBody, lastCode, lastRetryAfter, nil
}

func apiMessage(body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err != nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}
