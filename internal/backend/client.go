// Package backend is a typed client for the storefront REST backend. It
// owns bearer-token injection, uniform error mapping (401 forces a logout,
// 404 becomes ErrNotFound), and a circuit breaker around transport failures.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Sentinel errors surfaced by every client method.
var (
	// ErrUnauthorized means the backend rejected the bearer token. The
	// configured logout hook has already run by the time this is returned.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound maps 404 responses. List operations translate it to an
	// empty result instead of failing.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable means the circuit breaker is open and no request was
	// attempted.
	ErrUnavailable = errors.New("backend unavailable")
)

// StatusError is returned for error responses with no dedicated sentinel.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned %d", e.Code)
	}
	return fmt.Sprintf("backend returned %d: %s", e.Code, e.Body)
}

// TokenSource supplies the current bearer token, when one exists.
type TokenSource interface {
	Token() (string, bool)
}

// Config holds client construction parameters.
type Config struct {
	// BaseURL is the backend root, e.g. "https://store.example.com".
	BaseURL string
	// OnUnauthorized runs once per 401 response, before ErrUnauthorized is
	// returned. Typically clears the stored session.
	OnUnauthorized func(ctx context.Context)
	// Timeout bounds each request. Defaults to 15s.
	Timeout time.Duration
	// BreakerCooldown is how long the breaker stays open after tripping.
	// Defaults to 30s.
	BreakerCooldown time.Duration
}

// Client talks to the storefront backend.
type Client struct {
	base           string
	http           *http.Client
	breaker        *gobreaker.CircuitBreaker[*http.Response]
	tokens         TokenSource
	onUnauthorized func(ctx context.Context)
}

// New constructs a Client. The underlying transport is traced via otelhttp.
func New(cfg Config, tokens TokenSource) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}

	// Only transport-level failures feed the breaker; HTTP error statuses
	// are application outcomes, not backend outages.
	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:    "storefront-backend",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		base: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker:        breaker,
		tokens:         tokens,
		onUnauthorized: cfg.OnUnauthorized,
	}
}

// do performs one request. in is JSON-encoded when non-nil; out is decoded
// from the response body when non-nil and the response succeeded.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		body = bytes.NewReader(raw)
	}

	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token, ok := c.tokens.Token(); ok && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		return c.http.Do(req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return ErrUnavailable
		}
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	zctx.From(ctx).Debug("Backend request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		if c.onUnauthorized != nil {
			c.onUnauthorized(ctx)
		}
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 400:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s %s response", method, path)
	}
	return nil
}

// emptyOnNotFound converts ErrNotFound to nil so list endpoints treat a
// missing collection as empty rather than fatal.
func emptyOnNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
