// Package backend is the HTTP client for the incident API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/geocoder89/incidentdesk/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const maxErrorBody = 64 << 10

type Config struct {
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	baseURL string
	http    *http.Client
	prom    *observability.Prom
	tracer  trace.Tracer

	mu             sync.RWMutex
	onUnauthorized func(ctx context.Context, endpoint, token string)
}

func New(cfg Config, prom *observability.Prom) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		prom:    prom,
		tracer:  otel.Tracer("github.com/geocoder89/incidentdesk/internal/backend"),
	}
}

// OnUnauthorized registers the handler run for every 401, whatever the
// endpoint. The request context is passed along so the handler can find
// the client it belongs to, together with the bearer token that was refused.
func (c *Client) OnUnauthorized(fn func(ctx context.Context, endpoint, token string)) {
	c.mu.Lock()
	c.onUnauthorized = fn
	c.mu.Unlock()
}

func (c *Client) unauthorized(ctx context.Context, endpoint, token string) {
	c.mu.RLock()
	fn := c.onUnauthorized
	c.mu.RUnlock()

	if fn != nil {
		fn(ctx, endpoint, token)
	}
}

// do sends one request and returns the response for 2xx answers only; the
// caller owns the body. Everything else is turned into a typed error.
func (c *Client) do(ctx context.Context, endpoint, method, path, token string, body any) (*http.Response, error) {
	ctx, span := c.tracer.Start(ctx, "backend."+endpoint, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.path", path),
	)

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.prom.ObserveUpstream(endpoint, 0, time.Since(start))
		c.prom.UpstreamFailed(endpoint, "network")
		span.RecordError(err)
		span.SetStatus(codes.Error, "unreachable")
		return nil, &NetworkError{Endpoint: endpoint, Err: err}
	}

	c.prom.ObserveUpstream(endpoint, resp.StatusCode, time.Since(start))
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	msg := readErrorMessage(resp.Body)
	span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))

	if resp.StatusCode == http.StatusUnauthorized {
		c.prom.UpstreamFailed(endpoint, "auth")
		c.unauthorized(ctx, endpoint, token)
		return nil, &AuthError{Endpoint: endpoint, Message: msg}
	}

	c.prom.UpstreamFailed(endpoint, "api")
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return nil, &APIError{Endpoint: endpoint, Status: resp.StatusCode, Message: msg}
}

// doJSON runs do and decodes a 2xx body into out.
func (c *Client) doJSON(ctx context.Context, endpoint, method, path, token string, body, out any) error {
	resp, err := c.do(ctx, endpoint, method, path, token, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &APIError{Endpoint: endpoint, Status: resp.StatusCode, Message: ErrMalformedResponse.Error()}
	}
	return nil
}

// readErrorMessage pulls the human text out of the usual error shapes:
// {"detail": ...}, {"error": ...} or {"message": ...}.
func readErrorMessage(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(b) == 0 {
		return ""
	}

	var payload struct {
		Detail  any `json:"detail"`
		Error   any `json:"error"`
		Message any `json:"message"`
	}
	if json.Unmarshal(b, &payload) != nil {
		return ""
	}

	for _, v := range []any{payload.Detail, payload.Error, payload.Message} {
		switch t := v.(type) {
		case string:
			if t != "" {
				return t
			}
		case map[string]any:
			if m, ok := t["message"].(string); ok && m != "" {
				return m
			}
		}
	}
	return ""
}
