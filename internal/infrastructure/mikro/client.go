// Package mikro posts payloads to the Mikro ERP HTTP API.
package mikro

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/erp/mikrosync/internal/domain/relay"
	"github.com/erp/mikrosync/internal/infrastructure/config"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// maxResponseSize is the maximum response body read from the ERP (10MB)
const maxResponseSize = 10 * 1024 * 1024

// ErrMissingEndpoint is returned when no path is configured for an endpoint
var ErrMissingEndpoint = errors.New("mikro: endpoint path not configured")

// Client implements relay.Submitter over HTTP.
// Only a 200 response counts as accepted.
type Client struct {
	baseURL    *url.URL
	paths      map[relay.Endpoint]string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ relay.Submitter = (*Client)(nil)

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// NewClient creates a client from the mikro configuration section
func NewClient(cfg *config.MikroConfig, logger *zap.Logger, opts ...ClientOption) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("mikro: invalid base url %q", cfg.BaseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		baseURL: base,
		paths: map[relay.Endpoint]string{
			relay.EndpointLogin:     cfg.LoginPath,
			relay.EndpointOrderSave: cfg.OrderSavePath,
		},
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger.Named("mikro"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// URL returns the absolute URL of an endpoint
func (c *Client) URL(endpoint relay.Endpoint) (string, error) {
	path, ok := c.paths[endpoint]
	if !ok || path == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingEndpoint, endpoint)
	}
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	return u.String(), nil
}

// Submit posts payload as JSON. Transport failures are reported as a
// rejected result with status 0; Submit never returns an error.
func (c *Client) Submit(ctx context.Context, endpoint relay.Endpoint, payload any) relay.SubmitResult {
	result := relay.SubmitResult{Endpoint: endpoint}
	start := time.Now()

	status, body, err := c.post(ctx, endpoint, payload)
	result.StatusCode = status
	result.Body = body
	result.Accepted = err == nil && status == http.StatusOK

	fields := []zap.Field{
		zap.String("endpoint", endpoint.String()),
		zap.Int("status_code", status),
		zap.Duration("latency", time.Since(start)),
	}
	switch {
	case err != nil:
		result.Body = err.Error()
		c.logger.Error("Mikro request failed", append(fields, zap.Error(err))...)
	case !result.Accepted:
		c.logger.Error("Mikro rejected request", append(fields, zap.String("body", body))...)
	default:
		c.logger.Info("Mikro accepted request", fields...)
	}
	return result
}

func (c *Client) post(ctx context.Context, endpoint relay.Endpoint, payload any) (int, string, error) {
	target, err := c.URL(endpoint)
	if err != nil {
		return 0, "", err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	// Turkish text and ampersands go out verbatim
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return 0, "", fmt.Errorf("mikro: failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, &buf)
	if err != nil {
		return 0, "", fmt.Errorf("mikro: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("mikro: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("mikro: failed to read response: %w", err)
	}
	return resp.StatusCode, string(body), nil
}
