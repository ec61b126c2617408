package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"github.com/dmitrijs2005/tendercrm/internal/common"
	"github.com/dmitrijs2005/tendercrm/internal/entities"
	"github.com/dmitrijs2005/tendercrm/internal/logging"
)

const (
	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 32 << 20
)

// Config holds what TryCreateClient needs to reach the remote.
type Config struct {
	BaseURL string
	APIKey  string
	// Timeout bounds every request; zero means 15s.
	Timeout time.Duration
}

type Option func(*RESTClient)

// WithLogger makes the client log requests at debug level.
func WithLogger(l logging.Logger) Option {
	return func(c *RESTClient) { c.logger = l.With("component", "rest_client") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *RESTClient) { c.http = hc }
}

type RESTClient struct {
	base   *url.URL
	apiKey string
	http   *http.Client
	logger logging.Logger
}

var _ Client = (*RESTClient)(nil)

// TryCreateClient validates cfg and builds a client. It returns a
// *ConfigError when the base URL or API key is missing or unusable.
func TryCreateClient(cfg Config, opts ...Option) (*RESTClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, &ConfigError{Field: "remote_url", Reason: "is empty"}
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &ConfigError{Field: "api_key", Reason: "is empty"}
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, &ConfigError{Field: "remote_url", Reason: fmt.Sprintf("does not parse: %v", err)}
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, &ConfigError{Field: "remote_url", Reason: "must be an http or https URL"}
	}
	if base.Host == "" {
		return nil, &ConfigError{Field: "remote_url", Reason: "has no host"}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &RESTClient{
		base:   base,
		apiKey: cfg.APIKey,
		logger: logging.Discard(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: timeout, Transport: newTransport(c.logger)}
	}
	return c, nil
}

func newTransport(logger logging.Logger) *http.Transport {
	t := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
			NextProtos: []string{"h2", "http/1.1"},
		},
	}
	if err := http2.ConfigureTransport(t); err != nil {
		logger.Warn(context.Background(), "http/2 not available", "error", err)
	}
	return t
}

func (c *RESTClient) endpoint(table string, query url.Values) string {
	u := *c.base
	u.Path = c.base.Path + common.RESTPrefix + "/" + table
	u.RawQuery = query.Encode()
	return u.String()
}

func idFilter(id string) url.Values {
	return url.Values{"id": {"eq." + id}}
}

func (c *RESTClient) Select(ctx context.Context, table entities.Table) ([]json.RawMessage, error) {
	if !table.Valid() {
		return nil, fmt.Errorf("%w: %q", entities.ErrUnknownTable, table)
	}
	q := url.Values{"select": {"*"}, "order": {"created_at.desc"}}

	var rows []json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.endpoint(table.String(), q), nil, &rows); err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	return rows, nil
}

func (c *RESTClient) Insert(ctx context.Context, table entities.Table, row json.RawMessage) (json.RawMessage, error) {
	if !table.Valid() {
		return nil, fmt.Errorf("%w: %q", entities.ErrUnknownTable, table)
	}

	var rows []json.RawMessage
	if err := c.do(ctx, http.MethodPost, c.endpoint(table.String(), nil), row, &rows); err != nil {
		return nil, fmt.Errorf("insert into %s: %w", table, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert into %s: %w: empty representation", table, ErrRejected)
	}
	return rows[0], nil
}

func (c *RESTClient) Update(ctx context.Context, table entities.Table, id string, patch json.RawMessage) (json.RawMessage, error) {
	if !table.Valid() {
		return nil, fmt.Errorf("%w: %q", entities.ErrUnknownTable, table)
	}

	var rows []json.RawMessage
	if err := c.do(ctx, http.MethodPatch, c.endpoint(table.String(), idFilter(id)), patch, &rows); err != nil {
		return nil, fmt.Errorf("update %s[%s]: %w", table, id, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("update %s[%s]: %w", table, id, ErrNotFound)
	}
	return rows[0], nil
}

func (c *RESTClient) Delete(ctx context.Context, table entities.Table, id string) error {
	if !table.Valid() {
		return fmt.Errorf("%w: %q", entities.ErrUnknownTable, table)
	}

	var rows []json.RawMessage
	if err := c.do(ctx, http.MethodDelete, c.endpoint(table.String(), idFilter(id)), nil, &rows); err != nil {
		return fmt.Errorf("delete %s[%s]: %w", table, id, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("delete %s[%s]: %w", table, id, ErrNotFound)
	}
	return nil
}

// Ping checks that the API root answers with a success status.
func (c *RESTClient) Ping(ctx context.Context) error {
	u := *c.base
	u.Path = c.base.Path + common.RESTPrefix + "/"
	return c.do(ctx, http.MethodGet, u.String(), nil, nil)
}

func (c *RESTClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// do sends one request and decodes a successful JSON response into out
// (when out is not nil).
func (c *RESTClient) do(ctx context.Context, method, target string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(common.APIKeyHeaderName, c.apiKey)
	req.Header.Set(common.AuthorizationHeaderName, "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		req.Header.Set(common.PreferHeaderName, common.PreferReturnRepresentation)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", ErrUnavailable, err)
	}

	c.logger.Debug(ctx, "remote call",
		"method", method,
		"url", target,
		"status", resp.StatusCode,
		"bytes", len(payload),
		"elapsed", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(payload, apiErr); err != nil {
			apiErr.Message = strings.TrimSpace(string(payload))
		}
		apiErr.StatusCode = resp.StatusCode
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
