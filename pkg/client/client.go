// Package client is a Go client for the statvault HTTP API.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/nicktill/statvault/pkg/archive"
	"github.com/nicktill/statvault/pkg/compression"
	archerr "github.com/nicktill/statvault/pkg/errors"
	"github.com/nicktill/statvault/pkg/httpx"
)

// DefaultEndpoint is the address of a local statvault server.
const DefaultEndpoint = "http://localhost:8080"

// Config holds client configuration.
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// Client calls a statvault server.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// New creates a client. Empty fields fall back to the local defaults.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if _, err := url.ParseRequestURI(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", cfg.Endpoint, err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// APIError is a non-2xx response.
type APIError struct {
	Status int
	Code   string
	Msg    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("statvault: %d %s: %s", e.Status, e.Code, e.Msg)
	}
	return fmt.Sprintf("statvault: %d: %s", e.Status, e.Msg)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Status == http.StatusNotFound
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var er httpx.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&er); err == nil {
			apiErr.Code, apiErr.Msg = er.Code, er.Error
		} else {
			apiErr.Msg = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return archerr.Wrap(err, archerr.CodeServerInternalFailure, "failed to decode response")
	}
	return nil
}

// Archive stores data under dataType.
func (c *Client) Archive(ctx context.Context, dataType string, data any, opts archive.Options) (*archive.Result, error) {
	body := struct {
		DataType string          `json:"dataType"`
		Data     any             `json:"data"`
		Options  archive.Options `json:"options"`
	}{dataType, data, opts}

	var res archive.Result
	if err := c.do(ctx, http.MethodPost, "/v1/archives", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Restore returns an archive's data.
func (c *Client) Restore(ctx context.Context, id string, opts archive.RestoreOptions) (*archive.RestoreResult, error) {
	var res archive.RestoreResult
	if err := c.do(ctx, http.MethodPost, "/v1/archives/"+url.PathEscape(id)+"/restore", opts, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Get returns an archive's metadata.
func (c *Client) Get(ctx context.Context, id string) (*archive.Record, error) {
	var rec archive.Record
	if err := c.do(ctx, http.MethodGet, "/v1/archives/"+url.PathEscape(id), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Delete removes an archive.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/archives/"+url.PathEscape(id), nil, nil)
}

// Search runs a catalog query.
func (c *Client) Search(ctx context.Context, q archive.Query) (*archive.SearchResult, error) {
	var res archive.SearchResult
	if err := c.do(ctx, http.MethodPost, "/v1/archives/search", q, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ArchiveStats returns store statistics.
func (c *Client) ArchiveStats(ctx context.Context) (*archive.Stats, error) {
	var st archive.Stats
	if err := c.do(ctx, http.MethodGet, "/v1/stats/archive", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// CompressionStats returns engine statistics.
func (c *Client) CompressionStats(ctx context.Context) (*compression.Stats, error) {
	var st compression.Stats
	if err := c.do(ctx, http.MethodGet, "/v1/stats/compression", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}
