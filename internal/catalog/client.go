// Package catalog talks to the remote catalog's product endpoints.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mohammed-shakir/catalog-importer/internal/core/observability"
)

const (
	validateProductPath = "validate/product"
	addProductPath      = "add/product"

	maxErrorBody = 64 << 10
	maxIDBody    = 1 << 20
)

type Client struct {
	logger   *slog.Logger
	client   *http.Client
	base     *url.URL
	tokens   TokenSource
	timeout  time.Duration
	startNow func() time.Time // for tests
}

type Option func(*Client)

func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithRequestTimeout bounds each validate or add call separately.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func New(logger *slog.Logger, client *http.Client, base string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(base) == "" {
		return nil, errors.New("catalog api url is required")
	}
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return nil, fmt.Errorf("parse catalog url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("catalog url %q must be http or https", base)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = http.DefaultClient
	}
	c := &Client{
		logger:   logger,
		client:   client,
		base:     u,
		timeout:  30 * time.Second,
		startNow: time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// ValidateProduct dry-runs body against the catalog.
func (c *Client) ValidateProduct(ctx context.Context, body []byte) error {
	status, resp, err := c.post(ctx, PhaseValidate, validateProductPath, body)
	if err != nil {
		return err
	}
	if !ok(status) {
		return &ValidationError{Status: status, Body: string(resp)}
	}
	return nil
}

// AddProduct persists body and returns the identifier the catalog assigned.
func (c *Client) AddProduct(ctx context.Context, body []byte) (string, error) {
	status, resp, err := c.post(ctx, PhasePersist, addProductPath, body)
	if err != nil {
		return "", err
	}
	if !ok(status) {
		return "", &PersistError{Status: status, Body: string(resp)}
	}
	return ExtractID(resp), nil
}

func ok(status int) bool { return status >= 200 && status < 300 }

func (c *Client) post(ctx context.Context, phase Phase, path string, body []byte) (int, []byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	target := c.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("build %s request: %w", phase, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := c.startNow()
	if c.tokens != nil {
		tok, err := c.tokens.Token(start)
		if err != nil {
			return 0, nil, fmt.Errorf("catalog %s token: %w", phase, err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		terr := &TransportError{Phase: phase, Err: err}
		observability.ObserveCatalogRequest(string(phase), 0, terr, time.Since(start).Seconds())
		return 0, nil, terr
	}
	defer func() { _ = resp.Body.Close() }()

	limit := int64(maxIDBody)
	if !ok(resp.StatusCode) {
		limit = maxErrorBody
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	dur := time.Since(start)
	if err != nil {
		terr := &TransportError{Phase: phase, Err: fmt.Errorf("read body: %w", err)}
		observability.ObserveCatalogRequest(string(phase), 0, terr, dur.Seconds())
		return 0, nil, terr
	}

	var rejected error
	if !ok(resp.StatusCode) {
		rejected = ErrRejected
	}
	observability.ObserveCatalogRequest(string(phase), resp.StatusCode, rejected, dur.Seconds())
	c.logger.DebugContext(ctx, "catalog request done",
		"phase", string(phase),
		"url", target.String(),
		"status", resp.StatusCode,
		"duration", dur.String())
	return resp.StatusCode, b, nil
}

// ExtractID pulls the assigned identifier out of an add response: an id-like
// member of a JSON object, a bare JSON string or number, or else the raw text.
func ExtractID(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ""
	}
	if !json.Valid(body) {
		return string(body)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return string(body)
	}

	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case map[string]any:
		for _, k := range []string{"id", "productId", "product_id", "ID"} {
			switch id := t[k].(type) {
			case string:
				return id
			case json.Number:
				return id.String()
			}
		}
	}
	return string(body)
}
