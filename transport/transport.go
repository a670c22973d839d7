// Package transport is the remote boundary: JSON requests against the pantry
// API with bearer authentication and typed status errors.
package transport

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

	"github.com/hashicorp/go-cleanhttp"
	"github.com/tidwall/gjson"

	"github.com/unkn0wn-root/querycache"
)

const (
	defaultDetail    = "An unexpected error occurred"
	defaultUserAgent = "querycache-transport"
	maxBody          = 8 << 20
)

// TokenSource returns the current bearer token. An empty token sends the
// request unauthenticated.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken returns a TokenSource that always yields tok.
func StaticToken(tok string) TokenSource {
	return func(context.Context) (string, error) { return tok, nil }
}

type Config struct {
	BaseURL    string
	HTTPClient *http.Client // nil => cleanhttp pooled client
	Token      TokenSource  // nil => no Authorization header
	UserAgent  string
	Logger     querycache.Logger
}

type Client struct {
	base  *url.URL
	hc    *http.Client
	token TokenSource
	ua    string
	log   querycache.Logger
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("transport: base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("transport: base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("transport: unsupported scheme %q", base.Scheme)
	}
	c := &Client{
		base:  base,
		hc:    cfg.HTTPClient,
		token: cfg.Token,
		ua:    cfg.UserAgent,
		log:   cfg.Logger,
	}
	if c.hc == nil {
		c.hc = cleanhttp.DefaultPooledClient()
	}
	if c.ua == "" {
		c.ua = defaultUserAgent
	}
	if c.log == nil {
		c.log = querycache.NopLogger{}
	}
	return c, nil
}

// StatusError is a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Status int
	Detail string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.Status, e.Detail)
}

func (e *StatusError) StatusCode() int { return e.Status }

// Do sends body (JSON encoded when non-nil) and returns the raw response body.
// A 204 response yields nil bytes.
func (c *Client) Do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("transport: encode %s %s: %w", method, path, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rd)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.ua)
	if c.token != nil {
		tok, err := c.token(ctx)
		if err != nil {
			return nil, fmt.Errorf("transport: token: %w", err)
		}
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("transport: read %s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &StatusError{Method: method, Path: path, Status: resp.StatusCode, Detail: detailOf(raw)}
		c.log.Debug("remote request failed", querycache.Fields{
			"method": method, "path": path, "status": resp.StatusCode,
		})
		return nil, serr
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	return raw, nil
}

// detailOf extracts the error detail from a response body: the "detail"
// member of a JSON object, the JSON body itself, or a generic message.
func detailOf(raw []byte) string {
	if !gjson.ValidBytes(raw) || len(bytes.TrimSpace(raw)) == 0 {
		return defaultDetail
	}
	if d := gjson.GetBytes(raw, "detail"); d.Exists() && d.Type != gjson.Null {
		if d.Type == gjson.String {
			return d.String()
		}
		return d.Raw
	}
	return string(bytes.TrimSpace(raw))
}

// Call performs a request and decodes the JSON response into T. ok is false
// when the server answered 204 No Content.
func Call[T any](ctx context.Context, c *Client, method, path string, body any) (v T, ok bool, err error) {
	raw, err := c.Do(ctx, method, path, body)
	if err != nil || raw == nil {
		return v, false, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("transport: decode %s %s: %w", method, path, err)
	}
	return v, true, nil
}

func Get[T any](ctx context.Context, c *Client, path string) (T, error) {
	v, _, err := Call[T](ctx, c, http.MethodGet, path, nil)
	return v, err
}

func Post[T any](ctx context.Context, c *Client, path string, body any) (T, error) {
	v, _, err := Call[T](ctx, c, http.MethodPost, path, body)
	return v, err
}

func Patch[T any](ctx context.Context, c *Client, path string, body any) (T, error) {
	v, _, err := Call[T](ctx, c, http.MethodPatch, path, body)
	return v, err
}

// Delete sends a DELETE and discards any response body.
func Delete(ctx context.Context, c *Client, path string) error {
	_, err := c.Do(ctx, http.MethodDelete, path, nil)
	return err
}
