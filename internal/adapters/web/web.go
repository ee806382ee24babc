// Package web implements the web way: HTTP fetches with fixed-count retry,
// keyed rate limiting and response shaping.
package web

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/DJune12138/Collection3/internal/domain"
)

// Response shapes accepted in the response_shape parameter.
const (
	ShapeJSON   = "json"
	ShapeRaw    = "raw"
	ShapeMarkup = "markup"
	ShapeText   = "text"
	ShapeCSV    = "csv"
)

var shapes = []string{ShapeJSON, ShapeRaw, ShapeMarkup, ShapeText, ShapeCSV}

var methods = []string{http.MethodGet, http.MethodPost}

// RawResponse is the payload of the raw shape.
type RawResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

// Config holds the defaults applied when a request omits a parameter.
type Config struct {
	Timeout       time.Duration `yaml:"timeout"`
	Retry         int           `yaml:"retry"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	UserAgent     string        `yaml:"user_agent"`
}

// DefaultConfig mirrors the web section defaults of the YAML config.
func DefaultConfig() Config {
	return Config{
		Timeout:       15 * time.Second,
		Retry:         3,
		RetryInterval: time.Second,
		UserAgent:     "collection3",
	}
}

// Fetcher performs web-way requests. It is safe for concurrent use.
type Fetcher struct {
	cfg      Config
	client   *http.Client
	limiters *Limiters
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithClient replaces the HTTP client, mostly for tests.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

func New(cfg Config, opts ...Option) *Fetcher {
	f := &Fetcher{cfg: cfg, client: &http.Client{}, limiters: NewLimiters()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type call struct {
	url           string
	method        string
	headers       map[string]any
	body          any
	timeout       time.Duration
	retry         int
	retryInterval time.Duration
	limitKey      string
	limitEvery    time.Duration
	firstPass     bool
	shape         string
}

func (f *Fetcher) parse(p domain.Params) (call, error) {
	const op = "web"
	c := call{
		method:        http.MethodGet,
		timeout:       f.cfg.Timeout,
		retry:         f.cfg.Retry,
		retryInterval: f.cfg.RetryInterval,
		firstPass:     true,
		shape:         ShapeJSON,
	}
	var (
		ok  bool
		err error
	)
	if c.url, ok, err = p.String("url"); err != nil {
		return c, err
	} else if !ok {
		return c, domain.Missing(op, "url")
	}
	if m, ok, err := p.String("method"); err != nil {
		return c, err
	} else if ok {
		c.method = strings.ToUpper(m)
		if c.method != http.MethodGet && c.method != http.MethodPost {
			return c, domain.Unsupported(op, "method", m, methods...)
		}
	}
	if s, ok, err := p.String("response_shape"); err != nil {
		return c, err
	} else if ok {
		c.shape = strings.ToLower(s)
		if !validShape(c.shape) {
			return c, domain.Unsupported(op, "response_shape", s, shapes...)
		}
	}
	if c.headers, _, err = p.Map("headers"); err != nil {
		return c, err
	}
	c.body = p["body"]
	if d, ok, err := p.Duration("timeout"); err != nil {
		return c, err
	} else if ok {
		c.timeout = d
	}
	if n, ok, err := p.Int("retry"); err != nil {
		return c, err
	} else if ok {
		c.retry = n
	}
	if d, ok, err := p.Duration("retry_interval"); err != nil {
		return c, err
	} else if ok {
		c.retryInterval = d
	}
	if c.limitKey, _, err = p.String("rate_limit_key"); err != nil {
		return c, err
	}
	if c.limitEvery, _, err = p.Duration("rate_limit_seconds"); err != nil {
		return c, err
	}
	if b, ok, err := p.Bool("first_pass_exempt"); err != nil {
		return c, err
	} else if ok {
		c.firstPass = b
	}
	return c, nil
}

func validShape(s string) bool {
	for _, known := range shapes {
		if s == known {
			return true
		}
	}
	return false
}

// Fetch runs one web-way request and returns the shaped payload.
// Parameter errors are returned before any network activity.
func (f *Fetcher) Fetch(ctx context.Context, params map[string]any) (any, error) {
	c, err := f.parse(domain.Params(params))
	if err != nil {
		return nil, err
	}
	if err := f.limiters.Wait(ctx, c.limitKey, c.limitEvery, c.firstPass); err != nil {
		return nil, fmt.Errorf("rate limit %s: %w", c.limitKey, err)
	}

	attempts := c.retry
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		raw, err := f.do(ctx, c)
		if err == nil {
			return shape(c.shape, raw)
		}
		lastErr = err
		if attempt == attempts || ctx.Err() != nil {
			break
		}
		timer := time.NewTimer(c.retryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("web %s: retry cancelled: %w", c.url, ctx.Err())
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("web %s %s after %d attempts: %w", c.method, c.url, attempts, lastErr)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Status int
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.URL, e.Status)
}

func (f *Fetcher) do(ctx context.Context, c call) (*RawResponse, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, contentType, err := encodeBody(c.body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, c.method, c.url, body)
	if err != nil {
		return nil, err
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range c.headers {
		req.Header.Set(k, fmt.Sprint(v))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Status: resp.StatusCode, URL: c.url}
	}
	return &RawResponse{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case string:
		return strings.NewReader(b), "", nil
	case []byte:
		return bytes.NewReader(b), "", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", domain.Wrap(err, domain.KindTypeMismatch, "web")
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

// ErrEmptyBody is returned when a json or csv shape is requested for an empty body.
var ErrEmptyBody = errors.New("empty response body")

func shape(kind string, raw *RawResponse) (any, error) {
	switch kind {
	case ShapeRaw:
		return raw, nil
	case ShapeText:
		return string(raw.Body), nil
	case ShapeMarkup:
		return html.Parse(bytes.NewReader(raw.Body))
	case ShapeCSV:
		if len(raw.Body) == 0 {
			return nil, ErrEmptyBody
		}
		return csv.NewReader(bytes.NewReader(raw.Body)).ReadAll()
	default:
		if len(raw.Body) == 0 {
			return nil, ErrEmptyBody
		}
		var v any
		if err := json.Unmarshal(raw.Body, &v); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		return v, nil
	}
}
