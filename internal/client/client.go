// Package client provides the HTTP transport used to talk to the ERP API.
// It wraps resty with static authentication, optional client-side rate limiting
// and uniform error handling for non-2xx responses.
package client

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/erp/tools/glcheck/internal/config"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrUnsupportedMethod is returned for HTTP methods the checker never issues.
var ErrUnsupportedMethod = errors.New("client: unsupported HTTP method")

// Client is the HTTP client for the ERP API.
type Client struct {
	http    *resty.Client
	baseURL string
	limiter *rate.Limiter
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient replaces the underlying *http.Client (tests use it to inject transports).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = resty.NewWithClient(hc)
		}
	}
}

// NewClient creates a new client for the target API.
func NewClient(cfg config.TargetConfig, authCfg *config.AuthConfig, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := &Client{
		http:    resty.New(),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.http.
		SetBaseURL(c.baseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetLogger(c.logger.Sugar()).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "ERP-GLCheck/1.0").
		SetHeaders(cfg.Headers)

	if cfg.TLSSkipVerify {
		c.http.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec // opt-in for test environments
	}

	if authCfg != nil {
		if err := applyAuth(c.http, authCfg); err != nil {
			return nil, fmt.Errorf("configuring auth: %w", err)
		}
	}

	if cfg.RateLimitQPS > 0 {
		burst := int(cfg.RateLimitQPS)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitQPS), burst)
	}

	return c, nil
}

// Request represents an HTTP request to be executed.
type Request struct {
	Method      string
	Path        string            // relative to the base URL, may contain {name} placeholders
	PathParams  map[string]string // escaped into Path placeholders
	QueryParams map[string]string
	Headers     map[string]string
	Body        any
}

// Response represents an HTTP response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Do executes a request. Requests are never retried. A non-2xx status is returned
// as *APIError together with the response.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	if method != http.MethodGet && method != http.MethodPost {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, req.Method)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	r := c.http.R().
		SetContext(ctx).
		SetPathParams(req.PathParams).
		SetQueryParams(req.QueryParams).
		SetHeaders(req.Headers)
	if req.Body != nil {
		r.SetBody(req.Body)
	}

	path := req.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	start := time.Now()
	restyResp, err := r.Execute(method, path)
	duration := time.Since(start)
	if err != nil {
		c.logger.Debug("request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Duration("duration", duration),
			zap.Error(err))
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	resp := &Response{
		StatusCode: restyResp.StatusCode(),
		Headers:    restyResp.Header(),
		Body:       restyResp.Body(),
		Duration:   duration,
	}

	c.logger.Debug("request completed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", duration))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Message:    ParseErrorMessage(resp.Body),
			Body:       string(resp.Body),
		}
	}
	return resp, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, queryParams map[string]string) (*Response, error) {
	return c.Do(ctx, Request{
		Method:      http.MethodGet,
		Path:        path,
		QueryParams: queryParams,
	})
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   path,
		Body:   body,
	})
}

// DoJSON executes req and decodes the JSON response body into out.
func (c *Client) DoJSON(ctx context.Context, req Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return &DecodeError{Method: strings.ToUpper(req.Method), Path: req.Path, Err: err}
	}
	return nil
}

// BaseURL returns the client's base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}
