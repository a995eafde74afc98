package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/erp/tools/glcheck/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, serverURL string, authCfg *config.AuthConfig) *Client {
	t.Helper()
	c, err := NewClient(config.TargetConfig{
		BaseURL: serverURL,
		Timeout: 5 * time.Second,
		Headers: map[string]string{"X-Tenant-ID": "acme"},
	}, authCfg)
	require.NoError(t, err)
	return c
}

func TestNewClient(t *testing.T) {
	t.Run("trims trailing slash", func(t *testing.T) {
		c, err := NewClient(config.TargetConfig{BaseURL: "http://localhost:3001/api/"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:3001/api", c.BaseURL())
	})

	t.Run("requires base URL", func(t *testing.T) {
		_, err := NewClient(config.TargetConfig{}, nil)
		assert.Error(t, err)
	})

	t.Run("rejects incomplete auth", func(t *testing.T) {
		_, err := NewClient(config.TargetConfig{BaseURL: "http://localhost"}, &config.AuthConfig{Type: "bearer"})
		assert.Error(t, err)

		_, err = NewClient(config.TargetConfig{BaseURL: "http://localhost"}, &config.AuthConfig{Type: "oauth2"})
		assert.Error(t, err)
	})
}

func TestGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/inventory/balances", r.URL.Path)
		assert.Equal(t, "LAPTOP-001", r.URL.Query().Get("itemCode"))
		assert.Equal(t, "WAREHOUSE-A", r.URL.Query().Get("location"))
		assert.Equal(t, "acme", r.Header.Get("X-Tenant-ID"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":[{"quantity":10}]}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL+"/api", nil)

	resp, err := c.Get(context.Background(), "/inventory/balances", map[string]string{
		"itemCode": "LAPTOP-001",
		"location": "WAREHOUSE-A",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"data":[{"quantity":10}]}`, string(resp.Body))
}

func TestPost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "IN", body["type"])

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"42"}}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)

	resp, err := c.Post(context.Background(), "stock-movements", map[string]any{"type": "IN"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestDoJSONWithPathParams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/1300/balance", r.URL.Path)
		_, _ = w.Write([]byte(`{"balance":"12500.50"}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)

	var out struct {
		Balance string `json:"balance"`
	}
	err := c.DoJSON(context.Background(), Request{
		Method:     http.MethodGet,
		Path:       "/accounts/{code}/balance",
		PathParams: map[string]string{"code": "1300"},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "12500.50", out.Balance)
}

func TestDoJSONDecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>oops</html>`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)

	var out map[string]any
	err := c.DoJSON(context.Background(), Request{Method: http.MethodGet, Path: "/x"}, &out)
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "GET", decodeErr.Method)
}

func TestAPIError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"message":"item not found"}}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)

	resp, err := c.Post(context.Background(), "/stock-movements", map[string]any{})
	require.Error(t, err)
	require.NotNil(t, resp)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "item not found", apiErr.Message)
	assert.Contains(t, apiErr.Error(), "POST /stock-movements: HTTP 422")
	assert.False(t, IsNotFound(err))
	assert.Equal(t, int32(1), calls.Load(), "requests must not be retried")
}

func TestUnsupportedMethod(t *testing.T) {
	c, err := NewClient(config.TargetConfig{BaseURL: "http://localhost"}, nil)
	require.NoError(t, err)

	for _, method := range []string{http.MethodPut, http.MethodDelete, http.MethodPatch} {
		_, err := c.Do(context.Background(), Request{Method: method, Path: "/x"})
		assert.ErrorIs(t, err, ErrUnsupportedMethod, method)
	}
}

func TestAuthentication(t *testing.T) {
	tests := []struct {
		name   string
		auth   *config.AuthConfig
		header string
		want   string
	}{
		{
			name:   "bearer",
			auth:   &config.AuthConfig{Type: "bearer", Token: "tok"},
			header: "Authorization",
			want:   "Bearer tok",
		},
		{
			name:   "api key with default header",
			auth:   &config.AuthConfig{Type: "api_key", APIKey: "k1"},
			header: "X-API-Key",
			want:   "k1",
		},
		{
			name:   "api key with custom header",
			auth:   &config.AuthConfig{Type: "api_key", APIKey: "k2", APIKeyHeader: "X-Custom"},
			header: "X-Custom",
			want:   "k2",
		},
		{
			name:   "basic",
			auth:   &config.AuthConfig{Type: "basic", Username: "user", Password: "pass"},
			header: "Authorization",
			want:   "Basic dXNlcjpwYXNz",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Get(tt.header)
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			c := newTestClient(t, server.URL, tt.auth)
			_, err := c.Get(context.Background(), "/", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c, err := NewClient(config.TargetConfig{BaseURL: server.URL, RateLimitQPS: 1}, nil)
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "/", nil)
	require.NoError(t, err)

	// The single token is spent; the next wait exceeds the deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Get(ctx, "/", nil)
	require.Error(t, err)
	assert.False(t, errors.As(err, new(*APIError)))
}

func TestParseErrorMessage(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"error":"bad request"}`, "bad request"},
		{`{"message":"invalid quantity"}`, "invalid quantity"},
		{`{"msg":"nope"}`, "nope"},
		{`{"error":{"message":"nested"}}`, "nested"},
		{`{"error":{"description":"described"}}`, "described"},
		{`plain text failure`, "plain text failure"},
		{``, ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseErrorMessage([]byte(tt.body)), tt.body)
	}
}
