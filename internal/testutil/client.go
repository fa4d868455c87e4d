package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/bissquit/alert-garden/internal/pkg/httputil"
)

// Client calls the API of a running test server. Every response is checked
// against the OpenAPI contract when a validator and a *testing.T are set.
// AsCron and AsOperator return copies, so one base client can be shared by a test.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	cronSecret string
	token      string
	validator  *OpenAPIValidator
	t          *testing.T
}

func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTPClient: &http.Client{}}
}

// NewClientWithValidator is NewClient with contract validation. Call SetT before use.
func NewClientWithValidator(baseURL string, validator *OpenAPIValidator) *Client {
	c := NewClient(baseURL)
	c.validator = validator
	return c
}

func (c *Client) SetT(t *testing.T) {
	c.t = t
}

// WithoutValidation is for tests that expect undocumented responses.
func (c *Client) WithoutValidation() *Client {
	clone := *c
	clone.validator = nil
	return &clone
}

// AsCron authenticates with the cron shared secret in the X-Cron-Secret header.
func (c *Client) AsCron(secret string) *Client {
	clone := *c
	clone.token = ""
	clone.cronSecret = secret
	return &clone
}

// AsOperator authenticates with a bearer operator token.
func (c *Client) AsOperator(token string) *Client {
	clone := *c
	clone.cronSecret = ""
	clone.token = token
	return &clone
}

func (c *Client) GET(path string) (*http.Response, error) {
	return c.do(http.MethodGet, path, nil)
}

// POST sends body encoded as JSON; a nil body sends no content.
func (c *Client) POST(path string, body any) (*http.Response, error) {
	return c.do(http.MethodPost, path, body)
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.token != "":
		req.Header.Set("Authorization", "Bearer "+c.token)
	case c.cronSecret != "":
		req.Header.Set(httputil.CronSecretHeader, c.cronSecret)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}

	if c.validator != nil && c.t != nil {
		c.validator.ValidateResponse(c.t, req, resp)
	}
	return resp, nil
}

// DecodeJSON decodes and closes the response body.
func DecodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// ReadBody reads and closes the response body.
func ReadBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}
