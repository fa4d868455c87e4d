// Package testutil holds helpers shared by handler tests and integration tests.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
)

const maxReportedBody = 300

// Probes answer with plain text and are not part of the contract.
var unvalidatedPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// OpenAPIValidator checks responses against api/openapi/openapi.yaml.
type OpenAPIValidator struct {
	router routers.Router
}

// NewOpenAPIValidator is LoadOpenAPIValidator for use inside a test.
func NewOpenAPIValidator(t *testing.T, path string) *OpenAPIValidator {
	t.Helper()
	v, err := LoadOpenAPIValidator(path)
	if err != nil {
		t.Fatalf("load OpenAPI validator: %v", err)
	}
	return v
}

// LoadOpenAPIValidator parses and validates the document at path. TestMain uses it directly.
func LoadOpenAPIValidator(path string) (*OpenAPIValidator, error) {
	doc, err := openapi3.NewLoader().LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load OpenAPI document %s: %w", path, err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI document: %w", err)
	}

	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("create OpenAPI router: %w", err)
	}
	return &OpenAPIValidator{router: router}, nil
}

// ValidateResponse reports a test error when resp does not match the documented
// response of req's operation. The body is read and replaced, so callers can still decode it.
func (v *OpenAPIValidator) ValidateResponse(t *testing.T, req *http.Request, resp *http.Response) {
	t.Helper()

	path := req.URL.Path
	if unvalidatedPaths[path] {
		return
	}

	// The router matches on the path only; the test server host is not a documented server.
	routeReq, err := http.NewRequest(req.Method, path, nil)
	if err != nil {
		t.Errorf("build route request: %v", err)
		return
	}
	route, pathParams, err := v.router.FindRoute(routeReq)
	if err != nil {
		t.Errorf("OpenAPI: %s %s is not documented: %v", req.Method, path, err)
		return
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Errorf("read response body: %v", err)
		return
	}
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))

	input := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: &openapi3filter.RequestValidationInput{
			Request:    req,
			PathParams: pathParams,
			Route:      route,
		},
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   io.NopCloser(bytes.NewReader(body)),
		Options: &openapi3filter.Options{
			MultiError:            true,
			IncludeResponseStatus: true,
		},
	}
	if err := openapi3filter.ValidateResponse(context.Background(), input); err != nil {
		t.Errorf("OpenAPI: %s %s returned %d not matching the contract:\n%s\nbody: %s",
			req.Method, path, resp.StatusCode, truncate(err.Error()), truncate(string(body)))
	}
}

// ValidateRecorder validates a response captured by httptest.ResponseRecorder.
func (v *OpenAPIValidator) ValidateRecorder(t *testing.T, req *http.Request, rec *httptest.ResponseRecorder) {
	t.Helper()
	resp := rec.Result()
	defer func() { _ = resp.Body.Close() }()
	v.ValidateResponse(t, req, resp)
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxReportedBody {
		return s[:maxReportedBody] + "..."
	}
	return s
}
