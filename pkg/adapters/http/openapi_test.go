package http_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	settlehttp "github.com/aretw0/settle/pkg/adapters/http"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers/legacy"
	"github.com/stretchr/testify/require"
)

func TestGetSwagger_Valid(t *testing.T) {
	doc, err := settlehttp.GetSwagger()
	require.NoError(t, err)
	require.NotNil(t, doc.Paths.Find("/activations"))
	require.NotNil(t, doc.Paths.Find("/conversations/{key}"))
}

// Requests and responses of the running handler must match the served document.
func TestHandler_ConformsToOpenAPI(t *testing.T) {
	doc, err := settlehttp.GetSwagger()
	require.NoError(t, err)
	router, err := legacy.NewRouter(doc)
	require.NoError(t, err)

	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		method, path, body string
	}{
		{http.MethodPost, "/activations", `{` + settingsJSON + `,"payload":{"text":"hi"}}`},
		{http.MethodPost, "/activations", `{` + settingsJSON + `,"payload":{"text":"   "}}`},
		{http.MethodPost, "/activations", `{"settings":{"messageField":"text"},"payload":{"text":"x"}}`},
		{http.MethodGet, "/conversations/u1", ``},
		{http.MethodGet, "/health", ``},
		{http.MethodGet, "/info", ``},
	}

	for _, c := range cases {
		var body io.Reader
		if c.body != "" {
			body = bytes.NewBufferString(c.body)
		}
		req := httptest.NewRequest(c.method, "http://localhost"+c.path, body)
		if c.body != "" {
			req.Header.Set("Content-Type", "application/json")
		}

		route, params, err := router.FindRoute(req)
		require.NoError(t, err, c.path)
		reqInput := &openapi3filter.RequestValidationInput{Request: req, PathParams: params, Route: route}
		require.NoError(t, openapi3filter.ValidateRequest(ctx, reqInput), c.path)

		if c.body != "" {
			req.Body = io.NopCloser(bytes.NewBufferString(c.body))
		}
		w := httptest.NewRecorder()
		f.handler.ServeHTTP(w, req)

		respInput := &openapi3filter.ResponseValidationInput{
			RequestValidationInput: reqInput,
			Status:                 w.Code,
			Header:                 w.Header(),
			Body:                   io.NopCloser(bytes.NewReader(w.Body.Bytes())),
		}
		require.NoError(t, openapi3filter.ValidateResponse(ctx, respInput), "%s %s -> %d %s", c.method, c.path, w.Code, w.Body.String())
	}
}
