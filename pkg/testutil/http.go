// Package testutil holds helpers shared by handler, router and integration tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Envelope is the response body written by httputil with Data decoded as T.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
}

// NewJSONRequest marshals body (nil sends no body) into a JSON request.
func NewJSONRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	if body == nil {
		return jsonRequest(method, target, http.NoBody)
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err, "marshal request body")
	return jsonRequest(method, target, bytes.NewReader(raw))
}

// NewRequestWithBody sends raw as the JSON body, for malformed payloads.
func NewRequestWithBody(t *testing.T, method, target, raw string) *http.Request {
	t.Helper()
	return jsonRequest(method, target, strings.NewReader(raw))
}

func jsonRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// DoRequest serves req on h and returns the recorded response.
func DoRequest(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// UnmarshalEnvelope decodes the recorded body, failing the test on bad JSON.
func UnmarshalEnvelope[T any](t *testing.T, rec *httptest.ResponseRecorder) *Envelope[T] {
	t.Helper()
	raw := rec.Body.Bytes()
	env := new(Envelope[T])
	require.NoError(t, json.Unmarshal(raw, env), "decode envelope: %s", raw)
	return env
}

// AssertStatus reports the body alongside a status mismatch.
func AssertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	assert.Equal(t, want, rec.Code, "body: %s", rec.Body.String())
}

// AssertStatusAndError checks a failed envelope carrying the given error code.
func AssertStatusAndError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	AssertStatus(t, rec, status)
	env := UnmarshalEnvelope[json.RawMessage](t, rec)
	assert.False(t, env.Success, "envelope should report failure")
	assert.Equal(t, code, env.Error)
}
