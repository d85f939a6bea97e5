package problem

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCode(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/policy/quote", nil)
	rr := httptest.NewRecorder()
	rr.Header().Set("X-Trace-ID", "trace-1")

	WriteCode(rr, req, http.StatusUnprocessableEntity, Type("policy/invalid-transaction"), "invalid_transaction", "amount must be >= 0")

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))

	var d Details
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &d))
	assert.Equal(t, Details{
		Type:      "https://errors.wallet-policy.dev/policy/invalid-transaction",
		Title:     "Unprocessable Entity",
		Status:    http.StatusUnprocessableEntity,
		Detail:    "amount must be >= 0",
		Instance:  "/v1/policy/quote",
		RequestID: "trace-1",
		Code:      "invalid_transaction",
	}, d)
}

func TestWriteDefaults(t *testing.T) {
	rr := httptest.NewRecorder()
	Write(rr, nil, http.StatusNotFound, "", "", "missing")

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &raw))
	assert.Equal(t, "about:blank", raw["type"])
	assert.Equal(t, "Not Found", raw["title"])
	assert.NotContains(t, raw, "code")
}
