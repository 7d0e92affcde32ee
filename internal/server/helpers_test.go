package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathParam(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		prefix string
		want   string
	}{
		{"simple symbol", "/api/recommendations/AAPL", "/api/recommendations/", "AAPL"},
		{"trailing segment ignored", "/api/recommendations/AAPL/extra", "/api/recommendations/", "AAPL"},
		{"wrong prefix", "/api/other/AAPL", "/api/recommendations/", ""},
		{"empty param", "/api/recommendations/", "/api/recommendations/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.want, PathParam(req, tt.prefix, ""))
		})
	}
}

func TestRequireMethod(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	assert.False(t, RequireMethod(rr, req, http.MethodGet))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	assert.True(t, RequireMethod(rr, req, http.MethodGet, http.MethodHead))
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"name":"ok"}`))
	var p payload
	require.True(t, DecodeJSON(rr, req, &p))
	assert.Equal(t, "ok", p.Name)

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{bad`))
	assert.False(t, DecodeJSON(rr, req, &p))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWriteErrorWithCode(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteErrorWithCode(rr, http.StatusNotFound, "symbol not found", "NOT_FOUND")

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"symbol not found","code":"NOT_FOUND"}`, rr.Body.String())
}
