package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readyUpstream(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health/ready", r.URL.Path)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGatewayHealth_AllUpstreamsReady(t *testing.T) {
	order := readyUpstream(t, http.StatusOK)
	payment := readyUpstream(t, http.StatusOK)

	h := NewGatewayHealthHandler(order.URL, payment.URL)
	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, map[string]string{"order": "ok", "payment": "ok"}, body.Checks)
}

func TestGatewayHealth_UpstreamDown(t *testing.T) {
	order := readyUpstream(t, http.StatusOK)
	payment := readyUpstream(t, http.StatusServiceUnavailable)

	h := NewGatewayHealthHandler(order.URL, payment.URL)
	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "down", body.Status)
	assert.Equal(t, "ok", body.Checks["order"])
	assert.Equal(t, "down", body.Checks["payment"])
}

func TestGatewayHealth_UpstreamUnreachable(t *testing.T) {
	order := readyUpstream(t, http.StatusOK)

	// A port nothing listens on: the dial itself fails.
	h := NewGatewayHealthHandler(order.URL, "http://127.0.0.1:1")
	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "down", body.Status)
	assert.Equal(t, "down", body.Checks["payment"])
}
