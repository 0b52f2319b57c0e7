package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kantek-org/kantek/pkg/env"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestHandler(t *testing.T) {
	assert := assert.New(t)
	env.SetVersion("v1.2.3")

	var healthErr error
	h := Handler(func(ctx context.Context) error { return healthErr })

	code, body := get(t, h, "/ping")
	assert.Equal(http.StatusOK, code)
	assert.Equal("OK", body)

	code, body = get(t, h, "/version")
	assert.Equal(http.StatusOK, code)
	var v versionResp
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	assert.Equal("v1.2.3", v.Version)

	code, _ = get(t, h, "/healthz")
	assert.Equal(http.StatusOK, code)
	healthErr = errors.New("redis: connection refused")
	code, body = get(t, h, "/healthz")
	assert.Equal(http.StatusServiceUnavailable, code)
	assert.Contains(body, "connection refused")

	code, body = get(t, h, "/metrics")
	assert.Equal(http.StatusOK, code)
	assert.Contains(body, "go_goroutines")
}

type versionResp struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func TestRunServerDisabled(t *testing.T) {
	assert.NoError(t, RunServer(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)), "", nil))
}
