package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/vetlab/internal/rpc"
	"github.com/mesh-intelligence/vetlab/pkg/sqlite"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	store, err := sqlite.Open(t.TempDir(), sqlite.WithRegisterer(reg))
	require.NoError(t, err)
	t.Cleanup(func() { store.Detach() })
	return New(rpc.NewDispatcher(store, zerolog.Nop()), reg, zerolog.Nop())
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, rpc.Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var resp rpc.Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestServer_Healthz(t *testing.T) {
	s := newTestServer(t)
	rec, _ := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestServer_Call(t *testing.T) {
	s := newTestServer(t)

	rec, resp := do(t, s, http.MethodPost, "/api/numbering.reserve", `{"suffix":"Q"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, resp.OK)
	number := resp.Data.(map[string]any)["number"].(string)
	assert.Regexp(t, `^0001-\d{4}-Q$`, number)

	rec, resp = do(t, s, http.MethodPost, "/api/alert.create", `{"procedure_number":"`+number+`","action_type":"new"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "new", resp.Data.(map[string]any)["action_type"])

	rec, resp = do(t, s, http.MethodPost, "/api/alert.active", `{"procedure_number":"`+number+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, number, resp.Data.(map[string]any)["procedure_number"])
}

func TestServer_ErrorStatuses(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"unknown operation", "/api/nope.nope", `{}`, http.StatusNotFound, rpc.CodeUnknownOperation},
		{"missing entity", "/api/lab_procedure.get", `{"id":"missing"}`, http.StatusNotFound, rpc.CodeNotFound},
		{"bad json", "/api/sample.create", `{`, http.StatusBadRequest, rpc.CodeInvalidArgument},
		{"empty body", "/api/numbering.next", ``, http.StatusBadRequest, rpc.CodeInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := do(t, s, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			require.NotNil(t, resp.Error)
			assert.False(t, resp.OK)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestServer_ListOperations(t *testing.T) {
	s := newTestServer(t)
	rec, resp := do(t, s, http.MethodGet, "/api", "")
	require.Equal(t, http.StatusOK, rec.Code)
	ops, ok := resp.Data.([]any)
	require.True(t, ok)
	assert.Contains(t, ops, "lab_procedure.create")
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(t)
	_, _ = do(t, s, http.MethodPost, "/api/alert.create", `{"procedure_number":"0001-2025-Q","action_type":"deleted"}`)

	rec, _ := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `vetlab_alerts_created_total{action="deleted"} 1`)
}

func TestServer_RecoversFromPanic(t *testing.T) {
	s := newTestServer(t)
	s.echo.GET("/boom", func(echo.Context) error { panic("boom") })

	rec, _ := do(t, s, http.MethodGet, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCheckLoopback(t *testing.T) {
	tests := []struct {
		addr    string
		wantErr bool
	}{
		{"127.0.0.1:7420", false},
		{"localhost:0", false},
		{"[::1]:7420", false},
		{":7420", true},
		{"0.0.0.0:7420", true},
		{"192.168.1.10:7420", true},
		{"no-port", true},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			err := CheckLoopback(tt.addr)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNotLoopback)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	assert.ErrorIs(t, s.Run(context.Background(), "0.0.0.0:0"), ErrNotLoopback)
}
