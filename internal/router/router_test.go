package router

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/vocabulary-sync/internal/handler"
	"github.com/iliyamo/vocabulary-sync/internal/metrics"
	"github.com/iliyamo/vocabulary-sync/internal/middleware"
	"github.com/iliyamo/vocabulary-sync/internal/trust"
)

func newTestEcho(t *testing.T) (*echo.Echo, *prometheus.Registry) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	v, err := handler.NewValidator()
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	e := New(v, []string{"*"}, log)
	RegisterRoutes(e, "/healthz", "data", "node-a", reg)
	RegisterVocabulary(e, &handler.WordHandler{}, &handler.PhraseHandler{}, nil, "jwt", func(next echo.HandlerFunc) echo.HandlerFunc { return next })
	RegisterServerSync(e, &handler.ServerSyncHandler{}, middleware.ServerTrust(trust.NewSigner("fleet"), m, log))
	e.GET("/boom", func(echo.Context) error { return errors.New("db down") })
	e.GET("/teapot", func(echo.Context) error { return echo.NewHTTPError(http.StatusTeapot, "short and stout") })
	return e, reg
}

func do(e *echo.Echo, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	e, _ := newTestEcho(t)

	rec := do(e, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","role":"data","node":"node-a"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	rec = do(e, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestErrorBodiesAreUniform(t *testing.T) {
	e, _ := newTestEcho(t)

	rec := do(e, http.MethodGet, "/nowhere")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Not Found"}`, rec.Body.String())

	rec = do(e, http.MethodGet, "/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error"}`, rec.Body.String())

	rec = do(e, http.MethodGet, "/teapot")
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.JSONEq(t, `{"error":"short and stout"}`, rec.Body.String())
}

func TestProtectedRoutesRejectAnonymousCallers(t *testing.T) {
	e, _ := newTestEcho(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/words"},
		{http.MethodPost, "/words/batch-sync"},
		{http.MethodDelete, "/phrases/hello"},
		{http.MethodPost, "/server-sync/sync-user"},
		{http.MethodGet, "/server-sync/user/alice"},
	} {
		rec := do(e, tc.method, tc.path)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
	}
}
