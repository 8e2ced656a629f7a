package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/vocabulary-sync/internal/metrics"
	"github.com/iliyamo/vocabulary-sync/internal/trust"
)

func newTrustEcho(signer *trust.Signer, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	g := e.Group("/server-sync", ServerTrust(signer, m, slog.New(slog.NewTextHandler(io.Discard, nil))))
	g.POST("/sync-user", func(c echo.Context) error {
		body, _ := io.ReadAll(c.Request().Body)
		return c.JSON(http.StatusOK, echo.Map{"server": ServerID(c), "body": string(body)})
	})
	return e
}

func signedRequest(t *testing.T, signer *trust.Signer, path, body string, ts time.Time) *http.Request {
	t.Helper()
	sig, err := signer.Sign(http.MethodPost, path, ts.UnixMilli(), []byte(body))
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(trust.HeaderSignature, sig)
	req.Header.Set(trust.HeaderTimestamp, strconv.FormatInt(ts.UnixMilli(), 10))
	req.Header.Set(trust.HeaderServerID, "node-b")
	return req
}

func TestServerTrustAcceptsSignedRequest(t *testing.T) {
	signer := trust.NewSigner("s3cret")
	e := newTrustEcho(signer, metrics.New(prometheus.NewRegistry()))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, signedRequest(t, signer, "/server-sync/sync-user", `{"username":"alice"}`, time.Now()))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"server":"node-b"`)
	// the handler still sees the body
	assert.Contains(t, rec.Body.String(), `username`)
}

func TestServerTrustRejections(t *testing.T) {
	signer := trust.NewSigner("s3cret")
	m := metrics.New(prometheus.NewRegistry())
	e := newTrustEcho(signer, m)
	path := "/server-sync/sync-user"

	tests := []struct {
		name   string
		req    func() *http.Request
		reason string
	}{
		{"missing headers", func() *http.Request {
			return httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`))
		}, "missing_headers"},
		{"stale timestamp", func() *http.Request {
			return signedRequest(t, signer, path, `{}`, time.Now().Add(-6*time.Minute))
		}, "stale_timestamp"},
		{"wrong secret", func() *http.Request {
			return signedRequest(t, trust.NewSigner("other"), path, `{}`, time.Now())
		}, "bad_signature"},
		{"tampered body", func() *http.Request {
			req := signedRequest(t, signer, path, `{"wordLimit":10}`, time.Now())
			req.Body = io.NopCloser(strings.NewReader(`{"wordLimit":99999}`))
			return req
		}, "bad_signature"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(m.TrustRejections.WithLabelValues(tt.reason))
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, tt.req())
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, before+1, testutil.ToFloat64(m.TrustRejections.WithLabelValues(tt.reason)))
		})
	}
}
