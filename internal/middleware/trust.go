package middleware

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vocabulary-sync/internal/metrics"
	"github.com/iliyamo/vocabulary-sync/internal/trust"
)

// maxSyncBody bounds the body read for signature verification.
const maxSyncBody = 4 << 20

// ServerTrust admits only requests signed with the shared fleet secret.  The
// body is read for verification and put back for the handler.  On success
// the sender's id is stored under CtxServerID.
func ServerTrust(signer *trust.Signer, m *metrics.Metrics, log *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			body, err := io.ReadAll(io.LimitReader(req.Body, maxSyncBody))
			if err != nil {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
			}
			req.Body = io.NopCloser(bytes.NewReader(body))

			h := trust.Headers{
				Signature: req.Header.Get(trust.HeaderSignature),
				Timestamp: req.Header.Get(trust.HeaderTimestamp),
				ServerID:  req.Header.Get(trust.HeaderServerID),
			}
			if err := signer.Verify(req.Method, req.URL.Path, h, body); err != nil {
				reason := rejectReason(err)
				m.TrustRejections.WithLabelValues(reason).Inc()
				log.Warn("server sync rejected",
					slog.String("reason", reason),
					slog.String("server_id", h.ServerID),
					slog.String("path", req.URL.Path),
					slog.String("remote_ip", c.RealIP()))
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
			}
			c.Set(CtxServerID, h.ServerID)
			return next(c)
		}
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, trust.ErrMissingHeaders):
		return "missing_headers"
	case errors.Is(err, trust.ErrStaleTimestamp):
		return "stale_timestamp"
	default:
		return "bad_signature"
	}
}
