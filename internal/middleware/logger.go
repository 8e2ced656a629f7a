package middleware

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestLogger tags each request with an id (reusing X-Request-Id when the
// caller sent one) and logs one line when it completes.  5xx are logged at
// error level and 4xx at warn.
func RequestLogger(log *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			rid := req.Header.Get(echo.HeaderXRequestID)
			if rid == "" {
				rid = uuid.NewString()
			}
			c.Set(CtxRequestID, rid)
			c.Response().Header().Set(echo.HeaderXRequestID, rid)

			err := next(c)
			if err != nil {
				// let the error handler write the response so the status is final
				c.Error(err)
			} else if herr, ok := c.Get(CtxError).(error); ok {
				err = herr
			}

			status := c.Response().Status
			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}
			attrs := []slog.Attr{
				slog.String("request_id", rid),
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int("status", status),
				slog.Int64("bytes_out", c.Response().Size),
				slog.Duration("latency", time.Since(start)),
			}
			if sub := Subject(c); sub != "" {
				attrs = append(attrs, slog.String("user", sub))
			}
			if sid := ServerID(c); sid != "" {
				attrs = append(attrs, slog.String("server_id", sid))
			}
			if err != nil {
				attrs = append(attrs, slog.Any("error", err))
			}
			log.LogAttrs(req.Context(), level, "request completed", attrs...)
			return nil
		}
	}
}
