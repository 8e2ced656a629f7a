package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vocabulary-sync/internal/model"
)

// Context keys shared by the middleware and handlers.
const (
	CtxUserID      = "user_id"      // token subject: the username, or the admin name
	CtxRole        = "role"         // USER or ADMIN
	CtxServerID    = "server_id"    // X-Server-Id of a verified peer
	CtxCurrentUser = "current_user" // *model.User loaded by LoadUser
	CtxRequestID   = "request_id"
	CtxError       = "handler_error" // error a handler answered itself but wants logged
)

// Subject returns the authenticated token subject, or "" when absent.
func Subject(c echo.Context) string {
	s, _ := c.Get(CtxUserID).(string)
	return s
}

// CurrentUser returns the user loaded by LoadUser, or nil.
func CurrentUser(c echo.Context) *model.User {
	u, _ := c.Get(CtxCurrentUser).(*model.User)
	return u
}

// ServerID returns the id of the peer that signed the request.
func ServerID(c echo.Context) string {
	s, _ := c.Get(CtxServerID).(string)
	return s
}

// userID is the rate-limit identity: the subject, or "anon" for public calls.
func userID(c echo.Context) string {
	if s := Subject(c); s != "" {
		return s
	}
	if s := ServerID(c); s != "" {
		return "server:" + s
	}
	return "anon"
}
