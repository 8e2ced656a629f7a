package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vocabulary-sync/internal/handler"
	"github.com/iliyamo/vocabulary-sync/internal/middleware"
	"github.com/iliyamo/vocabulary-sync/internal/utils"
)

// RegisterUsers registers account endpoints under /users.  Login and /me
// work on every node since identity is mirrored to data nodes; registration
// and subscription verification only exist where identity is owned.
func RegisterUsers(e *echo.Echo, h *handler.UserHandler, users middleware.UserLoader, jwtSecret string, authoritative bool) {
	g := e.Group("/users")
	g.POST("/login", h.Login)

	auth := g.Group("",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(utils.RoleUser),
		middleware.LoadUser(users, false),
	)
	auth.GET("/me", h.Me)

	if !authoritative {
		return
	}
	g.POST("/register", h.Register)
	auth.POST("/subscription/verify", h.VerifySubscription)
}
