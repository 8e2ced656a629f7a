package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vocabulary-sync/internal/handler"
	"github.com/iliyamo/vocabulary-sync/internal/middleware"
	"github.com/iliyamo/vocabulary-sync/internal/utils"
)

// RegisterAdmin registers the data server directory.  Everything under
// /admin except login requires an ADMIN token.  The public list is served
// through publicCache.
func RegisterAdmin(e *echo.Echo, a *handler.AdminAuthHandler, s *handler.DataServerHandler, jwtSecret string, publicCache echo.MiddlewareFunc) {
	e.POST("/admin/login", a.Login)

	g := e.Group("/admin/data-servers",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(utils.RoleAdmin),
	)
	g.GET("", s.List)
	g.POST("", s.Create)
	g.POST("/health-check", s.HealthCheckAll)
	g.GET("/:id", s.Get)
	g.PUT("/:id", s.Update)
	g.DELETE("/:id", s.Delete)
	g.POST("/:id/health-check", s.HealthCheck)

	e.GET("/data-servers/public", s.Public, publicCache)
}
