package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vocabulary-sync/internal/handler"
	"github.com/iliyamo/vocabulary-sync/internal/middleware"
	"github.com/iliyamo/vocabulary-sync/internal/utils"
)

// RegisterVocabulary registers word and phrase endpoints.  Every route needs
// a USER token and a subscription that is not expired, and is rate limited
// per user.
func RegisterVocabulary(e *echo.Echo, w *handler.WordHandler, p *handler.PhraseHandler, users middleware.UserLoader, jwtSecret string, limiter echo.MiddlewareFunc) {
	mw := []echo.MiddlewareFunc{
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(utils.RoleUser),
		middleware.LoadUser(users, true),
		limiter,
	}

	words := e.Group("/words", mw...)
	words.GET("", w.List)
	words.POST("", w.Create)
	words.POST("/batch-sync", w.BatchSync)
	words.POST("/batch-get", w.BatchGet)
	words.GET("/:word", w.Get)
	words.PUT("/:word", w.Update)
	words.DELETE("/:word", w.Delete)

	phrases := e.Group("/phrases", mw...)
	phrases.GET("", p.List)
	phrases.POST("", p.Create)
	phrases.POST("/batch-sync", p.BatchSync)
	phrases.DELETE("/:word", p.Delete)
}
