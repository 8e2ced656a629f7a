package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vocabulary-sync/internal/handler"
	"github.com/iliyamo/vocabulary-sync/internal/syncer"
)

// RegisterServerSync registers the signed server-to-server endpoints.  trust
// must verify the request signature before any handler runs.
func RegisterServerSync(e *echo.Echo, h *handler.ServerSyncHandler, trust echo.MiddlewareFunc) {
	e.POST(syncer.PathSyncUser, h.SyncUser, trust)
	e.POST(syncer.PathSyncUserStats, h.SyncUserStats, trust)
	e.POST(syncer.PathSyncUserConfig, h.SyncUserConfig, trust)
	e.GET(syncer.PathFetchUser+":username", h.GetUser, trust)
}
