package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vocabulary-sync/internal/middleware"
	"github.com/iliyamo/vocabulary-sync/internal/service"
	"github.com/iliyamo/vocabulary-sync/internal/syncer"
)

// ServerSyncHandler is the receiving side of inter-node sync.  Every route
// sits behind middleware.ServerTrust.
type ServerSyncHandler struct {
	users *service.Users
	log   *slog.Logger
}

func NewServerSyncHandler(users *service.Users, log *slog.Logger) *ServerSyncHandler {
	return &ServerSyncHandler{users: users, log: log}
}

// SyncUser upserts a full identity snapshot keyed by username.
func (h *ServerSyncHandler) SyncUser(c echo.Context) error {
	var p syncer.UserPayload
	if err := bind(c, &p); err != nil {
		return fail(c, err)
	}
	created, err := h.users.ApplyIdentity(c.Request().Context(), p.User())
	if err != nil {
		return fail(c, err)
	}
	h.log.Info("identity synced", slog.String("user", p.Username),
		slog.String("from", middleware.ServerID(c)), slog.Bool("created", created))
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "created": created})
}

// SyncUserStats stores the usage snapshot a data node reports.
func (h *ServerSyncHandler) SyncUserStats(c echo.Context) error {
	var p syncer.StatsPayload
	if err := bind(c, &p); err != nil {
		return fail(c, err)
	}
	if err := h.users.ApplyStats(c.Request().Context(), p.Username, p.WordCount, p.SubscriptionStatus, p.SubscriptionExpireAt); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

// SyncUserConfig stores pushed subscription and quota fields.
func (h *ServerSyncHandler) SyncUserConfig(c echo.Context) error {
	var p syncer.ConfigPayload
	if err := bind(c, &p); err != nil {
		return fail(c, err)
	}
	if err := h.users.ApplyConfig(c.Request().Context(), p.User()); err != nil {
		return fail(c, err)
	}
	h.log.Info("config synced", slog.String("user", p.Username),
		slog.String("from", middleware.ServerID(c)), slog.String("plan", p.PlanName))
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

// GetUser returns the stored snapshot of one user.
func (h *ServerSyncHandler) GetUser(c echo.Context) error {
	u, err := h.users.Snapshot(c.Request().Context(), c.Param("username"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, syncer.NewUserPayload(u))
}
