package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vocabulary-sync/internal/middleware"
	"github.com/iliyamo/vocabulary-sync/internal/model"
	"github.com/iliyamo/vocabulary-sync/internal/service"
	"github.com/iliyamo/vocabulary-sync/internal/utils"
)

// UserHandler serves registration, login and the account endpoints.
type UserHandler struct {
	users  *service.Users
	subs   *service.Subscriptions
	secret string
	ttl    time.Duration
}

func NewUserHandler(users *service.Users, subs *service.Subscriptions, secret string, ttl time.Duration) *UserHandler {
	return &UserHandler{users: users, subs: subs, secret: secret, ttl: ttl}
}

type registerReq struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginReq struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type verifyReq struct {
	Platform   string `json:"platform" validate:"required"`
	ExternalID string `json:"externalId" validate:"required"`
}

type accountResp struct {
	User        *model.User        `json:"user"`
	Access      *utils.AccessToken `json:"access,omitempty"`
	SyncWarning string             `json:"syncWarning,omitempty"`
}

// Register creates the account and returns a token right away.
func (h *UserHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	u, warning, err := h.users.Register(c.Request().Context(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return fail(c, err)
	}
	tok, err := utils.NewAccessToken(h.secret, u.Username, utils.RoleUser, h.ttl)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, accountResp{User: u, Access: &tok, SyncWarning: warning})
}

// Login authenticates and issues a user token.  Expired users may still log
// in so they can renew.
func (h *UserHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	ctx := c.Request().Context()
	u, err := h.users.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return fail(c, err)
	}
	if _, err := h.subs.Refresh(ctx, u); err != nil {
		return fail(c, err)
	}
	tok, err := utils.NewAccessToken(h.secret, u.Username, utils.RoleUser, h.ttl)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, accountResp{User: u, Access: &tok})
}

// Me returns the caller's account, assigning a data server first when the
// user still has none.
func (h *UserHandler) Me(c echo.Context) error {
	u := middleware.CurrentUser(c)
	warning, err := h.users.EnsureAssigned(c.Request().Context(), u)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, accountResp{User: u, SyncWarning: warning})
}

// VerifySubscription confirms an external purchase and activates the plan.
func (h *UserHandler) VerifySubscription(c echo.Context) error {
	var req verifyReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	ctx := c.Request().Context()
	u := middleware.CurrentUser(c)
	assignWarning, err := h.users.EnsureAssigned(ctx, u)
	if err != nil {
		return fail(c, err)
	}
	warning, err := h.subs.Verify(ctx, u, req.Platform, req.ExternalID)
	if err != nil {
		return fail(c, err)
	}
	if warning == "" {
		warning = assignWarning
	}
	return c.JSON(http.StatusOK, accountResp{User: u, SyncWarning: warning})
}
