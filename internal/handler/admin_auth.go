package handler

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vocabulary-sync/internal/utils"
)

// AdminAuthHandler issues stateless admin tokens.  There is one operator
// account configured through ADMIN_USERNAME and ADMIN_PASSWORD_HASH.
type AdminAuthHandler struct {
	username     string
	passwordHash string
	secret       string
	ttl          time.Duration
}

func NewAdminAuthHandler(username, passwordHash, secret string, ttl time.Duration) *AdminAuthHandler {
	return &AdminAuthHandler{username: username, passwordHash: passwordHash, secret: secret, ttl: ttl}
}

type adminLoginReq struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login checks the operator credentials and returns an admin token.
func (h *AdminAuthHandler) Login(c echo.Context) error {
	if h.passwordHash == "" {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "admin login is disabled"})
	}
	var req adminLoginReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.username)) == 1
	// always run bcrypt so a wrong username costs the same as a wrong password
	passOK := utils.VerifyPassword(h.passwordHash, req.Password)
	if !userOK || !passOK {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	tok, err := utils.NewAccessToken(h.secret, h.username, utils.RoleAdmin, h.ttl)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"access": tok})
}
