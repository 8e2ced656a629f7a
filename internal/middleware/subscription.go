package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vocabulary-sync/internal/model"
	"github.com/iliyamo/vocabulary-sync/internal/repository"
)

// UserLoader resolves the token subject to a user with its subscription
// status brought up to date.
type UserLoader interface {
	Current(ctx context.Context, username string) (*model.User, error)
}

// LoadUser places the authenticated user under CtxCurrentUser.  When
// requireActive is set, an expired subscription ends the request with 403;
// trial, active and localhost users pass.
func LoadUser(users UserLoader, requireActive bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sub := Subject(c)
			if sub == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
			}
			u, err := users.Current(c.Request().Context(), sub)
			if errors.Is(err, repository.ErrNotFound) {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unknown user"})
			}
			if err != nil {
				return err
			}
			if requireActive && u.SubscriptionStatus == model.SubscriptionExpired {
				return c.JSON(http.StatusForbidden, echo.Map{
					"error":                "subscription expired",
					"subscriptionStatus":   u.SubscriptionStatus,
					"subscriptionExpireAt": u.SubscriptionExpireAt,
				})
			}
			c.Set(CtxCurrentUser, u)
			return next(c)
		}
	}
}
