package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vocabulary-sync/internal/repository"
	"github.com/iliyamo/vocabulary-sync/internal/service"
)

func invalid(msg string) error { return fmt.Errorf("%w: %s", service.ErrValidation, msg) }

// fail writes the response for err.  Unexpected errors go to echo's error
// handler with a generic message, keeping the cause for the request log.
func fail(c echo.Context, err error) error {
	var qe *service.QuotaError
	switch {
	case errors.As(err, &qe):
		return c.JSON(http.StatusForbidden, echo.Map{
			"error":     "word limit exceeded",
			"current":   qe.Current,
			"limit":     qe.Limit,
			"requested": qe.Requested,
		})
	case errors.Is(err, service.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	case errors.Is(err, service.ErrSubscriptionExpired), errors.Is(err, service.ErrSubscriptionInactive):
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, repository.ErrDuplicate):
		return c.JSON(http.StatusConflict, echo.Map{"error": "already exists"})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "resource is in use"})
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
}

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// page reads limit and offset query parameters.
func page(c echo.Context) (int64, int64, error) {
	limit, offset := int64(defaultPageSize), int64(0)
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 1 {
			return 0, 0, invalid("limit must be a positive integer")
		}
		limit = min(n, maxPageSize)
	}
	if s := c.QueryParam("offset"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 0 {
			return 0, 0, invalid("offset must not be negative")
		}
		offset = n
	}
	return limit, offset, nil
}
