package service

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks input rejected before any mutation.
	ErrValidation = errors.New("validation failed")
	// ErrQuotaExceeded is matched by every *QuotaError.
	ErrQuotaExceeded = errors.New("word limit exceeded")
	// ErrInvalidCredentials is returned by Authenticate on any mismatch.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSubscriptionExpired blocks vocabulary access until renewal.
	ErrSubscriptionExpired = errors.New("subscription expired")
)

// QuotaError carries the numbers a client needs to explain a rejection.
type QuotaError struct {
	Current   int
	Limit     int
	Requested int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("word limit exceeded: current=%d limit=%d requested=%d", e.Current, e.Limit, e.Requested)
}

func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
