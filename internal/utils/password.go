package utils

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 8

// ErrWeakPassword is returned for passwords bcrypt cannot or should not hash.
var ErrWeakPassword = errors.New("password must be between 8 and 72 bytes")

// HashPassword bcrypts plain at cost, clamped to bcrypt's accepted range.
// The hash is what travels in sync-user pushes; plain never leaves here.
func HashPassword(plain string, cost int) (string, error) {
	if len(plain) < MinPasswordLength || len(plain) > 72 {
		return "", ErrWeakPassword
	}
	cost = min(max(cost, bcrypt.MinCost), bcrypt.MaxCost)
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword reports whether plain matches hash.  An empty hash never
// matches.
func VerifyPassword(hash, plain string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
