// Package repository defines error types that are reused across the MySQL
// and MongoDB stores.  These sentinel values let services and handlers
// distinguish failure scenarios without knowing which engine produced them.
package repository

import (
	"errors"
	"strings"
)

// ErrNotFound is returned when the requested row or document does not exist.
// Handlers translate it into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a delete or update cannot proceed because of
// dependent state, such as deleting a data server that still has users.
// Handlers translate it into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrDuplicate signals a unique key violation (server URL, username, or a
// vocabulary key that already exists for the user).
var ErrDuplicate = errors.New("duplicate key")

// isMySQLDuplicate detects MySQL error 1062 (duplicate entry).
func isMySQLDuplicate(err error) bool {
	return err != nil && strings.Contains(err.Error(), "1062")
}
