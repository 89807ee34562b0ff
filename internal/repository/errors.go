// Package repository contains data access logic separated from HTTP handlers.
// This file defines error values and helpers shared across repositories.
// Sentinel errors let handlers map failures onto specific HTTP statuses
// without inspecting SQL error strings themselves.
package repository

import (
	"errors"
	"strings"
)

// ErrConflict is returned when an insert or update collides with existing
// state, such as creating a second service with the same name. Handlers
// should translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// isDuplicateKey reports whether err is a MySQL duplicate-entry violation
// (error number 1062). The database-level unique constraints are what make
// concurrent duplicate creates safe: both requests race to the index and
// exactly one insert wins.
func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "1062")
}
