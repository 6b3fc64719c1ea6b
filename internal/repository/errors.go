// Package repository holds the mock POS server's data: an in-memory store
// for menu, tables and orders, and the waiter directory, in memory or in
// MySQL.  The sentinel errors below let handlers pick the HTTP status.
package repository

import "errors"

// ErrNotFound is returned when a waiter, order, table or menu item does not
// exist.  Handlers translate it into 404.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an update carries a stale order version.
// Handlers translate it into 409.
var ErrConflict = errors.New("conflict")

// ErrInvalid is returned for input the store refuses: unknown or
// unavailable menu items, non-positive quantities, empty item lists, bad
// status values.  Handlers translate it into 400.
var ErrInvalid = errors.New("invalid input")
