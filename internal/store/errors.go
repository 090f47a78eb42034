package store

import (
	domainerrors "github.com/listenupapp/shelfcache/internal/errors"
)

// Sentinel errors. They match domainerrors.ErrNotFound and friends with errors.Is.
var (
	ErrShelfNotFound  = domainerrors.NotFound("shelf not found")
	ErrTagNotFound    = domainerrors.NotFound("tag not found")
	ErrOrderMismatch  = domainerrors.Conflictf("order does not match the shelf's items")
	ErrOwnerImmutable = domainerrors.Conflictf("shelf owner cannot change")
	ErrInvalidCursor  = domainerrors.Validation("invalid cursor")
)
