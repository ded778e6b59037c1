package store

import "github.com/pkg/errors"

// ErrNotFound is returned when an update, delete or lookup matched no rows.
// Handlers map it to a 404.
var ErrNotFound = errors.New("not found")
