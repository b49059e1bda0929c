package store

import "errors"

// ErrNotFound is returned when a requested row does not exist. Callers match
// it with errors.Is to map storage misses onto API 404s.
var ErrNotFound = errors.New("not found")
