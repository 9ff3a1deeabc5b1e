package persistence

import "errors"

// ErrNotFound is returned by stores when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when an insert violates a uniqueness
// constraint. Domain repositories translate it into their own
// conflict errors.
var ErrDuplicate = errors.New("duplicate record")
