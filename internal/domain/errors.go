package domain

import "errors"

// ErrNotFound is returned when an addressed job, record or analysis does not exist.
var ErrNotFound = errors.New("not found")
