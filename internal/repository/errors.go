package repository

import "errors"

// ErrNotFound indicates no record exists under the requested username.
var ErrNotFound = errors.New("repository: not found")
