package store

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidProfile = errors.New("invalid profile")
)
