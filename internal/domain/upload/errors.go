package upload

import "errors"

var (
	ErrInvalidCategory = errors.New("invalid upload category")
	ErrNotConfigured   = errors.New("file storage is not configured")
)
