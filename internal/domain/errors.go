package domain

import "errors"

var (
	ErrAuthentication = errors.New("authentication error")
	ErrValidation     = errors.New("validation error")
	ErrConflict       = errors.New("conflict")
	ErrNotFound       = errors.New("not found")
	ErrStorage        = errors.New("storage error")
	ErrForbidden      = errors.New("forbidden")
)
