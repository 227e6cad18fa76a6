package auth

import "errors"

var (
	// ErrUnauthorized represents missing or invalid authentication tokens.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden signals an authenticated principal acting outside its scope.
	ErrForbidden = errors.New("forbidden")
)
