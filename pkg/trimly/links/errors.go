package links

import "errors"

// Sentinel errors for the link service. Handlers translate these to HTTP
// status codes; anything else is a store failure and surfaces as a 500.
var (
	ErrInvalidURL   = errors.New("original URL must be an absolute http(s) URL")
	ErrInvalidAlias = errors.New("alias must contain only letters, numbers, hyphens, and underscores")
	ErrAliasTaken   = errors.New("alias already taken")
	ErrNotFound     = errors.New("link not found")
	ErrExpired      = errors.New("link has expired")
	ErrForbidden    = errors.New("not the link owner")
)
