package domain

import "errors"

// Sentinel errors shared across services, handlers and the gateway.
// Callers match on them with errors.Is to pick the user-facing behavior.
var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrEmptyMessage    = errors.New("message is empty")
	ErrMessageTooLong  = errors.New("message too long")
	ErrQuotaExceeded   = errors.New("daily message limit reached")
	ErrUploadQuota     = errors.New("daily upload limit reached")
	ErrTooManyRequests = errors.New("too many requests")
	ErrBusy            = errors.New("a response is already being generated")
	ErrConflict        = errors.New("conflicting update")
)
