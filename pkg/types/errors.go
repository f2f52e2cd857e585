package types

import "errors"

// Entity and precondition errors.
var (
	ErrNotFound          = errors.New("entity not found")
	ErrOwnerRequired     = errors.New("owner id is required")
	ErrTokenRequired     = errors.New("auth token is required")
	ErrInvalidMode       = errors.New("invalid form mode")
	ErrInvalidPayload    = errors.New("payload must be a JSON object")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInvalidTransition = errors.New("invalid queue status transition")
	ErrInvalidResponse   = errors.New("invalid create response")
)
