package core

import "github.com/pkg/errors"

var (
	// ErrInvalidRole rejects prompt operations for roles outside the four
	// recognized prompt roles.
	ErrInvalidRole = errors.New("invalid role")

	// ErrInvalidSession rejects malformed session ids before they reach a
	// query.
	ErrInvalidSession = errors.New("invalid session id")

	// ErrLLMUnavailable marks a chat turn where the model call failed. The
	// engagement row is still recorded.
	ErrLLMUnavailable = errors.New("llm unavailable")
)
