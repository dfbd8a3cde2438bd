package gemini

import "errors"

// Error definitions for the gemini package.
var (
	// ErrInvalidConfig is returned when the advisor is constructed without
	// an API key or model name.
	ErrInvalidConfig = errors.New("invalid gemini configuration")

	// ErrEmptyComponent is returned when no component name is given.
	ErrEmptyComponent = errors.New("component cannot be empty")

	// ErrInvalidResponse is returned when the model answers with something
	// that is not a usable license suggestion. It is never retried.
	ErrInvalidResponse = errors.New("invalid response from gemini")

	// ErrContentBlocked is returned when the safety filters blocked the answer.
	ErrContentBlocked = errors.New("content blocked by safety filters")

	// ErrTransientFailure is returned when every retry attempt failed.
	ErrTransientFailure = errors.New("transient gemini failure")
)
