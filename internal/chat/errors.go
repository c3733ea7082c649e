package chat

import "errors"

// ErrDependencyUnavailable means the financial data provider failed or returned nothing.
// The request is aborted and session state is left untouched.
var ErrDependencyUnavailable = errors.New("financial data unavailable")

// ValidationError is a client error with a message safe to show to the caller.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(msg string) error { return &ValidationError{Message: msg} }

// Messages returned to clients.
const (
	MsgEmptyMessage      = "Message cannot be empty."
	MsgMissingPermission = "Missing category or access status."
	MsgUnknownPreset     = "Unknown privacy preset."
	MsgDependencyFailure = "Sorry, I am unable to access your financial data at the moment."
)
