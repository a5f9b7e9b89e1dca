package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Log source errors
	ErrSourceUnavailable    = errors.New("log source is unavailable")
	ErrAuthenticationFailed = errors.New("log source authentication failed (check session cookies)")
	ErrInvalidPayload       = errors.New("log payload could not be decoded")

	// Actuator errors
	ErrActuatorUnreachable  = errors.New("order actuator is unreachable")
	ErrInputRejected        = errors.New("order actuator rejected an input value")
	ErrSubmitRejected       = errors.New("order actuator rejected the submit action")
	ErrNoConfirmationPrompt = errors.New("no confirmation prompt was raised")

	// Database Specific Errors
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrDBConnection   = errors.New("database connection error")
	ErrQueryFailed    = errors.New("database query failed")
)
