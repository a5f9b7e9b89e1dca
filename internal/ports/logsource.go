package ports

import (
	"context"

	"logMirrorBot/internal/domain"
)

// LogSource fetches the full current log of a tracked backtest or live session.
type LogSource interface {
	// Fetch returns the raw log payload for queryID.
	// Errors wrap ErrSourceUnavailable or ErrAuthenticationFailed.
	Fetch(ctx context.Context, queryID string) (*domain.RawLogPayload, error)
}

// SessionChecker verifies that the log source session is still authenticated.
// It is run on its own cadence and never touches the actuator.
type SessionChecker interface {
	CheckSession(ctx context.Context) error
}
