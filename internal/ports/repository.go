package ports

import (
	"context"
	"time"

	"logMirrorBot/internal/domain"
)

// StateRepository persists the pipeline state between cycles and restarts.
// All state is keyed by the polling query id.
type StateRepository interface {
	// LoadState returns the stored state, or an empty state when nothing was saved yet.
	LoadState(ctx context.Context, queryID string) (domain.SeenState, error)
	// SaveState stores the last payload (when non-nil) and adds every seen identity.
	// Seen identities are never removed.
	SaveState(ctx context.Context, queryID string, state domain.SeenState) error
	// MarkSeen adds identities to the seen set.
	MarkSeen(ctx context.Context, queryID string, ids ...domain.Identity) error
}

// ExecutionRepository is the append-only audit log of execution records.
type ExecutionRepository interface {
	// AppendExecution stores a new record. Records are never updated.
	AppendExecution(ctx context.Context, queryID string, rec domain.ExecutionRecord) error
	// FindByQuery returns the most recent records for queryID in attempt order, up to limit.
	FindByQuery(ctx context.Context, queryID string, limit int) ([]*domain.ExecutionRecord, error)
	// CountByStatusOn counts records with status attempted on the calendar day of day.
	CountByStatusOn(ctx context.Context, queryID string, status domain.ExecutionStatus, day time.Time) (int, error)
}
