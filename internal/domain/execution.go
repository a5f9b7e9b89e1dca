package domain

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionRecord is the immutable outcome of dispatching one signal.
type ExecutionRecord struct {
	ID          uuid.UUID
	Signal      TradeSignal
	Status      ExecutionStatus
	FinalState  ExecutionState // CONFIRMED or FAILED
	Message     string
	AttemptedAt time.Time
}

// Succeeded reports whether the signal reached the actuator and was confirmed.
func (r ExecutionRecord) Succeeded() bool {
	return r.Status == StatusSuccess
}
