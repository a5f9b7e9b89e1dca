package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"logMirrorBot/internal/domain"
)

// OrderActuator is the order-entry front end driven by the execution engine.
// A single instance is an exclusive session: callers must not invoke it concurrently.
type OrderActuator interface {
	// EnsureReady opens or focuses the order-entry front end.
	// Errors should wrap ErrActuatorUnreachable.
	EnsureReady(ctx context.Context) error
	// SelectSide switches to the BUY or SELL entry mode.
	SelectSide(ctx context.Context, side domain.Side) error
	// SetInstrument enters the instrument code.
	SetInstrument(ctx context.Context, code string) error
	// SetPrice enters the limit price. A nil price means market intent and the field is left alone.
	SetPrice(ctx context.Context, price *decimal.Decimal) error
	// SetQuantity enters the order quantity.
	SetQuantity(ctx context.Context, qty int64) error
	// Submit sends the order.
	Submit(ctx context.Context) error
	// DismissConfirmation closes the prompt raised after submit.
	// Returns ErrNoConfirmationPrompt when no prompt appeared.
	DismissConfirmation(ctx context.Context) error
}
