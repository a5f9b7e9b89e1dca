package actuator

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"

	"logMirrorBot/internal/domain"
	"logMirrorBot/internal/ports"
)

// DryRun logs every order it would have entered and never raises a confirmation prompt.
type DryRun struct {
	logger ports.Logger

	mu    sync.Mutex
	draft Order
}

var _ ports.OrderActuator = (*DryRun)(nil)

// NewDryRun creates a logging-only actuator.
func NewDryRun(logger ports.Logger) *DryRun {
	return &DryRun{logger: logger}
}

func (d *DryRun) EnsureReady(ctx context.Context) error {
	d.logger.Debug(ctx, "Dry-run actuator ready")
	return nil
}

func (d *DryRun) SelectSide(ctx context.Context, side domain.Side) error {
	if !side.Valid() {
		return fmt.Errorf("%w: side %q", ports.ErrInputRejected, side)
	}
	d.mu.Lock()
	d.draft = Order{Side: side}
	d.mu.Unlock()
	return nil
}

func (d *DryRun) SetInstrument(ctx context.Context, code string) error {
	if code == "" {
		return fmt.Errorf("%w: empty instrument code", ports.ErrInputRejected)
	}
	d.mu.Lock()
	d.draft.InstrumentCode = code
	d.mu.Unlock()
	return nil
}

func (d *DryRun) SetPrice(ctx context.Context, price *decimal.Decimal) error {
	d.mu.Lock()
	d.draft.Price = price
	d.mu.Unlock()
	return nil
}

func (d *DryRun) SetQuantity(ctx context.Context, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("%w: quantity %s", ports.ErrInputRejected, formatQty(qty))
	}
	d.mu.Lock()
	d.draft.Quantity = qty
	d.mu.Unlock()
	return nil
}

func (d *DryRun) Submit(ctx context.Context) error {
	d.mu.Lock()
	o := d.draft
	d.mu.Unlock()

	price := "market"
	if o.Price != nil {
		price = o.Price.StringFixed(2)
	}
	d.logger.Info(ctx, "Dry-run order submitted", map[string]interface{}{
		"side":       o.Side,
		"instrument": o.InstrumentCode,
		"price":      price,
		"quantity":   o.Quantity,
	})
	return nil
}

func (d *DryRun) DismissConfirmation(ctx context.Context) error {
	return ports.ErrNoConfirmationPrompt
}

func formatQty(qty int64) string {
	return strconv.FormatInt(qty, 10)
}
