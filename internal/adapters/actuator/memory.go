// Package actuator holds OrderActuator implementations that do not drive a real
// order-entry front end: an in-memory recorder, a logging dry run and a
// tracing decorator.
package actuator

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"logMirrorBot/internal/domain"
	"logMirrorBot/internal/ports"
)

// Step names one actuator interaction.
type Step string

const (
	StepEnsureReady   Step = "ensure_ready"
	StepSelectSide    Step = "select_side"
	StepSetInstrument Step = "set_instrument"
	StepSetPrice      Step = "set_price"
	StepSetQuantity   Step = "set_quantity"
	StepSubmit        Step = "submit"
	StepDismiss       Step = "dismiss_confirmation"
)

// Order is the order form as filled in so far.
type Order struct {
	Side           domain.Side
	InstrumentCode string
	Price          *decimal.Decimal // nil for market intent
	Quantity       int64
}

// Call is one recorded interaction.
type Call struct {
	Step  Step
	Value string
}

// Memory is a deterministic in-memory actuator. It records every call and
// every submitted order. Hook, when set, runs before each step and its error
// is returned from that step.
type Memory struct {
	Hook     func(ctx context.Context, step Step, draft Order) error
	NoPrompt bool // DismissConfirmation reports ErrNoConfirmationPrompt

	mu        sync.Mutex
	calls     []Call
	draft     Order
	submitted []Order
	active    atomic.Int32
	overlaps  atomic.Int32
}

var _ ports.OrderActuator = (*Memory)(nil)

// NewMemory creates an empty in-memory actuator.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) step(ctx context.Context, step Step, value string, apply func(*Order)) error {
	if m.active.Add(1) > 1 {
		m.overlaps.Add(1)
	}
	defer m.active.Add(-1)

	m.mu.Lock()
	m.calls = append(m.calls, Call{Step: step, Value: value})
	draft := m.draft
	hook := m.Hook
	m.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, step, draft); err != nil {
			return err
		}
	}

	if apply != nil {
		m.mu.Lock()
		apply(&m.draft)
		m.mu.Unlock()
	}
	return nil
}

func (m *Memory) EnsureReady(ctx context.Context) error {
	return m.step(ctx, StepEnsureReady, "", nil)
}

// SelectSide starts a new order form.
func (m *Memory) SelectSide(ctx context.Context, side domain.Side) error {
	return m.step(ctx, StepSelectSide, string(side), func(o *Order) { *o = Order{Side: side} })
}

func (m *Memory) SetInstrument(ctx context.Context, code string) error {
	return m.step(ctx, StepSetInstrument, code, func(o *Order) { o.InstrumentCode = code })
}

func (m *Memory) SetPrice(ctx context.Context, price *decimal.Decimal) error {
	value := "market"
	if price != nil {
		value = price.StringFixed(2)
	}
	return m.step(ctx, StepSetPrice, value, func(o *Order) {
		if price != nil {
			p := *price
			o.Price = &p
		}
	})
}

func (m *Memory) SetQuantity(ctx context.Context, qty int64) error {
	return m.step(ctx, StepSetQuantity, formatQty(qty), func(o *Order) { o.Quantity = qty })
}

func (m *Memory) Submit(ctx context.Context) error {
	return m.step(ctx, StepSubmit, "", func(o *Order) { m.submitted = append(m.submitted, *o) })
}

func (m *Memory) DismissConfirmation(ctx context.Context) error {
	if err := m.step(ctx, StepDismiss, "", nil); err != nil {
		return err
	}
	if m.NoPrompt {
		return ports.ErrNoConfirmationPrompt
	}
	return nil
}

// Calls returns a copy of the recorded interactions.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallCount returns how many interactions were recorded.
func (m *Memory) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Submitted returns a copy of the orders that passed Submit.
func (m *Memory) Submitted() []Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Order(nil), m.submitted...)
}

// Overlaps counts calls that started while another call was still running.
func (m *Memory) Overlaps() int {
	return int(m.overlaps.Load())
}
