package actuator

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"logMirrorBot/internal/domain"
	"logMirrorBot/internal/ports"
)

// tracedActuator wraps an OrderActuator with one span per interaction.
type tracedActuator struct {
	next   ports.OrderActuator
	tracer trace.Tracer
}

// Compile-time interface check
var _ ports.OrderActuator = (*tracedActuator)(nil)

// Traced wraps next so every call is recorded as a span on tracer.
func Traced(next ports.OrderActuator, tracer trace.Tracer) ports.OrderActuator {
	return &tracedActuator{next: next, tracer: tracer}
}

func (t *tracedActuator) run(ctx context.Context, step Step, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := t.tracer.Start(ctx, "actuator."+string(step), trace.WithAttributes(attrs...))
	defer span.End()

	err := fn(ctx)
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(err, ports.ErrNoConfirmationPrompt):
		// Not a failure: the order was already submitted.
		span.SetAttributes(attribute.Bool("actuator.prompt", false))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (t *tracedActuator) EnsureReady(ctx context.Context) error {
	return t.run(ctx, StepEnsureReady, t.next.EnsureReady)
}

func (t *tracedActuator) SelectSide(ctx context.Context, side domain.Side) error {
	return t.run(ctx, StepSelectSide, func(ctx context.Context) error {
		return t.next.SelectSide(ctx, side)
	}, attribute.String("order.side", string(side)))
}

func (t *tracedActuator) SetInstrument(ctx context.Context, code string) error {
	return t.run(ctx, StepSetInstrument, func(ctx context.Context) error {
		return t.next.SetInstrument(ctx, code)
	}, attribute.String("order.instrument", code))
}

func (t *tracedActuator) SetPrice(ctx context.Context, price *decimal.Decimal) error {
	value := "market"
	if price != nil {
		value = price.String()
	}
	return t.run(ctx, StepSetPrice, func(ctx context.Context) error {
		return t.next.SetPrice(ctx, price)
	}, attribute.String("order.price", value))
}

func (t *tracedActuator) SetQuantity(ctx context.Context, qty int64) error {
	return t.run(ctx, StepSetQuantity, func(ctx context.Context) error {
		return t.next.SetQuantity(ctx, qty)
	}, attribute.Int64("order.quantity", qty))
}

func (t *tracedActuator) Submit(ctx context.Context) error {
	return t.run(ctx, StepSubmit, t.next.Submit)
}

func (t *tracedActuator) DismissConfirmation(ctx context.Context) error {
	return t.run(ctx, StepDismiss, t.next.DismissConfirmation)
}
