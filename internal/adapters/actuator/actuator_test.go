package actuator

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"logMirrorBot/internal/domain"
	"logMirrorBot/internal/ports"
)

type mockLogger struct {
	infoMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func enterOrder(ctx context.Context, a ports.OrderActuator, side domain.Side, code string, price *decimal.Decimal, qty int64) error {
	steps := []func() error{
		func() error { return a.EnsureReady(ctx) },
		func() error { return a.SelectSide(ctx, side) },
		func() error { return a.SetInstrument(ctx, code) },
		func() error { return a.SetPrice(ctx, price) },
		func() error { return a.SetQuantity(ctx, qty) },
		func() error { return a.Submit(ctx) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func TestMemory_RecordsOrders(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	px := decimal.RequireFromString("12.5")

	require.NoError(t, enterOrder(ctx, m, domain.Buy, "600000", &px, 300))
	require.NoError(t, m.DismissConfirmation(ctx))
	require.NoError(t, enterOrder(ctx, m, domain.Sell, "000001", nil, 200))

	orders := m.Submitted()
	require.Len(t, orders, 2)
	assert.Equal(t, "600000", orders[0].InstrumentCode)
	assert.True(t, orders[0].Price.Equal(px))
	assert.Equal(t, int64(300), orders[0].Quantity)
	assert.Nil(t, orders[1].Price, "a new side selection starts a fresh form")

	calls := m.Calls()
	assert.Equal(t, Call{Step: StepSetPrice, Value: "12.50"}, calls[3])
	assert.Equal(t, Call{Step: StepSetPrice, Value: "market"}, calls[10])
	assert.Equal(t, 0, m.Overlaps())
}

func TestMemory_HookFailsStep(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Hook = func(ctx context.Context, step Step, draft Order) error {
		if step == StepSubmit && draft.InstrumentCode == "000002" {
			return ports.ErrSubmitRejected
		}
		return nil
	}

	err := enterOrder(ctx, m, domain.Buy, "000002", nil, 100)
	assert.ErrorIs(t, err, ports.ErrSubmitRejected)
	assert.Empty(t, m.Submitted())

	m.NoPrompt = true
	assert.ErrorIs(t, m.DismissConfirmation(ctx), ports.ErrNoConfirmationPrompt)
}

func TestDryRun(t *testing.T) {
	ctx := context.Background()
	logger := &mockLogger{}
	d := NewDryRun(logger)

	require.NoError(t, enterOrder(ctx, d, domain.Buy, "600000", nil, 100))
	assert.Equal(t, []string{"Dry-run order submitted"}, logger.infoMsgs)
	assert.ErrorIs(t, d.DismissConfirmation(ctx), ports.ErrNoConfirmationPrompt)
}

func TestDryRun_RejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	d := NewDryRun(&mockLogger{})

	assert.ErrorIs(t, d.SelectSide(ctx, domain.Side("HOLD")), ports.ErrInputRejected)
	assert.ErrorIs(t, d.SetInstrument(ctx, ""), ports.ErrInputRejected)
	assert.ErrorIs(t, d.SetQuantity(ctx, 0), ports.ErrInputRejected)
	assert.ErrorIs(t, d.SetQuantity(ctx, -100), ports.ErrInputRejected)
}

func TestTraced_RecordsSpans(t *testing.T) {
	ctx := context.Background()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = provider.Shutdown(ctx) }()

	mem := NewMemory()
	mem.Hook = func(ctx context.Context, step Step, draft Order) error {
		if step == StepSetQuantity {
			return errors.New("quantity field not found")
		}
		return nil
	}
	a := Traced(mem, provider.Tracer("test"))

	err := enterOrder(ctx, a, domain.Sell, "000001", nil, 200)
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 5)
	assert.Equal(t, "actuator.ensure_ready", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)

	last := spans[4]
	assert.Equal(t, "actuator.set_quantity", last.Name())
	assert.Equal(t, codes.Error, last.Status().Code)
	assert.Len(t, last.Events(), 1, "error is recorded as a span event")

	mem.NoPrompt = true
	mem.Hook = nil
	assert.ErrorIs(t, a.DismissConfirmation(ctx), ports.ErrNoConfirmationPrompt)
	dismiss := recorder.Ended()[5]
	assert.NotEqual(t, codes.Error, dismiss.Status().Code)
}
