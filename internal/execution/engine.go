// Package execution drives an OrderActuator, one signal at a time.
package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"logMirrorBot/internal/domain"
	"logMirrorBot/internal/ports"
)

// Config holds configuration for the Engine.
type Config struct {
	Actuator            ports.OrderActuator
	Logger              ports.Logger
	MinSignalDelay      time.Duration // minimum gap between two dispatches
	BoundarySettleDelay time.Duration // extra wait before each dispatch near a session boundary
	ConfirmWindow       time.Duration // how long to wait for the post-submit prompt; 0 waits on the actuator alone
	Now                 func() time.Time
}

// Options tune a single ExecuteAll call.
type Options struct {
	SensitiveBoundary bool
	// OnRecord is called with every terminal record, in order, before the next signal starts.
	OnRecord func(domain.ExecutionRecord)
}

// Report summarises an ExecuteAll call.
type Report struct {
	Records     []domain.ExecutionRecord
	Succeeded   int
	Failed      int
	Interrupted bool // the context was cancelled before every signal was dispatched
}

// Engine owns the actuator session. Dispatch is strictly sequential.
type Engine struct {
	actuator      ports.OrderActuator
	logger        ports.Logger
	minDelay      time.Duration
	settleDelay   time.Duration
	confirmWindow time.Duration
	now           func() time.Time

	mu           sync.Mutex // serialises actuator use
	lastDispatch time.Time
}

// New creates an execution engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Actuator == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("actuator and logger are required for execution engine")
	}
	if cfg.MinSignalDelay < 0 || cfg.BoundarySettleDelay < 0 || cfg.ConfirmWindow < 0 {
		return nil, fmt.Errorf("execution delays cannot be negative")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		actuator:      cfg.Actuator,
		logger:        cfg.Logger,
		minDelay:      cfg.MinSignalDelay,
		settleDelay:   cfg.BoundarySettleDelay,
		confirmWindow: cfg.ConfirmWindow,
		now:           cfg.Now,
	}, nil
}

// ExecuteAll dispatches signals in order and returns one record per dispatched signal.
// Cancelling ctx stops the batch before the next signal; the signal in flight
// always reaches CONFIRMED or FAILED.
func (e *Engine) ExecuteAll(ctx context.Context, signals []domain.TradeSignal, opts Options) Report {
	op := "ExecuteAll"
	report := Report{Records: make([]domain.ExecutionRecord, 0, len(signals))}

	for i, sig := range signals {
		if err := e.pace(ctx, opts.SensitiveBoundary); err != nil {
			report.Interrupted = true
			e.logger.Warn(ctx, op+": Stopped before dispatching remaining signals", map[string]interface{}{
				"remaining": len(signals) - i,
				"reason":    err.Error(),
			})
			break
		}

		rec := e.ExecuteOne(ctx, sig)
		report.Records = append(report.Records, rec)
		if rec.Succeeded() {
			report.Succeeded++
		} else {
			report.Failed++
		}
		if opts.OnRecord != nil {
			opts.OnRecord(rec)
		}
	}

	e.logger.Info(ctx, op+": Batch finished", map[string]interface{}{
		"success":     fmt.Sprintf("%d/%d", report.Succeeded, len(signals)),
		"failed":      report.Failed,
		"interrupted": report.Interrupted,
	})
	return report
}

// pace waits out the minimum inter-signal delay and, near a session boundary,
// the extra settle delay.
func (e *Engine) pace(ctx context.Context, sensitive bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	last := e.lastDispatch
	e.mu.Unlock()

	wait := time.Duration(0)
	if !last.IsZero() {
		wait = e.minDelay - e.now().Sub(last)
	}
	if sensitive {
		if wait < 0 {
			wait = 0
		}
		wait += e.settleDelay
	}
	return sleep(ctx, wait)
}

// ExecuteOne drives one signal through PENDING → ACTUATOR_READY → DISPATCHED → CONFIRMED|FAILED.
// It is not interrupted by ctx cancellation.
func (e *Engine) ExecuteOne(ctx context.Context, sig domain.TradeSignal) domain.ExecutionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.lastDispatch = e.now() }()

	return e.execute(context.WithoutCancel(ctx), sig)
}

func (e *Engine) execute(ctx context.Context, sig domain.TradeSignal) domain.ExecutionRecord {
	op := "ExecuteOne"
	rec := domain.ExecutionRecord{ID: uuid.New(), Signal: sig, AttemptedAt: e.now()}
	fields := map[string]interface{}{
		"recordID":   rec.ID.String(),
		"side":       sig.Side,
		"instrument": sig.InstrumentCode,
		"price":      sig.Price.StringFixed(2),
		"quantity":   sig.Quantity,
		"signalTime": sig.Timestamp.Format(domain.TimestampLayout),
	}
	state := domain.StatePending

	transition := func(to domain.ExecutionState) {
		e.logger.Debug(ctx, op+": State transition", merge(fields, map[string]interface{}{"from": state, "to": to}))
		state = to
	}
	fail := func(err error, msg string) domain.ExecutionRecord {
		transition(domain.StateFailed)
		rec.Status = domain.StatusFailed
		rec.FinalState = domain.StateFailed
		rec.Message = msg
		e.logger.Error(ctx, err, op+": Signal execution failed", merge(fields, map[string]interface{}{"message": msg}))
		return rec
	}

	if err := e.actuator.EnsureReady(ctx); err != nil {
		return fail(err, fmt.Sprintf("actuator unreachable: %v", err))
	}
	transition(domain.StateActuatorReady)

	var price *decimal.Decimal
	if !sig.IsMarket() {
		p := sig.Price
		price = &p
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"select side", func() error { return e.actuator.SelectSide(ctx, sig.Side) }},
		{"set instrument", func() error { return e.actuator.SetInstrument(ctx, sig.InstrumentCode) }},
		{"set price", func() error { return e.actuator.SetPrice(ctx, price) }},
		{"set quantity", func() error { return e.actuator.SetQuantity(ctx, sig.Quantity) }},
		{"submit", func() error { return e.actuator.Submit(ctx) }},
	}
	for _, s := range steps {
		if err := s.run(); err != nil {
			return fail(err, fmt.Sprintf("%s failed: %v", s.name, err))
		}
	}
	transition(domain.StateDispatched)

	rec.Message = e.confirm(ctx, fields)
	transition(domain.StateConfirmed)
	rec.Status = domain.StatusSuccess
	rec.FinalState = domain.StateConfirmed
	e.logger.Info(ctx, op+": Signal executed", merge(fields, map[string]interface{}{"message": rec.Message}))
	return rec
}

// confirm dismisses the post-submit prompt. Once submitted the order counts as
// confirmed whatever happens here.
func (e *Engine) confirm(ctx context.Context, fields map[string]interface{}) string {
	op := "confirm"
	if e.confirmWindow > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.confirmWindow)
		defer cancel()
	}

	err := e.actuator.DismissConfirmation(ctx)
	switch {
	case err == nil:
		return "confirmed"
	case errors.Is(err, ports.ErrNoConfirmationPrompt), errors.Is(err, context.DeadlineExceeded):
		return "confirmed (no confirmation prompt)"
	default:
		e.logger.Warn(ctx, op+": Dismissing confirmation prompt failed after submit", merge(fields, map[string]interface{}{"error": err.Error()}))
		return fmt.Sprintf("confirmed; dismissal error: %v", err)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func merge(base, extra map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
