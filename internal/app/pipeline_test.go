package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logMirrorBot/internal/adapters/actuator"
	"logMirrorBot/internal/domain"
	"logMirrorBot/internal/execution"
	"logMirrorBot/internal/ports"
	"logMirrorBot/internal/signals"
)

// Mock implementations
type mockLogger struct {
	mu        sync.Mutex
	debugMsgs []string
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

func (m *mockLogger) errors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.errorMsgs...)
}

func (m *mockLogger) debugs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.debugMsgs...)
}

// mockSource serves a fixed body or error.
type mockSource struct {
	mu    sync.Mutex
	body  string
	err   error
	calls int
}

func (m *mockSource) Fetch(ctx context.Context, queryID string) (*domain.RawLogPayload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &domain.RawLogPayload{QueryID: queryID, Body: []byte(m.body), FetchedAt: time.Now()}, nil
}

func (m *mockSource) set(body string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.body, m.err = body, err
}

func (m *mockSource) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockStore is an in-memory StateRepository and ExecutionRepository.
type mockStore struct {
	mu      sync.Mutex
	payload map[string]*domain.RawLogPayload
	seen    map[string]domain.IdentitySet
	records map[string][]domain.ExecutionRecord
	saves   int
}

func newMockStore() *mockStore {
	return &mockStore{
		payload: map[string]*domain.RawLogPayload{},
		seen:    map[string]domain.IdentitySet{},
		records: map[string][]domain.ExecutionRecord{},
	}
}

func (m *mockStore) LoadState(ctx context.Context, queryID string) (domain.SeenState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.SeenState{LastPayload: m.payload[queryID], Seen: m.seen[queryID].Clone()}, nil
}

func (m *mockStore) SaveState(ctx context.Context, queryID string, state domain.SeenState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if state.LastPayload != nil {
		m.payload[queryID] = state.LastPayload
	}
	m.addSeen(queryID, state.Seen)
	return nil
}

func (m *mockStore) MarkSeen(ctx context.Context, queryID string, ids ...domain.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addSeen(queryID, domain.NewIdentitySet(ids...))
	return nil
}

func (m *mockStore) addSeen(queryID string, ids domain.IdentitySet) {
	if m.seen[queryID] == nil {
		m.seen[queryID] = make(domain.IdentitySet)
	}
	for id := range ids {
		m.seen[queryID][id] = struct{}{}
	}
}

func (m *mockStore) AppendExecution(ctx context.Context, queryID string, rec domain.ExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[queryID] = append(m.records[queryID], rec)
	return nil
}

func (m *mockStore) FindByQuery(ctx context.Context, queryID string, limit int) ([]*domain.ExecutionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.records[queryID]
	if limit > 0 && len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	out := make([]*domain.ExecutionRecord, 0, len(recs))
	for i := range recs {
		r := recs[i]
		out = append(out, &r)
	}
	return out, nil
}

func (m *mockStore) CountByStatusOn(ctx context.Context, queryID string, status domain.ExecutionStatus, day time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	y, mo, d := day.Date()
	for _, r := range m.records[queryID] {
		ry, rm, rd := r.AttemptedAt.In(day.Location()).Date()
		if r.Status == status && ry == y && rm == mo && rd == d {
			n++
		}
	}
	return n, nil
}

func (m *mockStore) recordsFor(queryID string) []domain.ExecutionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ExecutionRecord(nil), m.records[queryID]...)
}

const testQueryID = "bt-1"

var (
	lineBuy600000 = "2024-03-08 09:31:00 - INFO  - 订单已委托: security=600000.XSHG, _limit_price=12.48, action=open, side=long"
	lineLot600000 = "2024-03-08 09:31:00 - WARNING - 600000.XSHG order size is not a multiple of 100, lot adjusted to 300"
	lineSlip      = "2024-03-08 09:31:00 - INFO  - 600000.XSHG adjusted price after slippage: 12.50"
	lineSell00001 = "2024-03-08 10:15:02 - INFO  - trade: security=000001.XSHE, action=close, trade price:15.30, amount:200"
	lineSell00002 = "2024-03-08 10:20:00 - INFO  - trade: security=000002.XSHE, action=close, trade price:8.10, amount:100"
	lineNoise     = "2024-03-08 10:30:00 - INFO  - portfolio value: 1000000"
)

func body(lines ...string) string {
	return strings.Join(lines, "\n")
}

type pipelineFixture struct {
	pipeline *Pipeline
	source   *mockSource
	store    *mockStore
	act      *actuator.Memory
	logger   *mockLogger
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)
	now := func() time.Time { return time.Date(2024, 3, 8, 11, 0, 0, 0, loc) }

	logger := &mockLogger{}
	act := actuator.NewMemory()
	engine, err := execution.New(execution.Config{Actuator: act, Logger: logger, Now: now})
	require.NoError(t, err)
	extractor, err := signals.New(signals.Config{Location: loc, CodeLength: 6, Logger: logger})
	require.NoError(t, err)

	source := &mockSource{}
	store := newMockStore()
	p, err := NewPipeline(PipelineConfig{
		QueryID:    testQueryID,
		Source:     source,
		Extractor:  extractor,
		Engine:     engine,
		States:     store,
		Executions: store,
		Location:   loc,
		Logger:     logger,
		Now:        now,
	})
	require.NoError(t, err)
	return &pipelineFixture{pipeline: p, source: source, store: store, act: act, logger: logger}
}

var open = Gates{Tradable: true}

func TestNewPipeline_Validation(t *testing.T) {
	_, err := NewPipeline(PipelineConfig{})
	assert.Error(t, err)

	f := newPipelineFixture(t)
	cfg := PipelineConfig{
		Source:     f.source,
		Extractor:  f.pipeline.extractor,
		Engine:     f.pipeline.engine,
		States:     f.store,
		Executions: f.store,
		Logger:     f.logger,
	}
	_, err = NewPipeline(cfg)
	assert.Error(t, err, "query id is required")
}

func TestRunCycle_Closed(t *testing.T) {
	f := newPipelineFixture(t)
	f.source.set(body(lineSell00001), nil)

	state := domain.NewSeenState()
	next, report := f.pipeline.RunCycle(context.Background(), state, Gates{Tradable: false})

	assert.Equal(t, OutcomeClosed, report.Outcome)
	assert.Equal(t, 0, f.source.callCount())
	assert.Equal(t, 0, f.act.CallCount())
	assert.Equal(t, state, next)
}

func TestRunCycle_FetchFailureSkipsCycle(t *testing.T) {
	f := newPipelineFixture(t)
	f.source.set("", ports.ErrAuthenticationFailed)

	state := domain.NewSeenState()
	next, report := f.pipeline.RunCycle(context.Background(), state, open)

	assert.Equal(t, OutcomeFetchFailed, report.Outcome)
	assert.ErrorIs(t, report.Err, ports.ErrAuthenticationFailed)
	assert.Equal(t, 0, f.act.CallCount())
	assert.Nil(t, next.LastPayload)
	assert.Equal(t, 0, f.store.saves)
}

func TestRunCycle_InvalidPayload(t *testing.T) {
	f := newPipelineFixture(t)
	f.source.set(`{"log": `, nil)

	next, report := f.pipeline.RunCycle(context.Background(), domain.NewSeenState(), open)

	assert.Equal(t, OutcomeInvalidPayload, report.Outcome)
	assert.ErrorIs(t, report.Err, ports.ErrInvalidPayload)
	assert.Nil(t, next.LastPayload)
	assert.Equal(t, 0, f.act.CallCount())
}

func TestRunCycle_ProcessesAndAdvancesBaseline(t *testing.T) {
	f := newPipelineFixture(t)
	f.source.set(body(lineBuy600000, lineLot600000, lineSlip, lineNoise, lineSell00001), nil)

	next, report := f.pipeline.RunCycle(context.Background(), domain.NewSeenState(), open)

	assert.Equal(t, OutcomeProcessed, report.Outcome)
	assert.Equal(t, 2, report.Extracted)
	assert.Equal(t, 1, report.Noise)
	assert.Equal(t, 2, report.Execution.Succeeded)
	require.NotNil(t, next.LastPayload)
	assert.Len(t, next.Seen, 2)

	submitted := f.act.Submitted()
	require.Len(t, submitted, 2)
	assert.Equal(t, domain.Buy, submitted[0].Side)
	assert.Equal(t, "600000", submitted[0].InstrumentCode)
	assert.Equal(t, int64(300), submitted[0].Quantity)
	assert.Equal(t, domain.Sell, submitted[1].Side)

	recs := f.store.recordsFor(testQueryID)
	require.Len(t, recs, 2)
	assert.Equal(t, "600000", recs[0].Signal.InstrumentCode)
	assert.Equal(t, "000001", recs[1].Signal.InstrumentCode)

	stored, err := f.store.LoadState(context.Background(), testQueryID)
	require.NoError(t, err)
	assert.Len(t, stored.Seen, 2)
	assert.NotNil(t, stored.LastPayload)

	// Same payload again: unchanged, no fetch side effects.
	again, report := f.pipeline.RunCycle(context.Background(), next, open)
	assert.Equal(t, OutcomeUnchanged, report.Outcome)
	assert.Equal(t, 2, len(f.act.Submitted()))
	assert.Equal(t, next.Seen, again.Seen)
}

// Re-running extraction over an already processed log dispatches nothing.
func TestRunCycle_Idempotent(t *testing.T) {
	f := newPipelineFixture(t)
	f.source.set(body(lineSell00001, lineSell00002), nil)

	state, report := f.pipeline.RunCycle(context.Background(), domain.NewSeenState(), open)
	require.Equal(t, 2, report.Execution.Succeeded)
	callsAfterFirst := f.act.CallCount()

	// Log grew by a noise line: the batch is re-extracted but every signal is seen.
	f.source.set(body(lineSell00001, lineSell00002, lineNoise), nil)
	_, report = f.pipeline.RunCycle(context.Background(), state, open)
	assert.Equal(t, OutcomeProcessed, report.Outcome)
	assert.Equal(t, 2, report.Filtered)
	assert.Empty(t, report.Execution.Records)
	assert.Equal(t, callsAfterFirst, f.act.CallCount())

	// Restart: the persisted state drives the same outcome even with no diff baseline.
	restored, err := f.store.LoadState(context.Background(), testQueryID)
	require.NoError(t, err)
	restored.LastPayload = nil
	_, report = f.pipeline.RunCycle(context.Background(), restored, open)
	assert.Equal(t, 2, report.Filtered)
	assert.Equal(t, callsAfterFirst, f.act.CallCount())

	assert.Len(t, f.store.recordsFor(testQueryID), 2, "one record per distinct identity")
}

// The same identity twice in one payload is dispatched once and the drop is logged.
func TestRunCycle_RepeatedSignalLogged(t *testing.T) {
	f := newPipelineFixture(t)
	f.source.set(body(lineSell00001, lineSell00001, lineSell00002), nil)

	_, report := f.pipeline.RunCycle(context.Background(), domain.NewSeenState(), open)

	assert.Equal(t, OutcomeProcessed, report.Outcome)
	assert.Equal(t, 3, report.Extracted)
	assert.Equal(t, 1, report.Filtered)
	assert.Equal(t, 1, report.Repeated)
	assert.Equal(t, 2, report.Execution.Succeeded)
	assert.Len(t, f.act.Submitted(), 2)

	repeated := 0
	for _, msg := range f.logger.debugs() {
		if strings.HasSuffix(msg, "Repeated signal in batch dropped") {
			repeated++
		}
	}
	assert.Equal(t, 1, repeated)
}

// A failed signal is recorded, not marked seen, and retried on the next cycle.
func TestRunCycle_FailedSignalRetried(t *testing.T) {
	f := newPipelineFixture(t)
	f.source.set(body(lineSell00001, lineSell00002), nil)

	failing := true
	f.act.Hook = func(ctx context.Context, step actuator.Step, draft actuator.Order) error {
		if failing && step == actuator.StepSubmit && draft.InstrumentCode == "000002" {
			return errors.New("order rejected by front end")
		}
		return nil
	}

	state, report := f.pipeline.RunCycle(context.Background(), domain.NewSeenState(), open)
	assert.Equal(t, OutcomeProcessed, report.Outcome)
	assert.Equal(t, 1, report.Execution.Succeeded)
	assert.Equal(t, 1, report.Execution.Failed)
	assert.Nil(t, state.LastPayload, "baseline not advanced while a signal failed")
	assert.Len(t, state.Seen, 1)

	recs := f.store.recordsFor(testQueryID)
	require.Len(t, recs, 2)
	assert.Equal(t, domain.StatusSuccess, recs[0].Status)
	assert.Equal(t, domain.StatusFailed, recs[1].Status)
	assert.Contains(t, recs[1].Message, "submit failed")

	// Unchanged log, failure cleared: only the failed signal is dispatched.
	failing = false
	state, report = f.pipeline.RunCycle(context.Background(), state, open)
	assert.Equal(t, OutcomeProcessed, report.Outcome)
	require.Len(t, report.Execution.Records, 1)
	assert.Equal(t, "000002", report.Execution.Records[0].Signal.InstrumentCode)
	assert.Equal(t, 1, report.Filtered)
	assert.NotNil(t, state.LastPayload)
	assert.Len(t, state.Seen, 2)

	submitted := f.act.Submitted()
	require.Len(t, submitted, 2)
	assert.Equal(t, "000001", submitted[0].InstrumentCode)
	assert.Equal(t, "000002", submitted[1].InstrumentCode)
}

func TestRunCycle_CancelledKeepsBaseline(t *testing.T) {
	f := newPipelineFixture(t)
	f.source.set(body(lineSell00001, lineSell00002), nil)

	ctx, cancel := context.WithCancel(context.Background())
	f.act.Hook = func(_ context.Context, step actuator.Step, draft actuator.Order) error {
		if step == actuator.StepSubmit && draft.InstrumentCode == "000001" {
			cancel()
		}
		return nil
	}

	state, report := f.pipeline.RunCycle(ctx, domain.NewSeenState(), open)

	assert.Equal(t, OutcomeInterrupted, report.Outcome)
	require.Len(t, report.Execution.Records, 1)
	assert.Equal(t, domain.StatusSuccess, report.Execution.Records[0].Status, "in-flight signal completes")
	assert.Nil(t, state.LastPayload)
	assert.Len(t, state.Seen, 1)

	stored, err := f.store.LoadState(context.Background(), testQueryID)
	require.NoError(t, err)
	assert.Len(t, stored.Seen, 1, "state persisted despite cancellation")
	assert.Len(t, f.store.recordsFor(testQueryID), 1)
}
