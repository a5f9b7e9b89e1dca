package app

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"logMirrorBot/internal/dedup"
	"logMirrorBot/internal/domain"
	"logMirrorBot/internal/execution"
	"logMirrorBot/internal/feed"
	"logMirrorBot/internal/metrics"
	"logMirrorBot/internal/ports"
	"logMirrorBot/internal/signals"
)

// Outcome classifies how a cycle ended.
type Outcome string

const (
	OutcomeClosed         Outcome = "closed"          // outside the trading window
	OutcomeFetchFailed    Outcome = "fetch_failed"    // log source error, cycle skipped
	OutcomeUnchanged      Outcome = "unchanged"       // payload identical to the last processed one
	OutcomeInvalidPayload Outcome = "invalid_payload" // payload could not be decoded into lines
	OutcomeProcessed      Outcome = "processed"
	OutcomeInterrupted    Outcome = "interrupted" // cancelled before every signal was dispatched
)

// CycleReport describes one RunCycle call.
type CycleReport struct {
	Outcome   Outcome
	Err       error // fetch or decode error for the skipped outcomes
	Extracted int
	Rejected  int
	Noise     int
	Filtered  int // extracted signals dropped as already seen or repeated in the batch
	Repeated  int // subset of Filtered: identities repeated in the batch
	Execution execution.Report
}

// PipelineConfig holds the collaborators of a Pipeline.
type PipelineConfig struct {
	QueryID    string
	Source     ports.LogSource
	Extractor  *signals.Extractor
	Engine     *execution.Engine
	States     ports.StateRepository
	Executions ports.ExecutionRepository
	Location   *time.Location // trading location; the reference date for extraction
	Logger     ports.Logger
	Tracer     trace.Tracer // optional
	Now        func() time.Time
}

// Pipeline runs fetch, diff, extract, filter and execute for one query.
type Pipeline struct {
	queryID    string
	source     ports.LogSource
	extractor  *signals.Extractor
	engine     *execution.Engine
	states     ports.StateRepository
	executions ports.ExecutionRepository
	loc        *time.Location
	logger     ports.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// NewPipeline creates a Pipeline.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Source == nil || cfg.Extractor == nil || cfg.Engine == nil || cfg.States == nil || cfg.Executions == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Pipeline")
	}
	if cfg.QueryID == "" {
		return nil, fmt.Errorf("pipeline query id must be set")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer("pipeline")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pipeline{
		queryID:    cfg.QueryID,
		source:     cfg.Source,
		extractor:  cfg.Extractor,
		engine:     cfg.Engine,
		states:     cfg.States,
		executions: cfg.Executions,
		loc:        cfg.Location,
		logger:     cfg.Logger,
		tracer:     cfg.Tracer,
		now:        cfg.Now,
	}, nil
}

// RunCycle runs one cycle against state and returns the next state.
// Errors never escape: a failed fetch or decode skips the cycle and a failed
// signal only produces a FAILED record.
//
// Seen identities are persisted as each successful record is produced. The
// payload becomes the diff baseline only when every fresh signal was dispatched
// and none failed, so failed signals are retried on the next cycle even if the
// log has not grown.
func (p *Pipeline) RunCycle(ctx context.Context, state domain.SeenState, gates Gates) (domain.SeenState, CycleReport) {
	op := "RunCycle"
	ctx, span := p.tracer.Start(ctx, "pipeline.cycle", trace.WithAttributes(
		attribute.String("query_id", p.queryID),
		attribute.Bool("sensitive_boundary", gates.SensitiveBoundary),
	))
	defer span.End()

	var report CycleReport
	defer func() {
		metrics.CyclesTotal.WithLabelValues(string(report.Outcome)).Inc()
		span.SetAttributes(attribute.String("outcome", string(report.Outcome)))
	}()

	if !gates.Tradable {
		report.Outcome = OutcomeClosed
		p.logger.Debug(ctx, op+": Outside trading window, skipping")
		return state, report
	}

	payload, err := p.source.Fetch(ctx, p.queryID)
	if err != nil {
		report.Outcome, report.Err = OutcomeFetchFailed, err
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		p.logger.Warn(ctx, op+": Log fetch failed, skipping cycle", map[string]interface{}{"queryID": p.queryID, "error": err.Error()})
		return state, report
	}

	if !feed.HasNewData(state.LastPayload, payload) {
		report.Outcome = OutcomeUnchanged
		p.logger.Debug(ctx, op+": No new log data")
		return state, report
	}

	lines, err := feed.Lines(payload)
	if err != nil {
		report.Outcome, report.Err = OutcomeInvalidPayload, err
		span.RecordError(err)
		p.logger.Warn(ctx, op+": Undecodable payload, skipping cycle", map[string]interface{}{"queryID": p.queryID, "bytes": len(payload.Body), "error": err.Error()})
		return state, report
	}

	res := p.extractor.Extract(ctx, lines, p.now().In(p.loc))
	report.Extracted, report.Rejected, report.Noise = len(res.Signals), len(res.Rejected), res.Noise
	metrics.SignalsExtractedTotal.Add(float64(len(res.Signals)))
	for _, rej := range res.Rejected {
		metrics.LinesRejectedTotal.WithLabelValues(rej.Reason).Inc()
	}

	split := dedup.Partition(res.Signals, state.Seen)
	fresh := split.Fresh
	report.Filtered, report.Repeated = split.Dropped(), len(split.Duplicates)
	metrics.SignalsFilteredTotal.Add(float64(report.Filtered))
	for _, dup := range split.Duplicates {
		p.logger.Debug(ctx, op+": Repeated signal in batch dropped", map[string]interface{}{
			"line":     dup.Line,
			"identity": dup.Identity().Key(),
		})
	}

	p.logger.Info(ctx, op+": Signals extracted", map[string]interface{}{
		"lines":     len(lines),
		"extracted": report.Extracted,
		"rejected":  report.Rejected,
		"noise":     report.Noise,
		"new":       len(fresh),
	})

	next := state
	// Persistence must survive a shutdown that arrives mid-batch.
	persistCtx := context.WithoutCancel(ctx)
	report.Execution = p.engine.ExecuteAll(ctx, fresh, execution.Options{
		SensitiveBoundary: gates.SensitiveBoundary,
		OnRecord: func(rec domain.ExecutionRecord) {
			metrics.ExecutionsTotal.WithLabelValues(string(rec.Status), string(rec.Signal.Side)).Inc()
			if err := p.executions.AppendExecution(persistCtx, p.queryID, rec); err != nil {
				p.logger.Error(ctx, err, op+": Failed to persist execution record", map[string]interface{}{"recordID": rec.ID.String()})
			}
			if !rec.Succeeded() {
				return
			}
			next = next.WithSeen(rec.Signal.Identity())
			if err := p.states.MarkSeen(persistCtx, p.queryID, rec.Signal.Identity()); err != nil {
				p.logger.Error(ctx, err, op+": Failed to persist seen identity", map[string]interface{}{"identity": rec.Signal.Identity().Key()})
			}
		},
	})

	report.Outcome = OutcomeProcessed
	if report.Execution.Interrupted {
		report.Outcome = OutcomeInterrupted
	} else if report.Execution.Failed == 0 {
		next = next.WithPayload(payload)
	}

	if err := p.states.SaveState(persistCtx, p.queryID, next); err != nil {
		p.logger.Error(ctx, err, op+": Failed to save state", map[string]interface{}{"queryID": p.queryID})
	}
	span.SetAttributes(
		attribute.Int("signals.new", len(fresh)),
		attribute.Int("executions.succeeded", report.Execution.Succeeded),
		attribute.Int("executions.failed", report.Execution.Failed),
	)
	return next, report
}
