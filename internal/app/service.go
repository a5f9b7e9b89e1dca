package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"logMirrorBot/internal/domain"
	"logMirrorBot/internal/metrics"
	"logMirrorBot/internal/ports"
)

// ServiceConfig holds the polling settings of the Service.
type ServiceConfig struct {
	QueryID              string
	PollInterval         time.Duration
	RetryInterval        time.Duration // used instead of PollInterval after a failed fetch
	SessionCheckInterval time.Duration // 0 disables the session health loop
	Window               TradingWindow
}

// Service drives the pipeline on a fixed cadence and watches the log source session.
type Service struct {
	cfg        ServiceConfig
	logger     ports.Logger
	pipeline   *Pipeline
	states     ports.StateRepository
	executions ports.ExecutionRepository
	session    ports.SessionChecker // optional
	now        func() time.Time
}

// NewService creates a new application service instance.
func NewService(
	cfg ServiceConfig,
	logger ports.Logger,
	pipeline *Pipeline,
	states ports.StateRepository,
	executions ports.ExecutionRepository,
	session ports.SessionChecker,
) (*Service, error) {
	if logger == nil || pipeline == nil || states == nil || executions == nil {
		return nil, fmt.Errorf("missing required dependencies for Service")
	}
	if cfg.QueryID == "" {
		return nil, fmt.Errorf("configuration QueryID must be set")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("configuration PollInterval must be positive")
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = cfg.PollInterval
	}
	if cfg.SessionCheckInterval < 0 {
		return nil, fmt.Errorf("configuration SessionCheckInterval cannot be negative")
	}

	return &Service{
		cfg:        cfg,
		logger:     logger,
		pipeline:   pipeline,
		states:     states,
		executions: executions,
		session:    session,
		now:        time.Now,
	}, nil
}

// Start runs the service until SIGINT or SIGTERM.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting log mirror service...")

	// Create a context that can be canceled by signals
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel() // Cancel the main context
		case <-ctx.Done():
		}
	}()

	return s.Run(ctx)
}

// Run loads the persisted state, runs a cycle immediately and then one per
// poll interval until ctx is cancelled. A cycle in progress finishes its
// current signal before Run returns.
func (s *Service) Run(ctx context.Context) error {
	state, err := s.states.LoadState(ctx, s.cfg.QueryID)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to load persisted state")
		return fmt.Errorf("failed to load state: %w", err)
	}
	s.logger.Info(ctx, "State loaded", map[string]interface{}{
		"queryID":    s.cfg.QueryID,
		"seen":       len(state.Seen),
		"hasPayload": state.LastPayload != nil,
	})
	s.logTodaySummary(ctx)

	var wg sync.WaitGroup
	if s.session != nil && s.cfg.SessionCheckInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.sessionLoop(ctx)
		}()
	}

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Main context cancelled, initiating shutdown...")
			wg.Wait()
			s.logger.Info(ctx, "Log mirror service stopped.")
			return nil
		case <-timer.C:
		}

		var report CycleReport
		state, report = s.pipeline.RunCycle(ctx, state, s.cfg.Window.Gates(s.now()))

		wait := s.cfg.PollInterval
		if report.Outcome == OutcomeFetchFailed {
			wait = s.cfg.RetryInterval
		}
		s.logger.Debug(ctx, "Cycle finished", map[string]interface{}{
			"outcome":   report.Outcome,
			"succeeded": report.Execution.Succeeded,
			"failed":    report.Execution.Failed,
			"nextPoll":  wait.String(),
		})
		timer.Reset(wait)
	}
}

func (s *Service) logTodaySummary(ctx context.Context) {
	today := s.now()
	succeeded, err := s.executions.CountByStatusOn(ctx, s.cfg.QueryID, domain.StatusSuccess, today)
	if err != nil {
		s.logger.Warn(ctx, "Failed to count today's executions", map[string]interface{}{"error": err.Error()})
		return
	}
	failed, err := s.executions.CountByStatusOn(ctx, s.cfg.QueryID, domain.StatusFailed, today)
	if err != nil {
		s.logger.Warn(ctx, "Failed to count today's executions", map[string]interface{}{"error": err.Error()})
		return
	}
	s.logger.Info(ctx, "Executions today", map[string]interface{}{"succeeded": succeeded, "failed": failed})
}

// sessionLoop checks the log source session on its own cadence. It never
// touches the actuator or the pipeline state.
func (s *Service) sessionLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SessionCheckInterval)
	defer ticker.Stop()

	for {
		s.checkSession(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Service) checkSession(ctx context.Context) {
	err := s.session.CheckSession(ctx)
	switch {
	case err == nil:
		metrics.SessionChecksTotal.WithLabelValues("ok").Inc()
		s.logger.Debug(ctx, "Log source session valid")
	case ctx.Err() != nil:
		// shutting down
	case errors.Is(err, ports.ErrAuthenticationFailed):
		metrics.SessionChecksTotal.WithLabelValues("expired").Inc()
		s.logger.Error(ctx, err, "Log source session expired, refresh JQ_COOKIES")
	default:
		metrics.SessionChecksTotal.WithLabelValues("error").Inc()
		s.logger.Warn(ctx, "Log source session check failed", map[string]interface{}{"error": err.Error()})
	}
}
