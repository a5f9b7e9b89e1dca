package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/shopspring/decimal"

	"logMirrorBot/internal/domain"
	"logMirrorBot/internal/ports"
)

// Repository implements the ports.StateRepository and ports.ExecutionRepository interfaces using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
	loc    *time.Location
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath   string
	Logger   ports.Logger
	Location *time.Location // zone signal and attempt times are returned in; defaults to time.Local
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/log_mirror.db" // Default path
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db.SetMaxOpenConns(1) // one writer; sqlite serialises anyway
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger, loc: loc}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite repository ready", map[string]interface{}{"path": dbPath})

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS last_payloads (
		query_id TEXT PRIMARY KEY,
		body BLOB NOT NULL,
		fetched_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS seen_signals (
		query_id TEXT NOT NULL,
		signal_time TEXT NOT NULL, -- wall time, YYYY-MM-DD HH:MM:SS
		side TEXT NOT NULL,
		instrument_code TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		seen_at TIMESTAMP NOT NULL,
		PRIMARY KEY (query_id, signal_time, side, instrument_code, quantity)
	);

	CREATE TABLE IF NOT EXISTS execution_records (
		id TEXT PRIMARY KEY,
		query_id TEXT NOT NULL,
		signal_time TIMESTAMP NOT NULL,
		side TEXT NOT NULL,
		instrument_code TEXT NOT NULL,
		price TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		dialect TEXT NULL,
		line_no INTEGER NULL,
		status TEXT NOT NULL,
		final_state TEXT NOT NULL,
		message TEXT NOT NULL,
		attempted_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_execution_records_query_attempted ON execution_records (query_id, attempted_at);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- StateRepository Implementation ---

// LoadState returns the stored state for queryID, or an empty state.
func (r *Repository) LoadState(ctx context.Context, queryID string) (domain.SeenState, error) {
	state := domain.NewSeenState()

	var body []byte
	var fetchedAt time.Time
	err := r.db.QueryRowContext(ctx, `SELECT body, fetched_at FROM last_payloads WHERE query_id = ?`, queryID).Scan(&body, &fetchedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		r.logger.Debug(ctx, "No stored payload for query", map[string]interface{}{"queryID": queryID})
	case err != nil:
		return state, fmt.Errorf("failed to load last payload for %s: %w: %w", queryID, ports.ErrQueryFailed, err)
	default:
		state.LastPayload = &domain.RawLogPayload{QueryID: queryID, Body: body, FetchedAt: fetchedAt.In(r.loc)}
	}

	rows, err := r.db.QueryContext(ctx, `
	SELECT signal_time, side, instrument_code, quantity
	FROM seen_signals
	WHERE query_id = ?`, queryID)
	if err != nil {
		return state, fmt.Errorf("failed to load seen signals for %s: %w: %w", queryID, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id domain.Identity
		var side string
		if err := rows.Scan(&id.Timestamp, &side, &id.InstrumentCode, &id.Quantity); err != nil {
			return state, fmt.Errorf("failed to scan seen signal: %w", err)
		}
		id.Side = domain.Side(side)
		state.Seen[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return state, fmt.Errorf("error iterating seen signal rows: %w", err)
	}

	r.logger.Debug(ctx, "State loaded", map[string]interface{}{"queryID": queryID, "seen": len(state.Seen), "hasPayload": state.LastPayload != nil})
	return state, nil
}

// SaveState upserts the last payload and adds the seen identities in one transaction.
func (r *Repository) SaveState(ctx context.Context, queryID string, state domain.SeenState) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin state transaction: %w", err)
	}
	defer tx.Rollback() // no-op after commit

	if p := state.LastPayload; p != nil {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO last_payloads (query_id, body, fetched_at) VALUES (?, ?, ?)
		ON CONFLICT(query_id) DO UPDATE SET body = excluded.body, fetched_at = excluded.fetched_at`,
			queryID, p.Body, p.FetchedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to store last payload for %s: %w", queryID, err)
		}
	}

	if err := insertSeen(ctx, tx, queryID, state.Seen); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit state for %s: %w", queryID, err)
	}
	r.logger.Debug(ctx, "State saved", map[string]interface{}{"queryID": queryID, "seen": len(state.Seen)})
	return nil
}

// MarkSeen adds identities to the seen set.
func (r *Repository) MarkSeen(ctx context.Context, queryID string, ids ...domain.Identity) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin seen transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertSeen(ctx, tx, queryID, domain.NewIdentitySet(ids...)); err != nil {
		return err
	}
	return tx.Commit()
}

func insertSeen(ctx context.Context, tx *sql.Tx, queryID string, ids domain.IdentitySet) error {
	if len(ids) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
	INSERT OR IGNORE INTO seen_signals (query_id, signal_time, side, instrument_code, quantity, seen_at)
	VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare seen insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for id := range ids {
		if _, err := stmt.ExecContext(ctx, queryID, id.Timestamp, string(id.Side), id.InstrumentCode, id.Quantity, now); err != nil {
			return fmt.Errorf("failed to insert seen signal %s: %w", id.Key(), err)
		}
	}
	return nil
}

// --- ExecutionRepository Implementation ---

// AppendExecution stores a new execution record.
func (r *Repository) AppendExecution(ctx context.Context, queryID string, rec domain.ExecutionRecord) error {
	const query = `
	INSERT INTO execution_records (id, query_id, signal_time, side, instrument_code, price, quantity,
	                               dialect, line_no, status, final_state, message, attempted_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sig := rec.Signal
	var dialect sql.NullString
	if sig.Dialect != "" {
		dialect = sql.NullString{String: sig.Dialect, Valid: true}
	}
	var lineNo sql.NullInt64
	if sig.Line > 0 {
		lineNo = sql.NullInt64{Int64: int64(sig.Line), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		rec.ID.String(), queryID, sig.Timestamp.UTC(), string(sig.Side), sig.InstrumentCode, sig.Price.String(), sig.Quantity,
		dialect, lineNo, string(rec.Status), string(rec.FinalState), rec.Message, rec.AttemptedAt.UTC())
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("execution record %s: %w", rec.ID, ports.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to insert execution record %s: %w", rec.ID, err)
	}
	r.logger.Debug(ctx, "Execution record stored", map[string]interface{}{"recordID": rec.ID.String(), "status": rec.Status})
	return nil
}

// FindByQuery returns the most recent records for queryID, oldest first, up to limit.
func (r *Repository) FindByQuery(ctx context.Context, queryID string, limit int) ([]*domain.ExecutionRecord, error) {
	const query = `
	SELECT id, signal_time, side, instrument_code, price, quantity, dialect, line_no,
	       status, final_state, message, attempted_at
	FROM execution_records
	WHERE query_id = ?
	ORDER BY attempted_at DESC, rowid DESC
	LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, queryID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution records for %s: %w", queryID, err)
	}
	defer rows.Close()

	records := make([]*domain.ExecutionRecord, 0)
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution record: %w", err)
		}
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution record rows: %w", err)
	}
	// newest first from the query; callers want attempt order
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// CountByStatusOn counts records with status attempted on day's calendar date in the repository location.
func (r *Repository) CountByStatusOn(ctx context.Context, queryID string, status domain.ExecutionStatus, day time.Time) (int, error) {
	y, m, d := day.In(r.loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, r.loc)
	end := start.AddDate(0, 0, 1)

	const query = `
	SELECT COUNT(*) FROM execution_records
	WHERE query_id = ? AND status = ? AND attempted_at >= ? AND attempted_at < ?`
	var count int
	err := r.db.QueryRowContext(ctx, query, queryID, string(status), start.UTC(), end.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s records for %s: %w", status, queryID, err)
	}
	return count, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func (r *Repository) scanRecord(s scanner) (*domain.ExecutionRecord, error) {
	rec := &domain.ExecutionRecord{}
	var id, side, price, status, finalState string
	var dialect sql.NullString
	var lineNo sql.NullInt64
	var signalTime, attemptedAt time.Time
	err := s.Scan(&id, &signalTime, &side, &rec.Signal.InstrumentCode, &price, &rec.Signal.Quantity,
		&dialect, &lineNo, &status, &finalState, &rec.Message, &attemptedAt)
	if err != nil {
		return nil, err
	}

	if rec.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid record id %q: %w", id, err)
	}
	if rec.Signal.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("invalid stored price %q: %w", price, err)
	}
	rec.Signal.Timestamp = signalTime.In(r.loc)
	rec.Signal.Side = domain.Side(side)
	if dialect.Valid {
		rec.Signal.Dialect = dialect.String
	}
	if lineNo.Valid {
		rec.Signal.Line = int(lineNo.Int64)
	}
	rec.Status = domain.ExecutionStatus(status)
	rec.FinalState = domain.ExecutionState(finalState)
	rec.AttemptedAt = attemptedAt.In(r.loc)
	return rec, nil
}
