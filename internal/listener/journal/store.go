// ============================================================================
// meinDENKWERK (mDW) - Voice Listener
// ============================================================================
//
// Package:     journal
// Description: SQLite journal of dispatch records
// Author:      Mike Stoffels with Claude
// Created:     2026-10-18
// License:     MIT
// ============================================================================

package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/msto63/voicelistener/internal/listener/dispatch"
	"github.com/msto63/voicelistener/pkg/core/logging"
)

// Config holds configuration for the journal store
type Config struct {
	Path string
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Path: "./data/voicelistener.db",
	}
}

// Store persists dispatch records in SQLite
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	logger *logging.Logger
}

// Open creates or opens the journal at cfg.Path
func Open(cfg Config) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// Open database with WAL mode
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, logger: logging.New("journal")}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// initSchema creates the necessary tables
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS dispatches (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		reason TEXT NOT NULL,
		started DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		transcript TEXT,
		reply TEXT,
		spoken TEXT,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_dispatches_started ON dispatches(started DESC);
	CREATE INDEX IF NOT EXISTS idx_dispatches_outcome ON dispatches(outcome);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Record stores one dispatch record
func (s *Store) Record(ctx context.Context, rec dispatch.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dispatches (id, session_id, reason, started, duration_ms, outcome, transcript, reply, spoken, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.Reason, rec.Started.UTC(), rec.Duration.Milliseconds(),
		string(rec.Outcome), rec.Transcript, rec.Reply, rec.Spoken, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert dispatch: %w", err)
	}
	return nil
}

// ObserveDispatch stores rec, logging failures. It implements dispatch.Observer.
func (s *Store) ObserveDispatch(rec dispatch.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Record(ctx, rec); err != nil {
		s.logger.Warn("Failed to journal dispatch", "dispatch", rec.ID, "error", err)
	}
}

// Recent returns up to limit records, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]dispatch.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, reason, started, duration_ms, outcome, transcript, reply, spoken, error
		FROM dispatches ORDER BY started DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query dispatches: %w", err)
	}
	defer rows.Close()

	var records []dispatch.Record
	for rows.Next() {
		var (
			rec        dispatch.Record
			outcome    string
			durationMs int64
			transcript sql.NullString
			reply      sql.NullString
			spoken     sql.NullString
			errText    sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Reason, &rec.Started, &durationMs,
			&outcome, &transcript, &reply, &spoken, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan dispatch: %w", err)
		}
		rec.Outcome = dispatch.Outcome(outcome)
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		rec.Transcript = transcript.String
		rec.Reply = reply.String
		rec.Spoken = spoken.String
		rec.Error = errText.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Stats returns the number of dispatches per outcome
func (s *Store) Stats(ctx context.Context) (map[dispatch.Outcome]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM dispatches GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[dispatch.Outcome]int)
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, err
		}
		stats[dispatch.Outcome(outcome)] = count
	}
	return stats, rows.Err()
}

// Prune deletes records started before now minus olderThan
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan).UTC()
	res, err := s.db.ExecContext(ctx, `DELETE FROM dispatches WHERE started < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune dispatches: %w", err)
	}
	return res.RowsAffected()
}

// PingContext checks the database connection
func (s *Store) PingContext(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
