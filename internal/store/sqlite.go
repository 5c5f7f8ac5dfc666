package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/zhouzirui/z-practice/backend/internal/model/chat"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (and creates if needed) the history database at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// WAL keeps readers unblocked while a summary is written.
	dsn := "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	log.Info().Str("component", "store").Str("path", dbPath).Msg("history database ready")
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS session_summaries (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		scenario_id TEXT NOT NULL,
		scenario_title TEXT NOT NULL DEFAULT '',
		date INTEGER NOT NULL,
		score INTEGER NOT NULL,
		duration INTEGER NOT NULL,
		difficulty TEXT NOT NULL,
		highlights_json TEXT,
		transcript_json TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_summaries_date ON session_summaries(date DESC);
	CREATE INDEX IF NOT EXISTS idx_summaries_scenario ON session_summaries(scenario_id, date DESC);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append inserts a summary. Appending an existing id fails.
func (s *SQLiteStore) Append(ctx context.Context, sum Summary) error {
	if strings.TrimSpace(sum.ID) == "" {
		return fmt.Errorf("summary id is required")
	}

	var highlights any
	if len(sum.Highlights) > 0 {
		raw, err := json.Marshal(sum.Highlights)
		if err != nil {
			return fmt.Errorf("marshal highlights: %w", err)
		}
		highlights = string(raw)
	}

	var transcript any
	if sum.Transcript != nil {
		raw, err := json.Marshal(*sum.Transcript)
		if err != nil {
			return fmt.Errorf("marshal transcript: %w", err)
		}
		transcript = string(raw)
	}

	query := `
	INSERT INTO session_summaries
		(id, session_id, scenario_id, scenario_title, date, score, duration, difficulty, highlights_json, transcript_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		sum.ID, sum.SessionID, sum.ScenarioID, sum.ScenarioTitle,
		sum.Date.UTC().UnixMilli(), sum.Score, sum.Duration, sum.Difficulty,
		highlights, transcript,
	)
	if err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}
	return nil
}

const selectSummary = `
	SELECT id, session_id, scenario_id, scenario_title, date, score, duration, difficulty,
	       highlights_json, transcript_json
	FROM session_summaries`

// List returns the most recent summaries first. Transcripts are omitted.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Summary, error) {
	return s.query(ctx, selectSummary+` ORDER BY date DESC, id LIMIT ?`, normalizeLimit(limit))
}

// ListByScenario returns summaries for one scenario. Transcripts are omitted.
func (s *SQLiteStore) ListByScenario(ctx context.Context, scenarioID string, limit int) ([]Summary, error) {
	return s.query(ctx, selectSummary+` WHERE scenario_id = ? ORDER BY date DESC, id LIMIT ?`, scenarioID, normalizeLimit(limit))
}

// Get returns one summary with its transcript.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Summary, error) {
	row := s.db.QueryRowContext(ctx, selectSummary+` WHERE id = ?`, id)
	sum, err := scanSummary(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return Summary{}, ErrNotFound
	}
	if err != nil {
		return Summary{}, err
	}
	return sum, nil
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	summaries := make([]Summary, 0)
	for rows.Next() {
		sum, err := scanSummary(rows, false)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summaries: %w", err)
	}
	return summaries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(row scanner, withTranscript bool) (Summary, error) {
	var (
		sum        Summary
		date       int64
		highlights sql.NullString
		transcript sql.NullString
	)
	err := row.Scan(
		&sum.ID, &sum.SessionID, &sum.ScenarioID, &sum.ScenarioTitle,
		&date, &sum.Score, &sum.Duration, &sum.Difficulty,
		&highlights, &transcript,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Summary{}, err
	}
	if err != nil {
		return Summary{}, fmt.Errorf("scan summary row: %w", err)
	}
	sum.Date = time.UnixMilli(date).UTC()

	if highlights.Valid && highlights.String != "" {
		if err := json.Unmarshal([]byte(highlights.String), &sum.Highlights); err != nil {
			return Summary{}, fmt.Errorf("decode highlights: %w", err)
		}
	}
	if withTranscript && transcript.Valid {
		messages := make([]chat.Message, 0)
		if err := json.Unmarshal([]byte(transcript.String), &messages); err != nil {
			return Summary{}, fmt.Errorf("decode transcript: %w", err)
		}
		sum.Transcript = &messages
	}
	return sum, nil
}

// normalizeLimit maps "no limit" onto SQLite's LIMIT -1.
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
