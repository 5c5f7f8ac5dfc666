// Package store persists practice session summaries.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/zhouzirui/z-practice/backend/internal/model/chat"
)

// ErrNotFound is returned when a summary does not exist.
var ErrNotFound = errors.New("summary not found")

// Summary is the record kept for a finished practice session. Transcript is nil when the user chose
// not to save it.
type Summary struct {
	ID            string          `json:"id"`
	SessionID     string          `json:"sessionId"`
	ScenarioID    string          `json:"scenarioId"`
	ScenarioTitle string          `json:"scenarioTitle,omitempty"`
	Date          time.Time       `json:"date"`
	Score         int             `json:"score"`
	Duration      int64           `json:"duration"` // seconds
	Difficulty    string          `json:"difficulty"`
	Highlights    []string        `json:"highlights,omitempty"`
	Transcript    *[]chat.Message `json:"transcript,omitempty"`
}

// Repository is an append-only history of session summaries.
type Repository interface {
	// Append stores a new summary. Summaries are never updated.
	Append(ctx context.Context, s Summary) error

	// List returns the most recent summaries first. limit <= 0 returns all.
	List(ctx context.Context, limit int) ([]Summary, error)

	// ListByScenario returns summaries for one scenario, most recent first.
	ListByScenario(ctx context.Context, scenarioID string, limit int) ([]Summary, error)

	// Get returns a single summary including its transcript.
	Get(ctx context.Context, id string) (Summary, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
