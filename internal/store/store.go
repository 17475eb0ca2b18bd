package store

import (
	"context"
	"errors"
	"time"

	"github.com/coachly/interviewd/internal/session"
)

var ErrNotFound = errors.New("session not found")

// SessionRow is the persisted metadata of an interview session. Answer
// history is stored separately, keyed by (session_id, seq).
type SessionRow struct {
	ID          string
	Role        string
	Seniority   string
	Status      session.Status
	Summary     string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Store persists interview sessions and their answer records. SaveAnswer
// must be idempotent per (session_id, seq): invoking it twice with the same
// key yields exactly one stored record.
type Store interface {
	CreateSession(ctx context.Context, row SessionRow) error
	GetSession(ctx context.Context, sessionID string) (SessionRow, error)
	CompleteSession(ctx context.Context, sessionID, summary string, completedAt time.Time) error
	DeleteSession(ctx context.Context, sessionID string) error
	SaveAnswer(ctx context.Context, sessionID string, seq uint64, record session.AnswerRecord) error
	ListAnswers(ctx context.Context, sessionID string) ([]session.AnswerRecord, error)
	Close() error
}
