package interview

import (
	"context"
	"errors"
	"time"

	"github.com/coachly/interviewd/internal/session"
)

var (
	// ErrNotFound means the session identity is unknown to both the
	// resident engine and the store.
	ErrNotFound = errors.New("session not found")

	// ErrNotAcceptingAnswers rejects a submit against a completed session
	// or one with no pending question. Nothing is mutated.
	ErrNotAcceptingAnswers = errors.New("session is not accepting answers")

	// ErrNotReady is backpressure, not failure: the command was accepted
	// but its effect was not observable within the wait budget. The caller
	// retries later.
	ErrNotReady = errors.New("result not ready yet")
)

// StartResult is the outcome of starting a session: the new identity and
// the first question to ask.
type StartResult struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

// AnswerRequest carries one candidate answer. Question is the question the
// candidate actually answered; stateless callers echo back the question
// they were last given.
type AnswerRequest struct {
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	Transcript string `json:"transcript,omitempty"`
}

// AnswerResult is the outcome of a fully-processed answer.
type AnswerResult struct {
	Record       session.AnswerRecord `json:"record"`
	NextQuestion string               `json:"next_question,omitempty"`
	Sequence     uint64               `json:"sequence"`
}

// CompleteResult is the outcome of ending a session.
type CompleteResult struct {
	Summary  string `json:"summary"`
	Sequence uint64 `json:"sequence"`
}

// Orchestrator is the caller-facing surface. Two implementations exist,
// chosen once at startup: Direct runs transitions inline within the
// calling request; Engine delegates to a resident per-session state
// machine and waits on its observable effect. Both produce the same
// answer records and summaries for the same activity outputs.
type Orchestrator interface {
	StartSession(ctx context.Context, role, seniority string) (StartResult, error)
	SubmitAnswer(ctx context.Context, sessionID string, req AnswerRequest) (AnswerResult, error)
	EndSession(ctx context.Context, sessionID, email string) (CompleteResult, error)
	Snapshot(ctx context.Context, sessionID string) (session.Snapshot, error)
}

// EventType labels entries on the session event feed.
type EventType string

const (
	EventQuestionReady  EventType = "question_ready"
	EventAnswerRecorded EventType = "answer_recorded"
	EventCompleted      EventType = "completed"
	EventActivityFailed EventType = "activity_failed"
)

// Event is one entry on a session's live feed, consumed by the websocket
// layer. Fields beyond Type and SessionID are populated per event type.
type Event struct {
	Type       EventType             `json:"type"`
	SessionID  string                `json:"session_id"`
	Question   string                `json:"question,omitempty"`
	Record     *session.AnswerRecord `json:"record,omitempty"`
	Summary    string                `json:"summary,omitempty"`
	Sequence   uint64                `json:"sequence,omitempty"`
	Detail     string                `json:"detail,omitempty"`
	At         time.Time             `json:"at"`
}
