package activity

import (
	"context"
	"fmt"

	"github.com/coachly/interviewd/internal/session"
)

// Activity names used for idempotency keys, metrics and typed failures.
const (
	NameGenerateQuestion = "generate_question"
	NameEvaluateAnswer   = "evaluate_answer"
	NameGenerateFeedback = "generate_feedback"
	NameEmbedAnswer      = "embed_answer"
	NamePersistRecord    = "persist_record"
	NameGenerateSummary  = "generate_summary"
	NameDeliverSummary   = "deliver_summary"
)

// Key identifies one transition of one session. Retried invocations carry
// the same key so side effects (persistence in particular) apply once.
type Key struct {
	SessionID string
	Seq       uint64
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d", k.SessionID, k.Seq)
}

// Record is the full payload handed to PersistRecord.
type Record struct {
	SessionID string
	Seq       uint64
	Answer    session.AnswerRecord
}

// Activities is the contract between the orchestration core and its
// external collaborators. Implementations do not retry; the Executor owns
// the retry budget.
type Activities interface {
	GenerateQuestion(ctx context.Context, key Key, role, seniority string) (string, error)
	EvaluateAnswer(ctx context.Context, key Key, question, answer string) (session.Evaluation, error)
	GenerateFeedback(ctx context.Context, key Key, evaluation session.Evaluation) (string, error)
	EmbedAnswer(ctx context.Context, key Key, answer string) ([]float32, error)
	PersistRecord(ctx context.Context, key Key, record Record) error
	GenerateSummary(ctx context.Context, key Key, history []session.AnswerRecord) (string, error)
	DeliverSummary(ctx context.Context, key Key, sessionID, email, summary string) error
}

// Error is the typed failure surfaced to a transition after the retry
// budget is exhausted.
type Error struct {
	Name     string
	Key      Key
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("activity %s (%s) failed after %d attempt(s): %v", e.Name, e.Key, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
