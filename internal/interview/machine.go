package interview

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/coachly/interviewd/internal/activity"
	"github.com/coachly/interviewd/internal/session"
)

// machine holds the transition logic shared by both orchestrator
// strategies. It is stateless; callers pass the session value in and get
// the updated value back, so the owner can commit the result atomically.
type machine struct {
	acts activity.Activities
	log  *zap.Logger
}

func newMachine(acts activity.Activities, log *zap.Logger) *machine {
	if log == nil {
		log = zap.NewNop()
	}
	return &machine{acts: acts, log: log}
}

// initialize generates the first question and activates the session. On
// failure no partial state is observable: the returned session is the
// input unchanged.
func (m *machine) initialize(ctx context.Context, cur session.Session) (session.Session, error) {
	key := activity.Key{SessionID: cur.ID, Seq: cur.Sequence + 1}
	question, err := m.acts.GenerateQuestion(ctx, key, cur.Role, cur.Seniority)
	if err != nil {
		return cur, fmt.Errorf("initialize session %s: %w", cur.ID, err)
	}
	cur.Status = session.StatusActive
	cur.CurrentQuestion = question
	cur.Sequence++
	return cur, nil
}

// processAnswer runs the answer pipeline for one transition: evaluate,
// feedback, embed, persist. Embedding failure degrades to an absent
// vector; any other failure aborts with no side effects beyond an
// idempotent persist attempt.
func (m *machine) processAnswer(ctx context.Context, key activity.Key, question string, req AnswerRequest) (session.AnswerRecord, error) {
	evaluation, err := m.acts.EvaluateAnswer(ctx, key, question, req.Answer)
	if err != nil {
		return session.AnswerRecord{}, err
	}
	friendly, err := m.acts.GenerateFeedback(ctx, key, evaluation)
	if err != nil {
		return session.AnswerRecord{}, err
	}
	embedding, err := m.acts.EmbedAnswer(ctx, key, req.Answer)
	if err != nil {
		m.log.Warn("embedding unavailable, storing answer without vector",
			zap.String("key", key.String()),
			zap.Error(err),
		)
		embedding = nil
	}

	record := session.AnswerRecord{
		Question:   question,
		Answer:     req.Answer,
		Transcript: req.Transcript,
		Evaluation: evaluation,
		Friendly:   friendly,
		Embedding:  embedding,
		CreatedAt:  time.Now().UTC(),
	}
	err = m.acts.PersistRecord(ctx, key, activity.Record{
		SessionID: key.SessionID,
		Seq:       key.Seq,
		Answer:    record,
	})
	if err != nil {
		return session.AnswerRecord{}, err
	}
	return record, nil
}

// submit applies one SubmitAnswer transition to a copy of the session.
// The caller commits the returned value; on error the input session is
// returned unchanged so the pending question survives a failed attempt.
func (m *machine) submit(ctx context.Context, cur session.Session, req AnswerRequest) (session.Session, AnswerResult, error) {
	if cur.Status != session.StatusActive || cur.CurrentQuestion == "" {
		return cur, AnswerResult{}, ErrNotAcceptingAnswers
	}

	key := activity.Key{SessionID: cur.ID, Seq: cur.Sequence + 1}
	record, err := m.processAnswer(ctx, key, cur.CurrentQuestion, req)
	if err != nil {
		return cur, AnswerResult{}, err
	}

	cur.Answers = append(cur.Answers, record)
	cur.Sequence++

	// The transition is already committed from the caller's point of
	// view; a failed next-question generation leaves the session active
	// with no pending question, to be refreshed out of band.
	next, err := m.acts.GenerateQuestion(ctx, key, cur.Role, cur.Seniority)
	if err != nil {
		m.log.Warn("next question generation failed, session stays active without one",
			zap.String("key", key.String()),
			zap.Error(err),
		)
		next = ""
	}
	cur.CurrentQuestion = next

	return cur, AnswerResult{
		Record:       record,
		NextQuestion: next,
		Sequence:     cur.Sequence,
	}, nil
}

// complete applies EndSession. Completing an already-completed session is
// a no-op returning the stored summary.
func (m *machine) complete(ctx context.Context, cur session.Session, email string) (session.Session, CompleteResult, error) {
	if cur.Status == session.StatusCompleted {
		return cur, CompleteResult{Summary: cur.Summary, Sequence: cur.Sequence}, nil
	}

	key := activity.Key{SessionID: cur.ID, Seq: cur.Sequence + 1}
	summary, err := m.acts.GenerateSummary(ctx, key, cur.Answers)
	if err != nil {
		return cur, CompleteResult{}, err
	}

	now := time.Now().UTC()
	cur.Status = session.StatusCompleted
	cur.Summary = summary
	cur.CurrentQuestion = ""
	cur.CompletedAt = &now
	cur.Sequence++

	if email != "" {
		if err := m.acts.DeliverSummary(ctx, key, cur.ID, email, summary); err != nil {
			m.log.Warn("summary delivery failed",
				zap.String("session_id", cur.ID),
				zap.Error(err),
			)
		}
	}

	return cur, CompleteResult{Summary: summary, Sequence: cur.Sequence}, nil
}
