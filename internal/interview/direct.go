package interview

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coachly/interviewd/internal/activity"
	"github.com/coachly/interviewd/internal/observability"
	"github.com/coachly/interviewd/internal/session"
	"github.com/coachly/interviewd/internal/store"
)

// Direct runs every transition inline within the calling request. There
// is no resident state machine: session identity and history live in the
// store, and the caller echoes back the question it was last given. The
// store's own keying is the concurrency boundary.
type Direct struct {
	machine *machine
	store   store.Store
	log     *zap.Logger
	metrics *observability.Metrics
}

func NewDirect(acts activity.Activities, st store.Store, log *zap.Logger, metrics *observability.Metrics) *Direct {
	if log == nil {
		log = zap.NewNop()
	}
	return &Direct{
		machine: newMachine(acts, log),
		store:   st,
		log:     log,
		metrics: metrics,
	}
}

func (d *Direct) StartSession(ctx context.Context, role, seniority string) (StartResult, error) {
	sess := session.Session{
		ID:        uuid.NewString(),
		Role:      role,
		Seniority: seniority,
		CreatedAt: time.Now().UTC(),
	}
	sess, err := d.machine.initialize(ctx, sess)
	if err != nil {
		return StartResult{}, err
	}
	err = d.store.CreateSession(ctx, store.SessionRow{
		ID:        sess.ID,
		Role:      sess.Role,
		Seniority: sess.Seniority,
		Status:    session.StatusActive,
		CreatedAt: sess.CreatedAt,
	})
	if err != nil {
		return StartResult{}, fmt.Errorf("create session %s: %w", sess.ID, err)
	}
	if d.metrics != nil {
		d.metrics.ActiveSessions.Inc()
		d.metrics.SessionEvents.WithLabelValues(string(EventQuestionReady)).Inc()
	}
	d.log.Info("session started",
		zap.String("session_id", sess.ID),
		zap.String("role", role),
		zap.String("seniority", seniority),
	)
	return StartResult{SessionID: sess.ID, Question: sess.CurrentQuestion}, nil
}

func (d *Direct) SubmitAnswer(ctx context.Context, sessionID string, req AnswerRequest) (AnswerResult, error) {
	sess, err := d.load(ctx, sessionID)
	if err != nil {
		return AnswerResult{}, err
	}
	// Stateless mode: the pending question is whatever the caller says it
	// answered. An empty question means the caller has no context and the
	// submit is illegal.
	sess.CurrentQuestion = req.Question

	sess, result, err := d.machine.submit(ctx, sess, req)
	if err != nil {
		return AnswerResult{}, err
	}
	if d.metrics != nil {
		d.metrics.SessionEvents.WithLabelValues(string(EventAnswerRecorded)).Inc()
	}
	return result, nil
}

func (d *Direct) EndSession(ctx context.Context, sessionID, email string) (CompleteResult, error) {
	sess, err := d.load(ctx, sessionID)
	if err != nil {
		return CompleteResult{}, err
	}
	alreadyCompleted := sess.Status == session.StatusCompleted

	sess, result, err := d.machine.complete(ctx, sess, email)
	if err != nil {
		return CompleteResult{}, err
	}
	if alreadyCompleted {
		return result, nil
	}

	err = d.store.CompleteSession(ctx, sessionID, result.Summary, *sess.CompletedAt)
	if err != nil {
		return CompleteResult{}, fmt.Errorf("complete session %s: %w", sessionID, err)
	}
	if d.metrics != nil {
		d.metrics.ActiveSessions.Dec()
		d.metrics.SessionEvents.WithLabelValues(string(EventCompleted)).Inc()
	}
	d.log.Info("session completed",
		zap.String("session_id", sessionID),
		zap.Int("answers", len(sess.Answers)),
	)
	return result, nil
}

func (d *Direct) Snapshot(ctx context.Context, sessionID string) (session.Snapshot, error) {
	sess, err := d.load(ctx, sessionID)
	if err != nil {
		return session.Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// load reconstructs a session value from the store. The sequence is
// derived from history length: initialization and every applied answer
// consumed one each, completion one more.
func (d *Direct) load(ctx context.Context, sessionID string) (session.Session, error) {
	row, err := d.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return session.Session{}, ErrNotFound
		}
		return session.Session{}, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	answers, err := d.store.ListAnswers(ctx, sessionID)
	if err != nil {
		return session.Session{}, fmt.Errorf("load answers %s: %w", sessionID, err)
	}

	sess := session.Session{
		ID:          row.ID,
		Role:        row.Role,
		Seniority:   row.Seniority,
		Status:      row.Status,
		Answers:     answers,
		Summary:     row.Summary,
		CreatedAt:   row.CreatedAt,
		CompletedAt: row.CompletedAt,
		Sequence:    uint64(len(answers)) + 1,
	}
	if row.Status == session.StatusCompleted {
		sess.Sequence++
	}
	return sess, nil
}
