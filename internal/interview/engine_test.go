package interview

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/coachly/interviewd/internal/session"
	"github.com/coachly/interviewd/internal/store"
)

func newTestEngine(t *testing.T, fake *fakeActivities) (*Engine, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	fake.mu.Lock()
	fake.answers = st
	fake.mu.Unlock()
	e := NewEngine(fake, st, PollConfig{Interval: time.Millisecond, Attempts: 500}, zap.NewNop(), nil)
	t.Cleanup(e.Close)
	return e, st
}

func waitForSnapshot(t *testing.T, e *Engine, sessionID string, cond func(session.Snapshot) bool) session.Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := e.Snapshot(context.Background(), sessionID)
		if err == nil && cond(snap) {
			return snap
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not observed before deadline")
	return session.Snapshot{}
}

func TestEngineStartSession(t *testing.T) {
	fake := newFakeActivities()
	fake.questions = []string{"Q1?"}
	e, st := newTestEngine(t, fake)

	res, err := e.StartSession(context.Background(), "software engineer", "mid")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if res.SessionID == "" || res.Question != "Q1?" {
		t.Fatalf("unexpected start result: %+v", res)
	}

	snap, err := e.Snapshot(context.Background(), res.SessionID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Status != session.StatusActive || snap.Sequence != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	row, err := st.GetSession(context.Background(), res.SessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if row.Role != "software engineer" || row.Status != session.StatusActive {
		t.Fatalf("unexpected stored row: %+v", row)
	}
}

func TestEngineStartFailureLeavesNothingBehind(t *testing.T) {
	fake := newFakeActivities()
	fake.failQuestions = 1
	e, _ := newTestEngine(t, fake)

	res, err := e.StartSession(context.Background(), "software engineer", "mid")
	if err == nil {
		t.Fatalf("expected start failure, got %+v", res)
	}
	if errors.Is(err, ErrNotReady) {
		t.Fatalf("initialization failure reported as backpressure: %v", err)
	}
}

func TestEngineSubmitAndComplete(t *testing.T) {
	fake := newFakeActivities()
	fake.questions = []string{"Q1?", "Q2?"}
	e, st := newTestEngine(t, fake)

	res, err := e.StartSession(context.Background(), "software engineer", "mid")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	answer, err := e.SubmitAnswer(context.Background(), res.SessionID, AnswerRequest{
		Question: res.Question,
		Answer:   "I led a migration to a new datastore.",
	})
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if answer.Record.Question != "Q1?" || answer.Record.Evaluation.Overall != 6.5 {
		t.Fatalf("unexpected record: %+v", answer.Record)
	}
	if answer.NextQuestion != "Q2?" || answer.Sequence != 2 {
		t.Fatalf("unexpected answer result: %+v", answer)
	}

	done, err := e.EndSession(context.Background(), res.SessionID, "dev@example.com")
	if err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if !strings.Contains(done.Summary, "Questions answered: 1") {
		t.Fatalf("summary missing answer count: %q", done.Summary)
	}
	if done.Sequence != 3 {
		t.Fatalf("sequence = %d, want 3", done.Sequence)
	}

	// Completion must be idempotent.
	again, err := e.EndSession(context.Background(), res.SessionID, "dev@example.com")
	if err != nil {
		t.Fatalf("second EndSession: %v", err)
	}
	if again.Summary != done.Summary || again.Sequence != done.Sequence {
		t.Fatalf("second completion differs: %+v vs %+v", again, done)
	}

	row, err := st.GetSession(context.Background(), res.SessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if row.Status != session.StatusCompleted || row.Summary != done.Summary {
		t.Fatalf("completion not persisted: %+v", row)
	}
}

func TestEngineRejectsSubmitAfterCompletion(t *testing.T) {
	fake := newFakeActivities()
	e, st := newTestEngine(t, fake)

	res, err := e.StartSession(context.Background(), "software engineer", "mid")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if _, err := e.EndSession(context.Background(), res.SessionID, ""); err != nil {
		t.Fatalf("EndSession: %v", err)
	}

	_, err = e.SubmitAnswer(context.Background(), res.SessionID, AnswerRequest{Question: res.Question, Answer: "late"})
	if !errors.Is(err, ErrNotAcceptingAnswers) {
		t.Fatalf("err = %v, want ErrNotAcceptingAnswers", err)
	}

	answers, err := st.ListAnswers(context.Background(), res.SessionID)
	if err != nil {
		t.Fatalf("ListAnswers: %v", err)
	}
	if len(answers) != 0 {
		t.Fatalf("rejected submit mutated history: %+v", answers)
	}
}

func TestEngineFailedSubmitLeavesQuestionUntouched(t *testing.T) {
	fake := newFakeActivities()
	fake.questions = []string{"Q1?", "Q2?"}
	st := store.NewInMemoryStore()
	fake.answers = st
	e := NewEngine(fake, st, PollConfig{Interval: time.Millisecond, Attempts: 5}, zap.NewNop(), nil)
	t.Cleanup(e.Close)

	res, err := e.StartSession(context.Background(), "software engineer", "mid")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	fake.mu.Lock()
	fake.evalErr = errors.New("provider down")
	fake.mu.Unlock()

	_, err = e.SubmitAnswer(context.Background(), res.SessionID, AnswerRequest{Question: res.Question, Answer: "hello"})
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}

	snap, err := e.Snapshot(context.Background(), res.SessionID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.CurrentQuestion != "Q1?" || snap.Sequence != 1 {
		t.Fatalf("failed submit advanced state: %+v", snap)
	}

	// The same answer can be retried once the provider recovers.
	fake.mu.Lock()
	fake.evalErr = nil
	fake.mu.Unlock()

	answer, err := e.SubmitAnswer(context.Background(), res.SessionID, AnswerRequest{Question: res.Question, Answer: "hello"})
	if err != nil {
		t.Fatalf("retry SubmitAnswer: %v", err)
	}
	if answer.Record.Question != "Q1?" || answer.Sequence != 2 {
		t.Fatalf("unexpected retried result: %+v", answer)
	}
}

func TestEngineRefreshesMissingNextQuestion(t *testing.T) {
	fake := newFakeActivities()
	fake.questions = []string{"Q1?"}
	e, _ := newTestEngine(t, fake)

	res, err := e.StartSession(context.Background(), "software engineer", "mid")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	fake.mu.Lock()
	fake.failQuestions = 1
	fake.questions = []string{"Q2?"}
	fake.mu.Unlock()

	answer, err := e.SubmitAnswer(context.Background(), res.SessionID, AnswerRequest{Question: res.Question, Answer: "hello"})
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if answer.Sequence != 2 {
		t.Fatalf("sequence = %d, want 2", answer.Sequence)
	}

	snap := waitForSnapshot(t, e, res.SessionID, func(s session.Snapshot) bool {
		return s.CurrentQuestion == "Q2?"
	})
	if snap.Sequence != 2 {
		t.Fatalf("refresh bumped the sequence: %+v", snap)
	}
}

func TestEngineSerializesConcurrentSubmits(t *testing.T) {
	fake := newFakeActivities()
	fake.questions = []string{"Q1?", "Q2?", "Q3?"}
	e, st := newTestEngine(t, fake)

	res, err := e.StartSession(context.Background(), "software engineer", "mid")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.SubmitAnswer(context.Background(), res.SessionID, AnswerRequest{
				Question: "Q1?",
				Answer:   "concurrent answer",
			})
			if err != nil && !errors.Is(err, ErrNotAcceptingAnswers) {
				t.Errorf("SubmitAnswer: %v", err)
			}
		}()
	}
	wg.Wait()

	snap := waitForSnapshot(t, e, res.SessionID, func(s session.Snapshot) bool {
		return s.Sequence == 3
	})
	if snap.CurrentQuestion != "Q3?" {
		t.Fatalf("unexpected pending question: %+v", snap)
	}

	answers, err := st.ListAnswers(context.Background(), res.SessionID)
	if err != nil {
		t.Fatalf("ListAnswers: %v", err)
	}
	if len(answers) != 2 {
		t.Fatalf("expected 2 applied answers, got %d", len(answers))
	}
	// Serial application: the second answer saw the question produced by
	// the first, never the same stale one.
	if answers[0].Question != "Q1?" || answers[1].Question != "Q2?" {
		t.Fatalf("answers applied against stale questions: %q, %q", answers[0].Question, answers[1].Question)
	}
}

func TestEngineRehydratesFromStore(t *testing.T) {
	fake := newFakeActivities()
	fake.questions = []string{"Q2?"}
	st := store.NewInMemoryStore()
	fake.answers = st

	err := st.CreateSession(context.Background(), store.SessionRow{
		ID: "s1", Role: "software engineer", Seniority: "mid",
		Status: session.StatusActive, CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	err = st.SaveAnswer(context.Background(), "s1", 2, session.AnswerRecord{
		Question: "Q1?", Answer: "earlier answer",
		Evaluation: session.Evaluation{Overall: 6.5},
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("SaveAnswer: %v", err)
	}

	e := NewEngine(fake, st, PollConfig{Interval: time.Millisecond, Attempts: 500}, zap.NewNop(), nil)
	t.Cleanup(e.Close)

	snap, err := e.Snapshot(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Sequence != 2 || snap.LastRecord == nil || snap.LastRecord.Question != "Q1?" {
		t.Fatalf("rehydrated snapshot wrong: %+v", snap)
	}

	// The pending question is regenerated after rehydration, then answers
	// flow again.
	waitForSnapshot(t, e, "s1", func(s session.Snapshot) bool {
		return s.CurrentQuestion == "Q2?"
	})
	answer, err := e.SubmitAnswer(context.Background(), "s1", AnswerRequest{Question: "Q2?", Answer: "resumed"})
	if err != nil {
		t.Fatalf("SubmitAnswer after rehydration: %v", err)
	}
	if answer.Record.Question != "Q2?" || answer.Sequence != 3 {
		t.Fatalf("unexpected resumed result: %+v", answer)
	}
}

func TestEngineUnknownSession(t *testing.T) {
	fake := newFakeActivities()
	e, _ := newTestEngine(t, fake)

	_, err := e.Snapshot(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestEngineSubscribeReceivesEvents(t *testing.T) {
	fake := newFakeActivities()
	fake.questions = []string{"Q1?", "Q2?"}
	e, _ := newTestEngine(t, fake)

	res, err := e.StartSession(context.Background(), "software engineer", "mid")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	events, cancel := e.Subscribe(res.SessionID)
	defer cancel()

	if _, err := e.SubmitAnswer(context.Background(), res.SessionID, AnswerRequest{Question: "Q1?", Answer: "hello"}); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case evt := <-events:
			if evt.Type == EventAnswerRecorded {
				if evt.Record == nil || evt.Record.Question != "Q1?" {
					t.Fatalf("unexpected event payload: %+v", evt)
				}
				return
			}
		case <-deadline:
			t.Fatal("answer_recorded event not received")
		}
	}
}
