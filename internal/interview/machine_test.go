package interview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/coachly/interviewd/internal/activity"
	"github.com/coachly/interviewd/internal/session"
	"github.com/coachly/interviewd/internal/store"
)

// fakeActivities is a scriptable activity set. Questions come from a
// queue; failure knobs make individual activities fail on demand.
type fakeActivities struct {
	mu sync.Mutex

	questions        []string
	nextQuestionID   int
	failQuestions    int
	evalErr          error
	feedbackErr      error
	embedErr         error
	persistErr       error
	summaryErr       error
	deliverErr       error
	answers          store.Store
	persisted        map[string]activity.Record
	deliveredEmails  []string
	evaluateStarted  chan struct{}
	evaluateRelease  chan struct{}
	questionRequests int
}

func newFakeActivities() *fakeActivities {
	return &fakeActivities{persisted: make(map[string]activity.Record)}
}

func (f *fakeActivities) GenerateQuestion(_ context.Context, _ activity.Key, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questionRequests++
	if f.failQuestions > 0 {
		f.failQuestions--
		return "", errors.New("question provider unavailable")
	}
	if len(f.questions) > 0 {
		q := f.questions[0]
		f.questions = f.questions[1:]
		return q, nil
	}
	f.nextQuestionID++
	return fmt.Sprintf("Generated question %d?", f.nextQuestionID), nil
}

func (f *fakeActivities) EvaluateAnswer(ctx context.Context, _ activity.Key, _, _ string) (session.Evaluation, error) {
	f.mu.Lock()
	started := f.evaluateStarted
	release := f.evaluateRelease
	err := f.evalErr
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return session.Evaluation{}, ctx.Err()
		}
	}
	if err != nil {
		return session.Evaluation{}, err
	}
	return session.Evaluation{
		Clarity:        7,
		Conciseness:    6,
		Confidence:     7,
		TechnicalDepth: 6,
		Overall:        6.5,
		Feedback:       "Clear story.",
		Suggestions:    "Quantify the outcome.",
	}, nil
}

func (f *fakeActivities) GenerateFeedback(_ context.Context, _ activity.Key, _ session.Evaluation) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.feedbackErr != nil {
		return "", f.feedbackErr
	}
	return "Nice work. Lead with the result next time.", nil
}

func (f *fakeActivities) EmbedAnswer(_ context.Context, _ activity.Key, _ string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeActivities) PersistRecord(ctx context.Context, key activity.Key, record activity.Record) error {
	f.mu.Lock()
	if f.persistErr != nil {
		err := f.persistErr
		f.mu.Unlock()
		return err
	}
	f.persisted[key.String()] = record
	answers := f.answers
	f.mu.Unlock()
	if answers != nil {
		return answers.SaveAnswer(ctx, record.SessionID, record.Seq, record.Answer)
	}
	return nil
}

func (f *fakeActivities) GenerateSummary(_ context.Context, _ activity.Key, history []session.AnswerRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.summaryErr != nil {
		return "", f.summaryErr
	}
	var overall float64
	for _, r := range history {
		overall += r.Evaluation.Overall
	}
	if len(history) > 0 {
		overall /= float64(len(history))
	}
	return fmt.Sprintf("Questions answered: %d, Avg Overall: %.1f", len(history), overall), nil
}

func (f *fakeActivities) DeliverSummary(_ context.Context, _ activity.Key, _, email, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deliverErr != nil {
		return f.deliverErr
	}
	f.deliveredEmails = append(f.deliveredEmails, email)
	return nil
}

func (f *fakeActivities) persistedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.persisted)
}

func activeSession(id string) session.Session {
	return session.Session{
		ID:              id,
		Role:            "software engineer",
		Seniority:       "mid",
		Status:          session.StatusActive,
		CurrentQuestion: "Q1?",
		Sequence:        1,
	}
}

func TestMachineInitialize(t *testing.T) {
	fake := newFakeActivities()
	fake.questions = []string{"Q1?"}
	m := newMachine(fake, zap.NewNop())

	sess, err := m.initialize(context.Background(), session.Session{ID: "s1", Role: "r", Seniority: "mid"})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if sess.Status != session.StatusActive || sess.CurrentQuestion != "Q1?" {
		t.Fatalf("unexpected session after initialize: %+v", sess)
	}
	if sess.Sequence != 1 {
		t.Fatalf("sequence = %d, want 1", sess.Sequence)
	}
}

func TestMachineInitializeFailureLeavesNoState(t *testing.T) {
	fake := newFakeActivities()
	fake.failQuestions = 1
	m := newMachine(fake, zap.NewNop())

	before := session.Session{ID: "s1", Role: "r", Seniority: "mid"}
	after, err := m.initialize(context.Background(), before)
	if err == nil {
		t.Fatal("expected initialize failure")
	}
	if after.Status != before.Status || after.Sequence != 0 || after.CurrentQuestion != "" {
		t.Fatalf("failed initialize mutated state: %+v", after)
	}
}

func TestMachineSubmitAppendsAndAdvances(t *testing.T) {
	fake := newFakeActivities()
	fake.questions = []string{"Q2?"}
	m := newMachine(fake, zap.NewNop())

	sess, result, err := m.submit(context.Background(), activeSession("s1"), AnswerRequest{Answer: "I led a migration."})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(sess.Answers) != 1 || sess.Answers[0].Question != "Q1?" {
		t.Fatalf("answer not appended: %+v", sess.Answers)
	}
	if sess.Sequence != 2 {
		t.Fatalf("sequence = %d, want 2", sess.Sequence)
	}
	if sess.CurrentQuestion != "Q2?" || result.NextQuestion != "Q2?" {
		t.Fatalf("next question not set: %q / %q", sess.CurrentQuestion, result.NextQuestion)
	}
	if result.Record.Friendly == "" || result.Record.Evaluation.Overall != 6.5 {
		t.Fatalf("record not built from pipeline: %+v", result.Record)
	}
	if _, ok := fake.persisted["s1:2"]; !ok {
		t.Fatalf("record not persisted under transition key: %v", fake.persisted)
	}
}

func TestMachineSubmitRejectsWithoutPendingQuestion(t *testing.T) {
	m := newMachine(newFakeActivities(), zap.NewNop())

	sess := activeSession("s1")
	sess.CurrentQuestion = ""
	_, _, err := m.submit(context.Background(), sess, AnswerRequest{Answer: "hello"})
	if !errors.Is(err, ErrNotAcceptingAnswers) {
		t.Fatalf("err = %v, want ErrNotAcceptingAnswers", err)
	}

	sess = activeSession("s1")
	sess.Status = session.StatusCompleted
	_, _, err = m.submit(context.Background(), sess, AnswerRequest{Answer: "hello"})
	if !errors.Is(err, ErrNotAcceptingAnswers) {
		t.Fatalf("err = %v, want ErrNotAcceptingAnswers", err)
	}
}

func TestMachineSubmitAbortLeavesSessionUntouched(t *testing.T) {
	fake := newFakeActivities()
	fake.evalErr = errors.New("provider down")
	m := newMachine(fake, zap.NewNop())

	before := activeSession("s1")
	after, _, err := m.submit(context.Background(), before, AnswerRequest{Answer: "hello"})
	if err == nil {
		t.Fatal("expected submit failure")
	}
	if after.CurrentQuestion != before.CurrentQuestion {
		t.Fatalf("pending question changed: %q -> %q", before.CurrentQuestion, after.CurrentQuestion)
	}
	if after.Sequence != before.Sequence || len(after.Answers) != 0 {
		t.Fatalf("failed submit mutated state: %+v", after)
	}
	if fake.persistedCount() != 0 {
		t.Fatalf("failed submit persisted a record")
	}
}

func TestMachineSubmitEmbeddingFailureIsNonFatal(t *testing.T) {
	fake := newFakeActivities()
	fake.embedErr = errors.New("embedding provider down")
	m := newMachine(fake, zap.NewNop())

	_, result, err := m.submit(context.Background(), activeSession("s1"), AnswerRequest{Answer: "hello world"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Record.Embedding != nil {
		t.Fatalf("expected absent embedding, got %v", result.Record.Embedding)
	}
	if result.Record.Evaluation.Overall != 6.5 {
		t.Fatalf("evaluation pipeline affected by embedding failure: %+v", result.Record)
	}
}

func TestMachineSubmitNextQuestionFailureStillCommits(t *testing.T) {
	fake := newFakeActivities()
	m := newMachine(fake, zap.NewNop())
	sess := activeSession("s1")
	fake.mu.Lock()
	fake.failQuestions = 1
	fake.mu.Unlock()

	after, result, err := m.submit(context.Background(), sess, AnswerRequest{Answer: "hello"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if after.Sequence != 2 || len(after.Answers) != 1 {
		t.Fatalf("answer not committed: %+v", after)
	}
	if after.CurrentQuestion != "" || result.NextQuestion != "" {
		t.Fatalf("expected no pending question, got %q", after.CurrentQuestion)
	}
}

func TestMachineCompleteIsIdempotent(t *testing.T) {
	fake := newFakeActivities()
	m := newMachine(fake, zap.NewNop())

	sess := activeSession("s1")
	sess.Answers = []session.AnswerRecord{{Evaluation: session.Evaluation{Overall: 6.5}}}
	sess.Sequence = 2

	sess, first, err := m.complete(context.Background(), sess, "dev@example.com")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if sess.Status != session.StatusCompleted || sess.CompletedAt == nil {
		t.Fatalf("session not completed: %+v", sess)
	}
	if sess.Sequence != 3 {
		t.Fatalf("sequence = %d, want 3", sess.Sequence)
	}
	if len(fake.deliveredEmails) != 1 || fake.deliveredEmails[0] != "dev@example.com" {
		t.Fatalf("summary not delivered: %v", fake.deliveredEmails)
	}

	sess, second, err := m.complete(context.Background(), sess, "dev@example.com")
	if err != nil {
		t.Fatalf("second complete: %v", err)
	}
	if second.Summary != first.Summary || sess.Sequence != 3 {
		t.Fatalf("second completion was not a no-op: %+v", second)
	}
	if len(fake.deliveredEmails) != 1 {
		t.Fatalf("summary delivered twice: %v", fake.deliveredEmails)
	}
}

func TestMachineCompleteDeliveryFailureDoesNotRevert(t *testing.T) {
	fake := newFakeActivities()
	fake.deliverErr = errors.New("webhook down")
	m := newMachine(fake, zap.NewNop())

	sess, result, err := m.complete(context.Background(), activeSession("s1"), "dev@example.com")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if sess.Status != session.StatusCompleted || result.Summary == "" {
		t.Fatalf("delivery failure reverted completion: %+v", sess)
	}
}
