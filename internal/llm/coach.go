package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/coachly/interviewd/internal/activity"
	"github.com/coachly/interviewd/internal/cache"
	"github.com/coachly/interviewd/internal/logger"
	"github.com/coachly/interviewd/internal/session"
	"github.com/coachly/interviewd/internal/store"
	"github.com/coachly/interviewd/internal/webhook"
)

const questionBatchSize = 3

// Coach implements the activity contract on top of the LLM client, the
// question cache, the answer store and the summary webhook.
type Coach struct {
	client   Client
	cache    cache.QuestionCache
	store    store.Store
	poster   *webhook.Poster
	cacheTTL time.Duration
	log      *zap.Logger
}

func NewCoach(client Client, questions cache.QuestionCache, answers store.Store, poster *webhook.Poster, cacheTTL time.Duration, log *zap.Logger) *Coach {
	if log == nil {
		log = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	return &Coach{
		client:   client,
		cache:    questions,
		store:    answers,
		poster:   poster,
		cacheTTL: cacheTTL,
		log:      log,
	}
}

// GenerateQuestion consults the pre-staged cache first; on a miss it
// generates a batch, returns the first question and stages the rest.
func (c *Coach) GenerateQuestion(ctx context.Context, _ activity.Key, role, seniority string) (string, error) {
	if c.cache != nil {
		q, ok, err := c.cache.Pop(ctx, role, seniority)
		if err != nil {
			c.log.Warn("question cache pop failed", zap.Error(err))
		} else if ok {
			return q, nil
		}
	}

	text, err := c.client.Generate(ctx, interviewerSystem, questionPrompt(role, seniority, questionBatchSize))
	if err != nil {
		return "", fmt.Errorf("generate questions: %w", err)
	}
	questions := parseQuestions(text, questionBatchSize)
	if len(questions) == 0 {
		return "", fmt.Errorf("generate questions: empty completion")
	}

	if c.cache != nil && len(questions) > 1 {
		if err := c.cache.Stage(ctx, role, seniority, questions[1:], c.cacheTTL); err != nil {
			c.log.Warn("question cache stage failed", zap.Error(err))
		}
	}
	return questions[0], nil
}

func (c *Coach) EvaluateAnswer(ctx context.Context, _ activity.Key, question, answer string) (session.Evaluation, error) {
	raw, err := c.client.Generate(ctx, evaluatorSystem, evaluationPrompt(question, answer))
	if err != nil {
		return session.Evaluation{}, fmt.Errorf("evaluate answer: %w", err)
	}
	// Malformed JSON is rescued, not propagated.
	return parseEvaluation(raw), nil
}

func (c *Coach) GenerateFeedback(ctx context.Context, _ activity.Key, evaluation session.Evaluation) (string, error) {
	text, err := c.client.Generate(ctx, feedbackSystem, feedbackPrompt(evaluation))
	if err != nil {
		return "", fmt.Errorf("generate feedback: %w", err)
	}
	return text, nil
}

func (c *Coach) EmbedAnswer(ctx context.Context, _ activity.Key, answer string) ([]float32, error) {
	vec, err := c.client.Embed(ctx, answer)
	if err != nil {
		return nil, fmt.Errorf("embed answer: %w", err)
	}
	return vec, nil
}

func (c *Coach) PersistRecord(ctx context.Context, key activity.Key, record activity.Record) error {
	if err := c.store.SaveAnswer(ctx, record.SessionID, record.Seq, record.Answer); err != nil {
		return fmt.Errorf("persist record %s: %w", key, err)
	}
	return nil
}

// GenerateSummary always produces the deterministic statistics block; the
// LLM closing note is best-effort on top.
func (c *Coach) GenerateSummary(ctx context.Context, _ activity.Key, history []session.AnswerRecord) (string, error) {
	stats := summaryStats(history)
	if len(history) == 0 {
		return stats, nil
	}
	note, err := c.client.Generate(ctx, summarySystem, summaryPrompt(stats))
	if err != nil {
		c.log.Warn("summary closing note failed", zap.Error(err))
		return stats, nil
	}
	return stats + "\n" + strings.TrimSpace(note), nil
}

func (c *Coach) DeliverSummary(ctx context.Context, _ activity.Key, sessionID, email, summary string) error {
	if !c.poster.Configured() {
		c.log.Info("summary webhook not configured, skipping delivery",
			zap.String("session_id", sessionID))
		return nil
	}
	c.log.Info("delivering session summary",
		zap.String("session_id", sessionID),
		zap.String("summary", logger.Truncate(summary, 120)))
	return c.poster.Post(ctx, webhook.Payload{SessionID: sessionID, Email: email, Summary: summary})
}

func summaryStats(history []session.AnswerRecord) string {
	if len(history) == 0 {
		return "No answers submitted."
	}
	var clarity, conciseness, confidence, depth, overall float64
	for _, r := range history {
		clarity += r.Evaluation.Clarity
		conciseness += r.Evaluation.Conciseness
		confidence += r.Evaluation.Confidence
		depth += r.Evaluation.TechnicalDepth
		overall += r.Evaluation.Overall
	}
	n := float64(len(history))
	return fmt.Sprintf(
		"Questions answered: %d\nAvg Clarity: %.1f, Conciseness: %.1f, Confidence: %.1f, Tech Depth: %.1f, Overall: %.1f",
		len(history), clarity/n, conciseness/n, confidence/n, depth/n, overall/n,
	)
}
