package activity

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/coachly/interviewd/internal/observability"
	"github.com/coachly/interviewd/internal/reliability"
	"github.com/coachly/interviewd/internal/session"
)

// Timeout bands per activity class. Generation-class activities get the
// longer budget because they block on an LLM round trip.
const (
	GenerationTimeout = 60 * time.Second
	SideEffectTimeout = 30 * time.Second
)

// ExecutorConfig tunes the retry budget shared by all activities.
type ExecutorConfig struct {
	MaxRetries  int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

func (c *ExecutorConfig) applyDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 250 * time.Millisecond
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 4 * time.Second
	}
}

// Executor wraps an Activities implementation with per-invocation timeouts,
// bounded retries and failure typing. It implements Activities itself, so
// the state machine only ever sees the wrapped contract.
type Executor struct {
	inner   Activities
	cfg     ExecutorConfig
	log     *zap.Logger
	metrics *observability.Metrics
}

func NewExecutor(inner Activities, cfg ExecutorConfig, log *zap.Logger, metrics *observability.Metrics) *Executor {
	cfg.applyDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{inner: inner, cfg: cfg, log: log, metrics: metrics}
}

func (e *Executor) GenerateQuestion(ctx context.Context, key Key, role, seniority string) (string, error) {
	var out string
	err := e.run(ctx, NameGenerateQuestion, key, GenerationTimeout, func(ctx context.Context) error {
		var err error
		out, err = e.inner.GenerateQuestion(ctx, key, role, seniority)
		return err
	})
	return out, err
}

func (e *Executor) EvaluateAnswer(ctx context.Context, key Key, question, answer string) (session.Evaluation, error) {
	var out session.Evaluation
	err := e.run(ctx, NameEvaluateAnswer, key, GenerationTimeout, func(ctx context.Context) error {
		var err error
		out, err = e.inner.EvaluateAnswer(ctx, key, question, answer)
		return err
	})
	return out, err
}

func (e *Executor) GenerateFeedback(ctx context.Context, key Key, evaluation session.Evaluation) (string, error) {
	var out string
	err := e.run(ctx, NameGenerateFeedback, key, GenerationTimeout, func(ctx context.Context) error {
		var err error
		out, err = e.inner.GenerateFeedback(ctx, key, evaluation)
		return err
	})
	return out, err
}

func (e *Executor) EmbedAnswer(ctx context.Context, key Key, answer string) ([]float32, error) {
	var out []float32
	err := e.run(ctx, NameEmbedAnswer, key, SideEffectTimeout, func(ctx context.Context) error {
		var err error
		out, err = e.inner.EmbedAnswer(ctx, key, answer)
		return err
	})
	return out, err
}

func (e *Executor) PersistRecord(ctx context.Context, key Key, record Record) error {
	return e.run(ctx, NamePersistRecord, key, SideEffectTimeout, func(ctx context.Context) error {
		return e.inner.PersistRecord(ctx, key, record)
	})
}

func (e *Executor) GenerateSummary(ctx context.Context, key Key, history []session.AnswerRecord) (string, error) {
	var out string
	err := e.run(ctx, NameGenerateSummary, key, GenerationTimeout, func(ctx context.Context) error {
		var err error
		out, err = e.inner.GenerateSummary(ctx, key, history)
		return err
	})
	return out, err
}

func (e *Executor) DeliverSummary(ctx context.Context, key Key, sessionID, email, summary string) error {
	return e.run(ctx, NameDeliverSummary, key, SideEffectTimeout, func(ctx context.Context) error {
		return e.inner.DeliverSummary(ctx, key, sessionID, email, summary)
	})
}

func (e *Executor) run(ctx context.Context, name string, key Key, timeout time.Duration, fn func(context.Context) error) error {
	var lastErr error
	attempts := 0
	start := time.Now()

	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		attempts = attempt + 1
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		err := fn(attemptCtx)
		cancel()
		if err == nil {
			if e.metrics != nil {
				e.metrics.ObserveActivity(name, time.Since(start))
			}
			if attempt > 0 {
				e.log.Info("activity recovered after retries",
					zap.String("activity", name),
					zap.String("key", key.String()),
					zap.Int("attempts", attempts),
				)
			}
			return nil
		}
		lastErr = err

		if ctx.Err() != nil || !reliability.IsRetryableProviderError(err) {
			break
		}
		if attempt == e.cfg.MaxRetries {
			break
		}
		if e.metrics != nil {
			e.metrics.ActivityRetries.WithLabelValues(name).Inc()
		}
		backoff := reliability.ExponentialBackoff(attempt, e.cfg.BackoffBase, e.cfg.BackoffCap)
		e.log.Debug("activity retry",
			zap.String("activity", name),
			zap.String("key", key.String()),
			zap.Int("attempt", attempts),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return &Error{Name: name, Key: key, Attempts: attempts, Err: ctx.Err()}
		case <-time.After(backoff):
		}
	}

	if e.metrics != nil {
		e.metrics.ActivityFailures.WithLabelValues(name).Inc()
	}
	return &Error{Name: name, Key: key, Attempts: attempts, Err: lastErr}
}
