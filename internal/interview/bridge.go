package interview

import (
	"context"
	"time"

	"github.com/coachly/interviewd/internal/observability"
	"github.com/coachly/interviewd/internal/session"
)

// PollConfig bounds the wait for a signal's effect to become observable.
type PollConfig struct {
	Interval time.Duration
	Attempts int
}

func (c *PollConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 300 * time.Millisecond
	}
	if c.Attempts <= 0 {
		c.Attempts = 20
	}
}

// awaitSequence polls snapshots until one carries a sequence strictly
// greater than seq0, proving the signal sent after seq0 was applied. A
// presence check on the current question cannot make that distinction
// under retries, which is why correlation is by sequence number.
func awaitSequence(ctx context.Context, poll func(context.Context) (session.Snapshot, error), seq0 uint64, cfg PollConfig, metrics *observability.Metrics) (session.Snapshot, error) {
	return awaitSnapshot(ctx, poll, func(s session.Snapshot) bool {
		return s.Sequence > seq0
	}, cfg, metrics)
}

// awaitSnapshot polls until ready reports true for a snapshot, the
// context ends, or the budget runs out. Exhausting the budget yields
// ErrNotReady, which is backpressure rather than failure.
func awaitSnapshot(ctx context.Context, poll func(context.Context) (session.Snapshot, error), ready func(session.Snapshot) bool, cfg PollConfig, metrics *observability.Metrics) (session.Snapshot, error) {
	cfg.applyDefaults()

	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		snap, err := poll(ctx)
		if err != nil {
			return session.Snapshot{}, err
		}
		if ready(snap) {
			if metrics != nil {
				metrics.BridgeWaitAttempts.Observe(float64(attempt))
			}
			return snap, nil
		}
		if attempt == cfg.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return session.Snapshot{}, ctx.Err()
		case <-time.After(cfg.Interval):
		}
	}

	if metrics != nil {
		metrics.BridgeTimeouts.Inc()
	}
	return session.Snapshot{}, ErrNotReady
}
