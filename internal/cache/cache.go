package cache

import (
	"context"
	"fmt"
	"time"
)

// QuestionCache pre-stages generated interview questions per
// (role, seniority). Pop must be atomic: two concurrent callers never
// receive the same question.
type QuestionCache interface {
	Pop(ctx context.Context, role, seniority string) (string, bool, error)
	Stage(ctx context.Context, role, seniority string, questions []string, ttl time.Duration) error
	Close() error
}

func questionKey(role, seniority string) string {
	return fmt.Sprintf("questions:%s:%s", role, seniority)
}
