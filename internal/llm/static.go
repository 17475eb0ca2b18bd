package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync/atomic"
)

// Static is a deterministic offline client used when no API key is
// configured, and by tests. It dispatches on the system prompt the coach
// sends with each request.
type Static struct {
	counter atomic.Uint64
}

func NewStatic() *Static {
	return &Static{}
}

func (s *Static) Generate(_ context.Context, system, prompt string) (string, error) {
	switch system {
	case interviewerSystem:
		n := s.counter.Add(1)
		return fmt.Sprintf(
			"- Tell me about a technically challenging project you owned. (#%d)\n"+
				"- Describe a time you disagreed with a teammate and how it resolved. (#%d)\n"+
				"- How do you decide when a design is good enough to ship? (#%d)",
			n*3-2, n*3-1, n*3,
		), nil
	case evaluatorSystem:
		return `{"clarity": 7, "conciseness": 6, "confidence": 7, "technical_depth": 6, "overall": 6.5,` +
			` "feedback": "Clear narrative with a concrete outcome.", "suggestions": "Quantify the impact and name the trade-offs you weighed."}`, nil
	case feedbackSystem:
		return "Nice work: your answer told a complete story. Next time, lead with the result and give one number that shows the impact.", nil
	case summarySystem:
		return "Strong session overall. Keep practicing concise, outcome-first answers.", nil
	default:
		return "OK", nil
	}
}

func (s *Static) Embed(_ context.Context, text string) ([]float32, error) {
	// Stable pseudo-embedding so similarity plumbing can be exercised
	// without a provider.
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()
	out := make([]float32, 16)
	for i := range out {
		seed = seed*6364136223846793005 + 1442695040888963407
		out[i] = float32(int64(seed>>33)) / float32(1<<31)
	}
	return out, nil
}
