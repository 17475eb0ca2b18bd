package session

import "time"

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Evaluation holds the structured scores produced for a single answer.
// Scores target a 0-10 range; the range is stated in the evaluator prompt
// but not enforced here.
type Evaluation struct {
	Clarity        float64 `json:"clarity"`
	Conciseness    float64 `json:"conciseness"`
	Confidence     float64 `json:"confidence"`
	TechnicalDepth float64 `json:"technical_depth"`
	Overall        float64 `json:"overall"`
	Feedback       string  `json:"feedback"`
	Suggestions    string  `json:"suggestions"`
}

// AnswerRecord is one fully-processed question/answer exchange. Records are
// immutable once appended to a session.
type AnswerRecord struct {
	Question   string     `json:"question"`
	Answer     string     `json:"answer"`
	Transcript string     `json:"transcript,omitempty"`
	Evaluation Evaluation `json:"evaluation"`
	Friendly   string     `json:"friendly"`
	Embedding  []float32  `json:"embedding,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Session is the aggregate state of one interview. The durable engine owns
// and serializes all mutation; everything handed out is a clone.
type Session struct {
	ID              string         `json:"session_id"`
	Role            string         `json:"role"`
	Seniority       string         `json:"seniority"`
	Status          Status         `json:"status"`
	CurrentQuestion string         `json:"current_question,omitempty"`
	Answers         []AnswerRecord `json:"answers"`
	Sequence        uint64         `json:"sequence"`
	Summary         string         `json:"summary,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
}

// Snapshot is a consistent point-in-time read of a session, safe to take
// concurrently with transitions.
type Snapshot struct {
	SessionID       string        `json:"session_id"`
	CurrentQuestion string        `json:"current_question,omitempty"`
	LastRecord      *AnswerRecord `json:"last_record,omitempty"`
	Status          Status        `json:"status"`
	Sequence        uint64        `json:"sequence"`
	Summary         string        `json:"summary,omitempty"`
}

// Clone returns a deep copy so callers never alias the engine-owned record.
func (s *Session) Clone() Session {
	c := *s
	if s.Answers != nil {
		c.Answers = make([]AnswerRecord, len(s.Answers))
		copy(c.Answers, s.Answers)
		for i := range c.Answers {
			c.Answers[i].Embedding = cloneVector(s.Answers[i].Embedding)
		}
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return c
}

// Snapshot builds a point-in-time view. Callers must hold whatever lock
// guards the session.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		SessionID:       s.ID,
		CurrentQuestion: s.CurrentQuestion,
		Status:          s.Status,
		Sequence:        s.Sequence,
		Summary:         s.Summary,
	}
	if n := len(s.Answers); n > 0 {
		last := s.Answers[n-1]
		last.Embedding = cloneVector(last.Embedding)
		snap.LastRecord = &last
	}
	return snap
}

func cloneVector(v []float32) []float32 {
	if v == nil {
		return nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
