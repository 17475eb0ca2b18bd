package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/coachly/interviewd/internal/session"
)

// InMemoryStore is a simple in-process store for local/dev use and tests.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]SessionRow
	answers  map[string]map[uint64]session.AnswerRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]SessionRow),
		answers:  make(map[string]map[uint64]session.AnswerRecord),
	}
}

func (s *InMemoryStore) CreateSession(_ context.Context, row SessionRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if _, exists := s.sessions[row.ID]; exists {
		return nil
	}
	s.sessions[row.ID] = row
	return nil
}

func (s *InMemoryStore) GetSession(_ context.Context, sessionID string) (SessionRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.sessions[sessionID]
	if !ok {
		return SessionRow{}, ErrNotFound
	}
	return row, nil
}

func (s *InMemoryStore) CompleteSession(_ context.Context, sessionID, summary string, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	row.Status = session.StatusCompleted
	row.Summary = summary
	row.CompletedAt = &completedAt
	s.sessions[sessionID] = row
	return nil
}

func (s *InMemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	delete(s.answers, sessionID)
	return nil
}

func (s *InMemoryStore) SaveAnswer(_ context.Context, sessionID string, seq uint64, record session.AnswerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	bySeq, ok := s.answers[sessionID]
	if !ok {
		bySeq = make(map[uint64]session.AnswerRecord)
		s.answers[sessionID] = bySeq
	}
	// Upsert by key, not blind insert: a retry with the same key overwrites.
	bySeq[seq] = record
	return nil
}

func (s *InMemoryStore) ListAnswers(_ context.Context, sessionID string) ([]session.AnswerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bySeq := s.answers[sessionID]
	if len(bySeq) == 0 {
		return nil, nil
	}
	seqs := make([]uint64, 0, len(bySeq))
	for seq := range bySeq {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	out := make([]session.AnswerRecord, 0, len(seqs))
	for _, seq := range seqs {
		out = append(out, bySeq[seq])
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
