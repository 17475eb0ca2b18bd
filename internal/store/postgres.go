package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachly/interviewd/internal/session"
)

// PostgresStore persists sessions and answer records in PostgreSQL.
// Embeddings go into a pgvector column.
type PostgresStore struct {
	pool         *pgxpool.Pool
	embeddingDim int
}

func NewPostgresStore(ctx context.Context, databaseURL string, embeddingDim int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool, embeddingDim); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool, embeddingDim: embeddingDim}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool, embeddingDim int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector;`,
		`CREATE TABLE IF NOT EXISTS interview_sessions (
			id TEXT PRIMARY KEY,
			role TEXT NOT NULL,
			seniority TEXT NOT NULL,
			status TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ NULL
		);`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS interview_answers (
			session_id TEXT NOT NULL REFERENCES interview_sessions(id) ON DELETE CASCADE,
			seq BIGINT NOT NULL,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			transcript TEXT NOT NULL DEFAULT '',
			clarity DOUBLE PRECISION NOT NULL,
			conciseness DOUBLE PRECISION NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			technical_depth DOUBLE PRECISION NOT NULL,
			overall DOUBLE PRECISION NOT NULL,
			feedback TEXT NOT NULL DEFAULT '',
			suggestions TEXT NOT NULL DEFAULT '',
			friendly TEXT NOT NULL DEFAULT '',
			embedding vector(%d) NULL,
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (session_id, seq)
		);`, embeddingDim),
		`CREATE INDEX IF NOT EXISTS idx_interview_answers_session_created ON interview_answers (session_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, row SessionRow) error {
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO interview_sessions (id, role, seniority, status, summary, created_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		row.ID, row.Role, row.Seniority, string(row.Status), row.Summary, row.CreatedAt, row.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (SessionRow, error) {
	var (
		row    SessionRow
		status string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, role, seniority, status, summary, created_at, completed_at
		   FROM interview_sessions WHERE id=$1`,
		sessionID,
	).Scan(&row.ID, &row.Role, &row.Seniority, &status, &row.Summary, &row.CreatedAt, &row.CompletedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return SessionRow{}, ErrNotFound
		}
		return SessionRow{}, fmt.Errorf("get session: %w", err)
	}
	row.Status = session.Status(status)
	return row, nil
}

func (s *PostgresStore) CompleteSession(ctx context.Context, sessionID, summary string, completedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE interview_sessions SET status=$2, summary=$3, completed_at=$4 WHERE id=$1`,
		sessionID, string(session.StatusCompleted), summary, completedAt,
	)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM interview_sessions WHERE id=$1`, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// SaveAnswer upserts by (session_id, seq) so a retried persist activity
// with the same idempotency key never duplicates a record.
func (s *PostgresStore) SaveAnswer(ctx context.Context, sessionID string, seq uint64, record session.AnswerRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO interview_answers (
			session_id, seq, question, answer, transcript,
			clarity, conciseness, confidence, technical_depth, overall,
			feedback, suggestions, friendly, embedding, created_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14::vector,$15
		)
		ON CONFLICT (session_id, seq) DO UPDATE SET
			question=EXCLUDED.question,
			answer=EXCLUDED.answer,
			transcript=EXCLUDED.transcript,
			clarity=EXCLUDED.clarity,
			conciseness=EXCLUDED.conciseness,
			confidence=EXCLUDED.confidence,
			technical_depth=EXCLUDED.technical_depth,
			overall=EXCLUDED.overall,
			feedback=EXCLUDED.feedback,
			suggestions=EXCLUDED.suggestions,
			friendly=EXCLUDED.friendly,
			embedding=EXCLUDED.embedding,
			created_at=EXCLUDED.created_at`,
		sessionID,
		int64(seq),
		record.Question,
		record.Answer,
		record.Transcript,
		record.Evaluation.Clarity,
		record.Evaluation.Conciseness,
		record.Evaluation.Confidence,
		record.Evaluation.TechnicalDepth,
		record.Evaluation.Overall,
		record.Evaluation.Feedback,
		record.Evaluation.Suggestions,
		record.Friendly,
		vectorLiteral(record.Embedding),
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save answer: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAnswers(ctx context.Context, sessionID string) ([]session.AnswerRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT question, answer, transcript,
		        clarity, conciseness, confidence, technical_depth, overall,
		        feedback, suggestions, friendly, embedding::text, created_at
		   FROM interview_answers WHERE session_id=$1 ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	out := make([]session.AnswerRecord, 0, 8)
	for rows.Next() {
		var (
			r   session.AnswerRecord
			vec *string
		)
		if err := rows.Scan(
			&r.Question, &r.Answer, &r.Transcript,
			&r.Evaluation.Clarity, &r.Evaluation.Conciseness, &r.Evaluation.Confidence,
			&r.Evaluation.TechnicalDepth, &r.Evaluation.Overall,
			&r.Evaluation.Feedback, &r.Evaluation.Suggestions, &r.Friendly,
			&vec, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan answer row: %w", err)
		}
		if vec != nil {
			r.Embedding = parseVectorLiteral(*vec)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answer rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// vectorLiteral renders an embedding as the pgvector text input form
// "[x1,x2,...]"; nil embeddings map to SQL NULL.
func vectorLiteral(v []float32) *string {
	if v == nil {
		return nil
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	out := b.String()
	return &out
}

func parseVectorLiteral(s string) []float32 {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil
		}
		out = append(out, float32(f))
	}
	return out
}
