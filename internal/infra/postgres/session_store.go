package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"smong-quiz-service/internal/domain"
)

const sessionColumns = `session_id, user_id, anonymous, quiz_type, current_question, score, answers, completed, created_at, completed_at`

// SessionStore persists sessions in quiz_sessions. Update serializes writers
// with SELECT ... FOR UPDATE inside a transaction.
type SessionStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewSessionStore(pool *pgxpool.Pool, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStore{pool: pool, logger: logger}
}

func (s *SessionStore) Create(ctx context.Context, session domain.QuizSession) error {
	answers, err := json.Marshal(answersOrEmpty(session.Answers))
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO quiz_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10)
		ON CONFLICT (session_id) DO NOTHING`,
		session.ID, session.UserID, session.Anonymous, session.QuizType,
		session.CurrentQuestion, session.Score, string(answers),
		session.Completed, session.CreatedAt, session.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionExists
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (domain.QuizSession, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM quiz_sessions WHERE session_id=$1`, sessionID)
	return scanSession(row)
}

func (s *SessionStore) Update(ctx context.Context, sessionID string, fn func(*domain.QuizSession) error) (domain.QuizSession, error) {
	var updated domain.QuizSession
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM quiz_sessions WHERE session_id=$1 FOR UPDATE`, sessionID)
		session, err := scanSession(row)
		if err != nil {
			return err
		}
		if err := fn(&session); err != nil {
			return err
		}
		answers, err := json.Marshal(answersOrEmpty(session.Answers))
		if err != nil {
			return fmt.Errorf("marshal answers: %w", err)
		}
		_, err = tx.Exec(ctx, `
			UPDATE quiz_sessions
			SET current_question=$2, score=$3, answers=$4::jsonb, completed=$5, completed_at=$6
			WHERE session_id=$1`,
			session.ID, session.CurrentQuestion, session.Score, string(answers), session.Completed, session.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		updated = session
		return nil
	})
	if err != nil {
		return domain.QuizSession{}, err
	}
	return updated, nil
}

func (s *SessionStore) ListCompleted(ctx context.Context, filter domain.CompletedFilter) ([]domain.QuizSession, error) {
	if filter.QuizType == "" {
		return nil, fmt.Errorf("%w: quizType is required", domain.ErrInvalidInput)
	}
	var since *time.Time
	if !filter.Since.IsZero() {
		since = &filter.Since
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+sessionColumns+` FROM quiz_sessions
		WHERE completed AND quiz_type=$1
		  AND ($2::text = '' OR user_id=$2)
		  AND ($3::timestamptz IS NULL OR completed_at >= $3)
		ORDER BY completed_at, session_id`,
		filter.QuizType, filter.UserID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("list completed sessions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.QuizSession, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if errors.Is(err, domain.ErrSessionCorrupt) {
			s.logger.WarnContext(ctx, "skipping unreadable session", "error", err)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list completed sessions: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (domain.QuizSession, error) {
	var (
		session     domain.QuizSession
		answers     []byte
		completedAt *time.Time
	)
	err := row.Scan(
		&session.ID, &session.UserID, &session.Anonymous, &session.QuizType,
		&session.CurrentQuestion, &session.Score, &answers,
		&session.Completed, &session.CreatedAt, &completedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.QuizSession{}, fmt.Errorf("scan session: %w", err)
	}
	if err := json.Unmarshal(answers, &session.Answers); err != nil {
		return domain.QuizSession{}, fmt.Errorf("%w: session %s answers: %v", domain.ErrSessionCorrupt, session.ID, err)
	}
	session.Answers = answersOrEmpty(session.Answers)
	session.CreatedAt = session.CreatedAt.UTC()
	if completedAt != nil {
		t := completedAt.UTC()
		session.CompletedAt = &t
	}
	return session, nil
}

func answersOrEmpty(answers []domain.Answer) []domain.Answer {
	if answers == nil {
		return []domain.Answer{}
	}
	return answers
}
