package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"smong-quiz-service/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS quiz_sessions (
    session_id       TEXT PRIMARY KEY,
    user_id          TEXT NOT NULL,
    anonymous        INTEGER NOT NULL DEFAULT 0,
    quiz_type        TEXT NOT NULL,
    current_question INTEGER NOT NULL DEFAULT 0,
    score            INTEGER NOT NULL DEFAULT 0,
    answers          TEXT NOT NULL DEFAULT '[]',
    completed        INTEGER NOT NULL DEFAULT 0,
    created_at       INTEGER NOT NULL,
    completed_at     INTEGER
);
CREATE INDEX IF NOT EXISTS quiz_sessions_completed_idx ON quiz_sessions (quiz_type, completed_at) WHERE completed = 1;
`

const sessionColumns = `session_id, user_id, anonymous, quiz_type, current_question, score, answers, completed, created_at, completed_at`

// SessionStore keeps sessions in a single SQLite file. Transactions begin
// IMMEDIATE so a writer holds the database lock from its first read.
type SessionStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(ctx context.Context, path string, logger *slog.Logger) (*SessionStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	// Immediate transactions take the database write lock at BEGIN, so writers
	// on different sessions queue behind each other for up to the busy timeout.
	db, err := sql.Open("sqlite3", "file:"+path+"?_txlock=immediate&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	logger.Info("sqlite session store ready", "path", path)
	return &SessionStore{db: db, logger: logger}, nil
}

func (s *SessionStore) Close() error {
	return s.db.Close()
}

func (s *SessionStore) Create(ctx context.Context, session domain.QuizSession) error {
	answers, err := json.Marshal(session.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO quiz_sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.UserID, session.Anonymous, session.QuizType,
		session.CurrentQuestion, session.Score, string(answers),
		session.Completed, session.CreatedAt.UnixNano(), nanos(session.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if n == 0 {
		return domain.ErrSessionExists
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (domain.QuizSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM quiz_sessions WHERE session_id = ?`, sessionID)
	return scanSession(row)
}

func (s *SessionStore) Update(ctx context.Context, sessionID string, fn func(*domain.QuizSession) error) (domain.QuizSession, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.QuizSession{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM quiz_sessions WHERE session_id = ?`, sessionID)
	session, err := scanSession(row)
	if err != nil {
		return domain.QuizSession{}, err
	}
	if err := fn(&session); err != nil {
		return domain.QuizSession{}, err
	}
	answers, err := json.Marshal(session.Answers)
	if err != nil {
		return domain.QuizSession{}, fmt.Errorf("marshal answers: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE quiz_sessions
		SET current_question = ?, score = ?, answers = ?, completed = ?, completed_at = ?
		WHERE session_id = ?`,
		session.CurrentQuestion, session.Score, string(answers), session.Completed, nanos(session.CompletedAt), session.ID,
	)
	if err != nil {
		return domain.QuizSession{}, fmt.Errorf("update session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.QuizSession{}, fmt.Errorf("commit: %w", err)
	}
	return session, nil
}

func (s *SessionStore) ListCompleted(ctx context.Context, filter domain.CompletedFilter) ([]domain.QuizSession, error) {
	if filter.QuizType == "" {
		return nil, fmt.Errorf("%w: quizType is required", domain.ErrInvalidInput)
	}
	query := `SELECT ` + sessionColumns + ` FROM quiz_sessions WHERE completed = 1 AND quiz_type = ?`
	args := []any{filter.QuizType}
	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if !filter.Since.IsZero() {
		query += ` AND completed_at >= ?`
		args = append(args, filter.Since.UnixNano())
	}
	query += ` ORDER BY completed_at, session_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
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
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (domain.QuizSession, error) {
	var (
		session     domain.QuizSession
		answers     string
		createdAt   int64
		completedAt sql.NullInt64
	)
	err := row.Scan(
		&session.ID, &session.UserID, &session.Anonymous, &session.QuizType,
		&session.CurrentQuestion, &session.Score, &answers,
		&session.Completed, &createdAt, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.QuizSession{}, fmt.Errorf("scan session: %w", err)
	}
	if err := json.Unmarshal([]byte(answers), &session.Answers); err != nil {
		return domain.QuizSession{}, fmt.Errorf("%w: session %s answers: %v", domain.ErrSessionCorrupt, session.ID, err)
	}
	if session.Answers == nil {
		session.Answers = []domain.Answer{}
	}
	session.CreatedAt = time.Unix(0, createdAt).UTC()
	if completedAt.Valid {
		t := time.Unix(0, completedAt.Int64).UTC()
		session.CompletedAt = &t
	}
	return session, nil
}

func nanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}
