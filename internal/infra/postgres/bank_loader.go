package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"smong-quiz-service/internal/domain"
)

// BankLoader loads question banks stored as JSONB in question_banks.
type BankLoader struct {
	pool *pgxpool.Pool
}

func NewBankLoader(pool *pgxpool.Pool) *BankLoader {
	return &BankLoader{pool: pool}
}

func (l *BankLoader) LoadBank(ctx context.Context, quizType string) (*domain.QuestionBank, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT questions FROM question_banks WHERE quiz_type=$1`, quizType).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", domain.ErrQuizNotFound, quizType)
	}
	if err != nil {
		return nil, fmt.Errorf("load question bank: %w", err)
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("%w: unmarshal question bank %q: %v", domain.ErrInvalidInput, quizType, err)
	}
	return domain.NewQuestionBank(quizType, questions)
}

// SaveBank upserts a bank so later loads see it.
func (l *BankLoader) SaveBank(ctx context.Context, bank *domain.QuestionBank) error {
	data, err := json.Marshal(bank.Questions())
	if err != nil {
		return fmt.Errorf("marshal question bank: %w", err)
	}
	_, err = l.pool.Exec(ctx, `
		INSERT INTO question_banks (quiz_type, questions, updated_at)
		VALUES ($1, $2::jsonb, now())
		ON CONFLICT (quiz_type) DO UPDATE SET questions=EXCLUDED.questions, updated_at=EXCLUDED.updated_at`,
		bank.QuizType(), string(data))
	if err != nil {
		return fmt.Errorf("save question bank: %w", err)
	}
	return nil
}
