package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"smong-quiz-service/internal/domain"
)

const defaultMaxRetries = 8

// SessionStore keeps sessions as JSON strings and indexes completed ones in a
// sorted set per quiz type scored by completion time in milliseconds.
//
//	SET  quiz:session:{sessionID}            {json}
//	ZADD quiz:completed:{quizType} {millis}  {sessionID}
//
// Update is optimistic: WATCH the session key, apply fn, MULTI/EXEC. A
// concurrent write aborts EXEC and the whole read-modify-write is retried.
type SessionStore struct {
	client     *redis.Client
	ttl        time.Duration
	maxRetries int
	logger     *slog.Logger
}

// NewSessionStore builds a store. ttl <= 0 keeps sessions forever.
func NewSessionStore(client *redis.Client, ttl time.Duration, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStore{
		client:     client,
		ttl:        ttl,
		maxRetries: defaultMaxRetries,
		logger:     logger,
	}
}

func (s *SessionStore) Create(ctx context.Context, session domain.QuizSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.sessionKey(session.ID), data, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrSessionExists
	}
	if session.Completed && session.CompletedAt != nil {
		return s.client.ZAdd(ctx, s.completedKey(session.QuizType), completedMember(session)).Err()
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (domain.QuizSession, error) {
	raw, err := s.client.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.QuizSession{}, err
	}
	return decodeSession(raw)
}

func (s *SessionStore) Update(ctx context.Context, sessionID string, fn func(*domain.QuizSession) error) (domain.QuizSession, error) {
	key := s.sessionKey(sessionID)
	var updated domain.QuizSession

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		session, err := decodeSession(raw)
		if err != nil {
			return err
		}
		wasCompleted := session.Completed
		if err := fn(&session); err != nil {
			return err
		}
		data, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, redis.KeepTTL)
			if session.Completed && !wasCompleted && session.CompletedAt != nil {
				pipe.ZAdd(ctx, s.completedKey(session.QuizType), completedMember(session))
			}
			return nil
		})
		if err != nil {
			return err
		}
		updated = session
		return nil
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return domain.QuizSession{}, err
	}
	return domain.QuizSession{}, fmt.Errorf("%w: session %s", domain.ErrConflict, sessionID)
}

func (s *SessionStore) ListCompleted(ctx context.Context, filter domain.CompletedFilter) ([]domain.QuizSession, error) {
	if filter.QuizType == "" {
		return nil, fmt.Errorf("%w: quizType is required", domain.ErrInvalidInput)
	}
	index := s.completedKey(filter.QuizType)
	rng := &redis.ZRangeBy{Min: "-inf", Max: "+inf"}
	if !filter.Since.IsZero() {
		rng.Min = strconv.FormatInt(filter.Since.UnixMilli(), 10)
	}
	ids, err := s.client.ZRangeByScore(ctx, index, rng).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []domain.QuizSession{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.sessionKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]domain.QuizSession, 0, len(values))
	var expired []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		session, err := decodeSession([]byte(raw))
		if err != nil {
			s.logger.WarnContext(ctx, "skipping unreadable session", "session_id", ids[i], "error", err)
			continue
		}
		if filter.Matches(session) {
			out = append(out, session)
		}
	}
	if len(expired) > 0 {
		if err := s.client.ZRem(ctx, index, expired...).Err(); err != nil {
			s.logger.WarnContext(ctx, "prune completed index failed", "quiz_type", filter.QuizType, "error", err)
		}
	}
	return out, nil
}

func (s *SessionStore) sessionKey(sessionID string) string {
	return "quiz:session:" + sessionID
}

func (s *SessionStore) completedKey(quizType string) string {
	return "quiz:completed:" + quizType
}

func completedMember(session domain.QuizSession) redis.Z {
	return redis.Z{Score: float64(session.CompletedAt.UnixMilli()), Member: session.ID}
}

func decodeSession(raw []byte) (domain.QuizSession, error) {
	var session domain.QuizSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return domain.QuizSession{}, fmt.Errorf("%w: %v", domain.ErrSessionCorrupt, err)
	}
	if session.Answers == nil {
		session.Answers = []domain.Answer{}
	}
	return session, nil
}
