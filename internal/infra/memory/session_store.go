package memory

import (
	"context"
	"sort"
	"sync"

	"smong-quiz-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// Each session carries its own lock so updates on different ids never contend.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
}

type sessionEntry struct {
	mu      sync.Mutex
	session domain.QuizSession
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*sessionEntry),
	}
}

func (s *SessionStore) Create(_ context.Context, session domain.QuizSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; ok {
		return domain.ErrSessionExists
	}
	s.sessions[session.ID] = &sessionEntry{session: session.Clone()}
	return nil
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (domain.QuizSession, error) {
	entry, ok := s.entry(sessionID)
	if !ok {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.session.Clone(), nil
}

func (s *SessionStore) Update(_ context.Context, sessionID string, fn func(*domain.QuizSession) error) (domain.QuizSession, error) {
	entry, ok := s.entry(sessionID)
	if !ok {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	working := entry.session.Clone()
	if err := fn(&working); err != nil {
		return domain.QuizSession{}, err
	}
	entry.session = working
	return working.Clone(), nil
}

func (s *SessionStore) ListCompleted(_ context.Context, filter domain.CompletedFilter) ([]domain.QuizSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.QuizSession, 0)
	for _, entry := range s.sessions {
		entry.mu.Lock()
		// A completed record without a timestamp cannot be ordered; leave it out.
		if entry.session.CompletedAt != nil && filter.Matches(entry.session) {
			out = append(out, entry.session.Clone())
		}
		entry.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CompletedAt.Before(*out[j].CompletedAt)
	})
	return out, nil
}

func (s *SessionStore) entry(sessionID string) (*sessionEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.sessions[sessionID]
	return entry, ok
}
