package memory

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"smong-quiz-service/internal/domain"
)

func TestSessionStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	if err := store.Create(ctx, newSession("s1", "u1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, newSession("s1", "u1")); !errors.Is(err, domain.ErrSessionExists) {
		t.Fatalf("expected duplicate create to fail, got %v", err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	updated, err := store.Update(ctx, "s1", func(s *domain.QuizSession) error {
		s.Answers = append(s.Answers, domain.Answer{QuestionID: "q1", ChoiceID: "a", Points: 10})
		s.Score += 10
		s.CurrentQuestion++
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Score != 10 || updated.CurrentQuestion != 1 {
		t.Fatalf("unexpected updated session %+v", updated)
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(got, updated) {
		t.Fatalf("stored session differs from update result:\n%+v\n%+v", got, updated)
	}
}

func TestSessionStoreRejectedUpdateLeavesRecord(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	_ = store.Create(ctx, newSession("s1", "u1"))
	before, _ := store.Get(ctx, "s1")

	_, err := store.Update(ctx, "s1", func(s *domain.QuizSession) error {
		s.Score = 99
		s.Answers = append(s.Answers, domain.Answer{QuestionID: "q1"})
		return domain.ErrInvalidChoice
	})
	if !errors.Is(err, domain.ErrInvalidChoice) {
		t.Fatalf("expected invalid choice, got %v", err)
	}
	after, _ := store.Get(ctx, "s1")
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("rejected update mutated record:\n%+v\n%+v", before, after)
	}
}

func TestSessionStoreSerializesUpdatesPerSession(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	_ = store.Create(ctx, newSession("s1", "u1"))

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Update(ctx, "s1", func(s *domain.QuizSession) error {
				s.Score++
				return nil
			})
		}()
	}
	wg.Wait()

	got, _ := store.Get(ctx, "s1")
	if got.Score != workers {
		t.Fatalf("expected %d serialized increments, got %d", workers, got.Score)
	}
}

func TestSessionStoreUpdatesOnDifferentSessionsDoNotBlock(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	_ = store.Create(ctx, newSession("s1", "u1"))
	_ = store.Create(ctx, newSession("s2", "u2"))

	inner := make(chan error, 1)
	_, err := store.Update(ctx, "s1", func(s *domain.QuizSession) error {
		go func() {
			_, err := store.Update(ctx, "s2", func(s *domain.QuizSession) error {
				s.Score = 5
				return nil
			})
			inner <- err
		}()
		select {
		case err := <-inner:
			return err
		case <-time.After(time.Second):
			return errors.New("update on s2 blocked while s1 was held")
		}
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := store.Get(ctx, "s2")
	if got.Score != 5 {
		t.Fatalf("expected s2 updated, got %+v", got)
	}
}

func TestSessionStoreListCompletedSkipsMissingTimestamp(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	good := completedSession("good", "u1", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	broken := completedSession("broken", "u2", time.Time{})
	broken.CompletedAt = nil
	for _, s := range []domain.QuizSession{good, broken} {
		if err := store.Create(ctx, s); err != nil {
			t.Fatalf("create %s: %v", s.ID, err)
		}
	}

	got, err := store.ListCompleted(ctx, domain.CompletedFilter{QuizType: "quiz"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "good" {
		t.Fatalf("expected only the timestamped record, got %+v", got)
	}
}

func TestSessionStoreListCompleted(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	old := completedSession("old", "u1", base.Add(-48*time.Hour))
	recent := completedSession("recent", "u2", base)
	other := completedSession("other", "u1", base)
	other.QuizType = "other-quiz"
	for _, s := range []domain.QuizSession{old, recent, other, newSession("open", "u3")} {
		if err := store.Create(ctx, s); err != nil {
			t.Fatalf("create %s: %v", s.ID, err)
		}
	}

	all, _ := store.ListCompleted(ctx, domain.CompletedFilter{QuizType: "quiz"})
	if len(all) != 2 || all[0].ID != "old" || all[1].ID != "recent" {
		t.Fatalf("unexpected completed sessions %+v", all)
	}
	since, _ := store.ListCompleted(ctx, domain.CompletedFilter{QuizType: "quiz", Since: base.Add(-time.Hour)})
	if len(since) != 1 || since[0].ID != "recent" {
		t.Fatalf("unexpected filtered sessions %+v", since)
	}
	byUser, _ := store.ListCompleted(ctx, domain.CompletedFilter{QuizType: "quiz", UserID: "u1"})
	if len(byUser) != 1 || byUser[0].ID != "old" {
		t.Fatalf("unexpected user sessions %+v", byUser)
	}
}

func newSession(id, userID string) domain.QuizSession {
	return domain.QuizSession{
		ID:        id,
		UserID:    userID,
		QuizType:  "quiz",
		Answers:   []domain.Answer{},
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func completedSession(id, userID string, at time.Time) domain.QuizSession {
	s := newSession(id, userID)
	s.Answers = []domain.Answer{{QuestionID: "q1", ChoiceID: "a", Correct: true, Points: 10, AnsweredAt: at}}
	s.Score = 10
	s.CurrentQuestion = 1
	s.Completed = true
	s.CompletedAt = &at
	return s
}
