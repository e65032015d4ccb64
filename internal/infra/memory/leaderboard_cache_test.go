package memory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"smong-quiz-service/internal/domain"
)

func TestLeaderboardCacheCaches(t *testing.T) {
	ctx := context.Background()
	cache := NewLeaderboardCache(time.Minute)
	loader := &countingLoader{entries: []domain.LeaderboardEntry{{Rank: 1, UserID: "u1", BestScore: 30}}}

	if _, err := cache.Fetch(ctx, "quiz", domain.TimeframeAll, loader.load); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	got, err := cache.Fetch(ctx, "quiz", domain.TimeframeAll, loader.load)
	if err != nil {
		t.Fatalf("fetch 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
	if len(got) != 1 || got[0].UserID != "u1" {
		t.Fatalf("unexpected cached entries %+v", got)
	}

	if _, err := cache.Fetch(ctx, "quiz", domain.TimeframeWeek, loader.load); err != nil {
		t.Fatalf("fetch week: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected timeframes cached separately, loader calls %d", loader.calls)
	}
}

func TestLeaderboardCacheInvalidate(t *testing.T) {
	ctx := context.Background()
	cache := NewLeaderboardCache(time.Minute)
	loader := &countingLoader{}

	_, _ = cache.Fetch(ctx, "quiz", domain.TimeframeAll, loader.load)
	cache.Invalidate(ctx, "quiz")
	_, _ = cache.Fetch(ctx, "quiz", domain.TimeframeAll, loader.load)
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidate, loader calls %d", loader.calls)
	}
}

func TestLeaderboardCacheExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewLeaderboardCache(time.Minute)
	cache.clock = func() time.Time { return now }
	loader := &countingLoader{}

	_, _ = cache.Fetch(ctx, "quiz", domain.TimeframeAll, loader.load)
	now = now.Add(2 * time.Minute)
	_, _ = cache.Fetch(ctx, "quiz", domain.TimeframeAll, loader.load)
	if loader.calls != 2 {
		t.Fatalf("expected reload after expiry, loader calls %d", loader.calls)
	}
}

func TestLeaderboardCacheDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	cache := NewLeaderboardCache(time.Minute)
	boom := errors.New("boom")
	calls := 0
	load := func(context.Context) ([]domain.LeaderboardEntry, error) {
		calls++
		return nil, boom
	}

	for i := 0; i < 2; i++ {
		if _, err := cache.Fetch(ctx, "quiz", domain.TimeframeAll, load); !errors.Is(err, boom) {
			t.Fatalf("expected load error, got %v", err)
		}
	}
	if calls != 2 {
		t.Fatalf("expected errors to bypass cache, calls %d", calls)
	}
}

type countingLoader struct {
	entries []domain.LeaderboardEntry
	calls   int
}

func (l *countingLoader) load(context.Context) ([]domain.LeaderboardEntry, error) {
	l.calls++
	return l.entries, nil
}

func TestLeaderboardCacheInvalidateDuringLoad(t *testing.T) {
	ctx := context.Background()
	cache := NewLeaderboardCache(time.Minute)
	started := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	load := func(context.Context) ([]domain.LeaderboardEntry, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
			<-release
			return []domain.LeaderboardEntry{{Rank: 1, UserID: "stale"}}, nil
		}
		return []domain.LeaderboardEntry{{Rank: 1, UserID: "fresh"}}, nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = cache.Fetch(ctx, "quiz", domain.TimeframeAll, load)
	}()
	<-started

	// A completion lands while the first load is still running.
	cache.Invalidate(ctx, "quiz")
	got, err := cache.Fetch(ctx, "quiz", domain.TimeframeAll, load)
	if err != nil {
		t.Fatalf("fetch after invalidate: %v", err)
	}
	if len(got) != 1 || got[0].UserID != "fresh" {
		t.Fatalf("expected a fresh load after invalidate, got %+v", got)
	}

	close(release)
	<-done
	got, err = cache.Fetch(ctx, "quiz", domain.TimeframeAll, load)
	if err != nil {
		t.Fatalf("fetch cached: %v", err)
	}
	if len(got) != 1 || got[0].UserID != "fresh" {
		t.Fatalf("stale load overwrote the cache: %+v", got)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("expected 2 loads, got %d", n)
	}
}
