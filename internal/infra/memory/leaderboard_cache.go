package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"smong-quiz-service/internal/domain"
)

// LeaderboardCache caches ranked leaderboards with TTL to avoid rescanning sessions.
type LeaderboardCache struct {
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group
	rnd   *rand.Rand
	rndMu sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedLeaderboard
	// gens advances on Invalidate so loads that started earlier are not stored.
	gens map[string]uint64
}

type cachedLeaderboard struct {
	entries   []domain.LeaderboardEntry
	expiresAt time.Time
}

func NewLeaderboardCache(ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{
		ttl:   ttl,
		clock: time.Now,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		cache: make(map[string]cachedLeaderboard),
		gens:  make(map[string]uint64),
	}
}

func (c *LeaderboardCache) Fetch(ctx context.Context, quizType string, tf domain.Timeframe, load func(context.Context) ([]domain.LeaderboardEntry, error)) ([]domain.LeaderboardEntry, error) {
	key := cacheKey(quizType, tf)
	if entries, ok := c.lookup(key); ok {
		return entries, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		if entries, ok := c.lookup(key); ok {
			return entries, nil
		}
		c.mu.RLock()
		gen := c.gens[key]
		c.mu.RUnlock()

		entries, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if c.ttl > 0 {
			c.mu.Lock()
			if c.gens[key] == gen {
				c.cache[key] = cachedLeaderboard{
					entries:   entries,
					expiresAt: c.clock().Add(c.ttlWithJitter()),
				}
			}
			c.mu.Unlock()
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return copyEntries(result.([]domain.LeaderboardEntry)), nil
}

// Invalidate drops every cached timeframe of a quiz type.
func (c *LeaderboardCache) Invalidate(_ context.Context, quizType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tf := range domain.Timeframes {
		key := cacheKey(quizType, tf)
		delete(c.cache, key)
		c.gens[key]++
		c.sf.Forget(key)
	}
}

func (c *LeaderboardCache) lookup(key string) ([]domain.LeaderboardEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[key]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return nil, false
	}
	return copyEntries(entry.entries), true
}

func (c *LeaderboardCache) ttlWithJitter() time.Duration {
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func cacheKey(quizType string, tf domain.Timeframe) string {
	return quizType + ":" + string(tf)
}

func copyEntries(in []domain.LeaderboardEntry) []domain.LeaderboardEntry {
	out := make([]domain.LeaderboardEntry, len(in))
	copy(out, in)
	return out
}
