package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"smong-quiz-service/internal/domain"
)

// LeaderboardCache stores ranked leaderboards as JSON and loads them on a miss.
// Entries live under quiz:leaderboard:{quizType}:{timeframe}.
type LeaderboardCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	genMu sync.Mutex
	gens  map[string]uint64
}

func NewLeaderboardCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *LeaderboardCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &LeaderboardCache{
		client: client,
		ttl:    ttl,
		logger: logger,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		gens:   make(map[string]uint64),
	}
}

func (c *LeaderboardCache) Fetch(ctx context.Context, quizType string, tf domain.Timeframe, load func(context.Context) ([]domain.LeaderboardEntry, error)) ([]domain.LeaderboardEntry, error) {
	key := c.key(quizType, tf)
	if entries, ok := c.read(ctx, key); ok {
		return entries, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another caller filled it.
		if entries, ok := c.read(ctx, key); ok {
			return entries, nil
		}
		gen := c.generation(key)
		entries, err := load(ctx)
		if err != nil {
			return nil, err
		}
		// Skip the write when this process invalidated the key mid-load.
		if ttl := c.ttlWithJitter(); ttl > 0 && c.generation(key) == gen {
			if data, err := json.Marshal(entries); err == nil {
				if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
					c.logger.WarnContext(ctx, "leaderboard cache write failed", "key", key, "error", err)
				}
			}
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.LeaderboardEntry), nil
}

func (c *LeaderboardCache) Invalidate(ctx context.Context, quizType string) {
	keys := make([]string, 0, len(domain.Timeframes))
	c.genMu.Lock()
	for _, tf := range domain.Timeframes {
		key := c.key(quizType, tf)
		keys = append(keys, key)
		c.gens[key]++
		c.sf.Forget(key)
	}
	c.genMu.Unlock()
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.WarnContext(ctx, "leaderboard cache invalidate failed", "quiz_type", quizType, "error", err)
	}
}

// read treats any Redis failure as a miss so the store stays the source of truth.
func (c *LeaderboardCache) read(ctx context.Context, key string) ([]domain.LeaderboardEntry, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "leaderboard cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	var entries []domain.LeaderboardEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, false
	}
	return entries, true
}

func (c *LeaderboardCache) generation(key string) uint64 {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	return c.gens[key]
}

func (c *LeaderboardCache) key(quizType string, tf domain.Timeframe) string {
	return "quiz:leaderboard:" + quizType + ":" + string(tf)
}

func (c *LeaderboardCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
