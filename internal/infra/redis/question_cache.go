package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"skill-assessment-service/internal/domain"
)

// QuestionLoader fetches question items from a backing store (e.g., Postgres).
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, skill string, difficulty domain.Difficulty) ([]domain.QuestionItem, error)
}

// QuestionCache caches question buckets in Redis (hash per bucket) and falls back to a loader on cache miss.
// Items are stored as: HSET questions:{skill}:{difficulty} {questionID} {item json}
type QuestionCache struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuestionCache(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) Questions(ctx context.Context, skill string, difficulty domain.Difficulty) ([]domain.QuestionItem, error) {
	key := bucketKey(skill, difficulty)
	if items, ok := c.fromCache(ctx, key); ok {
		return items, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if items, ok := c.fromCache(ctx, key); ok {
			return items, nil
		}

		items, err := c.loader.LoadQuestions(ctx, skill, difficulty)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return items, nil
		}

		ttl := c.ttlWithJitter()
		pipe := c.client.Pipeline()
		for _, q := range items {
			raw, err := json.Marshal(q)
			if err != nil {
				return nil, fmt.Errorf("encode question %s: %w", q.ID, err)
			}
			pipe.HSet(ctx, key, q.ID, raw)
		}
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		_, _ = pipe.Exec(ctx)

		return items, nil
	})
	if err != nil {
		return nil, err
	}
	items := result.([]domain.QuestionItem)
	out := make([]domain.QuestionItem, len(items))
	copy(out, items)
	return out, nil
}

// Counts delegates to the loader when it can report inventory.
func (c *QuestionCache) Counts(ctx context.Context) (map[string]map[domain.Difficulty]int, error) {
	counter, ok := c.loader.(interface {
		Counts(ctx context.Context) (map[string]map[domain.Difficulty]int, error)
	})
	if !ok {
		return nil, fmt.Errorf("question loader does not report inventory")
	}
	return counter.Counts(ctx)
}

// Invalidate removes the cached bucket so the next read goes to the loader.
func (c *QuestionCache) Invalidate(ctx context.Context, skill string, difficulty domain.Difficulty) error {
	return c.client.Del(ctx, bucketKey(skill, difficulty)).Err()
}

// fromCache treats a Redis error like a miss; the loader is the source of truth.
func (c *QuestionCache) fromCache(ctx context.Context, key string) ([]domain.QuestionItem, bool) {
	fields, err := c.client.HGetAll(ctx, key).Result()
	if err != nil || len(fields) == 0 {
		return nil, false
	}
	items := make([]domain.QuestionItem, 0, len(fields))
	for _, raw := range fields {
		var q domain.QuestionItem
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return nil, false
		}
		items = append(items, q)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, true
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func bucketKey(skill string, difficulty domain.Difficulty) string {
	return "questions:" + skill + ":" + string(difficulty)
}
