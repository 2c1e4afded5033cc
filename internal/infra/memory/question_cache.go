package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"skill-assessment-service/internal/domain"
)

// QuestionLoader fetches question items from a backing store (e.g., Postgres).
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, skill string, difficulty domain.Difficulty) ([]domain.QuestionItem, error)
}

// QuestionCache caches question buckets with TTL to avoid repeated DB hits.
type QuestionCache struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedBucket
}

type cachedBucket struct {
	items     []domain.QuestionItem
	expiresAt time.Time
}

func NewQuestionCache(loader QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedBucket),
	}
}

// Questions returns the bucket for skill and difficulty. Callers get their own slice.
func (c *QuestionCache) Questions(ctx context.Context, skill string, difficulty domain.Difficulty) ([]domain.QuestionItem, error) {
	key := bucketKey(skill, difficulty)
	if items, ok := c.lookup(key); ok {
		return items, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		if items, ok := c.lookup(key); ok {
			return items, nil
		}
		items, err := c.loader.LoadQuestions(ctx, skill, difficulty)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cache[key] = cachedBucket{
			items:     items,
			expiresAt: c.clock().Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneItems(result.([]domain.QuestionItem)), nil
}

// Counts delegates to the loader when it can report inventory.
func (c *QuestionCache) Counts(ctx context.Context) (map[string]map[domain.Difficulty]int, error) {
	counter, ok := c.loader.(interface {
		Counts(ctx context.Context) (map[string]map[domain.Difficulty]int, error)
	})
	if !ok {
		return nil, errNoCounts
	}
	return counter.Counts(ctx)
}

// Invalidate drops every cached bucket.
func (c *QuestionCache) Invalidate() {
	c.mu.Lock()
	c.cache = make(map[string]cachedBucket)
	c.mu.Unlock()
}

func (c *QuestionCache) lookup(key string) ([]domain.QuestionItem, bool) {
	now := c.clock()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if entry, ok := c.cache[key]; ok && entry.expiresAt.After(now) {
		return cloneItems(entry.items), true
	}
	return nil, false
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func bucketKey(skill string, difficulty domain.Difficulty) string {
	return skill + "\x00" + string(difficulty)
}

func cloneItems(items []domain.QuestionItem) []domain.QuestionItem {
	out := make([]domain.QuestionItem, len(items))
	copy(out, items)
	return out
}
