package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"skill-assessment-service/internal/domain"
)

var errNoCounts = errors.New("question loader does not report inventory")

// StaticQuestionBank is a simple bank backed by an in-memory slice (useful for tests/demos
// and for banks loaded from a YAML file).
type StaticQuestionBank struct {
	buckets map[string][]domain.QuestionItem
	counts  map[string]map[domain.Difficulty]int
}

func NewStaticQuestionBank(items []domain.QuestionItem) (*StaticQuestionBank, error) {
	b := &StaticQuestionBank{
		buckets: make(map[string][]domain.QuestionItem),
		counts:  make(map[string]map[domain.Difficulty]int),
	}
	seen := make(map[string]struct{}, len(items))
	for _, q := range items {
		if _, dup := seen[q.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %s", domain.ErrInvalidQuestion, q.ID)
		}
		seen[q.ID] = struct{}{}
		key := bucketKey(q.SkillName, q.Difficulty)
		b.buckets[key] = append(b.buckets[key], q)
		if b.counts[q.SkillName] == nil {
			b.counts[q.SkillName] = make(map[domain.Difficulty]int)
		}
		b.counts[q.SkillName][q.Difficulty]++
	}
	for key := range b.buckets {
		bucket := b.buckets[key]
		sort.Slice(bucket, func(i, j int) bool { return bucket[i].ID < bucket[j].ID })
	}
	return b, nil
}

func (b *StaticQuestionBank) Questions(_ context.Context, skill string, difficulty domain.Difficulty) ([]domain.QuestionItem, error) {
	return cloneItems(b.buckets[bucketKey(skill, difficulty)]), nil
}

// LoadQuestions lets the static bank sit behind a QuestionCache.
func (b *StaticQuestionBank) LoadQuestions(ctx context.Context, skill string, difficulty domain.Difficulty) ([]domain.QuestionItem, error) {
	return b.Questions(ctx, skill, difficulty)
}

func (b *StaticQuestionBank) Counts(_ context.Context) (map[string]map[domain.Difficulty]int, error) {
	out := make(map[string]map[domain.Difficulty]int, len(b.counts))
	for skill, byDiff := range b.counts {
		copied := make(map[domain.Difficulty]int, len(byDiff))
		for d, n := range byDiff {
			copied[d] = n
		}
		out[skill] = copied
	}
	return out, nil
}
