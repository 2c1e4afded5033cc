package quiz

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"skill-assessment-service/internal/domain"
)

// Bank is the read-only question repository, filterable by skill and difficulty.
type Bank interface {
	Questions(ctx context.Context, skill string, difficulty domain.Difficulty) ([]domain.QuestionItem, error)
}

// Draw is the outcome of sampling a plan.
type Draw struct {
	Questions  []domain.QuestionItem
	Shortfalls []domain.Shortfall
}

// Sampler draws questions at random without repetition within one attempt.
type Sampler struct {
	bank Bank

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSampler(bank Bank) *Sampler {
	return NewSamplerWithSource(bank, rand.NewSource(time.Now().UnixNano()))
}

// NewSamplerWithSource lets tests fix the random sequence.
func NewSamplerWithSource(bank Bank, src rand.Source) *Sampler {
	return &Sampler{bank: bank, rnd: rand.New(src)}
}

// Draw samples every (skill, difficulty) bucket of the plan. A bucket the bank cannot
// fill is drawn in full and recorded as a shortfall; other difficulties are not used
// to top it up. A plan that yields no questions at all fails.
func (s *Sampler) Draw(ctx context.Context, plan domain.QuizPlan) (Draw, error) {
	var out Draw
	used := make(map[string]struct{})
	for _, skill := range plan.Skills {
		for _, diff := range domain.Difficulties {
			want := skill.Distribution.Count(diff)
			if want == 0 {
				continue
			}
			pool, err := s.bank.Questions(ctx, skill.SkillName, diff)
			if err != nil {
				return Draw{}, fmt.Errorf("load %s/%s questions: %w", skill.SkillName, diff, err)
			}
			available := make([]domain.QuestionItem, 0, len(pool))
			for _, q := range pool {
				if _, dup := used[q.ID]; dup {
					continue
				}
				available = append(available, q)
			}
			picked := s.pick(available, want)
			for _, q := range picked {
				used[q.ID] = struct{}{}
			}
			out.Questions = append(out.Questions, picked...)
			if len(picked) < want {
				out.Shortfalls = append(out.Shortfalls, domain.Shortfall{
					SkillName:  skill.SkillName,
					Difficulty: diff,
					Requested:  want,
					Drawn:      len(picked),
					Missing:    want - len(picked),
				})
			}
		}
	}
	if len(out.Questions) == 0 {
		return Draw{}, domain.ErrNoQuestionsAvailable
	}
	return out, nil
}

func (s *Sampler) pick(pool []domain.QuestionItem, n int) []domain.QuestionItem {
	s.mu.Lock()
	s.rnd.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	s.mu.Unlock()
	if n > len(pool) {
		n = len(pool)
	}
	return pool[:n]
}
