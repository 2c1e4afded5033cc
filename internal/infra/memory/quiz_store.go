package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"skill-assessment-service/internal/domain"
)

// QuizStore is an in-memory implementation of app.QuizRepository.
type QuizStore struct {
	mu       sync.RWMutex
	plans    map[string]domain.QuizPlan
	attempts map[string]domain.QuizAttempt
	finals   map[string][]domain.FinalSkillScore
}

func NewQuizStore() *QuizStore {
	return &QuizStore{
		plans:    make(map[string]domain.QuizPlan),
		attempts: make(map[string]domain.QuizAttempt),
		finals:   make(map[string][]domain.FinalSkillScore),
	}
}

func (s *QuizStore) SavePlan(_ context.Context, plan domain.QuizPlan) error {
	plan.Skills = append([]domain.PlannedSkill(nil), plan.Skills...)
	s.mu.Lock()
	s.plans[plan.ID] = plan
	s.mu.Unlock()
	return nil
}

func (s *QuizStore) GetPlan(_ context.Context, planID string) (domain.QuizPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	plan, ok := s.plans[planID]
	if !ok {
		return domain.QuizPlan{}, fmt.Errorf("%w: %s", domain.ErrPlanNotFound, planID)
	}
	return plan, nil
}

func (s *QuizStore) CreateAttempt(_ context.Context, attempt domain.QuizAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[attempt.QuizPlanID]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrPlanNotFound, attempt.QuizPlanID)
	}
	if _, exists := s.attempts[attempt.ID]; exists {
		return fmt.Errorf("attempt %s already exists", attempt.ID)
	}
	s.attempts[attempt.ID] = attempt
	return nil
}

func (s *QuizStore) GetAttempt(_ context.Context, attemptID string) (domain.QuizAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.QuizAttempt{}, fmt.Errorf("%w: %s", domain.ErrAttemptNotFound, attemptID)
	}
	return attempt, nil
}

// CompleteAttempt checks and flips the attempt status under one lock, so only the
// first of several concurrent submissions wins.
func (s *QuizStore) CompleteAttempt(_ context.Context, attempt domain.QuizAttempt, finals []domain.FinalSkillScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.attempts[attempt.ID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrAttemptNotFound, attempt.ID)
	}
	if current.Status == domain.AttemptCompleted {
		return domain.ErrAttemptCompleted
	}
	attempt.Status = domain.AttemptCompleted
	s.attempts[attempt.ID] = attempt
	s.finals[attempt.StudentID] = append([]domain.FinalSkillScore(nil), finals...)
	return nil
}

func (s *QuizStore) SaveFinalScores(_ context.Context, studentID string, finals []domain.FinalSkillScore) error {
	s.mu.Lock()
	s.finals[studentID] = append([]domain.FinalSkillScore(nil), finals...)
	s.mu.Unlock()
	return nil
}

func (s *QuizStore) ListFinalScores(_ context.Context, studentID string) ([]domain.FinalSkillScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.FinalSkillScore(nil), s.finals[studentID]...), nil
}

func (s *QuizStore) VerifiedScores(_ context.Context, studentID string) (map[string]float64, error) {
	s.mu.RLock()
	completed := make([]domain.QuizAttempt, 0)
	for _, a := range s.attempts {
		if a.StudentID == studentID && a.Status == domain.AttemptCompleted && a.CompletedAt != nil {
			completed = append(completed, a)
		}
	}
	s.mu.RUnlock()

	sort.Slice(completed, func(i, j int) bool {
		if !completed[i].CompletedAt.Equal(*completed[j].CompletedAt) {
			return completed[i].CompletedAt.Before(*completed[j].CompletedAt)
		}
		return completed[i].ID < completed[j].ID
	})
	out := make(map[string]float64)
	for _, a := range completed {
		for _, v := range a.VerifiedScores {
			out[v.SkillName] = v.VerifiedScore
		}
	}
	return out, nil
}
