package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"skill-assessment-service/internal/app"
	"skill-assessment-service/internal/domain"
)

// ScoreStore is an in-memory implementation of app.ScoreRepository.
type ScoreStore struct {
	mu   sync.RWMutex
	sets map[string]app.ScoreSet
}

func NewScoreStore() *ScoreStore {
	return &ScoreStore{sets: make(map[string]app.ScoreSet)}
}

func (s *ScoreStore) ReplaceStudentScores(_ context.Context, set app.ScoreSet) error {
	copied := app.ScoreSet{
		StudentID:       set.StudentID,
		SnapshotVersion: set.SnapshotVersion,
		Courses:         append([]domain.CourseRecord(nil), set.Courses...),
		Evidence:        append([]domain.EvidenceRecord(nil), set.Evidence...),
		Scores:          append([]domain.SkillScore(nil), set.Scores...),
		ComputedAt:      set.ComputedAt,
	}
	s.mu.Lock()
	s.sets[set.StudentID] = copied
	s.mu.Unlock()
	return nil
}

func (s *ScoreStore) ListScores(_ context.Context, studentID string) ([]domain.SkillScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.SkillScore(nil), s.sets[studentID].Scores...), nil
}

func (s *ScoreStore) Courses(_ context.Context, studentID string) ([]domain.CourseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.CourseRecord(nil), s.sets[studentID].Courses...), nil
}

func (s *ScoreStore) Evidence(_ context.Context, studentID string, tier domain.Tier, skill string) ([]domain.EvidenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.EvidenceRecord
	for _, ev := range s.sets[studentID].Evidence {
		if ev.Tier == tier && ev.SkillName == skill {
			out = append(out, ev)
		}
	}
	return out, nil
}

// SnapshotVersion reports which reference version the student's scores were computed against.
func (s *ScoreStore) SnapshotVersion(_ context.Context, studentID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.sets[studentID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrNoScores, studentID)
	}
	return set.SnapshotVersion, nil
}

// Students lists students with stored scores.
func (s *ScoreStore) Students(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.sets))
	for id := range s.sets {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
