package app

import (
	"context"
	"time"

	"skill-assessment-service/internal/domain"
	"skill-assessment-service/internal/reference"
)

// ScoreSet is everything one recompute produced for a student. It is written as a unit.
type ScoreSet struct {
	StudentID       string
	SnapshotVersion int64
	Courses         []domain.CourseRecord
	Evidence        []domain.EvidenceRecord
	Scores          []domain.SkillScore
	ComputedAt      time.Time
}

// ScoreRepository stores claimed scores with overwrite-on-recompute semantics.
type ScoreRepository interface {
	// ReplaceStudentScores swaps the student's courses, evidence and scores in one step;
	// readers see either the old set or the new one.
	ReplaceStudentScores(ctx context.Context, set ScoreSet) error
	ListScores(ctx context.Context, studentID string) ([]domain.SkillScore, error)
	Courses(ctx context.Context, studentID string) ([]domain.CourseRecord, error)
	Evidence(ctx context.Context, studentID string, tier domain.Tier, skill string) ([]domain.EvidenceRecord, error)
	// SnapshotVersion reports the reference version the student's scores were computed
	// against, or domain.ErrNoScores.
	SnapshotVersion(ctx context.Context, studentID string) (int64, error)
	// Students lists every student with stored scores.
	Students(ctx context.Context) ([]string, error)
}

// QuizRepository stores plans, attempts and final scores.
type QuizRepository interface {
	SavePlan(ctx context.Context, plan domain.QuizPlan) error
	GetPlan(ctx context.Context, planID string) (domain.QuizPlan, error)
	CreateAttempt(ctx context.Context, attempt domain.QuizAttempt) error
	GetAttempt(ctx context.Context, attemptID string) (domain.QuizAttempt, error)
	// CompleteAttempt marks an open attempt completed and replaces the student's final
	// scores atomically. It returns domain.ErrAttemptCompleted if the attempt was already
	// completed, including by a concurrent call.
	CompleteAttempt(ctx context.Context, attempt domain.QuizAttempt, finals []domain.FinalSkillScore) error
	SaveFinalScores(ctx context.Context, studentID string, finals []domain.FinalSkillScore) error
	ListFinalScores(ctx context.Context, studentID string) ([]domain.FinalSkillScore, error)
	// VerifiedScores returns, per skill, the verified score of the latest completed attempt covering it.
	VerifiedScores(ctx context.Context, studentID string) (map[string]float64, error)
}

// QuestionBank is the read-only question repository.
type QuestionBank interface {
	Questions(ctx context.Context, skill string, difficulty domain.Difficulty) ([]domain.QuestionItem, error)
}

// QuestionCounter is implemented by banks that can report their inventory.
type QuestionCounter interface {
	Counts(ctx context.Context) (map[string]map[domain.Difficulty]int, error)
}

// SubmissionGuard rejects duplicate submissions before any grading work is done.
// It is an early filter; QuizRepository.CompleteAttempt remains the authority.
type SubmissionGuard interface {
	Acquire(ctx context.Context, attemptID string) (bool, error)
	Release(ctx context.Context, attemptID string) error
}

// ReferenceSource hands out the current reference snapshot.
type ReferenceSource interface {
	Current() (*reference.Snapshot, error)
}
