package app_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skill-assessment-service/internal/app"
	"skill-assessment-service/internal/blend"
	"skill-assessment-service/internal/domain"
	"skill-assessment-service/internal/infra/memory"
	"skill-assessment-service/internal/matching"
	"skill-assessment-service/internal/quiz"
	"skill-assessment-service/internal/reference"
	"skill-assessment-service/internal/scoring"
)

type fixture struct {
	service *app.AssessmentService
	refs    *reference.Store
	scores  *memory.ScoreStore
	quizzes *memory.QuizStore
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	return newFixtureWith(t, memory.NewQuizStore(), nil)
}

// newFixtureWith lets a test put a wrapper in front of the quiz store the service uses.
func newFixtureWith(t *testing.T, quizzes *memory.QuizStore, repo app.QuizRepository) fixture {
	t.Helper()
	if repo == nil {
		repo = quizzes
	}
	refs := reference.NewStore(nil)
	refs.Swap(buildSnapshot(t, 0.35))

	pipeline, err := scoring.NewPipeline(scoring.Params{
		Grades: map[string]float64{
			"A+": 4.0, "A": 4.0, "A-": 3.7,
			"B+": 3.3, "B": 3.0, "B-": 2.7,
			"C+": 2.3, "C": 2.0, "F": 0,
		},
		MaxGradePoints: 4,
		DecayRate:      0.4,
		ConfidenceRate: 0.25,
		CurrentYear:    4,
		Levels:         domain.DefaultLevelThresholds(),
	})
	require.NoError(t, err)
	planner, err := quiz.NewPlanner(quiz.PlannerConfig{QuestionsPerSkill: 5, MaxSkills: 5})
	require.NoError(t, err)
	blender, err := blend.NewBlender(blend.DefaultWeights(), domain.DefaultLevelThresholds())
	require.NoError(t, err)
	matcher, err := matching.NewMatcher(matching.DefaultConfig())
	require.NoError(t, err)
	bank, err := memory.NewStaticQuestionBank(pythonQuestions())
	require.NoError(t, err)

	scores := memory.NewScoreStore()
	service, err := app.NewAssessmentService(app.Dependencies{
		Reference: refs,
		Scores:    scores,
		Quizzes:   repo,
		Bank:      memory.NewQuestionCache(bank, 0),
		Guard:     memory.NewSubmissionGuard(),
		Pipeline:  pipeline,
		Planner:   planner,
		Blender:   blender,
		Matcher:   matcher,
	})
	require.NoError(t, err)
	return fixture{service: service, refs: refs, scores: scores, quizzes: quizzes}
}

func buildSnapshot(t *testing.T, weight float64) *reference.Snapshot {
	t.Helper()
	courses, err := reference.NewMappingTable("course_skills", []domain.MappingEntry{
		{Source: "IT1090", Target: "Python", Weight: weight},
		{Source: "IT2040", Target: "Python", Weight: weight},
	})
	require.NoError(t, err)
	parents, err := reference.NewMappingTable("child_to_parent", []domain.MappingEntry{
		{Source: "Python", Target: "Programming", Weight: 1},
	})
	require.NoError(t, err)
	jobs, err := reference.NewMappingTable("child_to_job", []domain.MappingEntry{
		{Source: "Python", Target: "Backend Development", Weight: 0.8},
	})
	require.NoError(t, err)
	snap, err := reference.NewSnapshot("test", courses, parents, jobs, []domain.JobRequirement{
		{JobID: "backend", Title: "Backend Engineer", RequiredSkills: []domain.RequiredSkill{
			{SkillName: "Python"}, {SkillName: "Backend Development"},
		}},
		{JobID: "data", Title: "Data Engineer", RequiredSkills: []domain.RequiredSkill{
			{SkillName: "Python"}, {SkillName: "SQL"},
		}},
	})
	require.NoError(t, err)
	return snap
}

func workedCourses() []domain.CourseRecord {
	return []domain.CourseRecord{
		{StudentID: "s1", CourseCode: "IT1090", Grade: "B+", Credits: 3, AcademicYear: 1},
		{StudentID: "s1", CourseCode: "IT2040", Grade: "A-", Credits: 3, AcademicYear: 2},
	}
}

func pythonQuestions() []domain.QuestionItem {
	opts := [4]string{"w", "x", "y", "z"}
	var out []domain.QuestionItem
	add := func(id string, d domain.Difficulty) {
		out = append(out, domain.QuestionItem{ID: id, SkillName: "Python", Difficulty: d, Prompt: "prompt " + id, Options: opts, CorrectOption: "B"})
	}
	add("e1", domain.DifficultyEasy)
	add("e2", domain.DifficultyEasy)
	add("m1", domain.DifficultyMedium)
	add("m2", domain.DifficultyMedium)
	add("h1", domain.DifficultyHard)
	add("h2", domain.DifficultyHard)
	add("h3", domain.DifficultyHard)
	return out
}

func allCorrect(attempt domain.QuizAttempt) []domain.AnswerSubmission {
	out := make([]domain.AnswerSubmission, 0, len(attempt.Questions))
	for _, q := range attempt.Questions {
		out = append(out, domain.AnswerSubmission{QuestionID: q.ID, SelectedOption: q.CorrectOption})
	}
	return out
}

func claimed(t *testing.T, scores []domain.SkillScore, tier domain.Tier, skill string) domain.SkillScore {
	t.Helper()
	for _, s := range scores {
		if s.Tier == tier && s.SkillName == skill {
			return s
		}
	}
	t.Fatalf("no %s score for %s", tier, skill)
	return domain.SkillScore{}
}

func TestRecomputeStoresAllTiersAndFinals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.service.RecomputeScores(ctx, "s1", workedCourses())
	require.NoError(t, err)
	assert.Len(t, res.Scores, 3)

	stored, err := f.service.ClaimedScores(ctx, "s1", "")
	require.NoError(t, err)
	python := claimed(t, stored, domain.TierChild, "Python")
	assert.InDelta(t, 88.49, python.ClaimedScore, 0.01)
	assert.Equal(t, domain.LevelAdvanced, python.Level)

	parents, err := f.service.ClaimedScores(ctx, "s1", domain.TierParent)
	require.NoError(t, err)
	require.Len(t, parents, 1)
	assert.Equal(t, "Programming", parents[0].SkillName)

	finals, err := f.service.FinalScores(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, finals, 3)
	for _, fs := range finals {
		assert.Nil(t, fs.VerifiedScore)
		assert.Equal(t, fs.ClaimedScore, fs.FinalScore)
		assert.Equal(t, 0.0, fs.WeightQuiz)
		assert.Equal(t, 1.0, fs.WeightClaimed)
	}

	version, err := f.scores.SnapshotVersion(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}

func TestRecomputeRejectsUnknownGrade(t *testing.T) {
	f := newFixture(t)
	courses := workedCourses()
	courses[0].Grade = "Z"
	_, err := f.service.RecomputeScores(context.Background(), "s1", courses)
	assert.True(t, errors.Is(err, domain.ErrInvalidGrade), "got %v", err)

	scores, err := f.service.ClaimedScores(context.Background(), "s1", "")
	require.NoError(t, err)
	assert.Empty(t, scores, "a rejected recompute must not store anything")
}

func TestRecomputeStoredUsesNewSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.service.RecomputeScores(ctx, "s1", workedCourses())
	require.NoError(t, err)

	f.refs.Swap(buildSnapshot(t, 0.7))
	_, err = f.service.RecomputeStored(ctx, "s1")
	require.NoError(t, err)

	version, err := f.scores.SnapshotVersion(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
	scores, _ := f.service.ClaimedScores(ctx, "s1", domain.TierChild)
	require.Len(t, scores, 1)
	// Equal map weights on every course leave the score unchanged; only confidence grows.
	assert.InDelta(t, 88.49, scores[0].ClaimedScore, 0.01)

	_, err = f.service.RecomputeStored(ctx, "nobody")
	assert.True(t, errors.Is(err, domain.ErrNoScores))
}

func TestRecomputeAllFollowsReferenceSwap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, id := range []string{"s1", "s2"} {
		courses := workedCourses()
		for i := range courses {
			courses[i].StudentID = id
		}
		_, err := f.service.RecomputeScores(ctx, id, courses)
		require.NoError(t, err)
	}

	summary, err := f.service.RecomputeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, app.RecomputeSummary{SnapshotVersion: 1, UpToDate: 2}, summary)

	f.refs.Swap(buildSnapshot(t, 0.7))
	summary, err = f.service.RecomputeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, app.RecomputeSummary{SnapshotVersion: 2, Recomputed: 2}, summary)

	students, err := f.scores.Students(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, students)
	for _, id := range students {
		version, err := f.scores.SnapshotVersion(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(2), version, id)
	}

	_, err = f.scores.SnapshotVersion(ctx, "nobody")
	assert.True(t, errors.Is(err, domain.ErrNoScores))
}

func TestExplainReplaysStoredScore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.service.RecomputeScores(ctx, "s1", workedCourses())
	require.NoError(t, err)

	ex, err := f.service.Explain(ctx, "s1", domain.TierChild, "Python")
	require.NoError(t, err)
	assert.InDelta(t, 88.49, ex.Score, 0.01)
	require.Len(t, ex.Courses, 2)
	assert.Equal(t, "IT2040", ex.Courses[0].CourseCode)

	_, err = f.service.Explain(ctx, "s1", domain.TierChild, "Rust")
	assert.True(t, errors.Is(err, domain.ErrSkillNotScored))
}

func TestQuizFlowBlendsVerifiedScore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.service.RecomputeScores(ctx, "s1", workedCourses())
	require.NoError(t, err)

	plan, err := f.service.PlanQuiz(ctx, "s1", []string{"Python"})
	require.NoError(t, err)
	require.Len(t, plan.Skills, 1)
	assert.Equal(t, domain.Distribution{Easy: 1, Medium: 1, Hard: 3}, plan.Skills[0].Distribution)

	attempt, err := f.service.StartAttempt(ctx, plan.ID)
	require.NoError(t, err)
	require.Len(t, attempt.Questions, 5)
	assert.Empty(t, attempt.Shortfalls)

	done, err := f.service.SubmitAttempt(ctx, attempt.ID, allCorrect(attempt))
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptCompleted, done.Status)
	assert.Equal(t, 100.0, done.OverallScore)

	finals, err := f.service.FinalScores(ctx, "s1")
	require.NoError(t, err)
	var python domain.FinalSkillScore
	for _, fs := range finals {
		if fs.SkillName == "Python" {
			python = fs
		}
	}
	require.NotNil(t, python.VerifiedScore)
	assert.Equal(t, 100.0, *python.VerifiedScore)
	assert.InDelta(t, 0.7*100+0.3*python.ClaimedScore, python.FinalScore, 1e-9)
	assert.Equal(t, 0.7, python.WeightQuiz)

	_, err = f.service.SubmitAttempt(ctx, attempt.ID, allCorrect(attempt))
	assert.True(t, errors.Is(err, domain.ErrAttemptCompleted))
}

func TestConcurrentSubmissionsCompleteOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.service.RecomputeScores(ctx, "s1", workedCourses())
	require.NoError(t, err)
	plan, err := f.service.PlanQuiz(ctx, "s1", []string{"Python"})
	require.NoError(t, err)
	attempt, err := f.service.StartAttempt(ctx, plan.ID)
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, dupe int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.SubmitAttempt(ctx, attempt.ID, allCorrect(attempt))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrAttemptCompleted):
				dupe++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
	assert.Equal(t, 7, dupe)
}

// interleavingQuizStore runs onVerified once, right after the first VerifiedScores
// read that follows arming, so another request can slip in between read and write.
type interleavingQuizStore struct {
	*memory.QuizStore
	armed      atomic.Bool
	onVerified func()
}

func (s *interleavingQuizStore) VerifiedScores(ctx context.Context, studentID string) (map[string]float64, error) {
	verified, err := s.QuizStore.VerifiedScores(ctx, studentID)
	if s.armed.CompareAndSwap(true, false) {
		s.onVerified()
	}
	return verified, err
}

func TestRecomputeDoesNotDropConcurrentVerifiedScore(t *testing.T) {
	ctx := context.Background()
	store := &interleavingQuizStore{QuizStore: memory.NewQuizStore()}
	f := newFixtureWith(t, store.QuizStore, store)

	_, err := f.service.RecomputeScores(ctx, "s1", workedCourses())
	require.NoError(t, err)
	plan, err := f.service.PlanQuiz(ctx, "s1", []string{"Python"})
	require.NoError(t, err)
	attempt, err := f.service.StartAttempt(ctx, plan.ID)
	require.NoError(t, err)

	submitted := make(chan error, 1)
	store.onVerified = func() {
		go func() {
			_, err := f.service.SubmitAttempt(ctx, attempt.ID, allCorrect(attempt))
			submitted <- err
		}()
		// Give the submission every chance to finish while the recompute holds its
		// stale verified set.
		select {
		case err := <-submitted:
			submitted <- err
		case <-time.After(100 * time.Millisecond):
		}
	}
	store.armed.Store(true)

	_, err = f.service.RecomputeScores(ctx, "s1", workedCourses())
	require.NoError(t, err)
	require.NoError(t, <-submitted)

	finals, err := f.service.FinalScores(ctx, "s1")
	require.NoError(t, err)
	var python *domain.FinalSkillScore
	for i := range finals {
		if finals[i].SkillName == "Python" {
			python = &finals[i]
		}
	}
	require.NotNil(t, python)
	require.NotNil(t, python.VerifiedScore, "verified score lost to a concurrent recompute")
	assert.Equal(t, 100.0, *python.VerifiedScore)
	assert.Equal(t, 0.7, python.WeightQuiz)
}

func TestFailedSubmissionCanBeRetried(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.service.RecomputeScores(ctx, "s1", workedCourses())
	require.NoError(t, err)
	plan, err := f.service.PlanQuiz(ctx, "s1", []string{"Python"})
	require.NoError(t, err)
	attempt, err := f.service.StartAttempt(ctx, plan.ID)
	require.NoError(t, err)

	_, err = f.service.SubmitAttempt(ctx, attempt.ID, []domain.AnswerSubmission{{QuestionID: "nope", SelectedOption: "A"}})
	require.True(t, errors.Is(err, domain.ErrUnknownQuestion))

	stored, err := f.service.GetAttempt(ctx, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptOpen, stored.Status)

	// Unanswered questions count as incorrect.
	done, err := f.service.SubmitAttempt(ctx, attempt.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, done.OverallScore)
}

func TestPlanQuizAutoPicksWhenEmpty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.service.RecomputeScores(ctx, "s1", workedCourses())
	require.NoError(t, err)

	plan, err := f.service.PlanQuiz(ctx, "s1", nil)
	require.NoError(t, err)
	require.Len(t, plan.Skills, 1)
	assert.Equal(t, "Python", plan.Skills[0].SkillName)

	_, err = f.service.PlanQuiz(ctx, "s1", []string{"Python", "Python"})
	assert.True(t, errors.Is(err, domain.ErrDuplicateSkill))
}

func TestMatchAndRecommend(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.service.MatchJob(ctx, "s1", "backend")
	assert.True(t, errors.Is(err, domain.ErrNoScores))

	_, err = f.service.RecomputeScores(ctx, "s1", workedCourses())
	require.NoError(t, err)

	report, err := f.service.MatchJob(ctx, "s1", "backend")
	require.NoError(t, err)
	require.NotNil(t, report.MatchPercentage)
	assert.Len(t, report.Proficient, 2)
	assert.Equal(t, "Ready to Apply", report.Readiness.Label)

	_, err = f.service.MatchJob(ctx, "s1", "nope")
	assert.True(t, errors.Is(err, domain.ErrJobNotFound))

	ranked, err := f.service.RecommendJobs(ctx, "s1", 5)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "backend", ranked[0].JobID)
	assert.Equal(t, "data", ranked[1].JobID)
	require.Len(t, ranked[1].Missing, 1)
	assert.Equal(t, "SQL", ranked[1].Missing[0].SkillName)
}

func TestBankStats(t *testing.T) {
	f := newFixture(t)
	stats, err := f.service.BankStats(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, app.BankStat{SkillName: "Python", Easy: 2, Medium: 2, Hard: 3, Total: 7}, stats[0])
}

func TestClaimedVectorPrefersSpecificTier(t *testing.T) {
	vec := app.ClaimedVector([]domain.SkillScore{
		{SkillName: "Python", Tier: domain.TierJob, ClaimedScore: 10},
		{SkillName: "Python", Tier: domain.TierChild, ClaimedScore: 80},
		{SkillName: "Python", Tier: domain.TierParent, ClaimedScore: 40},
	})
	assert.Equal(t, 80.0, vec["Python"])
}
