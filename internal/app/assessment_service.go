package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"skill-assessment-service/internal/blend"
	"skill-assessment-service/internal/domain"
	"skill-assessment-service/internal/logger"
	"skill-assessment-service/internal/matching"
	"skill-assessment-service/internal/quiz"
	"skill-assessment-service/internal/scoring"
)

// Dependencies wires the use cases to their collaborators. Guard and Logger are optional.
type Dependencies struct {
	Reference ReferenceSource
	Scores    ScoreRepository
	Quizzes   QuizRepository
	Bank      QuestionBank
	Guard     SubmissionGuard
	Pipeline  *scoring.Pipeline
	Planner   *quiz.Planner
	Sampler   *quiz.Sampler
	Blender   *blend.Blender
	Matcher   *matching.Matcher
	Logger    *logger.Logger
}

// AssessmentService contains the skill assessment use cases.
type AssessmentService struct {
	refs     ReferenceSource
	scores   ScoreRepository
	quizzes  QuizRepository
	bank     QuestionBank
	guard    SubmissionGuard
	pipeline *scoring.Pipeline
	planner  *quiz.Planner
	sampler  *quiz.Sampler
	blender  *blend.Blender
	matcher  *matching.Matcher
	log      *logger.Logger
	now      func() time.Time
	newID    func() string

	// students guards finals against concurrent recompute and submission for one student.
	students studentLocks
}

func NewAssessmentService(deps Dependencies) (*AssessmentService, error) {
	switch {
	case deps.Reference == nil:
		return nil, errors.New("assessment service: reference source is required")
	case deps.Scores == nil || deps.Quizzes == nil:
		return nil, errors.New("assessment service: repositories are required")
	case deps.Bank == nil:
		return nil, errors.New("assessment service: question bank is required")
	case deps.Pipeline == nil || deps.Planner == nil || deps.Blender == nil || deps.Matcher == nil:
		return nil, errors.New("assessment service: scoring components are required")
	}
	sampler := deps.Sampler
	if sampler == nil {
		sampler = quiz.NewSampler(deps.Bank)
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &AssessmentService{
		refs:     deps.Reference,
		scores:   deps.Scores,
		quizzes:  deps.Quizzes,
		bank:     deps.Bank,
		guard:    deps.Guard,
		pipeline: deps.Pipeline,
		planner:  deps.Planner,
		sampler:  sampler,
		blender:  deps.Blender,
		matcher:  deps.Matcher,
		log:      log,
		now:      time.Now,
		newID:    uuid.NewString,
	}, nil
}

// RecomputeScores recomputes every tier for a student against one reference snapshot,
// replaces the stored set, and re-blends final scores with the latest verified scores.
func (s *AssessmentService) RecomputeScores(ctx context.Context, studentID string, courses []domain.CourseRecord) (scoring.Result, error) {
	snap, err := s.refs.Current()
	if err != nil {
		return scoring.Result{}, err
	}
	res, err := s.pipeline.Compute(studentID, courses, snap.Tables())
	if err != nil {
		return scoring.Result{}, err
	}
	unlock := s.students.lock(studentID)
	defer unlock()

	set := ScoreSet{
		StudentID:       studentID,
		SnapshotVersion: snap.Version,
		Courses:         courses,
		Evidence:        res.Evidence,
		Scores:          res.Scores,
		ComputedAt:      s.now().UTC(),
	}
	if err := s.scores.ReplaceStudentScores(ctx, set); err != nil {
		return scoring.Result{}, fmt.Errorf("store scores: %w", err)
	}
	if _, err := s.refreshFinals(ctx, studentID, res.Scores); err != nil {
		return scoring.Result{}, err
	}
	s.log.Info("scores recomputed",
		"student_id", studentID,
		"courses", len(courses),
		"evidence", len(res.Evidence),
		"scores", len(res.Scores),
		"snapshot_version", snap.Version,
	)
	return res, nil
}

// RecomputeStored reruns the pipeline on the student's stored courses, typically after a reference reload.
func (s *AssessmentService) RecomputeStored(ctx context.Context, studentID string) (scoring.Result, error) {
	courses, err := s.scores.Courses(ctx, studentID)
	if err != nil {
		return scoring.Result{}, err
	}
	if len(courses) == 0 {
		return scoring.Result{}, fmt.Errorf("%w: %s", domain.ErrNoScores, studentID)
	}
	return s.RecomputeScores(ctx, studentID, courses)
}

// RecomputeSummary reports what RecomputeAll did.
type RecomputeSummary struct {
	SnapshotVersion int64 `json:"snapshotVersion"`
	Recomputed      int   `json:"recomputed"`
	UpToDate        int   `json:"upToDate"`
	Failed          int   `json:"failed"`
}

const recomputeWorkers = 4

// RecomputeAll moves every stored student onto the current reference snapshot.
// Students already on it are skipped; a student that fails is logged and counted
// without stopping the others.
func (s *AssessmentService) RecomputeAll(ctx context.Context) (RecomputeSummary, error) {
	snap, err := s.refs.Current()
	if err != nil {
		return RecomputeSummary{}, err
	}
	students, err := s.scores.Students(ctx)
	if err != nil {
		return RecomputeSummary{}, fmt.Errorf("list students: %w", err)
	}

	summary := RecomputeSummary{SnapshotVersion: snap.Version}
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(recomputeWorkers)
	for _, studentID := range students {
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			version, err := s.scores.SnapshotVersion(ctx, studentID)
			if err == nil && version == snap.Version {
				mu.Lock()
				summary.UpToDate++
				mu.Unlock()
				return nil
			}
			_, err = s.RecomputeStored(ctx, studentID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.log.Warn("recompute after reload failed", "student_id", studentID, "error", err)
				summary.Failed++
				return nil
			}
			summary.Recomputed++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}
	s.log.Info("students recomputed",
		"snapshot_version", snap.Version,
		"recomputed", summary.Recomputed,
		"up_to_date", summary.UpToDate,
		"failed", summary.Failed,
	)
	return summary, nil
}

// ClaimedScores returns stored scores, optionally filtered to one tier.
func (s *AssessmentService) ClaimedScores(ctx context.Context, studentID string, tier domain.Tier) ([]domain.SkillScore, error) {
	all, err := s.scores.ListScores(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if tier == "" {
		return all, nil
	}
	out := make([]domain.SkillScore, 0, len(all))
	for _, sc := range all {
		if sc.Tier == tier {
			out = append(out, sc)
		}
	}
	return out, nil
}

// Explain replays a stored score from its evidence records.
func (s *AssessmentService) Explain(ctx context.Context, studentID string, tier domain.Tier, skill string) (scoring.Explanation, error) {
	scores, err := s.ClaimedScores(ctx, studentID, tier)
	if err != nil {
		return scoring.Explanation{}, err
	}
	for _, sc := range scores {
		if sc.SkillName != skill {
			continue
		}
		evidence, err := s.scores.Evidence(ctx, studentID, tier, skill)
		if err != nil {
			return scoring.Explanation{}, err
		}
		return scoring.Explain(sc, evidence, s.pipeline.ConfidenceRate()), nil
	}
	return scoring.Explanation{}, fmt.Errorf("%w: %s/%s", domain.ErrSkillNotScored, tier, skill)
}

// PlanQuiz builds and stores a quiz plan. With no skills given it picks the ones
// most worth verifying.
func (s *AssessmentService) PlanQuiz(ctx context.Context, studentID string, skills []string) (domain.QuizPlan, error) {
	scores, err := s.scores.ListScores(ctx, studentID)
	if err != nil {
		return domain.QuizPlan{}, err
	}
	if len(skills) == 0 {
		skills = quiz.AutoPick(scores, s.planner.MaxSkills())
	}
	plan, err := s.planner.Plan(studentID, skills, scores)
	if err != nil {
		return domain.QuizPlan{}, err
	}
	if err := s.quizzes.SavePlan(ctx, plan); err != nil {
		return domain.QuizPlan{}, fmt.Errorf("store plan: %w", err)
	}
	s.log.Info("quiz planned", "student_id", studentID, "plan_id", plan.ID, "skills", len(plan.Skills), "questions", plan.TotalQuestions)
	return plan, nil
}

// StartAttempt draws questions for a plan and opens an attempt.
func (s *AssessmentService) StartAttempt(ctx context.Context, planID string) (domain.QuizAttempt, error) {
	plan, err := s.quizzes.GetPlan(ctx, planID)
	if err != nil {
		return domain.QuizAttempt{}, err
	}
	draw, err := s.sampler.Draw(ctx, plan)
	if err != nil {
		return domain.QuizAttempt{}, err
	}
	attempt := domain.QuizAttempt{
		ID:         s.newID(),
		StudentID:  plan.StudentID,
		QuizPlanID: plan.ID,
		Status:     domain.AttemptOpen,
		Questions:  draw.Questions,
		Shortfalls: draw.Shortfalls,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.quizzes.CreateAttempt(ctx, attempt); err != nil {
		return domain.QuizAttempt{}, fmt.Errorf("store attempt: %w", err)
	}
	if len(draw.Shortfalls) > 0 {
		s.log.Warn("question bank shortfall", "plan_id", plan.ID, "shortfalls", len(draw.Shortfalls))
	}
	s.log.Info("quiz attempt started", "student_id", plan.StudentID, "attempt_id", attempt.ID, "questions", len(attempt.Questions))
	return attempt, nil
}

// GetAttempt returns a stored attempt.
func (s *AssessmentService) GetAttempt(ctx context.Context, attemptID string) (domain.QuizAttempt, error) {
	return s.quizzes.GetAttempt(ctx, attemptID)
}

// SubmitAttempt grades answers and completes the attempt at most once. The attempt
// record and the re-blended final scores commit together.
func (s *AssessmentService) SubmitAttempt(ctx context.Context, attemptID string, answers []domain.AnswerSubmission) (domain.QuizAttempt, error) {
	if s.guard != nil {
		ok, err := s.guard.Acquire(ctx, attemptID)
		if err != nil {
			s.log.Warn("submission guard unavailable", "attempt_id", attemptID, "error", err)
		} else if !ok {
			return domain.QuizAttempt{}, domain.ErrAttemptCompleted
		}
	}

	completed, err := s.submit(ctx, attemptID, answers)
	if err != nil {
		if s.guard != nil && !errors.Is(err, domain.ErrAttemptCompleted) {
			if rerr := s.guard.Release(ctx, attemptID); rerr != nil {
				s.log.Warn("release submission guard", "attempt_id", attemptID, "error", rerr)
			}
		}
		return domain.QuizAttempt{}, err
	}
	s.log.Info("quiz attempt completed",
		"student_id", completed.StudentID,
		"attempt_id", completed.ID,
		"overall_score", completed.OverallScore,
	)
	return completed, nil
}

func (s *AssessmentService) submit(ctx context.Context, attemptID string, answers []domain.AnswerSubmission) (domain.QuizAttempt, error) {
	attempt, err := s.quizzes.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.QuizAttempt{}, err
	}
	if attempt.Status == domain.AttemptCompleted {
		return domain.QuizAttempt{}, domain.ErrAttemptCompleted
	}
	outcome, err := quiz.Grade(attempt.Questions, answers, s.pipeline.Levels())
	if err != nil {
		return domain.QuizAttempt{}, err
	}

	unlock := s.students.lock(attempt.StudentID)
	defer unlock()

	scores, err := s.scores.ListScores(ctx, attempt.StudentID)
	if err != nil {
		return domain.QuizAttempt{}, err
	}
	verified, err := s.quizzes.VerifiedScores(ctx, attempt.StudentID)
	if err != nil {
		return domain.QuizAttempt{}, err
	}
	if verified == nil {
		verified = make(map[string]float64, len(outcome.VerifiedScores))
	}
	for _, v := range outcome.VerifiedScores {
		verified[v.SkillName] = v.VerifiedScore
	}
	finals := s.blender.BlendAll(attempt.StudentID, ClaimedVector(scores), verified)

	now := s.now().UTC()
	attempt.Status = domain.AttemptCompleted
	attempt.Answers = outcome.Answers
	attempt.VerifiedScores = outcome.VerifiedScores
	attempt.OverallScore = outcome.OverallScore
	attempt.CompletedAt = &now
	if err := s.quizzes.CompleteAttempt(ctx, attempt, finals); err != nil {
		return domain.QuizAttempt{}, err
	}
	return attempt, nil
}

// FinalScores returns the stored blended scores.
func (s *AssessmentService) FinalScores(ctx context.Context, studentID string) ([]domain.FinalSkillScore, error) {
	return s.quizzes.ListFinalScores(ctx, studentID)
}

// MatchJob compares the student's final scores with one job.
func (s *AssessmentService) MatchJob(ctx context.Context, studentID, jobID string) (domain.MatchReport, error) {
	snap, err := s.refs.Current()
	if err != nil {
		return domain.MatchReport{}, err
	}
	job, err := snap.Job(jobID)
	if err != nil {
		return domain.MatchReport{}, err
	}
	vector, err := s.finalVector(ctx, studentID)
	if err != nil {
		return domain.MatchReport{}, err
	}
	return s.matcher.Match(studentID, vector, job), nil
}

// RecommendJobs ranks every job in the current snapshot for the student.
func (s *AssessmentService) RecommendJobs(ctx context.Context, studentID string, topK int) ([]domain.MatchReport, error) {
	snap, err := s.refs.Current()
	if err != nil {
		return nil, err
	}
	vector, err := s.finalVector(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return s.matcher.Recommend(studentID, vector, snap.Jobs(), topK), nil
}

// BankStat is the inventory of one skill in the question bank.
type BankStat struct {
	SkillName string `json:"skillName"`
	Easy      int    `json:"easy"`
	Medium    int    `json:"medium"`
	Hard      int    `json:"hard"`
	Total     int    `json:"total"`
}

var ErrStatsUnsupported = errors.New("question bank does not report inventory")

// BankStats reports question counts per skill and difficulty.
func (s *AssessmentService) BankStats(ctx context.Context) ([]BankStat, error) {
	counter, ok := s.bank.(QuestionCounter)
	if !ok {
		return nil, ErrStatsUnsupported
	}
	counts, err := counter.Counts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]BankStat, 0, len(counts))
	for skill, byDiff := range counts {
		st := BankStat{
			SkillName: skill,
			Easy:      byDiff[domain.DifficultyEasy],
			Medium:    byDiff[domain.DifficultyMedium],
			Hard:      byDiff[domain.DifficultyHard],
		}
		st.Total = st.Easy + st.Medium + st.Hard
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SkillName < out[j].SkillName })
	return out, nil
}

func (s *AssessmentService) refreshFinals(ctx context.Context, studentID string, scores []domain.SkillScore) ([]domain.FinalSkillScore, error) {
	verified, err := s.quizzes.VerifiedScores(ctx, studentID)
	if err != nil {
		return nil, err
	}
	finals := s.blender.BlendAll(studentID, ClaimedVector(scores), verified)
	if err := s.quizzes.SaveFinalScores(ctx, studentID, finals); err != nil {
		return nil, fmt.Errorf("store final scores: %w", err)
	}
	return finals, nil
}

func (s *AssessmentService) finalVector(ctx context.Context, studentID string) (map[string]domain.SkillValue, error) {
	finals, err := s.quizzes.ListFinalScores(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if len(finals) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoScores, studentID)
	}
	vector := make(map[string]domain.SkillValue, len(finals))
	for _, f := range finals {
		vector[f.SkillName] = domain.SkillValue{Score: f.FinalScore, Level: f.FinalLevel}
	}
	return vector, nil
}

// ClaimedVector flattens tiered scores into one value per skill name; the most
// specific tier wins when a name appears at several tiers.
func ClaimedVector(scores []domain.SkillScore) map[string]float64 {
	out := make(map[string]float64, len(scores))
	for i := len(domain.ScoredTiers) - 1; i >= 0; i-- {
		tier := domain.ScoredTiers[i]
		for _, sc := range scores {
			if sc.Tier == tier {
				out[sc.SkillName] = sc.ClaimedScore
			}
		}
	}
	return out
}
