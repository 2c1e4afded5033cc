package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"skill-assessment-service/internal/app"
	"skill-assessment-service/internal/blend"
	"skill-assessment-service/internal/domain"
	"skill-assessment-service/internal/infra/postgres"
	pgmigrations "skill-assessment-service/internal/infra/postgres/migrations"
	infraredis "skill-assessment-service/internal/infra/redis"
	"skill-assessment-service/internal/matching"
	"skill-assessment-service/internal/quiz"
	"skill-assessment-service/internal/reference"
	"skill-assessment-service/internal/scoring"
)

func TestAssessmentEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateDB(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	questions := postgres.NewQuestionStore(pool)
	if _, err := questions.Upsert(ctx, sampleQuestions()); err != nil {
		t.Fatalf("seed questions: %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	service := newService(t, pool, redisClient, questions)
	courses := []domain.CourseRecord{
		{StudentID: "s1", CourseCode: "IT1090", Grade: "B+", Credits: 3, AcademicYear: 1},
		{StudentID: "s1", CourseCode: "IT2040", Grade: "A-", Credits: 3, AcademicYear: 2},
	}
	if _, err := service.RecomputeScores(ctx, "s1", courses); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	// A second recompute replaces rows rather than duplicating them.
	res, err := service.RecomputeScores(ctx, "s1", courses)
	if err != nil {
		t.Fatalf("recompute again: %v", err)
	}
	stored, err := postgres.NewScoreStore(pool).Evidence(ctx, "s1", domain.TierChild, "Python")
	if err != nil {
		t.Fatalf("evidence: %v", err)
	}
	var want []string
	for _, ev := range res.Evidence {
		if ev.Tier == domain.TierChild && ev.SkillName == "Python" {
			want = append(want, ev.CourseCode)
		}
	}
	if len(stored) != len(want) {
		t.Fatalf("expected %d evidence rows, got %d", len(want), len(stored))
	}
	for i := range stored {
		if stored[i].CourseCode != want[i] {
			t.Fatalf("evidence row %d: expected %s, got %s", i, want[i], stored[i].CourseCode)
		}
	}
	summary, err := service.RecomputeAll(ctx)
	if err != nil {
		t.Fatalf("recompute all: %v", err)
	}
	if summary.UpToDate != 1 || summary.Recomputed != 0 {
		t.Fatalf("expected s1 already on the current snapshot, got %+v", summary)
	}
	scores, err := service.ClaimedScores(ctx, "s1", "")
	if err != nil {
		t.Fatalf("scores: %v", err)
	}
	if len(scores) != 3 {
		t.Fatalf("expected child, parent and job scores, got %+v", scores)
	}
	ex, err := service.Explain(ctx, "s1", domain.TierChild, "Python")
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if len(ex.Courses) != 2 {
		t.Fatalf("expected two evidence rows, got %+v", ex.Courses)
	}

	plan, err := service.PlanQuiz(ctx, "s1", []string{"Python"})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	attempt, err := service.StartAttempt(ctx, plan.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(attempt.Questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(attempt.Questions))
	}

	answers := make([]domain.AnswerSubmission, 0, len(attempt.Questions))
	for _, q := range attempt.Questions {
		answers = append(answers, domain.AnswerSubmission{QuestionID: q.ID, SelectedOption: q.CorrectOption})
	}
	done, err := service.SubmitAttempt(ctx, attempt.ID, answers)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if done.OverallScore != 100 {
		t.Fatalf("expected full marks, got %v", done.OverallScore)
	}
	if _, err := service.SubmitAttempt(ctx, attempt.ID, answers); !errors.Is(err, domain.ErrAttemptCompleted) {
		t.Fatalf("expected ErrAttemptCompleted on resubmission, got %v", err)
	}

	finals, err := service.FinalScores(ctx, "s1")
	if err != nil {
		t.Fatalf("finals: %v", err)
	}
	var python *domain.FinalSkillScore
	for i := range finals {
		if finals[i].SkillName == "Python" {
			python = &finals[i]
		}
	}
	if python == nil || python.VerifiedScore == nil || *python.VerifiedScore != 100 {
		t.Fatalf("expected verified python final, got %+v", python)
	}

	report, err := service.MatchJob(ctx, "s1", "backend")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if report.Readiness.Label != "Ready to Apply" {
		t.Fatalf("expected ready, got %+v", report.Readiness)
	}
}

func newService(t *testing.T, pool *pgxpool.Pool, client *goredis.Client, questions *postgres.QuestionStore) *app.AssessmentService {
	t.Helper()
	refs := reference.NewStore(nil)
	refs.Swap(sampleSnapshot(t))

	pipeline, err := scoring.NewPipeline(scoring.Params{
		Grades:         map[string]float64{"A": 4, "A-": 3.7, "B+": 3.3, "B": 3, "C": 2, "F": 0},
		MaxGradePoints: 4,
		DecayRate:      0.4,
		ConfidenceRate: 0.25,
		CurrentYear:    4,
		Levels:         domain.DefaultLevelThresholds(),
	})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	planner, _ := quiz.NewPlanner(quiz.PlannerConfig{QuestionsPerSkill: 3, MaxSkills: 5})
	blender, _ := blend.NewBlender(blend.DefaultWeights(), domain.DefaultLevelThresholds())
	matcher, _ := matching.NewMatcher(matching.DefaultConfig())

	service, err := app.NewAssessmentService(app.Dependencies{
		Reference: refs,
		Scores:    postgres.NewScoreStore(pool),
		Quizzes:   postgres.NewQuizStore(pool),
		Bank:      infraredis.NewQuestionCache(client, questions, 5*time.Minute),
		Guard:     infraredis.NewSubmissionGuard(client, 5*time.Minute),
		Pipeline:  pipeline,
		Planner:   planner,
		Blender:   blender,
		Matcher:   matcher,
	})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return service
}

func sampleSnapshot(t *testing.T) *reference.Snapshot {
	t.Helper()
	courses, err := reference.NewMappingTable("course_skills", []domain.MappingEntry{
		{Source: "IT1090", Target: "Python", Weight: 0.35},
		{Source: "IT2040", Target: "Python", Weight: 0.35},
	})
	if err != nil {
		t.Fatalf("course table: %v", err)
	}
	parents, _ := reference.NewMappingTable("child_to_parent", []domain.MappingEntry{{Source: "Python", Target: "Programming", Weight: 1}})
	jobs, _ := reference.NewMappingTable("child_to_job", []domain.MappingEntry{{Source: "Python", Target: "Backend Development", Weight: 0.8}})
	snap, err := reference.NewSnapshot("integration", courses, parents, jobs, []domain.JobRequirement{
		{JobID: "backend", RequiredSkills: []domain.RequiredSkill{{SkillName: "Python"}, {SkillName: "Backend Development"}}},
	})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return snap
}

// An Advanced plan of three questions draws all three hard items.
func sampleQuestions() []domain.QuestionItem {
	opts := [4]string{"list", "tuple", "dict", "set"}
	return []domain.QuestionItem{
		{ID: "py-e1", SkillName: "Python", Difficulty: domain.DifficultyEasy, Prompt: "Mutable sequence?", Options: opts, CorrectOption: "A"},
		{ID: "py-m1", SkillName: "Python", Difficulty: domain.DifficultyMedium, Prompt: "Immutable sequence?", Options: opts, CorrectOption: "B"},
		{ID: "py-h1", SkillName: "Python", Difficulty: domain.DifficultyHard, Prompt: "Hash map?", Options: opts, CorrectOption: "C"},
		{ID: "py-h2", SkillName: "Python", Difficulty: domain.DifficultyHard, Prompt: "Unordered unique?", Options: opts, CorrectOption: "D"},
		{ID: "py-h3", SkillName: "Python", Difficulty: domain.DifficultyHard, Prompt: "Key-value literal?", Options: opts, CorrectOption: "C"},
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "skills", "POSTGRES_PASSWORD": "skillspass", "POSTGRES_DB": "skillsdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://skills:skillspass@%s:%s/skillsdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateDB(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
