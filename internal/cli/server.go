package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"skill-assessment-service/internal/app"
	"skill-assessment-service/internal/config"
	"skill-assessment-service/internal/infra/memory"
	"skill-assessment-service/internal/infra/postgres"
	infraredis "skill-assessment-service/internal/infra/redis"
	"skill-assessment-service/internal/logger"
	"skill-assessment-service/internal/reference"
	transport "skill-assessment-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the assessment server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	refs, snap, err := loadReference(ctx, cfg)
	if err != nil {
		return err
	}
	log.Info("reference loaded", "version", snap.Version, "source", snap.Source, "jobs", len(snap.Jobs()))

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	deps, err := storage(cfg, pool, redisClient, redisTTL)
	if err != nil {
		return err
	}
	deps.Reference = refs
	deps.Pipeline = eng.pipeline
	deps.Planner = eng.planner
	deps.Blender = eng.blender
	deps.Matcher = eng.matcher
	deps.Logger = log
	service, err := app.NewAssessmentService(deps)
	if err != nil {
		return err
	}

	router := transport.NewRouter(
		transport.NewHandler(service, refs, log),
		transport.NewWSHandler(service, log),
	)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting assessment service", "port", finalPort, "postgres", pool != nil, "redis", redisClient != nil)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// storage picks repositories, the question bank and the submission guard. Postgres and
// Redis are each used when configured; otherwise everything stays in process.
func storage(cfg config.Config, pool *pgxpool.Pool, redisClient *redis.Client, redisTTL time.Duration) (app.Dependencies, error) {
	var deps app.Dependencies

	var loader memory.QuestionLoader
	if pool != nil {
		loader = postgres.NewQuestionStore(pool)
		deps.Scores = postgres.NewScoreStore(pool)
		deps.Quizzes = postgres.NewQuizStore(pool)
	} else {
		items, err := reference.LoadQuestions(cfg.Questions.Path)
		if err != nil {
			return deps, err
		}
		bank, err := memory.NewStaticQuestionBank(items)
		if err != nil {
			return deps, err
		}
		loader = bank
		deps.Scores = memory.NewScoreStore()
		deps.Quizzes = memory.NewQuizStore()
	}

	questionTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)
	if redisClient != nil {
		deps.Bank = infraredis.NewQuestionCache(redisClient, loader, questionTTL)
		deps.Guard = infraredis.NewSubmissionGuard(redisClient, redisTTL)
	} else {
		deps.Bank = memory.NewQuestionCache(loader, questionTTL)
		deps.Guard = memory.NewSubmissionGuard()
	}
	return deps, nil
}
