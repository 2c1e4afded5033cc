package cli

import (
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"skill-assessment-service/internal/config"
	"skill-assessment-service/internal/domain"
	"skill-assessment-service/internal/infra/postgres"
	infraredis "skill-assessment-service/internal/infra/redis"
	"skill-assessment-service/internal/logger"
	"skill-assessment-service/internal/reference"
)

// NewSeedQuestionsCmd loads the question bank file into Postgres and drops stale Redis buckets.
func NewSeedQuestionsCmd(configPath *string) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "seed-questions",
		Short: "Upsert the question bank into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Log.Mode)
			if err != nil {
				return err
			}
			defer log.Sync()
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			if path == "" {
				path = cfg.Questions.Path
			}

			items, err := reference.LoadQuestions(path)
			if err != nil {
				return err
			}
			if err := runMigrations(ctx, cfg, log); err != nil {
				return err
			}
			pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			n, err := postgres.NewQuestionStore(pool).Upsert(ctx, items)
			if err != nil {
				return err
			}
			log.Info("questions seeded", "count", n, "source", path)

			if cfg.Redis.Addr == "" {
				return nil
			}
			client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
			defer client.Close()
			cache := infraredis.NewQuestionCache(client, nil, 0)
			for _, b := range buckets(items) {
				if err := cache.Invalidate(ctx, b.skill, b.difficulty); err != nil {
					log.Warn("invalidate question cache", "skill", b.skill, "difficulty", b.difficulty, "error", err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "file", "", "question bank YAML (defaults to questions.path)")
	return cmd
}

type bucket struct {
	skill      string
	difficulty domain.Difficulty
}

func buckets(items []domain.QuestionItem) []bucket {
	seen := make(map[bucket]struct{})
	var out []bucket
	for _, q := range items {
		b := bucket{skill: q.SkillName, difficulty: q.Difficulty}
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}
		out = append(out, b)
	}
	return out
}
