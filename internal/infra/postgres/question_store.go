package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"skill-assessment-service/internal/domain"
)

// QuestionStore loads question items from Postgres. It is the loader behind the question caches.
type QuestionStore struct {
	pool *pgxpool.Pool
}

func NewQuestionStore(pool *pgxpool.Pool) *QuestionStore {
	return &QuestionStore{pool: pool}
}

func (s *QuestionStore) LoadQuestions(ctx context.Context, skill string, difficulty domain.Difficulty) ([]domain.QuestionItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM question_items WHERE skill_name=$1 AND difficulty=$2 ORDER BY id`,
		skill, string(difficulty))
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var out []domain.QuestionItem
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		var q domain.QuestionItem
		if err := json.Unmarshal(raw, &q); err != nil {
			return nil, fmt.Errorf("unmarshal question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// Questions reads straight from the table; used when no cache is configured.
func (s *QuestionStore) Questions(ctx context.Context, skill string, difficulty domain.Difficulty) ([]domain.QuestionItem, error) {
	return s.LoadQuestions(ctx, skill, difficulty)
}

func (s *QuestionStore) Counts(ctx context.Context) (map[string]map[domain.Difficulty]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT skill_name, difficulty, COUNT(*) FROM question_items GROUP BY skill_name, difficulty`)
	if err != nil {
		return nil, fmt.Errorf("count questions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[domain.Difficulty]int)
	for rows.Next() {
		var (
			skill, diff string
			n           int
		)
		if err := rows.Scan(&skill, &diff, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		if out[skill] == nil {
			out[skill] = make(map[domain.Difficulty]int)
		}
		out[skill][domain.Difficulty(diff)] = n
	}
	return out, rows.Err()
}

// Upsert writes question items, replacing rows with the same id.
func (s *QuestionStore) Upsert(ctx context.Context, items []domain.QuestionItem) (int, error) {
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		for _, q := range items {
			raw, err := json.Marshal(q)
			if err != nil {
				return fmt.Errorf("marshal question %s: %w", q.ID, err)
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO question_items (id, skill_name, difficulty, data) VALUES ($1, $2, $3, $4)
				ON CONFLICT (id) DO UPDATE
				SET skill_name = EXCLUDED.skill_name, difficulty = EXCLUDED.difficulty, data = EXCLUDED.data`,
				q.ID, q.SkillName, string(q.Difficulty), raw); err != nil {
				return fmt.Errorf("upsert question %s: %w", q.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(items), nil
}
