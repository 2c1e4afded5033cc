package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"skill-assessment-service/internal/domain"
)

// QuizStore keeps plans, attempts and final scores as JSONB documents.
type QuizStore struct {
	pool *pgxpool.Pool
}

func NewQuizStore(pool *pgxpool.Pool) *QuizStore {
	return &QuizStore{pool: pool}
}

func (s *QuizStore) SavePlan(ctx context.Context, plan domain.QuizPlan) error {
	raw, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO quiz_plans (id, student_id, data, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`,
		plan.ID, plan.StudentID, raw, plan.CreatedAt)
	if err != nil {
		return fmt.Errorf("save plan: %w", err)
	}
	return nil
}

func (s *QuizStore) GetPlan(ctx context.Context, planID string) (domain.QuizPlan, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM quiz_plans WHERE id=$1`, planID).Scan(&raw)
	if err == pgx.ErrNoRows {
		return domain.QuizPlan{}, fmt.Errorf("%w: %s", domain.ErrPlanNotFound, planID)
	}
	if err != nil {
		return domain.QuizPlan{}, fmt.Errorf("load plan: %w", err)
	}
	var plan domain.QuizPlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return domain.QuizPlan{}, fmt.Errorf("unmarshal plan: %w", err)
	}
	return plan, nil
}

func (s *QuizStore) CreateAttempt(ctx context.Context, attempt domain.QuizAttempt) error {
	raw, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO quiz_attempts (id, plan_id, student_id, data, created_at) VALUES ($1, $2, $3, $4, $5)`,
		attempt.ID, attempt.QuizPlanID, attempt.StudentID, raw, attempt.CreatedAt)
	if err != nil {
		return fmt.Errorf("create attempt: %w", err)
	}
	return nil
}

func (s *QuizStore) GetAttempt(ctx context.Context, attemptID string) (domain.QuizAttempt, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM quiz_attempts WHERE id=$1`, attemptID).Scan(&raw)
	if err == pgx.ErrNoRows {
		return domain.QuizAttempt{}, fmt.Errorf("%w: %s", domain.ErrAttemptNotFound, attemptID)
	}
	if err != nil {
		return domain.QuizAttempt{}, fmt.Errorf("load attempt: %w", err)
	}
	var attempt domain.QuizAttempt
	if err := json.Unmarshal(raw, &attempt); err != nil {
		return domain.QuizAttempt{}, fmt.Errorf("unmarshal attempt: %w", err)
	}
	return attempt, nil
}

// CompleteAttempt flips completed_at only while it is still NULL, so a concurrent
// second submission updates zero rows and is rejected.
func (s *QuizStore) CompleteAttempt(ctx context.Context, attempt domain.QuizAttempt, finals []domain.FinalSkillScore) error {
	raw, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	return s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE quiz_attempts SET data=$2, completed_at=$3 WHERE id=$1 AND completed_at IS NULL`,
			attempt.ID, raw, attempt.CompletedAt)
		if err != nil {
			return fmt.Errorf("complete attempt: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM quiz_attempts WHERE id=$1)`, attempt.ID).Scan(&exists); err != nil {
				return fmt.Errorf("check attempt: %w", err)
			}
			if !exists {
				return fmt.Errorf("%w: %s", domain.ErrAttemptNotFound, attempt.ID)
			}
			return domain.ErrAttemptCompleted
		}
		return replaceFinals(ctx, tx, attempt.StudentID, finals)
	})
}

func (s *QuizStore) SaveFinalScores(ctx context.Context, studentID string, finals []domain.FinalSkillScore) error {
	return s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		return replaceFinals(ctx, tx, studentID, finals)
	})
}

func (s *QuizStore) ListFinalScores(ctx context.Context, studentID string) ([]domain.FinalSkillScore, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM final_scores WHERE student_id=$1 ORDER BY skill_name`, studentID)
	if err != nil {
		return nil, fmt.Errorf("list final scores: %w", err)
	}
	defer rows.Close()

	var out []domain.FinalSkillScore
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan final score: %w", err)
		}
		var f domain.FinalSkillScore
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("unmarshal final score: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// VerifiedScores replays completed attempts oldest first so later attempts overwrite earlier ones.
func (s *QuizStore) VerifiedScores(ctx context.Context, studentID string) (map[string]float64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT data->'verifiedScores'
		FROM quiz_attempts
		WHERE student_id=$1 AND completed_at IS NOT NULL
		ORDER BY completed_at, id`, studentID)
	if err != nil {
		return nil, fmt.Errorf("load verified scores: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan verified scores: %w", err)
		}
		if len(raw) == 0 {
			continue
		}
		var scores []domain.VerifiedSkillScore
		if err := json.Unmarshal(raw, &scores); err != nil {
			return nil, fmt.Errorf("unmarshal verified scores: %w", err)
		}
		for _, v := range scores {
			out[v.SkillName] = v.VerifiedScore
		}
	}
	return out, rows.Err()
}

func replaceFinals(ctx context.Context, tx pgx.Tx, studentID string, finals []domain.FinalSkillScore) error {
	if _, err := tx.Exec(ctx, `DELETE FROM final_scores WHERE student_id=$1`, studentID); err != nil {
		return fmt.Errorf("clear final scores: %w", err)
	}
	batch := &pgx.Batch{}
	for _, f := range finals {
		raw, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("marshal final score: %w", err)
		}
		batch.Queue(`INSERT INTO final_scores (student_id, skill_name, data) VALUES ($1, $2, $3)`, studentID, f.SkillName, raw)
	}
	if batch.Len() == 0 {
		return nil
	}
	br := tx.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert final score: %w", err)
		}
	}
	return nil
}
