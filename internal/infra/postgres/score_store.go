package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"skill-assessment-service/internal/app"
	"skill-assessment-service/internal/domain"
)

// ScoreStore keeps claimed scores and their evidence in Postgres.
type ScoreStore struct {
	pool *pgxpool.Pool
}

func NewScoreStore(pool *pgxpool.Pool) *ScoreStore {
	return &ScoreStore{pool: pool}
}

// ReplaceStudentScores rewrites the student's rows inside one transaction.
func (s *ScoreStore) ReplaceStudentScores(ctx context.Context, set app.ScoreSet) error {
	courses, err := json.Marshal(set.Courses)
	if err != nil {
		return fmt.Errorf("marshal courses: %w", err)
	}
	evidence := make([][]interface{}, 0, len(set.Evidence))
	for i, ev := range set.Evidence {
		raw, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal evidence: %w", err)
		}
		evidence = append(evidence, []interface{}{set.StudentID, string(ev.Tier), ev.SkillName, int32(i), raw})
	}
	scores := make([][]interface{}, 0, len(set.Scores))
	for _, sc := range set.Scores {
		scores = append(scores, []interface{}{
			set.StudentID, string(sc.Tier), sc.SkillName, sc.ClaimedScore,
			sc.Confidence, string(sc.Level), sc.EvidenceCount, sc.TotalWeight,
		})
	}

	return s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM score_sets WHERE student_id=$1`, set.StudentID); err != nil {
			return fmt.Errorf("clear scores: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO score_sets (student_id, snapshot_version, courses, computed_at) VALUES ($1, $2, $3, $4)`,
			set.StudentID, set.SnapshotVersion, courses, set.ComputedAt,
		); err != nil {
			return fmt.Errorf("insert score set: %w", err)
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"evidence_records"},
			[]string{"student_id", "tier", "skill_name", "seq", "data"}, pgx.CopyFromRows(evidence)); err != nil {
			return fmt.Errorf("copy evidence: %w", err)
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"skill_scores"},
			[]string{"student_id", "tier", "skill_name", "claimed_score", "confidence", "level", "evidence_count", "total_weight"},
			pgx.CopyFromRows(scores)); err != nil {
			return fmt.Errorf("copy scores: %w", err)
		}
		return nil
	})
}

func (s *ScoreStore) ListScores(ctx context.Context, studentID string) ([]domain.SkillScore, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tier, skill_name, claimed_score, confidence, level, evidence_count, total_weight
		FROM skill_scores
		WHERE student_id=$1
		ORDER BY CASE tier WHEN 'child' THEN 0 WHEN 'parent' THEN 1 ELSE 2 END, skill_name`, studentID)
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	defer rows.Close()

	var out []domain.SkillScore
	for rows.Next() {
		var (
			sc          domain.SkillScore
			tier, level string
		)
		if err := rows.Scan(&tier, &sc.SkillName, &sc.ClaimedScore, &sc.Confidence, &level, &sc.EvidenceCount, &sc.TotalWeight); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		sc.StudentID = studentID
		sc.Tier = domain.Tier(tier)
		sc.Level = domain.Level(level)
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *ScoreStore) Courses(ctx context.Context, studentID string) ([]domain.CourseRecord, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT courses FROM score_sets WHERE student_id=$1`, studentID).Scan(&raw)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load courses: %w", err)
	}
	var courses []domain.CourseRecord
	if err := json.Unmarshal(raw, &courses); err != nil {
		return nil, fmt.Errorf("unmarshal courses: %w", err)
	}
	return courses, nil
}

func (s *ScoreStore) Evidence(ctx context.Context, studentID string, tier domain.Tier, skill string) ([]domain.EvidenceRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM evidence_records WHERE student_id=$1 AND tier=$2 AND skill_name=$3 ORDER BY seq`,
		studentID, string(tier), skill)
	if err != nil {
		return nil, fmt.Errorf("load evidence: %w", err)
	}
	defer rows.Close()

	var out []domain.EvidenceRecord
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan evidence: %w", err)
		}
		var ev domain.EvidenceRecord
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal evidence: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *ScoreStore) SnapshotVersion(ctx context.Context, studentID string) (int64, error) {
	var version int64
	err := s.pool.QueryRow(ctx, `SELECT snapshot_version FROM score_sets WHERE student_id=$1`, studentID).Scan(&version)
	if err == pgx.ErrNoRows {
		return 0, fmt.Errorf("%w: %s", domain.ErrNoScores, studentID)
	}
	if err != nil {
		return 0, fmt.Errorf("load snapshot version: %w", err)
	}
	return version, nil
}

// Students lists students with stored scores.
func (s *ScoreStore) Students(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT student_id FROM score_sets ORDER BY student_id`)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
