package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skill-assessment-service/internal/config"
	"skill-assessment-service/internal/domain"
	"skill-assessment-service/internal/logger"
)

const testReference = `
course_skills:
  - {source: IT1090, target: Python, weight: 0.35}
  - {source: IT2040, target: Python, weight: 0.35}
child_to_parent:
  - {source: Python, target: Programming, weight: 1}
child_to_job:
  - {source: Python, target: Backend Development, weight: 0.8}
jobs:
  - id: backend
    required_skills:
      - skill: Backend Development
`

const testTranscripts = `
students:
  - id: s1
    courses:
      - {course_code: IT1090, grade: B+, credits: 3, academic_year: 1}
      - {course_code: IT2040, grade: A-, credits: 3, academic_year: 2}
  - id: s2
    courses:
      - {course_code: it2040, grade: C, credits: 3}
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRunScoreBatch(t *testing.T) {
	cfg := config.Default()
	cfg.Reference.Path = writeTemp(t, "reference.yaml", testReference)
	opts := scoreOptions{
		coursesPath: writeTemp(t, "courses.yaml", testTranscripts),
		workers:     2,
		topJobs:     1,
	}

	var out bytes.Buffer
	require.NoError(t, runScore(context.Background(), cfg, opts, &out, logger.NewNop()))

	var reports []studentReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &reports))
	require.Len(t, reports, 2)
	assert.Equal(t, "s1", reports[0].StudentID)
	assert.Equal(t, "s2", reports[1].StudentID)
	assert.Empty(t, reports[0].Evidence)

	var python domain.SkillScore
	for _, s := range reports[0].Scores {
		if s.Tier == domain.TierChild && s.SkillName == "Python" {
			python = s
		}
	}
	assert.InDelta(t, 88.49, python.ClaimedScore, 0.01)
	require.Len(t, reports[0].Jobs, 1)
	assert.Equal(t, "backend", reports[0].Jobs[0].JobID)

	// s2's year is inferred from the course code.
	assert.Len(t, reports[1].Scores, 3)
	assert.Equal(t, 50.0, reports[1].Scores[0].ClaimedScore)
}

func TestRunScoreRejectsBadGrade(t *testing.T) {
	cfg := config.Default()
	cfg.Reference.Path = writeTemp(t, "reference.yaml", testReference)
	opts := scoreOptions{coursesPath: writeTemp(t, "courses.yaml", `
students:
  - id: s1
    courses:
      - {course_code: IT1090, grade: Z, credits: 3, academic_year: 1}
`)}
	err := runScore(context.Background(), cfg, opts, &bytes.Buffer{}, logger.NewNop())
	assert.ErrorIs(t, err, domain.ErrInvalidGrade)
}

func TestBuildEngineFromDefaults(t *testing.T) {
	eng, err := buildEngine(config.Default())
	require.NoError(t, err)
	assert.Equal(t, 5, eng.planner.MaxSkills())
	assert.Equal(t, 70.0, eng.matcher.Threshold())
}
