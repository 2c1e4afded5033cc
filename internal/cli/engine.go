package cli

import (
	"context"
	"fmt"

	"skill-assessment-service/internal/blend"
	"skill-assessment-service/internal/config"
	"skill-assessment-service/internal/domain"
	"skill-assessment-service/internal/matching"
	"skill-assessment-service/internal/quiz"
	"skill-assessment-service/internal/reference"
	"skill-assessment-service/internal/scoring"
)

// engine is the set of pure components every command builds from config.
type engine struct {
	pipeline *scoring.Pipeline
	planner  *quiz.Planner
	blender  *blend.Blender
	matcher  *matching.Matcher
}

func buildEngine(cfg config.Config) (engine, error) {
	levels := cfg.Scoring.Levels
	pipeline, err := scoring.NewPipeline(scoring.Params{
		Grades:         cfg.Scoring.Grades,
		MaxGradePoints: cfg.Scoring.MaxGradePoints,
		DecayRate:      cfg.Scoring.DecayRate,
		ConfidenceRate: cfg.Scoring.ConfidenceRate,
		CurrentYear:    cfg.Scoring.CurrentYear,
		Levels:         levels,
	})
	if err != nil {
		return engine{}, err
	}

	mixes := make(map[domain.Level]domain.DifficultyMix, len(cfg.Quiz.Mixes))
	for level, mix := range cfg.Quiz.Mixes {
		mixes[domain.Level(level)] = mix
	}
	planner, err := quiz.NewPlanner(quiz.PlannerConfig{
		QuestionsPerSkill: cfg.Quiz.QuestionsPerSkill,
		MaxSkills:         cfg.Quiz.MaxSkills,
		Mixes:             mixes,
	})
	if err != nil {
		return engine{}, err
	}

	blender, err := blend.NewBlender(blend.Weights{Quiz: cfg.Blend.QuizWeight, Claimed: cfg.Blend.ClaimedWeight}, levels)
	if err != nil {
		return engine{}, err
	}

	policy, err := matching.ParsePolicy(cfg.Matching.Policy)
	if err != nil {
		return engine{}, err
	}
	matcher, err := matching.NewMatcher(matching.Config{
		Threshold:         cfg.Matching.Threshold,
		Policy:            policy,
		CoverageWeight:    cfg.Matching.CoverageWeight,
		ProficiencyWeight: cfg.Matching.ProficiencyWeight,
	})
	if err != nil {
		return engine{}, err
	}
	return engine{pipeline: pipeline, planner: planner, blender: blender, matcher: matcher}, nil
}

// loadReference builds a store and publishes the first snapshot.
func loadReference(ctx context.Context, cfg config.Config) (*reference.Store, *reference.Snapshot, error) {
	store := reference.NewStore(reference.FileLoader{Path: cfg.Reference.Path, Workbook: cfg.Reference.Workbook})
	snap, err := store.Reload(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load reference %s: %w", cfg.Reference.Path, err)
	}
	return store, snap, nil
}
