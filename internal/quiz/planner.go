package quiz

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"skill-assessment-service/internal/domain"
)

// PlannerConfig sizes plans and sets the per-level difficulty split.
type PlannerConfig struct {
	QuestionsPerSkill int
	MaxSkills         int
	Mixes             map[domain.Level]domain.DifficultyMix
}

// DefaultMixes is the split used when a level has no configured mix.
func DefaultMixes() map[domain.Level]domain.DifficultyMix {
	return map[domain.Level]domain.DifficultyMix{
		domain.LevelAdvanced:     {Easy: 20, Medium: 30, Hard: 50},
		domain.LevelIntermediate: {Easy: 30, Medium: 50, Hard: 20},
		domain.LevelBeginner:     {Easy: 50, Medium: 40, Hard: 10},
	}
}

// Planner decides how many questions of each difficulty to draw per skill.
type Planner struct {
	cfg   PlannerConfig
	clock func() time.Time
	newID func() string
}

func NewPlanner(cfg PlannerConfig) (*Planner, error) {
	if cfg.QuestionsPerSkill < 1 {
		return nil, fmt.Errorf("quiz planner: questions per skill must be at least 1")
	}
	if cfg.MaxSkills < 1 {
		return nil, fmt.Errorf("quiz planner: max skills must be at least 1")
	}
	mixes := DefaultMixes()
	for level, mix := range cfg.Mixes {
		if mix.Easy < 0 || mix.Medium < 0 || mix.Hard < 0 || mix.Easy+mix.Medium+mix.Hard != 100 {
			return nil, fmt.Errorf("quiz planner: %s mix must be non-negative and sum to 100", level)
		}
		mixes[level] = mix
	}
	cfg.Mixes = mixes
	return &Planner{cfg: cfg, clock: time.Now, newID: uuid.NewString}, nil
}

// MaxSkills is the upper bound on selected skills per plan.
func (p *Planner) MaxSkills() int { return p.cfg.MaxSkills }

// Plan builds a quiz plan for the selected skills. Each skill's level comes from the
// most specific tier that scores it; a skill with no score plans as Beginner and is
// flagged as an unscored baseline.
func (p *Planner) Plan(studentID string, skills []string, scores []domain.SkillScore) (domain.QuizPlan, error) {
	if len(skills) == 0 {
		return domain.QuizPlan{}, domain.ErrNoSkillsSelected
	}
	if len(skills) > p.cfg.MaxSkills {
		return domain.QuizPlan{}, fmt.Errorf("%w: %d selected, at most %d allowed", domain.ErrTooManySkills, len(skills), p.cfg.MaxSkills)
	}

	lookup := indexByTier(scores)
	plan := domain.QuizPlan{
		ID:                p.newID(),
		StudentID:         studentID,
		QuestionsPerSkill: p.cfg.QuestionsPerSkill,
		CreatedAt:         p.clock().UTC(),
	}
	seen := make(map[string]struct{}, len(skills))
	for _, raw := range skills {
		name := strings.TrimSpace(raw)
		if name == "" {
			return domain.QuizPlan{}, fmt.Errorf("%w: empty skill name", domain.ErrNoSkillsSelected)
		}
		if _, dup := seen[name]; dup {
			return domain.QuizPlan{}, fmt.Errorf("%w: %s", domain.ErrDuplicateSkill, name)
		}
		seen[name] = struct{}{}

		ps := domain.PlannedSkill{SkillName: name, Level: domain.LevelBeginner, Unscored: true}
		if score, ok := lookup.find(name); ok {
			ps.Tier = score.Tier
			ps.ClaimedScore = score.ClaimedScore
			ps.Level = score.Level
			ps.Unscored = false
		}
		ps.Distribution = p.Distribute(ps.Level, p.cfg.QuestionsPerSkill)
		plan.Skills = append(plan.Skills, ps)
		plan.TotalQuestions += ps.Distribution.Total()
	}
	return plan, nil
}

// Distribute splits n questions by the level's mix. Counts are floored and the
// remainder goes to the level's dominant bucket so the total is always n.
func (p *Planner) Distribute(level domain.Level, n int) domain.Distribution {
	mix, ok := p.cfg.Mixes[level]
	if !ok {
		mix = p.cfg.Mixes[domain.LevelBeginner]
	}
	d := domain.Distribution{
		Easy:   n * mix.Easy / 100,
		Medium: n * mix.Medium / 100,
		Hard:   n * mix.Hard / 100,
	}
	rem := n - d.Total()
	switch dominant(mix) {
	case domain.DifficultyHard:
		d.Hard += rem
	case domain.DifficultyMedium:
		d.Medium += rem
	default:
		d.Easy += rem
	}
	return d
}

func dominant(mix domain.DifficultyMix) domain.Difficulty {
	switch {
	case mix.Hard > mix.Medium && mix.Hard > mix.Easy:
		return domain.DifficultyHard
	case mix.Medium > mix.Easy:
		return domain.DifficultyMedium
	default:
		return domain.DifficultyEasy
	}
}

// AutoPick chooses up to limit skills to verify: least confident first, then the
// ones closest to the proficiency line at 70, then the higher score.
func AutoPick(scores []domain.SkillScore, limit int) []string {
	candidates := make([]domain.SkillScore, 0, len(scores))
	for _, s := range scores {
		if s.Tier == domain.TierChild {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		candidates = append(candidates, scores...)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Confidence != b.Confidence {
			return a.Confidence < b.Confidence
		}
		da, db := math.Abs(a.ClaimedScore-70), math.Abs(b.ClaimedScore-70)
		if da != db {
			return da < db
		}
		if a.ClaimedScore != b.ClaimedScore {
			return a.ClaimedScore > b.ClaimedScore
		}
		return a.SkillName < b.SkillName
	})

	out := make([]string, 0, limit)
	seen := make(map[string]struct{})
	for _, s := range candidates {
		if len(out) == limit {
			break
		}
		if _, dup := seen[s.SkillName]; dup {
			continue
		}
		seen[s.SkillName] = struct{}{}
		out = append(out, s.SkillName)
	}
	return out
}

type tierIndex map[domain.Tier]map[string]domain.SkillScore

func indexByTier(scores []domain.SkillScore) tierIndex {
	idx := make(tierIndex)
	for _, s := range scores {
		if idx[s.Tier] == nil {
			idx[s.Tier] = make(map[string]domain.SkillScore)
		}
		idx[s.Tier][s.SkillName] = s
	}
	return idx
}

func (idx tierIndex) find(skill string) (domain.SkillScore, bool) {
	for _, tier := range domain.ScoredTiers {
		if s, ok := idx[tier][skill]; ok {
			return s, true
		}
	}
	return domain.SkillScore{}, false
}
