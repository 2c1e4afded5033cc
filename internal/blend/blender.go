package blend

import (
	"fmt"
	"math"
	"sort"

	"skill-assessment-service/internal/domain"
)

// Weights are the blend weights; they must sum to 1.
type Weights struct {
	Quiz    float64
	Claimed float64
}

func DefaultWeights() Weights {
	return Weights{Quiz: 0.7, Claimed: 0.3}
}

func (w Weights) Validate() error {
	if w.Quiz < 0 || w.Claimed < 0 || math.Abs(w.Quiz+w.Claimed-1) > 1e-9 {
		return fmt.Errorf("blend weights must be non-negative and sum to 1, got quiz=%v claimed=%v", w.Quiz, w.Claimed)
	}
	return nil
}

// Blender combines claimed and verified scores.
type Blender struct {
	weights Weights
	levels  domain.LevelThresholds
}

func NewBlender(w Weights, levels domain.LevelThresholds) (*Blender, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if err := levels.Validate(); err != nil {
		return nil, err
	}
	return &Blender{weights: w, levels: levels}, nil
}

// Blend returns the final score for one skill. Without a verified score the claimed
// score passes through with weights reported as (0, 1).
func (b *Blender) Blend(studentID, skill string, claimed float64, verified *float64) domain.FinalSkillScore {
	out := domain.FinalSkillScore{
		StudentID:    studentID,
		SkillName:    skill,
		ClaimedScore: claimed,
	}
	if verified == nil {
		out.FinalScore = claimed
		out.WeightQuiz = 0
		out.WeightClaimed = 1
		out.FinalLevel = b.levels.Classify(claimed)
		out.Justification = fmt.Sprintf("No quiz attempt covers %s yet; final score is the transcript score %.1f (%s).",
			skill, claimed, out.FinalLevel)
		return out
	}
	v := *verified
	out.VerifiedScore = &v
	out.WeightQuiz = b.weights.Quiz
	out.WeightClaimed = b.weights.Claimed
	out.FinalScore = b.weights.Quiz*v + b.weights.Claimed*claimed
	out.FinalLevel = b.levels.Classify(out.FinalScore)
	out.Justification = fmt.Sprintf("Final %.1f (%s) = %.2f x quiz %.1f + %.2f x transcript %.1f; %s.",
		out.FinalScore, out.FinalLevel, out.WeightQuiz, v, out.WeightClaimed, claimed, agreement(claimed, v))
	return out
}

// BlendAll blends every claimed skill with its verified score, if any. Skills that
// were only verified by quiz have no claimed evidence and are blended against 0.
func (b *Blender) BlendAll(studentID string, claimed map[string]float64, verified map[string]float64) []domain.FinalSkillScore {
	names := make(map[string]struct{}, len(claimed)+len(verified))
	for n := range claimed {
		names[n] = struct{}{}
	}
	for n := range verified {
		names[n] = struct{}{}
	}
	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	out := make([]domain.FinalSkillScore, 0, len(sorted))
	for _, n := range sorted {
		var vp *float64
		if v, ok := verified[n]; ok {
			vp = &v
		}
		out = append(out, b.Blend(studentID, n, claimed[n], vp))
	}
	return out
}

func agreement(claimed, verified float64) string {
	diff := verified - claimed
	switch {
	case math.Abs(diff) < 10:
		return "quiz confirms the transcript estimate"
	case diff > 0:
		return fmt.Sprintf("quiz performance is %.1f points above the transcript estimate", diff)
	default:
		return fmt.Sprintf("quiz performance is %.1f points below the transcript estimate", -diff)
	}
}
