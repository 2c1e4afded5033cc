package scoring

import (
	"math"
	"sort"

	"skill-assessment-service/internal/domain"
)

// Mapping resolves a source key (course code or child skill) to weighted target skills.
type Mapping interface {
	Targets(source string) []domain.MappingEntry
}

// Project re-keys evidence through a mapping table onto the target tier.
// Weight and contribution are both scaled by the mapping weight, so projecting
// course evidence onto child skills and projecting child evidence onto parent or
// job skills is the same operation. Sources with no mapping contribute nothing.
func Project(records []domain.EvidenceRecord, table Mapping, target domain.Tier) []domain.EvidenceRecord {
	out := make([]domain.EvidenceRecord, 0, len(records))
	for _, rec := range records {
		source := rec.SkillName
		if rec.Tier == domain.TierCourse {
			source = rec.CourseCode
		}
		for _, entry := range table.Targets(source) {
			next := rec
			next.Tier = target
			next.SkillName = entry.Target
			next.EvidenceWeight = rec.EvidenceWeight * entry.Weight
			next.Contribution = rec.Contribution * entry.Weight
			if rec.Tier == domain.TierCourse {
				next.MapWeight = entry.Weight
			} else {
				next.ChildSkill = rec.SkillName
				next.HierarchyWeight = entry.Weight
			}
			out = append(out, next)
		}
	}
	sortEvidence(out)
	return out
}

// Aggregate sums evidence per skill. Skills with no positive evidence weight are
// omitted: no evidence is not the same as zero competence.
func Aggregate(records []domain.EvidenceRecord, confidenceRate float64, levels domain.LevelThresholds) []domain.SkillScore {
	type acc struct {
		tier         domain.Tier
		student      string
		weight       float64
		contribution float64
		count        int
	}
	sums := make(map[string]*acc)
	for _, rec := range records {
		a, ok := sums[rec.SkillName]
		if !ok {
			a = &acc{tier: rec.Tier, student: rec.StudentID}
			sums[rec.SkillName] = a
		}
		a.weight += rec.EvidenceWeight
		a.contribution += rec.Contribution
		a.count++
	}

	names := make([]string, 0, len(sums))
	for name := range sums {
		names = append(names, name)
	}
	sort.Strings(names)

	scores := make([]domain.SkillScore, 0, len(names))
	for _, name := range names {
		a := sums[name]
		if a.weight <= 0 {
			continue
		}
		score := 100 * a.contribution / a.weight
		scores = append(scores, domain.SkillScore{
			StudentID:     a.student,
			SkillName:     name,
			Tier:          a.tier,
			ClaimedScore:  score,
			Confidence:    Confidence(confidenceRate, a.weight),
			Level:         levels.Classify(score),
			EvidenceCount: a.count,
			TotalWeight:   a.weight,
		})
	}
	return scores
}

// Confidence is 1 - exp(-rate * weight), kept strictly below 1.
func Confidence(rate, totalWeight float64) float64 {
	if totalWeight <= 0 {
		return 0
	}
	c := 1 - math.Exp(-rate*totalWeight)
	if c >= 1 {
		return math.Nextafter(1, 0)
	}
	return c
}

func sortEvidence(records []domain.EvidenceRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.SkillName != b.SkillName {
			return a.SkillName < b.SkillName
		}
		if a.ChildSkill != b.ChildSkill {
			return a.ChildSkill < b.ChildSkill
		}
		if a.CourseCode != b.CourseCode {
			return a.CourseCode < b.CourseCode
		}
		return a.AcademicYear < b.AcademicYear
	})
}
