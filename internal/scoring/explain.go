package scoring

import (
	"fmt"
	"sort"

	"skill-assessment-service/internal/domain"
)

// CourseContribution is one evidence row in an explanation.
type CourseContribution struct {
	CourseCode      string  `json:"courseCode"`
	ChildSkill      string  `json:"childSkill,omitempty"`
	Grade           string  `json:"grade"`
	GradeNorm       float64 `json:"gradeNorm"`
	Credits         float64 `json:"credits"`
	AcademicYear    int     `json:"academicYear"`
	Recency         float64 `json:"recency"`
	MapWeight       float64 `json:"mapWeight"`
	HierarchyWeight float64 `json:"hierarchyWeight"`
	Weight          float64 `json:"weight"`
	Contribution    float64 `json:"contribution"`
}

// ChildContribution groups rollup evidence by the child skill it came through.
type ChildContribution struct {
	ChildSkill             string               `json:"childSkill"`
	Contribution           float64              `json:"contribution"`
	ContributionPercentage float64              `json:"contributionPercentage"`
	Weight                 float64              `json:"weight"`
	WeightPercentage       float64              `json:"weightPercentage"`
	CourseCount            int                  `json:"courseCount"`
	Courses                []CourseContribution `json:"courses"`
}

// Explanation replays a score from its evidence.
type Explanation struct {
	StudentID            string               `json:"studentId"`
	SkillName            string               `json:"skillName"`
	Tier                 domain.Tier          `json:"tier"`
	Score                float64              `json:"score"`
	Level                domain.Level         `json:"level"`
	Confidence           float64              `json:"confidence"`
	TotalContribution    float64              `json:"totalContribution"`
	TotalWeight          float64              `json:"totalWeight"`
	Formula              string               `json:"formula"`
	ConfidenceFormula    string               `json:"confidenceFormula"`
	Courses              []CourseContribution `json:"courses"`
	ChildSkills          []ChildContribution  `json:"childSkills,omitempty"`
	StrongestContributor string               `json:"strongestContributor,omitempty"`
}

// Explain rebuilds the breakdown behind score from the evidence of the same tier and skill.
// Records for other skills or tiers are ignored.
func Explain(score domain.SkillScore, evidence []domain.EvidenceRecord, confidenceRate float64) Explanation {
	ex := Explanation{
		StudentID:         score.StudentID,
		SkillName:         score.SkillName,
		Tier:              score.Tier,
		Score:             score.ClaimedScore,
		Level:             score.Level,
		Confidence:        score.Confidence,
		Formula:           "score = 100 * (total_contribution / total_weight)",
		ConfidenceFormula: fmt.Sprintf("confidence = 1 - exp(-%g * total_weight)", confidenceRate),
	}

	children := make(map[string]*ChildContribution)
	for _, rec := range evidence {
		if rec.Tier != score.Tier || rec.SkillName != score.SkillName {
			continue
		}
		row := CourseContribution{
			CourseCode:      rec.CourseCode,
			ChildSkill:      rec.ChildSkill,
			Grade:           rec.Grade,
			GradeNorm:       rec.GradeNorm,
			Credits:         rec.Credits,
			AcademicYear:    rec.AcademicYear,
			Recency:         rec.Recency,
			MapWeight:       rec.MapWeight,
			HierarchyWeight: rec.HierarchyWeight,
			Weight:          rec.EvidenceWeight,
			Contribution:    rec.Contribution,
		}
		ex.Courses = append(ex.Courses, row)
		ex.TotalContribution += rec.Contribution
		ex.TotalWeight += rec.EvidenceWeight

		if rec.ChildSkill == "" {
			continue
		}
		c, ok := children[rec.ChildSkill]
		if !ok {
			c = &ChildContribution{ChildSkill: rec.ChildSkill}
			children[rec.ChildSkill] = c
		}
		c.Contribution += rec.Contribution
		c.Weight += rec.EvidenceWeight
		c.CourseCount++
		c.Courses = append(c.Courses, row)
	}

	sortContributions(ex.Courses)

	for _, c := range children {
		sortContributions(c.Courses)
		if ex.TotalContribution > 0 {
			c.ContributionPercentage = 100 * c.Contribution / ex.TotalContribution
		}
		if ex.TotalWeight > 0 {
			c.WeightPercentage = 100 * c.Weight / ex.TotalWeight
		}
		ex.ChildSkills = append(ex.ChildSkills, *c)
	}
	sort.Slice(ex.ChildSkills, func(i, j int) bool {
		a, b := ex.ChildSkills[i], ex.ChildSkills[j]
		if a.Contribution != b.Contribution {
			return a.Contribution > b.Contribution
		}
		return a.ChildSkill < b.ChildSkill
	})

	switch {
	case len(ex.ChildSkills) > 0:
		ex.StrongestContributor = ex.ChildSkills[0].ChildSkill
	case len(ex.Courses) > 0:
		ex.StrongestContributor = ex.Courses[0].CourseCode
	}
	return ex
}

// sortContributions orders rows by contribution, largest first, so ties do not
// depend on the order evidence was stored in.
func sortContributions(rows []CourseContribution) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Contribution != b.Contribution {
			return a.Contribution > b.Contribution
		}
		if a.CourseCode != b.CourseCode {
			return a.CourseCode < b.CourseCode
		}
		return a.ChildSkill < b.ChildSkill
	})
}
