package matching

import (
	"fmt"
	"sort"
	"strings"

	"skill-assessment-service/internal/domain"
)

// Policy names how the match percentage is computed.
type Policy string

const (
	// PolicyWeighted blends importance-weighted coverage and proficiency.
	PolicyWeighted Policy = "weighted"
	// PolicyCoverage is the plain proficient/required ratio.
	PolicyCoverage Policy = "coverage"
)

func ParsePolicy(raw string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(raw))) {
	case PolicyWeighted:
		return PolicyWeighted, nil
	case PolicyCoverage:
		return PolicyCoverage, nil
	}
	return "", fmt.Errorf("unknown match policy %q", raw)
}

const notApplicable = "Not Applicable"

type Config struct {
	Threshold         float64
	Policy            Policy
	CoverageWeight    float64
	ProficiencyWeight float64
}

func DefaultConfig() Config {
	return Config{Threshold: 70, Policy: PolicyWeighted, CoverageWeight: 0.6, ProficiencyWeight: 0.4}
}

// Matcher compares a final skill vector with a job's required skills.
type Matcher struct {
	cfg Config
}

func NewMatcher(cfg Config) (*Matcher, error) {
	if cfg.Threshold <= 0 || cfg.Threshold > 100 {
		return nil, fmt.Errorf("matcher: threshold must be in (0,100], got %v", cfg.Threshold)
	}
	if _, err := ParsePolicy(string(cfg.Policy)); err != nil {
		return nil, err
	}
	if cfg.CoverageWeight < 0 || cfg.ProficiencyWeight < 0 || cfg.CoverageWeight+cfg.ProficiencyWeight <= 0 {
		return nil, fmt.Errorf("matcher: coverage/proficiency weights must be non-negative and not both zero")
	}
	return &Matcher{cfg: cfg}, nil
}

func (m *Matcher) Threshold() float64 { return m.cfg.Threshold }

// Match builds a gap report. Only proficient skills count toward coverage and
// proficiency. The output depends only on its inputs.
func (m *Matcher) Match(studentID string, skills map[string]domain.SkillValue, job domain.JobRequirement) domain.MatchReport {
	report := domain.MatchReport{
		StudentID:        studentID,
		JobID:            job.JobID,
		Title:            job.Title,
		Policy:           string(m.cfg.Policy),
		Proficient:       []domain.SkillGap{},
		NeedsImprovement: []domain.SkillGap{},
		Missing:          []domain.SkillGap{},
		NextSteps:        []string{},
	}
	if len(job.RequiredSkills) == 0 {
		report.Readiness = domain.Readiness{
			Label:   notApplicable,
			Message: "This job lists no required skills.",
		}
		return report
	}

	var totalImportance, matchedImportance, weightedScore float64
	for _, req := range job.RequiredSkills {
		importance := req.Importance
		if importance <= 0 {
			importance = 1
		}
		totalImportance += importance

		value, ok := skills[req.SkillName]
		gap := domain.SkillGap{SkillName: req.SkillName, Importance: importance}
		if ok {
			gap.Score = value.Score
			gap.Level = value.Level
		}

		switch {
		case ok && value.Score >= m.cfg.Threshold:
			gap.Status = domain.GapProficient
			report.Proficient = append(report.Proficient, gap)
			matchedImportance += importance
			weightedScore += importance * value.Score
		case ok && value.Score > 0:
			gap.Status = domain.GapNeedsImprovement
			gap.Gap = m.cfg.Threshold - value.Score
			gap.Recommendation = improvementRecommendation(value.Score)
			report.NeedsImprovement = append(report.NeedsImprovement, gap)
		default:
			gap.Score = 0
			gap.Level = ""
			gap.Status = domain.GapMissing
			gap.Gap = m.cfg.Threshold
			gap.Recommendation = "Start with foundational courses"
			report.Missing = append(report.Missing, gap)
		}
	}

	report.Coverage = matchedImportance / totalImportance
	if matchedImportance > 0 {
		report.Proficiency = weightedScore / matchedImportance
	}

	var pct float64
	switch {
	case m.cfg.Policy == PolicyCoverage || matchedImportance == 0:
		pct = 100 * report.Coverage
	default:
		sum := m.cfg.CoverageWeight + m.cfg.ProficiencyWeight
		pct = (m.cfg.CoverageWeight*100*report.Coverage + m.cfg.ProficiencyWeight*report.Proficiency) / sum
	}
	report.MatchPercentage = &pct
	report.Readiness = Readiness(pct)

	sortGaps(report)
	report.NextSteps = nextSteps(report, len(job.RequiredSkills))
	return report
}

// Readiness bands a match percentage.
func Readiness(pct float64) domain.Readiness {
	switch {
	case pct >= 80:
		return domain.Readiness{Label: "Ready to Apply", Message: "You have most required skills. Apply now!"}
	case pct >= 60:
		return domain.Readiness{Label: "Almost Ready", Message: "Improve a few skills and you'll be ready."}
	case pct >= 40:
		return domain.Readiness{Label: "Developing", Message: "Focus on building missing skills."}
	default:
		return domain.Readiness{Label: "Early Stage", Message: "This role requires significant skill development."}
	}
}

func improvementRecommendation(score float64) string {
	switch {
	case score >= 60:
		return "Take advanced courses or work on real projects"
	case score >= 40:
		return "Complete intermediate tutorials and practice exercises"
	default:
		return "Take foundational courses and build the basics"
	}
}

func sortGaps(r domain.MatchReport) {
	sort.SliceStable(r.Proficient, func(i, j int) bool {
		a, b := r.Proficient[i], r.Proficient[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.SkillName < b.SkillName
	})
	sort.SliceStable(r.NeedsImprovement, func(i, j int) bool {
		a, b := r.NeedsImprovement[i], r.NeedsImprovement[j]
		if a.Gap != b.Gap {
			return a.Gap > b.Gap
		}
		return a.SkillName < b.SkillName
	})
	sort.SliceStable(r.Missing, func(i, j int) bool {
		a, b := r.Missing[i], r.Missing[j]
		if a.Importance != b.Importance {
			return a.Importance > b.Importance
		}
		return a.SkillName < b.SkillName
	})
}

func nextSteps(r domain.MatchReport, required int) []string {
	steps := []string{}
	if len(r.Missing) > 0 {
		steps = append(steps, "Learn fundamental skills: "+joinNames(r.Missing, 3))
	}
	if len(r.NeedsImprovement) > 0 {
		steps = append(steps, "Take practice quizzes to improve: "+joinNames(r.NeedsImprovement, 3))
	}
	if float64(len(r.Proficient)) >= 0.8*float64(required) {
		steps = append(steps,
			"Build a portfolio project showcasing your skills",
			"Update your resume with verified skills",
		)
	}
	if len(steps) == 0 {
		steps = append(steps, "Continue building your skill profile")
	}
	return steps
}

func joinNames(gaps []domain.SkillGap, limit int) string {
	if len(gaps) > limit {
		gaps = gaps[:limit]
	}
	names := make([]string, 0, len(gaps))
	for _, g := range gaps {
		names = append(names, g.SkillName)
	}
	return strings.Join(names, ", ")
}
