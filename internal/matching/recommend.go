package matching

import (
	"sort"

	"skill-assessment-service/internal/domain"
)

// Recommend ranks jobs by match percentage, highest first, ties by job id. Jobs with
// no required skills are skipped. topK <= 0 returns every ranked job.
func (m *Matcher) Recommend(studentID string, skills map[string]domain.SkillValue, jobs []domain.JobRequirement, topK int) []domain.MatchReport {
	reports := make([]domain.MatchReport, 0, len(jobs))
	for _, job := range jobs {
		r := m.Match(studentID, skills, job)
		if r.MatchPercentage == nil {
			continue
		}
		reports = append(reports, r)
	}
	sort.SliceStable(reports, func(i, j int) bool {
		a, b := *reports[i].MatchPercentage, *reports[j].MatchPercentage
		if a != b {
			return a > b
		}
		return reports[i].JobID < reports[j].JobID
	})
	if topK > 0 && len(reports) > topK {
		reports = reports[:topK]
	}
	return reports
}
