package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skill-assessment-service/internal/domain"
)

func TestExplainChildSkill(t *testing.T) {
	p := newTestPipeline(t)
	res, err := p.Compute("s1", workedCourses(), workedTables())
	require.NoError(t, err)

	score := scoreOf(t, res, domain.TierChild, "Python")
	ex := Explain(score, res.Evidence, p.ConfidenceRate())

	require.Len(t, ex.Courses, 2)
	assert.Equal(t, "IT2040", ex.Courses[0].CourseCode, "largest contribution first")
	assert.InDelta(t, score.TotalWeight, ex.TotalWeight, 1e-12)
	assert.InDelta(t, score.ClaimedScore, 100*ex.TotalContribution/ex.TotalWeight, 1e-9)
	assert.Empty(t, ex.ChildSkills)
	assert.Equal(t, "IT2040", ex.StrongestContributor)
}

func TestExplainParentGroupsByChild(t *testing.T) {
	p := newTestPipeline(t)
	tables := Tables{
		CourseSkills: staticMapping{
			"IT1010": {{Target: "SQL", Weight: 1}},
			"IT2020": {{Target: "Python", Weight: 1}},
		},
		ChildToParent: staticMapping{
			"SQL":    {{Target: "Data", Weight: 1}},
			"Python": {{Target: "Data", Weight: 0.5}},
		},
		ChildToJob: staticMapping{},
	}
	courses := []domain.CourseRecord{
		{StudentID: "s1", CourseCode: "IT1010", Grade: "A", Credits: 3, AcademicYear: 4},
		{StudentID: "s1", CourseCode: "IT2020", Grade: "A", Credits: 3, AcademicYear: 4},
	}
	res, err := p.Compute("s1", courses, tables)
	require.NoError(t, err)

	ex := Explain(scoreOf(t, res, domain.TierParent, "Data"), res.Evidence, p.ConfidenceRate())
	require.Len(t, ex.ChildSkills, 2)
	assert.Equal(t, "SQL", ex.ChildSkills[0].ChildSkill)
	assert.InDelta(t, 66.67, ex.ChildSkills[0].ContributionPercentage, 0.01)
	assert.InDelta(t, 33.33, ex.ChildSkills[1].WeightPercentage, 0.01)
	assert.Equal(t, "SQL", ex.StrongestContributor)
}

func TestExplainOrderIgnoresEvidenceOrder(t *testing.T) {
	p := newTestPipeline(t)
	tables := Tables{
		CourseSkills: staticMapping{
			"IT1020": {{Target: "Python", Weight: 0.5}},
			"IT1010": {{Target: "Python", Weight: 0.5}},
		},
		ChildToParent: staticMapping{},
		ChildToJob:    staticMapping{},
	}
	courses := []domain.CourseRecord{
		{StudentID: "s1", CourseCode: "IT1020", Grade: "B", Credits: 3, AcademicYear: 2},
		{StudentID: "s1", CourseCode: "IT1010", Grade: "B", Credits: 3, AcademicYear: 2},
	}
	res, err := p.Compute("s1", courses, tables)
	require.NoError(t, err)
	score := scoreOf(t, res, domain.TierChild, "Python")

	reversed := make([]domain.EvidenceRecord, len(res.Evidence))
	for i, ev := range res.Evidence {
		reversed[len(res.Evidence)-1-i] = ev
	}
	first := Explain(score, res.Evidence, p.ConfidenceRate())
	second := Explain(score, reversed, p.ConfidenceRate())

	require.Len(t, first.Courses, 2)
	assert.Equal(t, "IT1010", first.Courses[0].CourseCode, "ties broken by course code")
	assert.Equal(t, first, second)
}
