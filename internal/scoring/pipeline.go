package scoring

import (
	"fmt"

	"skill-assessment-service/internal/domain"
)

// Params are the tunable constants of the evidence model.
type Params struct {
	Grades         map[string]float64
	MaxGradePoints float64
	DecayRate      float64
	ConfidenceRate float64
	CurrentYear    int
	Levels         domain.LevelThresholds
}

// Tables are the three mapping tables a recompute reads. They must come from one snapshot.
type Tables struct {
	CourseSkills  Mapping
	ChildToParent Mapping
	ChildToJob    Mapping
}

// Result is the full output of one recompute for one student.
type Result struct {
	StudentID string
	Evidence  []domain.EvidenceRecord
	Scores    []domain.SkillScore
}

// ScoresFor returns the scores of a single tier.
func (r Result) ScoresFor(tier domain.Tier) []domain.SkillScore {
	var out []domain.SkillScore
	for _, s := range r.Scores {
		if s.Tier == tier {
			out = append(out, s)
		}
	}
	return out
}

// Pipeline turns course records into child, parent and job skill scores.
type Pipeline struct {
	grades GradeScale
	params Params
}

func NewPipeline(p Params) (*Pipeline, error) {
	grades, err := NewGradeScale(p.Grades, p.MaxGradePoints)
	if err != nil {
		return nil, err
	}
	if p.DecayRate < 0 {
		return nil, fmt.Errorf("scoring: decay rate must not be negative")
	}
	if p.ConfidenceRate <= 0 {
		return nil, fmt.Errorf("scoring: confidence rate must be positive")
	}
	if p.CurrentYear < 1 {
		return nil, fmt.Errorf("scoring: current year must be at least 1")
	}
	if err := p.Levels.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{grades: grades, params: p}, nil
}

// Levels exposes the thresholds the pipeline labels with.
func (p *Pipeline) Levels() domain.LevelThresholds {
	return p.params.Levels
}

// ConfidenceRate exposes the rate used by the confidence estimator.
func (p *Pipeline) ConfidenceRate() float64 {
	return p.params.ConfidenceRate
}

// Ingest converts course records into course-tier evidence. A record with an
// unknown grade, or with no academic year that cannot be inferred from its code,
// rejects the whole batch.
func (p *Pipeline) Ingest(studentID string, courses []domain.CourseRecord) ([]domain.EvidenceRecord, error) {
	out := make([]domain.EvidenceRecord, 0, len(courses))
	for _, c := range courses {
		rec, err := domain.NewCourseRecord(c.StudentID, c.CourseCode, c.Grade, c.Credits, c.AcademicYear)
		if err != nil {
			return nil, err
		}
		if rec.StudentID != studentID {
			return nil, fmt.Errorf("%w: %s belongs to student %s, not %s", domain.ErrInvalidCourseRecord, rec.CourseCode, rec.StudentID, studentID)
		}
		norm, err := p.grades.Normalize(rec.Grade)
		if err != nil {
			return nil, fmt.Errorf("course %s: %w", rec.CourseCode, err)
		}
		year := rec.AcademicYear
		if year == 0 {
			inferred, ok := InferAcademicYear(rec.CourseCode)
			if !ok {
				return nil, fmt.Errorf("%w: %s has no academic year", domain.ErrInvalidCourseRecord, rec.CourseCode)
			}
			year = inferred
		}
		recency := Recency(p.params.DecayRate, p.params.CurrentYear, year)
		weight := rec.Credits * recency
		out = append(out, domain.EvidenceRecord{
			StudentID:       studentID,
			Tier:            domain.TierCourse,
			CourseCode:      rec.CourseCode,
			Grade:           rec.Grade,
			AcademicYear:    year,
			GradeNorm:       norm,
			Recency:         recency,
			Credits:         rec.Credits,
			MapWeight:       1,
			HierarchyWeight: 1,
			EvidenceWeight:  weight,
			Contribution:    norm * weight,
		})
	}
	return out, nil
}

// Compute runs course -> child -> {parent, job}. Parent and job tiers are projected
// from child evidence records, never from child scores.
func (p *Pipeline) Compute(studentID string, courses []domain.CourseRecord, tables Tables) (Result, error) {
	base, err := p.Ingest(studentID, courses)
	if err != nil {
		return Result{}, err
	}
	child := Project(base, tables.CourseSkills, domain.TierChild)
	parent := Project(child, tables.ChildToParent, domain.TierParent)
	job := Project(child, tables.ChildToJob, domain.TierJob)

	res := Result{StudentID: studentID}
	for _, tier := range [][]domain.EvidenceRecord{child, parent, job} {
		res.Evidence = append(res.Evidence, tier...)
		res.Scores = append(res.Scores, Aggregate(tier, p.params.ConfidenceRate, p.params.Levels)...)
	}
	return res, nil
}
