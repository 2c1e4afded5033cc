package scoring

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"skill-assessment-service/internal/domain"
)

// GradeScale converts letter grades to a 0..1 normalised value.
type GradeScale struct {
	points map[string]float64
	max    float64
}

// NewGradeScale copies points so later edits to the caller's map are not visible.
func NewGradeScale(points map[string]float64, maxPoints float64) (GradeScale, error) {
	if maxPoints <= 0 {
		return GradeScale{}, fmt.Errorf("grade scale: max points must be positive, got %v", maxPoints)
	}
	if len(points) == 0 {
		return GradeScale{}, fmt.Errorf("grade scale: no grades configured")
	}
	copied := make(map[string]float64, len(points))
	for grade, p := range points {
		if p < 0 || p > maxPoints {
			return GradeScale{}, fmt.Errorf("grade scale: %s=%v outside 0..%v", grade, p, maxPoints)
		}
		copied[strings.ToUpper(strings.TrimSpace(grade))] = p
	}
	return GradeScale{points: copied, max: maxPoints}, nil
}

// Points returns the grade points for a letter grade.
func (s GradeScale) Points(grade string) (float64, error) {
	p, ok := s.points[strings.ToUpper(strings.TrimSpace(grade))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidGrade, grade)
	}
	return p, nil
}

// Normalize returns grade points divided by the scale maximum.
func (s GradeScale) Normalize(grade string) (float64, error) {
	p, err := s.Points(grade)
	if err != nil {
		return 0, err
	}
	return p / s.max, nil
}

// Grades lists the accepted letter grades in sorted order.
func (s GradeScale) Grades() []string {
	out := make([]string, 0, len(s.points))
	for g := range s.points {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// Recency is exp(-decay * elapsed) where elapsed never goes below zero.
func Recency(decay float64, currentYear, academicYear int) float64 {
	elapsed := currentYear - academicYear
	if elapsed < 0 {
		elapsed = 0
	}
	return math.Exp(-decay * float64(elapsed))
}

var courseYearPattern = regexp.MustCompile(`^[A-Z]{2,4}([1-4])\d{3}$`)

// InferAcademicYear reads the year digit from codes like IT2040. ok is false when the code carries none.
func InferAcademicYear(courseCode string) (int, bool) {
	m := courseYearPattern.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(courseCode)))
	if m == nil {
		return 0, false
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return year, true
}
