package domain

import (
	"fmt"
	"strings"
	"time"
)

// Tier identifies which layer of the skill hierarchy a score or evidence record belongs to.
type Tier string

const (
	// TierCourse marks raw per-course evidence before it is projected onto any skill.
	TierCourse Tier = "course"
	TierChild  Tier = "child"
	TierParent Tier = "parent"
	TierJob    Tier = "job"
)

// ScoredTiers lists the tiers that carry skill scores, most specific first.
var ScoredTiers = []Tier{TierChild, TierParent, TierJob}

// ParseTier validates a tier name coming from a caller.
func ParseTier(raw string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(raw))) {
	case TierChild:
		return TierChild, nil
	case TierParent:
		return TierParent, nil
	case TierJob:
		return TierJob, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTier, raw)
}

// Level is the coarse label attached to a 0-100 score.
type Level string

const (
	LevelBeginner     Level = "Beginner"
	LevelIntermediate Level = "Intermediate"
	LevelAdvanced     Level = "Advanced"
)

// LevelThresholds holds the inclusive lower bounds for each level.
type LevelThresholds struct {
	Intermediate float64 `yaml:"intermediate" json:"intermediate"`
	Advanced     float64 `yaml:"advanced" json:"advanced"`
}

// DefaultLevelThresholds are applied everywhere a score gets a label.
func DefaultLevelThresholds() LevelThresholds {
	return LevelThresholds{Intermediate: 50, Advanced: 75}
}

// Classify maps a score onto a level.
func (t LevelThresholds) Classify(score float64) Level {
	switch {
	case score >= t.Advanced:
		return LevelAdvanced
	case score >= t.Intermediate:
		return LevelIntermediate
	default:
		return LevelBeginner
	}
}

// Validate checks the thresholds are ordered and inside 0..100.
func (t LevelThresholds) Validate() error {
	if t.Intermediate <= 0 || t.Advanced > 100 || t.Intermediate >= t.Advanced {
		return fmt.Errorf("level thresholds must satisfy 0 < intermediate < advanced <= 100, got %v/%v", t.Intermediate, t.Advanced)
	}
	return nil
}

// Difficulty of a quiz question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Difficulties lists all difficulties in ascending order.
var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// ParseDifficulty normalises a difficulty name.
func ParseDifficulty(raw string) (Difficulty, error) {
	switch Difficulty(strings.ToLower(strings.TrimSpace(raw))) {
	case DifficultyEasy:
		return DifficultyEasy, nil
	case DifficultyMedium:
		return DifficultyMedium, nil
	case DifficultyHard:
		return DifficultyHard, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDifficulty, raw)
}

// CourseRecord is one parsed transcript line. AcademicYear is 1-based.
type CourseRecord struct {
	StudentID    string  `json:"studentId" yaml:"student_id"`
	CourseCode   string  `json:"courseCode" yaml:"course_code"`
	Grade        string  `json:"grade" yaml:"grade"`
	Credits      float64 `json:"credits" yaml:"credits"`
	AcademicYear int     `json:"academicYear" yaml:"academic_year"`
}

// NewCourseRecord normalises and validates the structural fields of a course record.
// Grade validity depends on the configured grade scale and is checked at ingestion.
func NewCourseRecord(studentID, courseCode, grade string, credits float64, academicYear int) (CourseRecord, error) {
	rec := CourseRecord{
		StudentID:    strings.TrimSpace(studentID),
		CourseCode:   strings.ToUpper(strings.TrimSpace(courseCode)),
		Grade:        strings.ToUpper(strings.TrimSpace(grade)),
		Credits:      credits,
		AcademicYear: academicYear,
	}
	switch {
	case rec.StudentID == "":
		return CourseRecord{}, fmt.Errorf("%w: student id is required", ErrInvalidCourseRecord)
	case rec.CourseCode == "":
		return CourseRecord{}, fmt.Errorf("%w: course code is required", ErrInvalidCourseRecord)
	case rec.Grade == "":
		return CourseRecord{}, fmt.Errorf("%w: %s has no grade", ErrInvalidCourseRecord, rec.CourseCode)
	case credits <= 0:
		return CourseRecord{}, fmt.Errorf("%w: %s has non-positive credits %v", ErrInvalidCourseRecord, rec.CourseCode, credits)
	case academicYear < 0:
		return CourseRecord{}, fmt.Errorf("%w: %s has negative academic year", ErrInvalidCourseRecord, rec.CourseCode)
	}
	return rec, nil
}

// MappingEntry links a source (course code or child skill) to a target skill with a relevance weight in (0,1].
type MappingEntry struct {
	Source string  `json:"source" yaml:"source"`
	Target string  `json:"target" yaml:"target"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// NewMappingEntry validates a mapping row.
func NewMappingEntry(source, target string, weight float64) (MappingEntry, error) {
	e := MappingEntry{
		Source: strings.TrimSpace(source),
		Target: strings.TrimSpace(target),
		Weight: weight,
	}
	if e.Source == "" || e.Target == "" {
		return MappingEntry{}, fmt.Errorf("%w: source and target are required", ErrInvalidMapping)
	}
	if weight <= 0 || weight > 1 {
		return MappingEntry{}, fmt.Errorf("%w: %s -> %s weight %v outside (0,1]", ErrInvalidMapping, e.Source, e.Target, weight)
	}
	return e, nil
}

// EvidenceRecord is the auditable unit behind every score.
// At the course tier SkillName is empty; after projection it names the target skill.
type EvidenceRecord struct {
	StudentID       string  `json:"studentId"`
	Tier            Tier    `json:"tier"`
	SkillName       string  `json:"skillName"`
	ChildSkill      string  `json:"childSkill,omitempty"`
	CourseCode      string  `json:"courseCode"`
	Grade           string  `json:"grade"`
	AcademicYear    int     `json:"academicYear"`
	GradeNorm       float64 `json:"gradeNorm"`
	Recency         float64 `json:"recency"`
	Credits         float64 `json:"credits"`
	MapWeight       float64 `json:"mapWeight"`
	HierarchyWeight float64 `json:"hierarchyWeight"`
	EvidenceWeight  float64 `json:"evidenceWeight"`
	Contribution    float64 `json:"contribution"`
}

// SkillScore is a recomputed claimed score for one skill at one tier.
type SkillScore struct {
	StudentID     string  `json:"studentId"`
	SkillName     string  `json:"skillName"`
	Tier          Tier    `json:"tier"`
	ClaimedScore  float64 `json:"claimedScore"`
	Confidence    float64 `json:"confidence"`
	Level         Level   `json:"level"`
	EvidenceCount int     `json:"evidenceCount"`
	TotalWeight   float64 `json:"totalWeight"`
}

// Distribution is the number of questions per difficulty for one skill.
type Distribution struct {
	Easy   int `json:"easy"`
	Medium int `json:"medium"`
	Hard   int `json:"hard"`
}

// Total returns the number of questions in the distribution.
func (d Distribution) Total() int {
	return d.Easy + d.Medium + d.Hard
}

// Count returns the bucket size for a difficulty.
func (d Distribution) Count(diff Difficulty) int {
	switch diff {
	case DifficultyEasy:
		return d.Easy
	case DifficultyMedium:
		return d.Medium
	case DifficultyHard:
		return d.Hard
	}
	return 0
}

// DifficultyMix is a percentage split across difficulties; the three shares sum to 100.
type DifficultyMix struct {
	Easy   int `yaml:"easy" json:"easy"`
	Medium int `yaml:"medium" json:"medium"`
	Hard   int `yaml:"hard" json:"hard"`
}

// PlannedSkill is one selected skill inside a quiz plan.
type PlannedSkill struct {
	SkillName    string       `json:"skillName"`
	Tier         Tier         `json:"tier,omitempty"`
	ClaimedScore float64      `json:"claimedScore"`
	Level        Level        `json:"level"`
	Unscored     bool         `json:"unscored"`
	Distribution Distribution `json:"distribution"`
}

// QuizPlan describes how many questions of each difficulty to draw per skill.
type QuizPlan struct {
	ID                string         `json:"id"`
	StudentID         string         `json:"studentId"`
	Skills            []PlannedSkill `json:"skills"`
	QuestionsPerSkill int            `json:"questionsPerSkill"`
	TotalQuestions    int            `json:"totalQuestions"`
	CreatedAt         time.Time      `json:"createdAt"`
}

// Option letters accepted for the four answer options.
var OptionKeys = []string{"A", "B", "C", "D"}

// QuestionItem is read-only content supplied by the question-authoring collaborator.
type QuestionItem struct {
	ID            string     `json:"id" yaml:"id"`
	SkillName     string     `json:"skillName" yaml:"skill_name"`
	Difficulty    Difficulty `json:"difficulty" yaml:"difficulty"`
	Prompt        string     `json:"prompt" yaml:"prompt"`
	Options       [4]string  `json:"options" yaml:"options"`
	CorrectOption string     `json:"correctOption" yaml:"correct_option"`
	Explanation   string     `json:"explanation" yaml:"explanation"`
}

// NewQuestionItem validates a question bank row.
func NewQuestionItem(id, skill string, difficulty Difficulty, prompt string, options [4]string, correct, explanation string) (QuestionItem, error) {
	q := QuestionItem{
		ID:            strings.TrimSpace(id),
		SkillName:     strings.TrimSpace(skill),
		Difficulty:    difficulty,
		Prompt:        strings.TrimSpace(prompt),
		Options:       options,
		CorrectOption: strings.ToUpper(strings.TrimSpace(correct)),
		Explanation:   explanation,
	}
	if q.ID == "" || q.SkillName == "" || q.Prompt == "" {
		return QuestionItem{}, fmt.Errorf("%w: id, skill and prompt are required", ErrInvalidQuestion)
	}
	if _, err := ParseDifficulty(string(difficulty)); err != nil {
		return QuestionItem{}, fmt.Errorf("%w: %v", ErrInvalidQuestion, err)
	}
	for i, opt := range options {
		if strings.TrimSpace(opt) == "" {
			return QuestionItem{}, fmt.Errorf("%w: %s option %s is empty", ErrInvalidQuestion, q.ID, OptionKeys[i])
		}
	}
	if !IsOptionKey(q.CorrectOption) {
		return QuestionItem{}, fmt.Errorf("%w: %s correct option %q", ErrInvalidQuestion, q.ID, correct)
	}
	return q, nil
}

// IsOptionKey reports whether key is one of A-D.
func IsOptionKey(key string) bool {
	for _, k := range OptionKeys {
		if k == key {
			return true
		}
	}
	return false
}

// PublicQuestion is a question with the answer key stripped, safe to send to the student.
type PublicQuestion struct {
	ID         string     `json:"id"`
	SkillName  string     `json:"skillName"`
	Difficulty Difficulty `json:"difficulty"`
	Prompt     string     `json:"prompt"`
	Options    [4]string  `json:"options"`
}

// Public strips the correct option and explanation.
func (q QuestionItem) Public() PublicQuestion {
	return PublicQuestion{
		ID:         q.ID,
		SkillName:  q.SkillName,
		Difficulty: q.Difficulty,
		Prompt:     q.Prompt,
		Options:    q.Options,
	}
}

// Shortfall records a bucket the question bank could not fill.
type Shortfall struct {
	SkillName  string     `json:"skillName"`
	Difficulty Difficulty `json:"difficulty"`
	Requested  int        `json:"requested"`
	Drawn      int        `json:"drawn"`
	Missing    int        `json:"missing"`
}

// AnswerSubmission is one student answer.
type AnswerSubmission struct {
	QuestionID     string `json:"questionId"`
	SelectedOption string `json:"selectedOption"`
}

// GradedAnswer is a submission checked against the answer key.
type GradedAnswer struct {
	QuestionID     string `json:"questionId"`
	SkillName      string `json:"skillName"`
	SelectedOption string `json:"selectedOption"`
	CorrectOption  string `json:"correctOption"`
	Correct        bool   `json:"correct"`
	Answered       bool   `json:"answered"`
}

// VerifiedSkillScore is the quiz outcome for one skill.
type VerifiedSkillScore struct {
	SkillName     string  `json:"skillName"`
	Correct       int     `json:"correct"`
	Total         int     `json:"total"`
	VerifiedScore float64 `json:"verifiedScore"`
	Level         Level   `json:"level"`
}

// AttemptStatus tracks the lifecycle of a quiz attempt.
type AttemptStatus string

const (
	AttemptOpen      AttemptStatus = "open"
	AttemptCompleted AttemptStatus = "completed"
)

// QuizAttempt is created when questions are drawn and finalised once on submission.
type QuizAttempt struct {
	ID             string               `json:"id"`
	StudentID      string               `json:"studentId"`
	QuizPlanID     string               `json:"quizPlanId"`
	Status         AttemptStatus        `json:"status"`
	Questions      []QuestionItem       `json:"questions"`
	Shortfalls     []Shortfall          `json:"shortfalls,omitempty"`
	Answers        []GradedAnswer       `json:"answers,omitempty"`
	VerifiedScores []VerifiedSkillScore `json:"verifiedScores,omitempty"`
	OverallScore   float64              `json:"overallScore"`
	CreatedAt      time.Time            `json:"createdAt"`
	CompletedAt    *time.Time           `json:"completedAt,omitempty"`
}

// QuestionIDs returns the drawn question ids in draw order.
func (a QuizAttempt) QuestionIDs() []string {
	ids := make([]string, 0, len(a.Questions))
	for _, q := range a.Questions {
		ids = append(ids, q.ID)
	}
	return ids
}

// FinalSkillScore is the blend of claimed and verified scores with both sources retained.
type FinalSkillScore struct {
	StudentID     string   `json:"studentId"`
	SkillName     string   `json:"skillName"`
	ClaimedScore  float64  `json:"claimedScore"`
	VerifiedScore *float64 `json:"verifiedScore"`
	FinalScore    float64  `json:"finalScore"`
	FinalLevel    Level    `json:"finalLevel"`
	WeightQuiz    float64  `json:"weightQuiz"`
	WeightClaimed float64  `json:"weightClaimed"`
	Justification string   `json:"justification"`
}

// RequiredSkill is one entry of a job's requirement list. Importance defaults to 1.
type RequiredSkill struct {
	SkillName  string  `json:"skillName" yaml:"skill"`
	Importance float64 `json:"importance,omitempty" yaml:"importance"`
}

// JobRequirement is supplied by the job-data collaborator.
type JobRequirement struct {
	JobID          string          `json:"jobId" yaml:"id"`
	Title          string          `json:"title,omitempty" yaml:"title"`
	Company        string          `json:"company,omitempty" yaml:"company"`
	RequiredSkills []RequiredSkill `json:"requiredSkills" yaml:"required_skills"`
}

// SkillValue is one entry of a student's final skill vector.
type SkillValue struct {
	Score float64 `json:"score"`
	Level Level   `json:"level"`
}

// GapStatus classifies a required skill against the proficiency threshold.
type GapStatus string

const (
	GapProficient       GapStatus = "Proficient"
	GapNeedsImprovement GapStatus = "Needs Improvement"
	GapMissing          GapStatus = "Missing"
)

// SkillGap is one classified required skill.
type SkillGap struct {
	SkillName      string    `json:"skillName"`
	Score          float64   `json:"score"`
	Level          Level     `json:"level,omitempty"`
	Importance     float64   `json:"importance"`
	Gap            float64   `json:"gap"`
	Status         GapStatus `json:"status"`
	Recommendation string    `json:"recommendation,omitempty"`
}

// Readiness is the banded interpretation of a match percentage.
type Readiness struct {
	Label   string `json:"label"`
	Message string `json:"message"`
}

// MatchReport is computed on demand and never stored as source of truth.
// MatchPercentage is nil when the job lists no required skills.
type MatchReport struct {
	StudentID        string     `json:"studentId"`
	JobID            string     `json:"jobId"`
	Title            string     `json:"title,omitempty"`
	MatchPercentage  *float64   `json:"matchPercentage"`
	Policy           string     `json:"policy"`
	Coverage         float64    `json:"coverage"`
	Proficiency      float64    `json:"proficiency"`
	Readiness        Readiness  `json:"readiness"`
	Proficient       []SkillGap `json:"proficient"`
	NeedsImprovement []SkillGap `json:"needsImprovement"`
	Missing          []SkillGap `json:"missing"`
	NextSteps        []string   `json:"nextSteps"`
}
