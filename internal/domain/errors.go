package domain

import "errors"

var (
	// ErrInvalidCourseRecord is returned when a parsed course line is structurally unusable.
	ErrInvalidCourseRecord = errors.New("invalid course record")
	// ErrInvalidGrade rejects a course whose grade is not on the configured scale.
	ErrInvalidGrade = errors.New("unrecognized grade")
	// ErrInvalidMapping indicates a malformed mapping table row.
	ErrInvalidMapping = errors.New("invalid mapping entry")
	// ErrInvalidTier indicates an unknown tier name.
	ErrInvalidTier = errors.New("invalid tier")
	// ErrInvalidDifficulty indicates an unknown difficulty name.
	ErrInvalidDifficulty = errors.New("invalid difficulty")
	// ErrInvalidQuestion indicates a malformed question bank item.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrNoSkillsSelected is returned when a quiz plan has no skills.
	ErrNoSkillsSelected = errors.New("no skills selected for quiz")
	// ErrTooManySkills is returned when a quiz plan exceeds the skill cap.
	ErrTooManySkills = errors.New("too many skills selected for quiz")
	// ErrDuplicateSkill is returned when a skill is selected twice.
	ErrDuplicateSkill = errors.New("skill selected more than once")
	// ErrNoQuestionsAvailable is returned when a plan yields zero drawable questions.
	ErrNoQuestionsAvailable = errors.New("question bank has no questions for this plan")
	// ErrPlanNotFound indicates an unknown quiz plan id.
	ErrPlanNotFound = errors.New("quiz plan not found")
	// ErrAttemptNotFound indicates an unknown quiz attempt id.
	ErrAttemptNotFound = errors.New("quiz attempt not found")
	// ErrAttemptCompleted is returned for every submission after the first.
	ErrAttemptCompleted = errors.New("quiz attempt already completed")
	// ErrUnknownQuestion indicates an answer for a question outside the attempt.
	ErrUnknownQuestion = errors.New("question not part of attempt")
	// ErrInvalidOption indicates an answer letter outside A-D.
	ErrInvalidOption = errors.New("invalid answer option")
	// ErrDuplicateAnswer indicates two answers for the same question in one submission.
	ErrDuplicateAnswer = errors.New("question answered more than once")
	// ErrJobNotFound indicates an unknown job id.
	ErrJobNotFound = errors.New("job not found")
	// ErrNoScores is returned when a student has no scores to work with.
	ErrNoScores = errors.New("student has no skill scores")
	// ErrSkillNotScored is returned when an explanation is requested for an unscored skill.
	ErrSkillNotScored = errors.New("skill has no score")
)
