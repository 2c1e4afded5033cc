package quiz

import (
	"fmt"
	"sort"
	"strings"

	"skill-assessment-service/internal/domain"
)

// Outcome is a graded submission.
type Outcome struct {
	Answers        []domain.GradedAnswer
	VerifiedScores []domain.VerifiedSkillScore
	OverallScore   float64
	Correct        int
	Total          int
}

// Grade checks answers against the drawn questions. Questions left unanswered count as
// incorrect. Answers for questions outside the attempt, repeated answers and letters
// outside A-D reject the whole submission.
func Grade(questions []domain.QuestionItem, answers []domain.AnswerSubmission, levels domain.LevelThresholds) (Outcome, error) {
	byID := make(map[string]domain.QuestionItem, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	selected := make(map[string]string, len(answers))
	for _, a := range answers {
		if _, ok := byID[a.QuestionID]; !ok {
			return Outcome{}, fmt.Errorf("%w: %s", domain.ErrUnknownQuestion, a.QuestionID)
		}
		if _, dup := selected[a.QuestionID]; dup {
			return Outcome{}, fmt.Errorf("%w: %s", domain.ErrDuplicateAnswer, a.QuestionID)
		}
		opt := strings.ToUpper(strings.TrimSpace(a.SelectedOption))
		if opt != "" && !domain.IsOptionKey(opt) {
			return Outcome{}, fmt.Errorf("%w: %q for %s", domain.ErrInvalidOption, a.SelectedOption, a.QuestionID)
		}
		selected[a.QuestionID] = opt
	}

	type tally struct{ correct, total int }
	perSkill := make(map[string]*tally)
	var out Outcome
	for _, q := range questions {
		opt := selected[q.ID]
		graded := domain.GradedAnswer{
			QuestionID:     q.ID,
			SkillName:      q.SkillName,
			SelectedOption: opt,
			CorrectOption:  q.CorrectOption,
			Answered:       opt != "",
			Correct:        opt != "" && opt == q.CorrectOption,
		}
		out.Answers = append(out.Answers, graded)

		t, ok := perSkill[q.SkillName]
		if !ok {
			t = &tally{}
			perSkill[q.SkillName] = t
		}
		t.total++
		out.Total++
		if graded.Correct {
			t.correct++
			out.Correct++
		}
	}

	names := make([]string, 0, len(perSkill))
	for name := range perSkill {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t := perSkill[name]
		score := 100 * float64(t.correct) / float64(t.total)
		out.VerifiedScores = append(out.VerifiedScores, domain.VerifiedSkillScore{
			SkillName:     name,
			Correct:       t.correct,
			Total:         t.total,
			VerifiedScore: score,
			Level:         levels.Classify(score),
		})
	}
	if out.Total > 0 {
		out.OverallScore = 100 * float64(out.Correct) / float64(out.Total)
	}
	return out, nil
}
