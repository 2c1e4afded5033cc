package reference

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"skill-assessment-service/internal/domain"
)

type questionDocument struct {
	Questions []struct {
		ID            string   `yaml:"id"`
		SkillName     string   `yaml:"skill_name"`
		Difficulty    string   `yaml:"difficulty"`
		Prompt        string   `yaml:"prompt"`
		Options       []string `yaml:"options"`
		CorrectOption string   `yaml:"correct_option"`
		Explanation   string   `yaml:"explanation"`
	} `yaml:"questions"`
}

// LoadQuestions reads and validates a question bank file.
func LoadQuestions(path string) ([]domain.QuestionItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read questions %s: %w", path, err)
	}
	return ParseQuestions(data)
}

// ParseQuestions validates raw YAML against the question schema and builds the items.
// Question ids must be unique across the bank.
func ParseQuestions(data []byte) ([]domain.QuestionItem, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if raw == nil {
		raw = map[string]interface{}{}
	}
	if err := validateDocument(questionSchema, raw); err != nil {
		return nil, err
	}
	var doc questionDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	seen := make(map[string]struct{}, len(doc.Questions))
	items := make([]domain.QuestionItem, 0, len(doc.Questions))
	for _, q := range doc.Questions {
		diff, err := domain.ParseDifficulty(q.Difficulty)
		if err != nil {
			return nil, fmt.Errorf("question %s: %w", q.ID, err)
		}
		var opts [4]string
		copy(opts[:], q.Options)
		item, err := domain.NewQuestionItem(q.ID, q.SkillName, diff, q.Prompt, opts, q.CorrectOption, q.Explanation)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[item.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %s", domain.ErrInvalidQuestion, item.ID)
		}
		seen[item.ID] = struct{}{}
		items = append(items, item)
	}
	return items, nil
}
