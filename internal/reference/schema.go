package reference

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const mappingRowSchema = `{
  "type": "object",
  "required": ["source", "target", "weight"],
  "properties": {
    "source": {"type": "string", "minLength": 1},
    "target": {"type": "string", "minLength": 1},
    "weight": {"type": "number", "exclusiveMinimum": 0, "maximum": 1}
  }
}`

var referenceSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["course_skills"],
  "properties": {
    "course_skills":   {"type": "array", "items": ` + mappingRowSchema + `},
    "child_to_parent": {"type": "array", "items": ` + mappingRowSchema + `},
    "child_to_job":    {"type": "array", "items": ` + mappingRowSchema + `},
    "jobs": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "required_skills"],
        "properties": {
          "id":      {"type": "string", "minLength": 1},
          "title":   {"type": "string"},
          "company": {"type": "string"},
          "required_skills": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["skill"],
              "properties": {
                "skill":      {"type": "string", "minLength": 1},
                "importance": {"type": "number", "minimum": 0}
              }
            }
          }
        }
      }
    }
  }
}`

const questionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["questions"],
  "properties": {
    "questions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "skill_name", "difficulty", "prompt", "options", "correct_option"],
        "properties": {
          "id":             {"type": "string", "minLength": 1},
          "skill_name":     {"type": "string", "minLength": 1},
          "difficulty":     {"enum": ["easy", "medium", "hard"]},
          "prompt":         {"type": "string", "minLength": 1},
          "options":        {"type": "array", "minItems": 4, "maxItems": 4, "items": {"type": "string", "minLength": 1}},
          "correct_option": {"enum": ["A", "B", "C", "D"]},
          "explanation":    {"type": "string"}
        }
      }
    }
  }
}`

// validateDocument checks a decoded YAML document against a JSON schema and joins every violation.
func validateDocument(schema string, doc interface{}) error {
	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(schema), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("schema validation failed: %s", strings.Join(msgs, "; "))
}
