package questions

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"hayaoshi/internal/models"
)

// Question is an alias kept short for callers inside this package
type Question = models.Question

//go:embed data/questions.json
var bundledJSON []byte

// ValidationError describes why a question was rejected
type ValidationError struct {
	ID      string
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("question %s: %s: %s", e.ID, e.Field, e.Message)
}

// Validate checks that a question can be played
func Validate(q Question) error {
	if strings.TrimSpace(q.Term) == "" {
		return ValidationError{ID: q.ID, Field: "term", Message: "term is required"}
	}
	if !q.Type.Valid() {
		return ValidationError{ID: q.ID, Field: "type", Message: fmt.Sprintf("unknown type %q", q.Type)}
	}
	if len(q.Choices) < 2 {
		return ValidationError{ID: q.ID, Field: "choices", Message: "at least two choices are required"}
	}
	answer := q.Answer()
	count := 0
	for _, c := range q.Choices {
		if c == answer {
			count++
		}
	}
	if count != 1 {
		return ValidationError{ID: q.ID, Field: "choices", Message: "correct answer must appear exactly once"}
	}
	return nil
}

// Parse decodes a JSON array of questions and drops the ones that fail validation
func Parse(data []byte) ([]Question, error) {
	var raw []Question
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode questions: %w", err)
	}
	return Playable(raw), nil
}

// Playable keeps the questions that pass Validate
func Playable(qs []Question) []Question {
	valid := make([]Question, 0, len(qs))
	for _, q := range qs {
		if err := Validate(q); err != nil {
			log.Printf("Warning: skipping %v", err)
			continue
		}
		valid = append(valid, q)
	}
	return valid
}

// Bundled returns the static fallback question set shipped with the binary
func Bundled() ([]Question, error) {
	return Parse(bundledJSON)
}

// LoadFile reads a question set from a JSON file on disk
func LoadFile(path string) ([]Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read question file %s: %w", path, err)
	}
	return Parse(data)
}
