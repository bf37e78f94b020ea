package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/askdb/askdb/internal/conversation"
	"github.com/askdb/askdb/internal/llm"
)

var ErrEmptySQL = errors.New("model returned empty SQL")

// Synthesizer turns a question into one SQL statement. The model should be
// configured with temperature 0 so identical inputs give identical SQL.
type Synthesizer struct {
	Model    llm.Model
	Template Template
}

func NewSynthesizer(model llm.Model) *Synthesizer {
	return &Synthesizer{Model: model, Template: SQLTemplate}
}

// Synthesize returns the model's SQL with any markdown fence removed. The
// statement is not otherwise checked; the model output is trusted.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, history []conversation.Turn, schema string) (string, error) {
	prompt, err := s.Template.Render(map[string]string{
		FieldSchema:      schema,
		FieldChatHistory: conversation.Render(history),
		FieldQuestion:    question,
	})
	if err != nil {
		return "", err
	}

	raw, err := s.Model.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("synthesize sql: %w", err)
	}
	sql := stripMarkdownSQL(raw)
	if sql == "" {
		return "", ErrEmptySQL
	}
	return sql, nil
}

func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
