package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/askdb/askdb/internal/conversation"
	"github.com/askdb/askdb/internal/llm"
)

var ErrEmptyAnswer = errors.New("model returned an empty answer")

type Summarizer struct {
	Model    llm.Model
	Template Template
}

func NewSummarizer(model llm.Model) *Summarizer {
	return &Summarizer{Model: model, Template: AnswerTemplate}
}

func (s *Summarizer) Summarize(ctx context.Context, question string, history []conversation.Turn, schema, sql, rawResult string) (string, error) {
	prompt, err := s.Template.Render(map[string]string{
		FieldSchema:      schema,
		FieldChatHistory: conversation.Render(history),
		FieldQuery:       sql,
		FieldQuestion:    question,
		FieldResponse:    rawResult,
	})
	if err != nil {
		return "", err
	}

	raw, err := s.Model.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("summarize answer: %w", err)
	}
	answer := strings.TrimSpace(raw)
	if answer == "" {
		return "", ErrEmptyAnswer
	}
	return answer, nil
}
