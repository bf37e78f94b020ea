// Package pipeline chains schema lookup, SQL synthesis, execution and answer
// summarization into one question-answering step.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/askdb/askdb/internal/conversation"
	"github.com/askdb/askdb/internal/database"
	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/observability"
)

type Stage string

const (
	StageSchema     Stage = "schema"
	StageSynthesize Stage = "synthesize"
	StageExecute    Stage = "execute"
	StageSummarize  Stage = "summarize"
)

// StageError names the stage that stopped the pipeline.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Executor runs synthesized SQL. It adds nothing on top of the database:
// no validation, no rewriting, no row limits.
type Executor struct{}

func (Executor) Execute(ctx context.Context, db database.Database, sql string) (string, error) {
	return db.Run(ctx, sql)
}

type SQLSynthesizer interface {
	Synthesize(ctx context.Context, question string, history []conversation.Turn, schema string) (string, error)
}

type AnswerSummarizer interface {
	Summarize(ctx context.Context, question string, history []conversation.Turn, schema, sql, rawResult string) (string, error)
}

type Result struct {
	SQL       string
	RawResult string
	Answer    string
	Durations map[Stage]time.Duration
}

type Pipeline struct {
	Synthesizer SQLSynthesizer
	Executor    Executor
	Summarizer  AnswerSummarizer
	Logger      *slog.Logger
}

func New(synthesizer *nl2sql.Synthesizer, summarizer *nl2sql.Summarizer, logger *slog.Logger) *Pipeline {
	return &Pipeline{Synthesizer: synthesizer, Summarizer: summarizer, Logger: logger}
}

// Answer reads the schema once and shares it between synthesis and
// summarization. history is the transcript before question was asked. On
// failure the returned Result is empty; the *StageError names the stage.
func (p *Pipeline) Answer(ctx context.Context, question string, history []conversation.Turn, db database.Database) (Result, error) {
	result := Result{Durations: map[Stage]time.Duration{}}

	schema, err := timed(&result, StageSchema, func() (string, error) {
		return db.SchemaText(ctx)
	})
	if err != nil {
		return Result{}, err
	}

	result.SQL, err = timed(&result, StageSynthesize, func() (string, error) {
		return p.Synthesizer.Synthesize(ctx, question, history, schema)
	})
	if err != nil {
		return Result{}, err
	}
	p.logger(ctx).DebugContext(ctx, "synthesized sql", "sql", result.SQL)

	result.RawResult, err = timed(&result, StageExecute, func() (string, error) {
		return p.Executor.Execute(ctx, db, result.SQL)
	})
	if err != nil {
		return Result{}, err
	}

	result.Answer, err = timed(&result, StageSummarize, func() (string, error) {
		return p.Summarizer.Summarize(ctx, question, history, schema, result.SQL, result.RawResult)
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

func timed(result *Result, stage Stage, fn func() (string, error)) (string, error) {
	started := time.Now()
	out, err := fn()
	elapsed := time.Since(started)
	result.Durations[stage] = elapsed
	observability.ObserveStage(string(stage), err, elapsed)
	if err != nil {
		return "", &StageError{Stage: stage, Err: err}
	}
	return out, nil
}

func (p *Pipeline) logger(ctx context.Context) *slog.Logger {
	if p.Logger == nil {
		return observability.WithTrace(ctx, slog.Default())
	}
	return observability.WithTrace(ctx, p.Logger)
}
