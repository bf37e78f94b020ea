package pipeline

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/askdb/askdb/internal/conversation"
	"github.com/askdb/askdb/internal/database"
)

func newFakePipeline(log *callLog) (*Pipeline, *fakeSynthesizer, *fakeSummarizer) {
	synth := &fakeSynthesizer{log: log, sql: "SELECT Name FROM Artist LIMIT 10;"}
	summ := &fakeSummarizer{log: log, answer: "The artists are Alice and Bob."}
	return &Pipeline{Synthesizer: synth, Summarizer: summ}, synth, summ
}

func TestAnswerRunsStagesInOrderWithOneSchemaRead(t *testing.T) {
	log := &callLog{}
	p, synth, summ := newFakePipeline(log)
	db := &fakeDB{name: "db", log: log, schema: "TABLE Artist(Name)", result: "Name\nAlice\nBob"}
	history := []conversation.Turn{conversation.Assistant("Hello, I am SQL Assistant")}

	result, err := p.Answer(context.Background(), "Name 10 artists", history, db)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	want := []string{"db.schema", "synthesize", "db.run", "summarize"}
	if got := log.snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("call order = %v, want %v", got, want)
	}
	if result.Answer != "The artists are Alice and Bob." {
		t.Fatalf("Answer = %q", result.Answer)
	}
	if result.SQL != "SELECT Name FROM Artist LIMIT 10;" || result.RawResult != "Name\nAlice\nBob" {
		t.Fatalf("Result = %#v", result)
	}
	if synth.schemas[0] != "TABLE Artist(Name)" || summ.schemas[0] != "TABLE Artist(Name)" {
		t.Fatalf("schema not shared: synth=%q summ=%q", synth.schemas[0], summ.schemas[0])
	}
	if db.ranSQL[0] != synth.sql || summ.sqls[0] != synth.sql {
		t.Fatalf("sql not passed through verbatim: ran=%q summarized=%q", db.ranSQL[0], summ.sqls[0])
	}
	if summ.raws[0] != "Name\nAlice\nBob" {
		t.Fatalf("summarizer raw result = %q", summ.raws[0])
	}
	for _, stage := range []Stage{StageSchema, StageSynthesize, StageExecute, StageSummarize} {
		if _, ok := result.Durations[stage]; !ok {
			t.Fatalf("missing duration for stage %s", stage)
		}
	}
}

func TestAnswerStopsAtFailingStage(t *testing.T) {
	boom := errors.New("model quota exceeded")
	tests := []struct {
		name      string
		setup     func(db *fakeDB, synth *fakeSynthesizer, summ *fakeSummarizer)
		wantStage Stage
		wantCalls []string
	}{
		{
			name:      "schema",
			setup:     func(db *fakeDB, _ *fakeSynthesizer, _ *fakeSummarizer) { db.schemaErr = boom },
			wantStage: StageSchema,
			wantCalls: []string{"db.schema"},
		},
		{
			name:      "synthesize",
			setup:     func(_ *fakeDB, synth *fakeSynthesizer, _ *fakeSummarizer) { synth.err = boom },
			wantStage: StageSynthesize,
			wantCalls: []string{"db.schema", "synthesize"},
		},
		{
			name:      "execute",
			setup:     func(db *fakeDB, _ *fakeSynthesizer, _ *fakeSummarizer) { db.runErr = boom },
			wantStage: StageExecute,
			wantCalls: []string{"db.schema", "synthesize", "db.run"},
		},
		{
			name:      "summarize",
			setup:     func(_ *fakeDB, _ *fakeSynthesizer, summ *fakeSummarizer) { summ.err = boom },
			wantStage: StageSummarize,
			wantCalls: []string{"db.schema", "synthesize", "db.run", "summarize"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			log := &callLog{}
			p, synth, summ := newFakePipeline(log)
			db := &fakeDB{name: "db", log: log, schema: "s", result: "r"}
			tc.setup(db, synth, summ)

			result, err := p.Answer(context.Background(), "q", nil, db)
			var stageErr *StageError
			if !errors.As(err, &stageErr) {
				t.Fatalf("Answer() error = %v, want *StageError", err)
			}
			if stageErr.Stage != tc.wantStage {
				t.Fatalf("Stage = %s, want %s", stageErr.Stage, tc.wantStage)
			}
			if !errors.Is(err, boom) {
				t.Fatalf("error does not wrap cause: %v", err)
			}
			if result.SQL != "" || result.RawResult != "" || result.Answer != "" || result.Durations != nil {
				t.Fatalf("partial result returned: %#v", result)
			}
			if got := log.snapshot(); !reflect.DeepEqual(got, tc.wantCalls) {
				t.Fatalf("calls = %v, want %v", got, tc.wantCalls)
			}
		})
	}
}

func TestExecutorDelegatesVerbatim(t *testing.T) {
	db := &fakeDB{name: "db", log: &callLog{}, result: "OK"}
	sql := "  drop table Artist ;  "
	out, err := Executor{}.Execute(context.Background(), db, sql)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out != "OK" || db.ranSQL[0] != sql {
		t.Fatalf("Execute() = %q ran %q", out, db.ranSQL[0])
	}

	db.runErr = errors.New(`relation "nope" does not exist`)
	_, err = Executor{}.Execute(context.Background(), db, "SELECT * FROM nope")
	var execErr *database.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Execute() error = %v, want *database.ExecutionError", err)
	}
}
