package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/askdb/askdb/internal/conversation"
	"github.com/askdb/askdb/internal/database"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeDB struct {
	name      string
	log       *callLog
	schema    string
	schemaErr error
	result    string
	runErr    error
	ranSQL    []string
	closed    bool
}

func (f *fakeDB) SchemaText(context.Context) (string, error) {
	f.log.add(f.name + ".schema")
	return f.schema, f.schemaErr
}

func (f *fakeDB) Run(_ context.Context, sql string) (string, error) {
	f.log.add(f.name + ".run")
	f.ranSQL = append(f.ranSQL, sql)
	if f.runErr != nil {
		return "", &database.ExecutionError{SQL: sql, Err: f.runErr}
	}
	return f.result, nil
}

func (f *fakeDB) Close() error {
	f.closed = true
	return nil
}

type fakeSynthesizer struct {
	log      *callLog
	sql      string
	err      error
	schemas  []string
	history  [][]conversation.Turn
	question []string
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, question string, history []conversation.Turn, schema string) (string, error) {
	f.log.add("synthesize")
	f.question = append(f.question, question)
	f.history = append(f.history, history)
	f.schemas = append(f.schemas, schema)
	return f.sql, f.err
}

type fakeSummarizer struct {
	log     *callLog
	answer  string
	err     error
	schemas []string
	sqls    []string
	raws    []string
}

func (f *fakeSummarizer) Summarize(_ context.Context, _ string, _ []conversation.Turn, schema, sql, rawResult string) (string, error) {
	f.log.add("summarize")
	f.schemas = append(f.schemas, schema)
	f.sqls = append(f.sqls, sql)
	f.raws = append(f.raws, rawResult)
	return f.answer, f.err
}

func connectorFor(db database.Database) database.Connector {
	return database.ConnectorFunc(func(context.Context, database.Descriptor) (database.Database, error) {
		return db, nil
	})
}

var errUnreachable = errors.New("connection refused")

func failingConnector() database.Connector {
	return database.ConnectorFunc(func(_ context.Context, d database.Descriptor) (database.Database, error) {
		return nil, &database.ConnectionError{Driver: d.Driver, Target: d.Target(), Err: errUnreachable}
	})
}
