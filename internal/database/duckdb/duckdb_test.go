package duckdb

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/askdb/askdb/internal/database"
)

func TestConnectInMemoryDescribesAndRuns(t *testing.T) {
	ctx := context.Background()
	handle, err := NewConnector(3).Connect(ctx, database.Descriptor{Driver: DriverName})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = handle.Close() })

	seed(t, handle, `CREATE TABLE artist (id INTEGER NOT NULL, name VARCHAR)`,
		`INSERT INTO artist VALUES (1, 'Alice'), (2, 'Bob')`)

	schema, err := handle.SchemaText(ctx)
	if err != nil {
		t.Fatalf("SchemaText() error = %v", err)
	}
	if !strings.Contains(schema, `CREATE TABLE "artist" (`) {
		t.Fatalf("schema missing table: %s", schema)
	}
	if !strings.Contains(schema, `"id" INTEGER NOT NULL`) || !strings.Contains(schema, `"name" VARCHAR`) {
		t.Fatalf("schema missing columns: %s", schema)
	}
	if !strings.Contains(schema, "2 rows from \"artist\" table:") {
		t.Fatalf("schema missing sample rows: %s", schema)
	}

	out, err := handle.Run(ctx, "SELECT name FROM artist ORDER BY id LIMIT 10;")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out != "name\nAlice\nBob" {
		t.Fatalf("Run() = %q", out)
	}

	count, err := handle.Run(ctx, "SELECT COUNT(*) AS c FROM artist")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if count != "c\n2" {
		t.Fatalf("Run() = %q", count)
	}
}

func TestRunReportsExecutionError(t *testing.T) {
	ctx := context.Background()
	handle, err := NewConnector(0).Connect(ctx, database.Descriptor{Driver: DriverName})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = handle.Close() })

	_, err = handle.Run(ctx, "SELECT * FROM missing_table")
	var execErr *database.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Run() error = %v, want *ExecutionError", err)
	}
	if !strings.Contains(strings.ToLower(execErr.Error()), "missing_table") {
		t.Fatalf("driver message lost: %v", execErr)
	}
}

func TestConnectFileDatabaseReflectsSchemaChanges(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chat.duckdb")
	handle, err := NewConnector(0).Connect(ctx, database.Descriptor{Driver: DriverName, Name: path})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = handle.Close() })

	before, err := handle.SchemaText(ctx)
	if err != nil {
		t.Fatalf("SchemaText() error = %v", err)
	}
	if before != "" {
		t.Fatalf("empty database schema = %q", before)
	}

	seed(t, handle, `CREATE TABLE album (title VARCHAR)`)
	after, err := handle.SchemaText(ctx)
	if err != nil {
		t.Fatalf("SchemaText() error = %v", err)
	}
	if !strings.Contains(after, `"album"`) {
		t.Fatalf("schema not refreshed: %q", after)
	}
}

func TestSchemaTextDescribesBaseTablesOnly(t *testing.T) {
	ctx := context.Background()
	handle, err := NewConnector(2).Connect(ctx, database.Descriptor{Driver: DriverName})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = handle.Close() })

	seed(t, handle,
		`CREATE TABLE artist (name VARCHAR)`,
		`INSERT INTO artist VALUES ('Alice')`,
		`CREATE VIEW artist_names AS SELECT name FROM artist`,
		`CREATE TABLE `+database.BookkeepingTable+` (version BIGINT PRIMARY KEY)`,
		`INSERT INTO `+database.BookkeepingTable+` VALUES (1)`,
	)

	schema, err := handle.SchemaText(ctx)
	if err != nil {
		t.Fatalf("SchemaText() error = %v", err)
	}
	if !strings.Contains(schema, `CREATE TABLE "artist" (`) {
		t.Fatalf("schema missing base table: %s", schema)
	}
	if strings.Contains(schema, "artist_names") {
		t.Fatalf("schema describes a view: %s", schema)
	}
	if strings.Contains(schema, database.BookkeepingTable) {
		t.Fatalf("schema leaks the bookkeeping table: %s", schema)
	}
}

func seed(t *testing.T, handle database.Database, statements ...string) {
	t.Helper()
	sqlDB, ok := handle.(*database.SQLDatabase)
	if !ok {
		t.Fatalf("handle type = %T", handle)
	}
	for _, statement := range statements {
		if _, err := sqlDB.DB().ExecContext(context.Background(), statement); err != nil {
			t.Fatalf("seed %q: %v", statement, err)
		}
	}
}
