package database

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestSchemaTextRendersTablesAndSamples(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewSQLDatabase(db, SQLOptions{Schema: "public", SampleRows: 2})

	mock.ExpectQuery(regexp.QuoteMeta(schemaColumnsSQL)).
		WithArgs("public", BookkeepingTable).
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "is_nullable"}).
			AddRow("Album", "AlbumId", "integer", "NO").
			AddRow("Artist", "ArtistId", "integer", "NO").
			AddRow("Artist", "Name", "character varying", "YES"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "public"."Album" LIMIT 2`)).
		WillReturnRows(sqlmock.NewRows([]string{"AlbumId"}).AddRow(int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "public"."Artist" LIMIT 2`)).
		WillReturnRows(sqlmock.NewRows([]string{"ArtistId", "Name"}).
			AddRow(int64(1), "AC/DC").
			AddRow(int64(2), nil))

	got, err := store.SchemaText(context.Background())
	if err != nil {
		t.Fatalf("SchemaText() error = %v", err)
	}
	want := "CREATE TABLE \"Album\" (\n\t\"AlbumId\" integer NOT NULL\n)\n\n" +
		"/*\n1 rows from \"Album\" table:\nAlbumId\n1\n*/\n\n" +
		"CREATE TABLE \"Artist\" (\n\t\"ArtistId\" integer NOT NULL,\n\t\"Name\" character varying\n)\n\n" +
		"/*\n2 rows from \"Artist\" table:\nArtistId | Name\n1 | AC/DC\n2 | NULL\n*/"
	if got != want {
		t.Fatalf("SchemaText() =\n%s\nwant\n%s", got, want)
	}
	assertSQLMock(t, mock)
}

func TestSchemaTextWithoutSamples(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewSQLDatabase(db, SQLOptions{Schema: "public"})

	mock.ExpectQuery(regexp.QuoteMeta(schemaColumnsSQL)).
		WithArgs("public", BookkeepingTable).
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "is_nullable"}).
			AddRow("Artist", "Name", "text", "YES"))

	got, err := store.SchemaText(context.Background())
	if err != nil {
		t.Fatalf("SchemaText() error = %v", err)
	}
	if got != "CREATE TABLE \"Artist\" (\n\t\"Name\" text\n)" {
		t.Fatalf("SchemaText() = %q", got)
	}
	assertSQLMock(t, mock)
}

func TestSchemaTextIsFetchedOnEveryCall(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewSQLDatabase(db, SQLOptions{Schema: "public"})
	columns := []string{"table_name", "column_name", "data_type", "is_nullable"}

	mock.ExpectQuery(regexp.QuoteMeta(schemaColumnsSQL)).
		WithArgs("public", BookkeepingTable).
		WillReturnRows(sqlmock.NewRows(columns).AddRow("a", "x", "text", "YES"))
	mock.ExpectQuery(regexp.QuoteMeta(schemaColumnsSQL)).
		WithArgs("public", BookkeepingTable).
		WillReturnRows(sqlmock.NewRows(columns).AddRow("b", "y", "text", "YES"))

	first, err := store.SchemaText(context.Background())
	if err != nil {
		t.Fatalf("first SchemaText() error = %v", err)
	}
	second, err := store.SchemaText(context.Background())
	if err != nil {
		t.Fatalf("second SchemaText() error = %v", err)
	}
	if first == second {
		t.Fatalf("schema text was cached: %q", second)
	}
	assertSQLMock(t, mock)
}

func TestRunRendersRows(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewSQLDatabase(db, SQLOptions{Schema: "public"})

	mock.ExpectQuery(regexp.QuoteMeta("SELECT Name FROM Artist LIMIT 10;")).
		WillReturnRows(sqlmock.NewRows([]string{"Name"}).AddRow("Alice").AddRow([]byte("Bob")))

	got, err := store.Run(context.Background(), "SELECT Name FROM Artist LIMIT 10;")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got != "Name\nAlice\nBob" {
		t.Fatalf("Run() = %q", got)
	}
	assertSQLMock(t, mock)
}

func TestRunWithoutResultSet(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewSQLDatabase(db, SQLOptions{Schema: "public"})

	mock.ExpectQuery(regexp.QuoteMeta("SET search_path TO public")).
		WillReturnRows(sqlmock.NewRows([]string{}))

	got, err := store.Run(context.Background(), "SET search_path TO public")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got != "OK" {
		t.Fatalf("Run() = %q", got)
	}
	assertSQLMock(t, mock)
}

func TestRunWrapsDriverErrorAsExecutionError(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewSQLDatabase(db, SQLOptions{Schema: "public"})
	driverErr := errors.New(`relation "nope" does not exist`)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM nope")).WillReturnError(driverErr)

	_, err := store.Run(context.Background(), "SELECT * FROM nope")
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Run() error = %v, want *ExecutionError", err)
	}
	if execErr.SQL != "SELECT * FROM nope" {
		t.Fatalf("ExecutionError.SQL = %q", execErr.SQL)
	}
	if !errors.Is(err, driverErr) {
		t.Fatal("ExecutionError should unwrap to the driver error")
	}
	assertSQLMock(t, mock)
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
