package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type SQLOptions struct {
	// Schema is the namespace whose tables are described, e.g. "public".
	Schema string
	// SampleRows is how many rows per table are appended to the schema
	// text. Zero or less disables sampling.
	SampleRows int
}

// SQLDatabase implements Database over any database/sql driver exposing
// information_schema.
type SQLDatabase struct {
	db   *sql.DB
	opts SQLOptions
}

func NewSQLDatabase(db *sql.DB, opts SQLOptions) *SQLDatabase {
	return &SQLDatabase{db: db, opts: opts}
}

func (s *SQLDatabase) DB() *sql.DB {
	return s.db
}

func (s *SQLDatabase) Close() error {
	return s.db.Close()
}

func (s *SQLDatabase) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type columnInfo struct {
	name     string
	dataType string
	nullable bool
}

// BookkeepingTable records applied sample dataset steps. It is never
// described to the model.
const BookkeepingTable = "askdb_sample_versions"

// schemaColumnsSQL lists base-table columns only; views would otherwise be
// described as tables and sampled on every call.
const schemaColumnsSQL = `
SELECT c.table_name, c.column_name, c.data_type, c.is_nullable
FROM information_schema.columns c
JOIN information_schema.tables t
	ON t.table_schema = c.table_schema AND t.table_name = c.table_name
WHERE c.table_schema = $1
	AND t.table_type = 'BASE TABLE'
	AND c.table_name <> $2
ORDER BY c.table_name, c.ordinal_position`

func (s *SQLDatabase) SchemaText(ctx context.Context) (string, error) {
	rows, err := s.db.QueryContext(ctx, schemaColumnsSQL, s.opts.Schema, BookkeepingTable)
	if err != nil {
		return "", fmt.Errorf("list columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	columns := map[string][]columnInfo{}
	for rows.Next() {
		var table, column, dataType, nullable string
		if err := rows.Scan(&table, &column, &dataType, &nullable); err != nil {
			return "", fmt.Errorf("scan column: %w", err)
		}
		if _, seen := columns[table]; !seen {
			tables = append(tables, table)
		}
		columns[table] = append(columns[table], columnInfo{
			name:     column,
			dataType: dataType,
			nullable: strings.EqualFold(nullable, "YES"),
		})
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate columns: %w", err)
	}
	_ = rows.Close()

	blocks := make([]string, 0, len(tables))
	for _, table := range tables {
		block := renderCreateTable(table, columns[table])
		if s.opts.SampleRows > 0 {
			sample, err := s.sampleRows(ctx, table)
			if err != nil {
				return "", err
			}
			block += "\n\n" + sample
		}
		blocks = append(blocks, block)
	}
	return strings.Join(blocks, "\n\n"), nil
}

func renderCreateTable(table string, columns []columnInfo) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(quoteIdent(table))
	b.WriteString(" (\n")
	for i, column := range columns {
		b.WriteString("\t")
		b.WriteString(quoteIdent(column.name))
		b.WriteString(" ")
		b.WriteString(column.dataType)
		if !column.nullable {
			b.WriteString(" NOT NULL")
		}
		if i < len(columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")")
	return b.String()
}

func (s *SQLDatabase) sampleRows(ctx context.Context, table string) (string, error) {
	query := fmt.Sprintf("SELECT * FROM %s.%s LIMIT %d", quoteIdent(s.opts.Schema), quoteIdent(table), s.opts.SampleRows)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return "", fmt.Errorf("sample rows from %q: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	rendered, count, err := renderRows(rows)
	if err != nil {
		return "", fmt.Errorf("sample rows from %q: %w", table, err)
	}
	return fmt.Sprintf("/*\n%d rows from %s table:\n%s\n*/", count, quoteIdent(table), rendered), nil
}

// Run sends sqlText to the driver unchanged. Any failure is an
// *ExecutionError carrying the driver message.
func (s *SQLDatabase) Run(ctx context.Context, sqlText string) (string, error) {
	rows, err := s.db.QueryContext(ctx, sqlText)
	if err != nil {
		return "", &ExecutionError{SQL: sqlText, Err: err}
	}
	defer func() { _ = rows.Close() }()

	rendered, _, err := renderRows(rows)
	if err != nil {
		return "", &ExecutionError{SQL: sqlText, Err: err}
	}
	return rendered, nil
}

// renderRows writes a header line of column names followed by one line per
// row, values separated by " | ". Statements without a result set render
// as "OK".
func renderRows(rows *sql.Rows) (string, int, error) {
	columns, err := rows.Columns()
	if err != nil {
		return "", 0, fmt.Errorf("query columns: %w", err)
	}
	if len(columns) == 0 {
		return "OK", 0, rows.Err()
	}

	lines := []string{strings.Join(columns, " | ")}
	count := 0
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return "", 0, fmt.Errorf("scan row: %w", err)
		}
		lines = append(lines, strings.Join(formatValues(values), " | "))
		count++
	}
	if err := rows.Err(); err != nil {
		return "", 0, fmt.Errorf("iterate rows: %w", err)
	}
	return strings.Join(lines, "\n"), count, nil
}

func formatValues(values []any) []string {
	formatted := make([]string, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case nil:
			formatted[i] = "NULL"
		case []byte:
			formatted[i] = string(typed)
		case time.Time:
			formatted[i] = typed.Format(time.RFC3339Nano)
		default:
			formatted[i] = fmt.Sprint(typed)
		}
	}
	return formatted
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
