// Package sample loads a small music-store dataset (artists, albums, tracks,
// customers, invoices) so a fresh database has something to talk about.
package sample

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/askdb/askdb/internal/database"
)

//go:embed sql/*.sql
var embeddedFS embed.FS

const versionTable = database.BookkeepingTable

var stepNamePattern = regexp.MustCompile(`^([0-9]+)_.+\.(up|down)\.sql$`)

// Loader applies versioned dataset scripts. Applied versions are recorded in
// a bookkeeping table so Apply is idempotent.
type Loader struct {
	fsys fs.FS
}

func NewLoader() *Loader {
	return &Loader{fsys: embeddedFS}
}

// ErrUnsupportedHandle reports a database handle that does not expose its
// underlying *sql.DB.
var ErrUnsupportedHandle = errors.New("database handle does not expose *sql.DB")

// SQLHandle is implemented by handles backed by database/sql.
type SQLHandle interface {
	DB() *sql.DB
}

// ApplyTo seeds a connected session database.
func (l *Loader) ApplyTo(ctx context.Context, handle database.Database) ([]string, error) {
	backed, ok := handle.(SQLHandle)
	if !ok {
		return nil, ErrUnsupportedHandle
	}
	return l.Apply(ctx, backed.DB())
}

type step struct {
	Version int64
	Name    string
	UpSQL   string
	DownSQL string
}

// Apply runs every step not yet applied, in version order, and returns the
// names of the steps it ran.
func (l *Loader) Apply(ctx context.Context, db *sql.DB) ([]string, error) {
	steps, err := loadSteps(l.fsys)
	if err != nil {
		return nil, err
	}
	if err := ensureVersionTable(ctx, db); err != nil {
		return nil, err
	}
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}

	var ran []string
	for _, item := range steps {
		if applied[item.Version] {
			continue
		}
		if err := runStep(ctx, db, item.UpSQL, `INSERT INTO `+versionTable+` (version) VALUES ($1)`, item.Version); err != nil {
			return ran, fmt.Errorf("apply sample step %s: %w", item.Name, err)
		}
		ran = append(ran, item.Name)
	}
	return ran, nil
}

// Reset undoes every applied step, newest first, and drops the bookkeeping
// table.
func (l *Loader) Reset(ctx context.Context, db *sql.DB) ([]string, error) {
	steps, err := loadSteps(l.fsys)
	if err != nil {
		return nil, err
	}
	if err := ensureVersionTable(ctx, db); err != nil {
		return nil, err
	}
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}

	var undone []string
	for i := len(steps) - 1; i >= 0; i-- {
		item := steps[i]
		if !applied[item.Version] {
			continue
		}
		if err := runStep(ctx, db, item.DownSQL, `DELETE FROM `+versionTable+` WHERE version = $1`, item.Version); err != nil {
			return undone, fmt.Errorf("reset sample step %s: %w", item.Name, err)
		}
		undone = append(undone, item.Name)
	}
	if _, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS `+versionTable); err != nil {
		return undone, fmt.Errorf("drop version table: %w", err)
	}
	return undone, nil
}

func ensureVersionTable(ctx context.Context, db *sql.DB) error {
	query := `
CREATE TABLE IF NOT EXISTS ` + versionTable + ` (
	version BIGINT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
)`
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure version table: %w", err)
	}
	return nil
}

func runStep(ctx context.Context, db *sql.DB, script, bookkeeping string, version int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, statement := range splitStatements(script) {
		if _, err := tx.ExecContext(ctx, statement); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, version); err != nil {
		return fmt.Errorf("record version %d: %w", version, err)
	}
	return tx.Commit()
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int64]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM `+versionTable)
	if err != nil {
		return nil, fmt.Errorf("query applied versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	applied := map[int64]bool{}
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return applied, nil
}

// splitStatements cuts a script on semicolons at line ends. Dataset scripts
// keep one statement terminator per line so no SQL parsing is needed.
func splitStatements(script string) []string {
	var (
		statements []string
		current    strings.Builder
	)
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			statements = append(statements, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if rest := strings.TrimSpace(current.String()); rest != "" {
		statements = append(statements, rest)
	}
	return statements
}

func loadSteps(fsys fs.FS) ([]step, error) {
	entries, err := fs.ReadDir(fsys, "sql")
	if err != nil {
		return nil, fmt.Errorf("read sample dir: %w", err)
	}

	items := map[int64]step{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		base := path.Base(entry.Name())
		matches := stepNamePattern.FindStringSubmatch(base)
		if len(matches) != 3 {
			continue
		}
		version, err := strconv.ParseInt(matches[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse sample version for %q: %w", base, err)
		}

		script, err := fs.ReadFile(fsys, path.Join("sql", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read sample step %q: %w", entry.Name(), err)
		}

		item := items[version]
		item.Version = version
		item.Name = strings.TrimSuffix(strings.TrimSuffix(base, ".up.sql"), ".down.sql")
		if matches[2] == "up" {
			item.UpSQL = string(script)
		} else {
			item.DownSQL = string(script)
		}
		items[version] = item
	}

	versions := make([]int64, 0, len(items))
	for version := range items {
		versions = append(versions, version)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })

	steps := make([]step, 0, len(versions))
	for _, version := range versions {
		item := items[version]
		if strings.TrimSpace(item.UpSQL) == "" {
			return nil, fmt.Errorf("sample step %d missing up SQL", version)
		}
		if strings.TrimSpace(item.DownSQL) == "" {
			return nil, fmt.Errorf("sample step %d missing down SQL", version)
		}
		steps = append(steps, item)
	}
	return steps, nil
}
