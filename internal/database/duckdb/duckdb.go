package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/askdb/askdb/internal/database"
)

const DriverName = "duckdb"

// Connector opens an embedded DuckDB database. Descriptor.Name is the
// database file path; an empty name opens a private in-memory database.
type Connector struct {
	SampleRows int
}

func NewConnector(sampleRows int) *Connector {
	return &Connector{SampleRows: sampleRows}
}

func (c *Connector) Connect(ctx context.Context, descriptor database.Descriptor) (database.Database, error) {
	path := strings.TrimSpace(descriptor.Name)
	if path == ":memory:" {
		path = ""
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, &database.ConnectionError{Driver: DriverName, Target: descriptor.Target(), Err: fmt.Errorf("open: %w", err)}
	}
	// One connection keeps an in-memory database visible to every query.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, &database.ConnectionError{Driver: DriverName, Target: descriptor.Target(), Err: fmt.Errorf("ping: %w", err)}
	}

	return database.NewSQLDatabase(db, database.SQLOptions{Schema: "main", SampleRows: c.SampleRows}), nil
}
