package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/askdb/askdb/internal/database"
)

const DriverName = "postgres"

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

type Connector struct {
	Pool       PoolConfig
	SampleRows int
	PingWait   time.Duration

	openDB func(dsn string) (*sql.DB, error)
}

func NewConnector(pool PoolConfig, sampleRows int) *Connector {
	return &Connector{Pool: pool, SampleRows: sampleRows, PingWait: 5 * time.Second}
}

func (c *Connector) Connect(ctx context.Context, descriptor database.Descriptor) (database.Database, error) {
	if err := validate(descriptor); err != nil {
		return nil, &database.ConnectionError{Driver: DriverName, Target: descriptor.Target(), Err: err}
	}

	db, err := c.open(DSN(descriptor))
	if err != nil {
		return nil, &database.ConnectionError{Driver: DriverName, Target: descriptor.Target(), Err: fmt.Errorf("open: %w", err)}
	}

	if c.Pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.Pool.MaxOpenConns)
	}
	if c.Pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(c.Pool.MaxIdleConns)
	}
	if c.Pool.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(c.Pool.ConnMaxIdleTime)
	}
	if c.Pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(c.Pool.ConnMaxLifetime)
	}

	wait := c.PingWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, &database.ConnectionError{Driver: DriverName, Target: descriptor.Target(), Err: fmt.Errorf("ping: %w", err)}
	}

	return database.NewSQLDatabase(db, database.SQLOptions{Schema: "public", SampleRows: c.SampleRows}), nil
}

func (c *Connector) open(dsn string) (*sql.DB, error) {
	if c.openDB != nil {
		return c.openDB(dsn)
	}
	return sql.Open("pgx", dsn)
}

// DSN renders a postgres:// URI; credentials are escaped.
func DSN(d database.Descriptor) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Name,
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{d.SSLMode}}.Encode()
	}
	return u.String()
}

func validate(d database.Descriptor) error {
	var problems []string
	if strings.TrimSpace(d.Host) == "" {
		problems = append(problems, "host is required")
	}
	if d.Port <= 0 || d.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port %d is out of range", d.Port))
	}
	if strings.TrimSpace(d.User) == "" {
		problems = append(problems, "user is required")
	}
	if strings.TrimSpace(d.Name) == "" {
		problems = append(problems, "database name is required")
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
