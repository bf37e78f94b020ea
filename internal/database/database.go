// Package database is the session's view of the relational database: a
// schema provider and a query runner behind one handle.
package database

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/askdb/askdb/internal/observability"
)

// Descriptor is everything needed to open one database handle.
type Descriptor struct {
	Driver   string `json:"driver"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Name     string `json:"database"`
	SSLMode  string `json:"sslmode,omitempty"`
}

// Target identifies the database without credentials, for logs and errors.
func (d Descriptor) Target() string {
	if d.Host == "" {
		if d.Name == "" {
			return ":memory:"
		}
		return d.Name
	}
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port)) + "/" + d.Name
}

// Redacted returns a copy safe to echo back to clients.
func (d Descriptor) Redacted() Descriptor {
	if d.Password != "" {
		d.Password = "********"
	}
	return d
}

type Database interface {
	// SchemaText describes the current tables and columns. It is read from
	// the database on every call.
	SchemaText(ctx context.Context) (string, error)
	// Run executes sql as given and renders the result as text.
	Run(ctx context.Context, sql string) (string, error)
	Close() error
}

type Connector interface {
	Connect(ctx context.Context, descriptor Descriptor) (Database, error)
}

type ConnectorFunc func(ctx context.Context, descriptor Descriptor) (Database, error)

func (f ConnectorFunc) Connect(ctx context.Context, descriptor Descriptor) (Database, error) {
	return f(ctx, descriptor)
}

// ConnectionError reports a bad descriptor or an unreachable database.
type ConnectionError struct {
	Driver string
	Target string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s database %s: %v", e.Driver, e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ExecutionError carries the driver message for SQL that failed to run.
type ExecutionError struct {
	SQL string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute query: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Registry dispatches Connect to the connector registered for the
// descriptor's driver.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]Connector
}

func NewRegistry() *Registry {
	return &Registry{connectors: map[string]Connector{}}
}

func (r *Registry) Register(driver string, connector Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[strings.ToLower(strings.TrimSpace(driver))] = connector
}

func (r *Registry) Drivers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	drivers := make([]string, 0, len(r.connectors))
	for driver := range r.connectors {
		drivers = append(drivers, driver)
	}
	return drivers
}

func (r *Registry) Connect(ctx context.Context, descriptor Descriptor) (Database, error) {
	driver := strings.ToLower(strings.TrimSpace(descriptor.Driver))
	r.mu.RLock()
	connector, ok := r.connectors[driver]
	r.mu.RUnlock()
	if !ok {
		err := &ConnectionError{Driver: driver, Target: descriptor.Target(), Err: fmt.Errorf("unsupported driver %q", descriptor.Driver)}
		observability.ObserveConnect("unknown", err)
		return nil, err
	}
	descriptor.Driver = driver
	db, err := connector.Connect(ctx, descriptor)
	observability.ObserveConnect(driver, err)
	return db, err
}
