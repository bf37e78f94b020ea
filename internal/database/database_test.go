package database

import (
	"context"
	"errors"
	"testing"
)

type nopDatabase struct{ name string }

func (nopDatabase) SchemaText(context.Context) (string, error)  { return "", nil }
func (nopDatabase) Run(context.Context, string) (string, error) { return "", nil }
func (nopDatabase) Close() error                                { return nil }

func TestRegistryDispatchesOnDriver(t *testing.T) {
	registry := NewRegistry()
	var got Descriptor
	registry.Register("Postgres", ConnectorFunc(func(_ context.Context, d Descriptor) (Database, error) {
		got = d
		return nopDatabase{name: "pg"}, nil
	}))

	db, err := registry.Connect(context.Background(), Descriptor{Driver: " POSTGRES ", Host: "h", Port: 5432, Name: "app"})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if db.(nopDatabase).name != "pg" {
		t.Fatalf("db = %#v", db)
	}
	if got.Driver != "postgres" {
		t.Fatalf("descriptor driver = %q", got.Driver)
	}
}

func TestRegistryRejectsUnknownDriver(t *testing.T) {
	_, err := NewRegistry().Connect(context.Background(), Descriptor{Driver: "oracle"})
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("Connect() error = %v, want *ConnectionError", err)
	}
}

func TestDescriptorTargetAndRedaction(t *testing.T) {
	d := Descriptor{Driver: "postgres", Host: "db", Port: 6543, User: "u", Password: "secret", Name: "app"}
	if got := d.Target(); got != "db:6543/app" {
		t.Fatalf("Target() = %q", got)
	}
	if got := d.Redacted().Password; got == "secret" {
		t.Fatal("Redacted() leaked password")
	}
	if d.Password != "secret" {
		t.Fatal("Redacted() mutated receiver")
	}
	if got := (Descriptor{Driver: "duckdb"}).Target(); got != ":memory:" {
		t.Fatalf("in-memory Target() = %q", got)
	}
}
