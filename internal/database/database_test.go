package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mohit83k/hotspot-console/internal/config"
)

func TestOpen_SQLite(t *testing.T) {
	cfg := config.DatabaseConfig{
		Driver:       "sqlite",
		Name:         filepath.Join(t.TempDir(), "radius.db"),
		MaxOpenConns: 2,
	}
	db, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if got := db.Stats().MaxOpenConnections; got != 2 {
		t.Errorf("expected pool bound 2, got %d", got)
	}

	var timeout int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&timeout); err != nil {
		t.Fatal(err)
	}
	if timeout != 5000 {
		t.Errorf("expected busy_timeout 5000, got %d", timeout)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{Driver: "oracle"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestSqliteDSN(t *testing.T) {
	if got := sqliteDSN("a.db?_pragma=foreign_keys(1)"); got != "a.db?_pragma=foreign_keys(1)" {
		t.Errorf("explicit pragmas must be kept, got %s", got)
	}
	want := "a.db?mode=rwc&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	if got := sqliteDSN("a.db?mode=rwc"); got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}
