package db_test

import (
	"context"
	"io"
	"log"
	"os"
	"testing"

	"capline/internal/db"
)

func TestOpenSQLiteCreatesWorkspace(t *testing.T) {
	dir := t.TempDir()
	conn, err := db.Open(context.Background(), db.Config{Workspace: dir, Logger: log.New(io.Discard, "", 0)})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	if conn.Dialect != db.SQLite {
		t.Fatalf("dialect = %s", conn.Dialect)
	}
	if _, err := os.Stat(db.Path(dir)); err != nil {
		t.Fatalf("db file missing: %v", err)
	}
}

func TestOpenPostgresRequiresDSN(t *testing.T) {
	if _, err := db.Open(context.Background(), db.Config{Dialect: db.Postgres}); err == nil {
		t.Fatalf("expected dsn error")
	}
	if _, err := db.Open(context.Background(), db.Config{Dialect: "mysql"}); err == nil {
		t.Fatalf("expected dialect error")
	}
}

func TestPlaceholders(t *testing.T) {
	pg := &db.DB{Dialect: db.Postgres}
	if got := pg.Rebind("SELECT a FROM t WHERE x=? AND y=?"); got != "SELECT a FROM t WHERE x=$1 AND y=$2" {
		t.Fatalf("rebind = %s", got)
	}
	lite := &db.DB{Dialect: db.SQLite}
	if got := lite.InsertQuery("runs", []string{"a", "b"}); got != "INSERT INTO runs (a, b) VALUES (?, ?)" {
		t.Fatalf("insert = %s", got)
	}
	if got := pg.InsertQuery("runs", []string{"a", "b"}); got != "INSERT INTO runs (a, b) VALUES ($1, $2)" {
		t.Fatalf("insert = %s", got)
	}
}
