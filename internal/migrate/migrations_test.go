package migrate_test

import (
	"context"
	"io"
	"log"
	"testing"

	"capline/internal/db"
	"capline/internal/migrate"
)

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(ctx, db.Config{Workspace: t.TempDir(), Logger: log.New(io.Discard, "", 0)})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	v, err := migrate.Migrate(ctx, conn)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if v != 1 {
		t.Fatalf("version = %d", v)
	}
	again, err := migrate.Migrate(ctx, conn)
	if err != nil || again != v {
		t.Fatalf("second migrate = %d, %v", again, err)
	}
	for _, table := range []string{"runs", "ledger_rows", "archive_events"} {
		var n int
		if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			t.Fatalf("table %s: %v", table, err)
		}
	}
}
