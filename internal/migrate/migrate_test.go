package migrate_test

import (
	"testing"

	"bookline/internal/db"
	"bookline/internal/migrate"
)

func TestMigrateFreshDatabase(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	var version int
	if err := conn.QueryRow(`SELECT version FROM schema_version`).Scan(&version); err != nil {
		t.Fatalf("read schema_version: %v", err)
	}
	if version != 2 {
		t.Fatalf("schema version = %d, want 2", version)
	}

	for _, table := range []string{"actors", "offers", "sessions", "session_operators", "events", "api_keys"} {
		var n int
		err := conn.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
		if err != nil {
			t.Fatalf("check table %s: %v", table, err)
		}
		if n != 1 {
			t.Fatalf("table %s missing after migrate", table)
		}
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if _, err := conn.Exec(`INSERT INTO actors (id, role, created_at) VALUES ('a1', 'client', '2025-05-01T12:00:00Z')`); err != nil {
		t.Fatalf("seed actor: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	var rows int
	if err := conn.QueryRow(`SELECT count(*) FROM schema_version`).Scan(&rows); err != nil {
		t.Fatalf("count schema_version: %v", err)
	}
	if rows != 1 {
		t.Fatalf("schema_version rows = %d, want 1", rows)
	}
	var actors int
	if err := conn.QueryRow(`SELECT count(*) FROM actors`).Scan(&actors); err != nil {
		t.Fatalf("count actors: %v", err)
	}
	if actors != 1 {
		t.Fatalf("actors = %d after re-migrate, want 1", actors)
	}
}
