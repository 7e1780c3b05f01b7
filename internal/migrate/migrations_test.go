package migrate_test

import (
	"testing"

	"taskdeck/internal/db"
	"taskdeck/internal/migrate"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("second run: %v", err)
	}

	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='tasks'`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("tasks table count = %d, want 1", n)
	}
}

func TestMigrateRecordsAppliedSteps(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	if err := migrate.Migrate(conn); err != nil {
		t.Fatal(err)
	}
	var before int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&before); err != nil {
		t.Fatal(err)
	}
	if before == 0 {
		t.Fatalf("no steps recorded after migrate")
	}
	var version int
	var name, appliedAt string
	if err := conn.QueryRow(`SELECT version, name, applied_at FROM schema_migrations ORDER BY version LIMIT 1`).
		Scan(&version, &name, &appliedAt); err != nil {
		t.Fatal(err)
	}
	if version != 1 || name == "" || appliedAt == "" {
		t.Fatalf("first step = (%d, %q, %q)", version, name, appliedAt)
	}

	// A second run must not re-apply or re-record anything.
	if err := migrate.Migrate(conn); err != nil {
		t.Fatal(err)
	}
	var after int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&after); err != nil {
		t.Fatal(err)
	}
	if after != before {
		t.Fatalf("step count changed on rerun: %d -> %d", before, after)
	}
}
