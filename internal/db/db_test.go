package db

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpenCreatesStateDir(t *testing.T) {
	workspace := t.TempDir()
	conn, err := Open(Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	if _, err := os.Stat(filepath.Join(workspace, ".taskdeck")); err != nil {
		t.Fatalf("state dir not created: %v", err)
	}

	var fk int
	if err := conn.QueryRow(`PRAGMA foreign_keys`).Scan(&fk); err != nil {
		t.Fatal(err)
	}
	if fk != 1 {
		t.Fatalf("foreign_keys = %d, want 1", fk)
	}
	var mode string
	if err := conn.QueryRow(`PRAGMA journal_mode`).Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if !strings.EqualFold(mode, "wal") {
		t.Fatalf("journal_mode = %q, want wal", mode)
	}
}

func TestPathLayout(t *testing.T) {
	if got := Path(""); got != filepath.Join(".", ".taskdeck", "taskdeck.db") {
		t.Fatalf("Path(\"\") = %q", got)
	}
	if got := Path("/work"); got != filepath.Join("/work", ".taskdeck", "taskdeck.db") {
		t.Fatalf("Path(/work) = %q", got)
	}
}
