// Package db owns the workspace SQLite handle.
package db

import (
	"database/sql"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const (
	stateDir = ".taskdeck"
	fileName = "taskdeck.db"
)

// Connection pragmas. WAL keeps readers unblocked while the engine holds a
// write transaction; busy_timeout covers the post-commit folder re-checks.
var pragmas = []string{
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"busy_timeout(5000)",
}

type Config struct {
	Workspace string
}

// Path returns the database file location inside a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, stateDir, fileName)
}

// EnsureWorkspace creates the workspace state directory if missing and
// returns its path.
func EnsureWorkspace(workspace string) (string, error) {
	if workspace == "" {
		workspace = "."
	}
	dir := filepath.Join(workspace, stateDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Open ensures the workspace exists and opens its database.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	return sql.Open("sqlite", dsn(Path(cfg.Workspace)))
}

func dsn(path string) string {
	var b strings.Builder
	b.WriteString("file:")
	b.WriteString(path)
	b.WriteString("?cache=shared")
	for _, p := range pragmas {
		b.WriteString("&_pragma=")
		b.WriteString(url.QueryEscape(p))
	}
	return b.String()
}
