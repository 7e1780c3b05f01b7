// Package migrate brings a workspace database up to the newest embedded
// schema version.
package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed sql/*.sql
var schemaFS embed.FS

// Each .sql file under sql/ is one step, named NNNN_description.sql.
type step struct {
	version int
	name    string
	stmts   string
}

// Migrate applies every pending schema step in version order. Applied steps
// are recorded in schema_migrations; each step runs in its own transaction,
// so a failing step leaves the earlier ones in place.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations(
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("migrate: bookkeeping table: %w", err)
	}
	applied, err := appliedVersions(db)
	if err != nil {
		return err
	}
	steps, err := loadSteps()
	if err != nil {
		return err
	}
	for _, s := range steps {
		if applied[s.version] {
			continue
		}
		if err := applyStep(db, s); err != nil {
			return err
		}
	}
	return nil
}

func applyStep(db *sql.DB, s step) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(s.stmts); err != nil {
		return fmt.Errorf("migrate %s: %w", s.name, err)
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations(version,name,applied_at) VALUES (?,?,?)`,
		s.version, s.name, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("migrate %s: record: %w", s.name, err)
	}
	return tx.Commit()
}

func appliedVersions(db *sql.DB) (map[int]bool, error) {
	rows, err := db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func loadSteps() ([]step, error) {
	entries, err := schemaFS.ReadDir("sql")
	if err != nil {
		return nil, err
	}
	steps := make([]step, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		prefix, _, ok := strings.Cut(e.Name(), "_")
		if !ok {
			return nil, fmt.Errorf("migrate: unversioned file %s", e.Name())
		}
		v, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("migrate: bad version prefix in %s: %w", e.Name(), err)
		}
		data, err := schemaFS.ReadFile("sql/" + e.Name())
		if err != nil {
			return nil, err
		}
		steps = append(steps, step{version: v, name: e.Name(), stmts: string(data)})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].version < steps[j].version })
	return steps, nil
}
