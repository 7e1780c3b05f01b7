// Package activity appends audit entries to a task's activity feed.
package activity

import (
	"context"
	"database/sql"
	"time"

	"taskdeck/internal/domain"
)

// Writer appends activity rows inside the caller's transaction so the
// feed entry commits or rolls back together with the change it records.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

// Entry is one feed item before persistence assigns it an id and date.
type Entry struct {
	Type   string
	Text   string
	File   string
	Status string
	By     string
}

func (w Writer) now() string {
	if w.Now != nil {
		return w.Now().UTC().Format(time.RFC3339)
	}
	return time.Now().UTC().Format(time.RFC3339)
}

// Append records an entry against the task.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, taskID string, e Entry) error {
	var file, status, by any
	if e.File != "" {
		file = e.File
	}
	if e.Status != "" {
		status = e.Status
	}
	if e.By != "" {
		by = e.By
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO activities(task_id,type,activity,file_ref,status,by_id,date) VALUES (?,?,?,?,?,?,?)`,
		taskID, e.Type, e.Text, file, status, by, w.now())
	return err
}

// CorrectFileStatus rewrites the oldest existing status-change entry for the
// file instead of appending a new one. Returns false when no such entry
// exists, in which case the caller should append normally.
func (w Writer) CorrectFileStatus(ctx context.Context, tx *sql.Tx, taskID, fileRef, status, text, by string) (bool, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM activities WHERE task_id=? AND type=? AND file_ref=? ORDER BY id ASC LIMIT 1`,
		taskID, domain.ActivityFileStatusChanged, fileRef).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var byVal any
	if by != "" {
		byVal = by
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE activities SET activity=?, status=?, by_id=?, date=? WHERE id=?`,
		text, status, byVal, w.now(), id)
	if err != nil {
		return false, err
	}
	return true, nil
}
