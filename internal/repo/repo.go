package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"taskdeck/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,title,description,priority,stage,date,area,company,is_trashed,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, nullable(t.Description), t.Priority, t.Stage, t.Date, nullable(t.Area), nullable(t.Company),
		boolToInt(t.IsTrashed), t.CreatedAt, t.UpdatedAt)
	return err
}

// UpdateTaskMeta writes the user-editable task fields.
func (r Repo) UpdateTaskMeta(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?, description=?, priority=?, stage=?, date=?, area=?, company=?, updated_at=? WHERE id=?`,
		t.Title, nullable(t.Description), t.Priority, t.Stage, t.Date, nullable(t.Area), nullable(t.Company), t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateTaskStage(ctx context.Context, tx *sql.Tx, id, stage, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET stage=?, updated_at=? WHERE id=?`, stage, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetTaskTrashed(ctx context.Context, tx *sql.Tx, id string, trashed bool, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET is_trashed=?, updated_at=? WHERE id=?`, boolToInt(trashed), updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) RestoreAllTasks(ctx context.Context, updatedAt string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE tasks SET is_trashed=0, updated_at=? WHERE is_trashed=1`, updatedAt)
	return err
}

// DeleteTask removes the task row; subtasks, activities, team and links go
// with it via foreign keys. Asset and ledger rows are keyed by container id
// without a foreign key, so callers clear those first.
func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetTask loads the full task aggregate: assets, file ledger, sub-tasks with
// their own assets and ledgers, team, links and activities.
func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	var t domain.Task
	var description, area, company sql.NullString
	var trashed int
	err := r.DB.QueryRowContext(ctx, `SELECT id,title,description,priority,stage,date,area,company,is_trashed,created_at,updated_at FROM tasks WHERE id=?`, id).
		Scan(&t.ID, &t.Title, &description, &t.Priority, &t.Stage, &t.Date, &area, &company, &trashed, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Description = description.String
	t.Area = area.String
	t.Company = company.String
	t.IsTrashed = trashed != 0

	if t.Assets, err = r.ListAssets(ctx, t.ID); err != nil {
		return t, err
	}
	if t.FileStatuses, err = r.GetFileStatuses(ctx, t.ID); err != nil {
		return t, err
	}
	if t.SubTasks, err = r.listSubTasks(ctx, t.ID); err != nil {
		return t, err
	}
	if t.Team, err = r.listTaskTeam(ctx, t.ID); err != nil {
		return t, err
	}
	if t.Links, err = r.listTaskLinks(ctx, t.ID); err != nil {
		return t, err
	}
	if t.Activities, err = r.ListActivities(ctx, t.ID); err != nil {
		return t, err
	}
	return t, nil
}

type TaskFilters struct {
	Stage    string
	Trashed  bool
	Search   string
	TeamUser string
	Limit    int
}

// ListTasks returns task rows without the embedded aggregates.
func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	clauses := []string{"is_trashed=?"}
	args := []any{boolToInt(f.Trashed)}
	if f.Stage != "" {
		clauses = append(clauses, "stage=?")
		args = append(args, f.Stage)
	}
	if f.TeamUser != "" {
		clauses = append(clauses, "id IN (SELECT task_id FROM task_team WHERE user_id=?)")
		args = append(args, f.TeamUser)
	}
	if f.Search != "" {
		clauses = append(clauses, "(title LIKE ? OR stage LIKE ? OR priority LIKE ?)")
		like := "%" + f.Search + "%"
		args = append(args, like, like, like)
	}
	query := `SELECT id,title,description,priority,stage,date,area,company,is_trashed,created_at,updated_at FROM tasks WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		var t domain.Task
		var description, area, company sql.NullString
		var trashed int
		if err := rows.Scan(&t.ID, &t.Title, &description, &t.Priority, &t.Stage, &t.Date, &area, &company, &trashed, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.Description = description.String
		t.Area = area.String
		t.Company = company.String
		t.IsTrashed = trashed != 0
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) ListTrashedTaskIDs(ctx context.Context) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM tasks WHERE is_trashed=1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r Repo) CountTasksByStage(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT stage, count(*) FROM tasks WHERE is_trashed=0 GROUP BY stage`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var stage string
		var count int
		if err := rows.Scan(&stage, &count); err != nil {
			return nil, err
		}
		res[stage] = count
	}
	return res, rows.Err()
}

// --- sub-tasks ---

func (r Repo) InsertSubTask(ctx context.Context, tx *sql.Tx, taskID string, position int, st domain.SubTask) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO subtasks(id,task_id,position,title,date,tag,is_completed) VALUES (?,?,?,?,?,?,?)`,
		st.ID, taskID, position, st.Title, nullable(st.Date), nullable(st.Tag), boolToInt(st.IsCompleted))
	return err
}

func (r Repo) DeleteSubTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM subtasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetSubTaskCompleted(ctx context.Context, tx *sql.Tx, id string, completed bool) error {
	res, err := tx.ExecContext(ctx, `UPDATE subtasks SET is_completed=? WHERE id=?`, boolToInt(completed), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) listSubTasks(ctx context.Context, taskID string) ([]domain.SubTask, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,title,date,tag,is_completed FROM subtasks WHERE task_id=? ORDER BY position ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.SubTask
	for rows.Next() {
		var st domain.SubTask
		var date, tag sql.NullString
		var completed int
		if err := rows.Scan(&st.ID, &st.Title, &date, &tag, &completed); err != nil {
			return nil, err
		}
		st.Date = date.String
		st.Tag = tag.String
		st.IsCompleted = completed != 0
		res = append(res, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		if res[i].Assets, err = r.ListAssets(ctx, res[i].ID); err != nil {
			return nil, err
		}
		if res[i].FileStatuses, err = r.GetFileStatuses(ctx, res[i].ID); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// --- assets and file ledger ---
// Container ids are task or sub-task ids; file refs are stored verbatim, the
// (container_id, file_ref) key is the storage-safe encoding.

func (r Repo) ListAssets(ctx context.Context, containerID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT file_ref FROM assets WHERE container_id=? ORDER BY position ASC`, containerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// AppendAssetIfAbsent adds the file ref at the end of the container's asset
// list unless it is already present.
func (r Repo) AppendAssetIfAbsent(ctx context.Context, tx *sql.Tx, containerID, fileRef string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO assets(container_id,file_ref,position)
VALUES (?,?,COALESCE((SELECT MAX(position)+1 FROM assets WHERE container_id=?),0))`, containerID, fileRef, containerID)
	return err
}

func (r Repo) RemoveAsset(ctx context.Context, tx *sql.Tx, containerID, fileRef string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM assets WHERE container_id=? AND file_ref=?`, containerID, fileRef)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpsertFileStatus(ctx context.Context, tx *sql.Tx, containerID, fileRef, status string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO file_statuses(container_id,file_ref,status) VALUES (?,?,?)
ON CONFLICT(container_id,file_ref) DO UPDATE SET status=excluded.status`, containerID, fileRef, status)
	return err
}

func (r Repo) DeleteFileStatus(ctx context.Context, tx *sql.Tx, containerID, fileRef string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM file_statuses WHERE container_id=? AND file_ref=?`, containerID, fileRef)
	return err
}

func (r Repo) GetFileStatuses(ctx context.Context, containerID string) (map[string]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT file_ref,status FROM file_statuses WHERE container_id=?`, containerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]string{}
	for rows.Next() {
		var ref, status string
		if err := rows.Scan(&ref, &status); err != nil {
			return nil, err
		}
		res[ref] = status
	}
	return res, rows.Err()
}

// ClearContainerFiles drops all asset and ledger rows for a container.
func (r Repo) ClearContainerFiles(ctx context.Context, tx *sql.Tx, containerID string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM assets WHERE container_id=?`, containerID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM file_statuses WHERE container_id=?`, containerID)
	return err
}

// --- team and links ---

func (r Repo) ReplaceTaskTeam(ctx context.Context, tx *sql.Tx, taskID string, team []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_team WHERE task_id=?`, taskID); err != nil {
		return err
	}
	for _, userID := range team {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO task_team(task_id,user_id) VALUES (?,?)`, taskID, userID); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) listTaskTeam(ctx context.Context, taskID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT user_id FROM task_team WHERE task_id=?`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var team []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		team = append(team, id)
	}
	return team, rows.Err()
}

func (r Repo) ReplaceTaskLinks(ctx context.Context, tx *sql.Tx, taskID string, links []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_links WHERE task_id=?`, taskID); err != nil {
		return err
	}
	for i, url := range links {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO task_links(task_id,position,url) VALUES (?,?,?)`, taskID, i, url); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) listTaskLinks(ctx context.Context, taskID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT url FROM task_links WHERE task_id=? ORDER BY position ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var links []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, err
		}
		links = append(links, url)
	}
	return links, rows.Err()
}

// --- activities (written by the activity package, read here) ---

// ListActivities returns the task log most recent first. Order is by
// timestamp, not insertion position.
func (r Repo) ListActivities(ctx context.Context, taskID string) ([]domain.Activity, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,type,activity,file_ref,status,by_id,date FROM activities WHERE task_id=? ORDER BY date DESC, id DESC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Activity
	for rows.Next() {
		var a domain.Activity
		var file, status, by sql.NullString
		if err := rows.Scan(&a.ID, &a.Type, &a.Activity, &file, &status, &by, &a.Date); err != nil {
			return nil, err
		}
		a.File = file.String
		a.Status = status.String
		a.By = by.String
		res = append(res, a)
	}
	return res, rows.Err()
}

// SubTaskIDs returns ids of all sub-tasks owned by a task.
func (r Repo) SubTaskIDs(ctx context.Context, taskID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM subtasks WHERE task_id=?`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
