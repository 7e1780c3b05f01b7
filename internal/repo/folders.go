package repo

import (
	"context"
	"database/sql"

	"taskdeck/internal/domain"
)

func (r Repo) InsertFolder(ctx context.Context, tx *sql.Tx, f domain.Folder) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO folders(id,name,date,company,area,status,pdf_path,is_trashed,created_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		f.ID, f.Name, f.Date, nullable(f.Company), nullable(f.Area), f.Status, nullable(f.PDFPath), boolToInt(f.IsTrashed), f.CreatedAt)
	return err
}

func (r Repo) UpdateFolderMeta(ctx context.Context, tx *sql.Tx, f domain.Folder) error {
	res, err := tx.ExecContext(ctx, `UPDATE folders SET name=?, date=?, company=?, area=?, pdf_path=? WHERE id=?`,
		f.Name, f.Date, nullable(f.Company), nullable(f.Area), nullable(f.PDFPath), f.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateFolderStatus(ctx context.Context, folderID, status string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE folders SET status=? WHERE id=?`, status, folderID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetFolderTrashed(ctx context.Context, tx *sql.Tx, id string, trashed bool) error {
	res, err := tx.ExecContext(ctx, `UPDATE folders SET is_trashed=? WHERE id=?`, boolToInt(trashed), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteFolder(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM folders WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetFolder(ctx context.Context, id string) (domain.Folder, error) {
	var f domain.Folder
	var company, area, pdfPath sql.NullString
	var trashed int
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,date,company,area,status,pdf_path,is_trashed,created_at FROM folders WHERE id=?`, id).
		Scan(&f.ID, &f.Name, &f.Date, &company, &area, &f.Status, &pdfPath, &trashed, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return f, ErrNotFound
	}
	if err != nil {
		return f, err
	}
	f.Company = company.String
	f.Area = area.String
	f.PDFPath = pdfPath.String
	f.IsTrashed = trashed != 0
	if f.Tasks, err = r.ListFolderTaskIDs(ctx, id); err != nil {
		return f, err
	}
	if f.Team, err = r.listFolderTeam(ctx, id); err != nil {
		return f, err
	}
	return f, nil
}

func (r Repo) ListFolders(ctx context.Context, trashed bool) ([]domain.Folder, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,date,company,area,status,pdf_path,is_trashed,created_at FROM folders WHERE is_trashed=? ORDER BY created_at DESC, id DESC`, boolToInt(trashed))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Folder
	for rows.Next() {
		var f domain.Folder
		var company, area, pdfPath sql.NullString
		var isTrashed int
		if err := rows.Scan(&f.ID, &f.Name, &f.Date, &company, &area, &f.Status, &pdfPath, &isTrashed, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.Company = company.String
		f.Area = area.String
		f.PDFPath = pdfPath.String
		f.IsTrashed = isTrashed != 0
		res = append(res, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		if res[i].Tasks, err = r.ListFolderTaskIDs(ctx, res[i].ID); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r Repo) ListFolderTaskIDs(ctx context.Context, folderID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT task_id FROM folder_tasks WHERE folder_id=?`, folderID)
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

func (r Repo) AddFolderTask(ctx context.Context, tx *sql.Tx, folderID, taskID string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO folder_tasks(folder_id,task_id) VALUES (?,?)`, folderID, taskID)
	return err
}

func (r Repo) RemoveFolderTask(ctx context.Context, tx *sql.Tx, folderID, taskID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM folder_tasks WHERE folder_id=? AND task_id=?`, folderID, taskID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) FolderHasTask(ctx context.Context, folderID, taskID string) (bool, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT 1 FROM folder_tasks WHERE folder_id=? AND task_id=? LIMIT 1`, folderID, taskID)
	var one int
	err := row.Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// ListFoldersContainingTask returns ids of folders referencing the task.
func (r Repo) ListFoldersContainingTask(ctx context.Context, taskID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT folder_id FROM folder_tasks WHERE task_id=?`, taskID)
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

// RemoveTaskFromAllFolders pulls the task out of every folder's task set and
// returns the affected folder ids so callers can re-check their statuses.
func (r Repo) RemoveTaskFromAllFolders(ctx context.Context, tx *sql.Tx, taskID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT folder_id FROM folder_tasks WHERE task_id=?`, taskID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	if _, err := tx.ExecContext(ctx, `DELETE FROM folder_tasks WHERE task_id=?`, taskID); err != nil {
		return nil, err
	}
	return ids, nil
}

// TaskStagesByIDs returns stage keyed by task id for non-trashed tasks.
func (r Repo) TaskStagesByIDs(ctx context.Context, ids []string) (map[string]string, error) {
	res := map[string]string{}
	for _, id := range ids {
		var stage string
		err := r.DB.QueryRowContext(ctx, `SELECT stage FROM tasks WHERE id=? AND is_trashed=0`, id).Scan(&stage)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		res[id] = stage
	}
	return res, nil
}

func (r Repo) ReplaceFolderTeam(ctx context.Context, tx *sql.Tx, folderID string, team []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM folder_team WHERE folder_id=?`, folderID); err != nil {
		return err
	}
	for _, userID := range team {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO folder_team(folder_id,user_id) VALUES (?,?)`, folderID, userID); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) listFolderTeam(ctx context.Context, folderID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT user_id FROM folder_team WHERE folder_id=?`, folderID)
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
