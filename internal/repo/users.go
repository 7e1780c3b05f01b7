package repo

import (
	"context"
	"database/sql"

	"taskdeck/internal/domain"
)

func (r Repo) UpsertUser(ctx context.Context, u domain.User) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(id,name,title,role,email,is_active,created_at) VALUES (?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, title=excluded.title, role=excluded.role, email=excluded.email, is_active=excluded.is_active`,
		u.ID, u.Name, nullable(u.Title), nullable(u.Role), nullable(u.Email), boolToInt(u.IsActive), u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	var title, role, email sql.NullString
	var active int
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,title,role,email,is_active,created_at FROM users WHERE id=?`, id).
		Scan(&u.ID, &u.Name, &title, &role, &email, &active, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	u.Title = title.String
	u.Role = role.String
	u.Email = email.String
	u.IsActive = active != 0
	return u, nil
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,title,role,email,is_active,created_at FROM users ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		var u domain.User
		var title, role, email sql.NullString
		var active int
		if err := rows.Scan(&u.ID, &u.Name, &title, &role, &email, &active, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.Title = title.String
		u.Role = role.String
		u.Email = email.String
		u.IsActive = active != 0
		res = append(res, u)
	}
	return res, rows.Err()
}

// InsertNotice records a notification and its recipients.
func (r Repo) InsertNotice(ctx context.Context, tx *sql.Tx, n domain.Notice) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO notices(id,task_id,text,created_at) VALUES (?,?,?,?)`,
		n.ID, nullable(n.TaskID), n.Text, n.CreatedAt); err != nil {
		return err
	}
	for _, userID := range n.Team {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO notice_team(notice_id,user_id) VALUES (?,?)`, n.ID, userID); err != nil {
			return err
		}
	}
	return nil
}
