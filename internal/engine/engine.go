// Package engine implements task lifecycle and the status propagation
// rules that keep tasks, sub-tasks, files and folders consistent.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"taskdeck/internal/activity"
	"taskdeck/internal/config"
	"taskdeck/internal/domain"
	"taskdeck/internal/repo"
)

type Engine struct {
	DB         *sql.DB
	Repo       repo.Repo
	Activities activity.Writer
	Config     *config.Config
	Log        zerolog.Logger
	Now        func() time.Time
}

func New(db *sql.DB, cfg *config.Config, log zerolog.Logger) Engine {
	return Engine{
		DB:         db,
		Repo:       repo.Repo{DB: db},
		Activities: activity.Writer{DB: db},
		Config:     cfg,
		Log:        log,
		Now:        time.Now,
	}
}

// ErrValidation marks caller mistakes: bad enum values, missing required
// fields, references that do not resolve inside the addressed task.
var ErrValidation = errors.New("validation failed")

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowStr() string {
	return e.now().UTC().Format(time.RFC3339)
}

func newID() string {
	return uuid.NewString()
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	ID          string
	Title       string
	Description string
	Priority    string
	Stage       string
	Date        string
	Area        string
	Company     string
	Team        []string
	Links       []string
	Assets      []string
	ActorID     string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.Title == "" {
		return domain.Task{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if opts.Priority == "" {
		opts.Priority = e.defaultPriority()
	}
	if !domain.ValidPriority(opts.Priority) {
		return domain.Task{}, fmt.Errorf("%w: invalid priority %q", ErrValidation, opts.Priority)
	}
	if opts.Stage == "" {
		opts.Stage = domain.StageTodo
	}
	if !domain.ValidStage(opts.Stage) {
		return domain.Task{}, fmt.Errorf("%w: invalid stage %q", ErrValidation, opts.Stage)
	}
	now := e.nowStr()
	if opts.Date == "" {
		opts.Date = now
	}
	if opts.Area == "" && e.Config != nil {
		opts.Area = e.Config.Defaults.Area
	}
	if opts.Company == "" && e.Config != nil {
		opts.Company = e.Config.Defaults.Company
	}
	id := opts.ID
	if id == "" {
		id = newID()
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t := domain.Task{
		ID:          id,
		Title:       opts.Title,
		Description: opts.Description,
		Priority:    opts.Priority,
		Stage:       opts.Stage,
		Date:        opts.Date,
		Area:        opts.Area,
		Company:     opts.Company,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	if err := e.Repo.ReplaceTaskTeam(ctx, tx, id, opts.Team); err != nil {
		return domain.Task{}, err
	}
	if err := e.Repo.ReplaceTaskLinks(ctx, tx, id, opts.Links); err != nil {
		return domain.Task{}, err
	}
	for _, ref := range opts.Assets {
		if err := e.Repo.AppendAssetIfAbsent(ctx, tx, id, ref); err != nil {
			return domain.Task{}, err
		}
	}
	text := assignedText(len(opts.Team), opts.Priority)
	if err := e.Activities.Append(ctx, tx, id, activity.Entry{
		Type: domain.ActivityAssigned,
		Text: text,
		By:   opts.ActorID,
	}); err != nil {
		return domain.Task{}, err
	}
	if len(opts.Team) > 0 {
		notice := domain.Notice{
			ID:        newID(),
			TaskID:    id,
			Text:      text,
			Team:      opts.Team,
			CreatedAt: now,
		}
		if err := e.Repo.InsertNotice(ctx, tx, notice); err != nil {
			return domain.Task{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTask(ctx, id)
}

func assignedText(teamSize int, priority string) string {
	if teamSize > 1 {
		return fmt.Sprintf("New task has been assigned to you and %d others. The task priority is set to %s, so check and act accordingly.", teamSize-1, priority)
	}
	return fmt.Sprintf("New task has been assigned to you. The task priority is set to %s, so check and act accordingly.", priority)
}

func (e Engine) defaultPriority() string {
	if e.Config != nil && e.Config.Defaults.Priority != "" {
		return e.Config.Defaults.Priority
	}
	return domain.PriorityNormal
}

// DuplicateTask copies a task, its sub-tasks, files, ledger, team and links
// under a fresh id. Sub-tasks get fresh ids of their own.
func (e Engine) DuplicateTask(ctx context.Context, taskID, actorID string) (domain.Task, error) {
	src, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	now := e.nowStr()
	id := newID()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	dup := src
	dup.ID = id
	dup.Title = "Duplicate - " + src.Title
	dup.IsTrashed = false
	dup.CreatedAt = now
	dup.UpdatedAt = now
	if err := e.Repo.InsertTask(ctx, tx, dup); err != nil {
		return domain.Task{}, err
	}
	if err := e.Repo.ReplaceTaskTeam(ctx, tx, id, src.Team); err != nil {
		return domain.Task{}, err
	}
	if err := e.Repo.ReplaceTaskLinks(ctx, tx, id, src.Links); err != nil {
		return domain.Task{}, err
	}
	if err := e.copyContainerFiles(ctx, tx, id, src.Assets, src.FileStatuses); err != nil {
		return domain.Task{}, err
	}
	for i, st := range src.SubTasks {
		stID := newID()
		copySt := st
		copySt.ID = stID
		if err := e.Repo.InsertSubTask(ctx, tx, id, i, copySt); err != nil {
			return domain.Task{}, err
		}
		if err := e.copyContainerFiles(ctx, tx, stID, st.Assets, st.FileStatuses); err != nil {
			return domain.Task{}, err
		}
	}
	if err := e.Activities.Append(ctx, tx, id, activity.Entry{
		Type: domain.ActivityAssigned,
		Text: assignedText(len(src.Team), src.Priority),
		By:   actorID,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTask(ctx, id)
}

func (e Engine) copyContainerFiles(ctx context.Context, tx *sql.Tx, containerID string, assets []string, statuses map[string]string) error {
	for _, ref := range assets {
		if err := e.Repo.AppendAssetIfAbsent(ctx, tx, containerID, ref); err != nil {
			return err
		}
		if status, ok := statuses[ref]; ok {
			if err := e.Repo.UpsertFileStatus(ctx, tx, containerID, ref, status); err != nil {
				return err
			}
		}
	}
	return nil
}

// TaskUpdateOptions carries the user-editable task fields.
type TaskUpdateOptions struct {
	ID          string
	Title       string
	Description string
	Priority    string
	Stage       string
	Date        string
	Area        string
	Company     string
	Team        []string
	Links       []string
	Assets      []string
	ActorID     string
}

// UpdateTask rewrites task metadata. A stage change here is a direct user
// move; it bypasses the stage decision rules and only re-checks folders.
func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	if opts.Title == "" {
		return domain.Task{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if !domain.ValidPriority(opts.Priority) {
		return domain.Task{}, fmt.Errorf("%w: invalid priority %q", ErrValidation, opts.Priority)
	}
	if !domain.ValidStage(opts.Stage) {
		return domain.Task{}, fmt.Errorf("%w: invalid stage %q", ErrValidation, opts.Stage)
	}
	cur, err := e.Repo.GetTask(ctx, opts.ID)
	if err != nil {
		return domain.Task{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t := cur
	t.Title = opts.Title
	t.Description = opts.Description
	t.Priority = opts.Priority
	t.Stage = opts.Stage
	t.Date = opts.Date
	if t.Date == "" {
		t.Date = cur.Date
	}
	t.Area = opts.Area
	t.Company = opts.Company
	t.UpdatedAt = e.nowStr()
	if err := e.Repo.UpdateTaskMeta(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Repo.ReplaceTaskTeam(ctx, tx, t.ID, opts.Team); err != nil {
		return domain.Task{}, err
	}
	if err := e.Repo.ReplaceTaskLinks(ctx, tx, t.ID, opts.Links); err != nil {
		return domain.Task{}, err
	}
	for _, ref := range opts.Assets {
		if err := e.Repo.AppendAssetIfAbsent(ctx, tx, t.ID, ref); err != nil {
			return domain.Task{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	if cur.Stage != opts.Stage {
		e.cascadeFolders(ctx, t.ID)
	}
	return e.Repo.GetTask(ctx, t.ID)
}

// SetTaskStage moves a task on the board directly. No consistency check
// against sub-tasks or files is made; folders are re-checked afterwards.
func (e Engine) SetTaskStage(ctx context.Context, taskID, stage, actorID string) (domain.Task, error) {
	if !domain.ValidStage(stage) {
		return domain.Task{}, fmt.Errorf("%w: invalid stage %q", ErrValidation, stage)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTaskStage(ctx, tx, taskID, stage, e.nowStr()); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	e.cascadeFolders(ctx, taskID)
	return e.Repo.GetTask(ctx, taskID)
}

// PostActivity records a user-authored feed entry. When the entry carries a
// file, the file is added to the task's assets; no stage re-evaluation runs,
// a fresh file waits as pending until someone sets its status.
func (e Engine) PostActivity(ctx context.Context, taskID string, entry activity.Entry) (domain.Task, error) {
	if !domain.ValidActivityType(entry.Type) {
		return domain.Task{}, fmt.Errorf("%w: invalid activity type %q", ErrValidation, entry.Type)
	}
	if entry.Text == "" {
		return domain.Task{}, fmt.Errorf("%w: activity text is required", ErrValidation)
	}
	if _, err := e.Repo.GetTask(ctx, taskID); err != nil {
		return domain.Task{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if entry.File != "" {
		if err := e.Repo.AppendAssetIfAbsent(ctx, tx, taskID, entry.File); err != nil {
			return domain.Task{}, err
		}
	}
	if err := e.Activities.Append(ctx, tx, taskID, entry); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTask(ctx, taskID)
}

// TrashTask soft-deletes a task and pulls it out of every folder. Folder
// statuses are re-checked afterwards; losing an incomplete member can flip
// a folder to completed.
func (e Engine) TrashTask(ctx context.Context, taskID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.SetTaskTrashed(ctx, tx, taskID, true, e.nowStr()); err != nil {
		return err
	}
	folderIDs, err := e.Repo.RemoveTaskFromAllFolders(ctx, tx, taskID)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.checkFolders(ctx, folderIDs)
	return nil
}

// RestoreTask clears the soft-delete flag. Folder membership is not
// restored; trash already pulled the task out of its folders.
func (e Engine) RestoreTask(ctx context.Context, taskID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.SetTaskTrashed(ctx, tx, taskID, false, e.nowStr()); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) RestoreAllTasks(ctx context.Context) error {
	return e.Repo.RestoreAllTasks(ctx, e.nowStr())
}

// DeleteTask hard-deletes a task. The id is removed from every folder first
// so no folder retains a dangling reference, then asset and ledger rows for
// the task and its sub-tasks are cleared before the row itself goes.
func (e Engine) DeleteTask(ctx context.Context, taskID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	folderIDs, err := e.deleteTaskTx(ctx, tx, taskID)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.checkFolders(ctx, folderIDs)
	return nil
}

func (e Engine) deleteTaskTx(ctx context.Context, tx *sql.Tx, taskID string) ([]string, error) {
	folderIDs, err := e.Repo.RemoveTaskFromAllFolders(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}
	rows, err := tx.QueryContext(ctx, `SELECT id FROM subtasks WHERE task_id=?`, taskID)
	if err != nil {
		return nil, err
	}
	var subIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		subIDs = append(subIDs, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	for _, id := range subIDs {
		if err := e.Repo.ClearContainerFiles(ctx, tx, id); err != nil {
			return nil, err
		}
	}
	if err := e.Repo.ClearContainerFiles(ctx, tx, taskID); err != nil {
		return nil, err
	}
	if err := e.Repo.DeleteTask(ctx, tx, taskID); err != nil {
		return nil, err
	}
	return folderIDs, nil
}

// EmptyTrash hard-deletes every trashed task.
func (e Engine) EmptyTrash(ctx context.Context) (int, error) {
	ids, err := e.Repo.ListTrashedTaskIDs(ctx)
	if err != nil {
		return 0, err
	}
	var affected []string
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	for _, id := range ids {
		folderIDs, err := e.deleteTaskTx(ctx, tx, id)
		if err != nil {
			return 0, err
		}
		affected = append(affected, folderIDs...)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	e.checkFolders(ctx, affected)
	return len(ids), nil
}
