package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"taskdeck/internal/activity"
	"taskdeck/internal/domain"
	"taskdeck/internal/repo"
)

// FileAggregate summarizes a container's approval ledger.
type FileAggregate struct {
	HasPendingOrRejected bool
	AllApproved          bool
}

// AggregateFiles folds the ledger over a container's assets. A file with no
// ledger entry counts as pending; it must never silently pass as approved.
// Empty assets yield {false, true}; callers special-case that before acting
// on the vacuous truth.
func AggregateFiles(assets []string, statuses map[string]string) FileAggregate {
	agg := FileAggregate{AllApproved: true}
	for _, ref := range assets {
		status, ok := statuses[ref]
		if !ok {
			status = domain.FileStatusPending
		}
		if status != domain.FileStatusApproved {
			agg.HasPendingOrRejected = true
			agg.AllApproved = false
		}
	}
	return agg
}

// SetFileStatus records an approval decision for a file held by the task or
// by one of its sub-tasks, recomputes the owning sub-task's completion flag,
// and re-evaluates the task stage.
func (e Engine) SetFileStatus(ctx context.Context, taskID, subTaskID, fileRef, status, actorID string) (domain.Task, error) {
	if !domain.ValidFileStatus(status) {
		return domain.Task{}, fmt.Errorf("%w: invalid file status %q", ErrValidation, status)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	containerID := taskID
	if subTaskID != "" {
		if err := e.subTaskBelongs(ctx, tx, taskID, subTaskID); err != nil {
			return domain.Task{}, err
		}
		containerID = subTaskID
	} else if err := e.taskExistsTx(ctx, tx, taskID); err != nil {
		return domain.Task{}, err
	}
	assets, err := e.assetsTx(ctx, tx, containerID)
	if err != nil {
		return domain.Task{}, err
	}
	if !contains(assets, fileRef) {
		return domain.Task{}, fmt.Errorf("file %q: %w", fileRef, repo.ErrNotFound)
	}
	if err := e.Repo.UpsertFileStatus(ctx, tx, containerID, fileRef, status); err != nil {
		return domain.Task{}, err
	}

	if subTaskID != "" {
		// Completion is derived from the ledger whenever the sub-task owns files.
		statuses, err := e.fileStatusesTx(ctx, tx, subTaskID)
		if err != nil {
			return domain.Task{}, err
		}
		agg := AggregateFiles(assets, statuses)
		if err := e.Repo.SetSubTaskCompleted(ctx, tx, subTaskID, agg.AllApproved); err != nil {
			return domain.Task{}, err
		}
	}

	text := fmt.Sprintf("File %s has been marked %s.", fileRef, status)
	entry := activity.Entry{
		Type:   domain.ActivityFileStatusChanged,
		Text:   text,
		File:   fileRef,
		Status: status,
		By:     actorID,
	}
	if subTaskID == "" {
		// Task-level writes correct the file's original status entry in place
		// when one exists, keeping a single feed item per file.
		corrected, err := e.Activities.CorrectFileStatus(ctx, tx, taskID, fileRef, status, text, actorID)
		if err != nil {
			return domain.Task{}, err
		}
		if !corrected {
			if err := e.Activities.Append(ctx, tx, taskID, entry); err != nil {
				return domain.Task{}, err
			}
		}
	} else if err := e.Activities.Append(ctx, tx, taskID, entry); err != nil {
		return domain.Task{}, err
	}

	changed, err := e.reconcile(ctx, tx, taskID, actorID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	if changed {
		e.cascadeFolders(ctx, taskID)
	}
	return e.Repo.GetTask(ctx, taskID)
}

// RemoveFile drops a file from the task's or sub-task's assets along with
// its ledger entry. A sub-task emptied of files keeps its previous
// completion flag.
func (e Engine) RemoveFile(ctx context.Context, taskID, subTaskID, fileRef, actorID string) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	containerID := taskID
	if subTaskID != "" {
		if err := e.subTaskBelongs(ctx, tx, taskID, subTaskID); err != nil {
			return domain.Task{}, err
		}
		containerID = subTaskID
	} else if err := e.taskExistsTx(ctx, tx, taskID); err != nil {
		return domain.Task{}, err
	}
	if err := e.Repo.RemoveAsset(ctx, tx, containerID, fileRef); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Task{}, fmt.Errorf("file %q: %w", fileRef, repo.ErrNotFound)
		}
		return domain.Task{}, err
	}
	if err := e.Repo.DeleteFileStatus(ctx, tx, containerID, fileRef); err != nil {
		return domain.Task{}, err
	}

	if subTaskID != "" {
		remaining, err := e.assetsTx(ctx, tx, subTaskID)
		if err != nil {
			return domain.Task{}, err
		}
		if len(remaining) > 0 {
			statuses, err := e.fileStatusesTx(ctx, tx, subTaskID)
			if err != nil {
				return domain.Task{}, err
			}
			agg := AggregateFiles(remaining, statuses)
			if err := e.Repo.SetSubTaskCompleted(ctx, tx, subTaskID, agg.AllApproved); err != nil {
				return domain.Task{}, err
			}
		}
	}

	if err := e.Activities.Append(ctx, tx, taskID, activity.Entry{
		Type: domain.ActivityFileRemoved,
		Text: fmt.Sprintf("File %s has been removed.", fileRef),
		File: fileRef,
		By:   actorID,
	}); err != nil {
		return domain.Task{}, err
	}

	changed, err := e.reconcile(ctx, tx, taskID, actorID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	if changed {
		e.cascadeFolders(ctx, taskID)
	}
	return e.Repo.GetTask(ctx, taskID)
}

// CreateSubTask appends an incomplete sub-task. An initial file seeds the
// sub-task's assets and is mirrored into the task's own assets.
func (e Engine) CreateSubTask(ctx context.Context, taskID, title, date, tag, fileRef, actorID string) (domain.Task, error) {
	if title == "" {
		return domain.Task{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.taskExistsTx(ctx, tx, taskID); err != nil {
		return domain.Task{}, err
	}
	var position int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position)+1,0) FROM subtasks WHERE task_id=?`, taskID).Scan(&position); err != nil {
		return domain.Task{}, err
	}
	st := domain.SubTask{
		ID:    newID(),
		Title: title,
		Date:  date,
		Tag:   tag,
	}
	if err := e.Repo.InsertSubTask(ctx, tx, taskID, position, st); err != nil {
		return domain.Task{}, err
	}
	if fileRef != "" {
		if err := e.Repo.AppendAssetIfAbsent(ctx, tx, st.ID, fileRef); err != nil {
			return domain.Task{}, err
		}
		if err := e.Repo.AppendAssetIfAbsent(ctx, tx, taskID, fileRef); err != nil {
			return domain.Task{}, err
		}
	}

	// A fresh incomplete sub-task can force a completed task back.
	changed, err := e.reconcile(ctx, tx, taskID, actorID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	if changed {
		e.cascadeFolders(ctx, taskID)
	}
	return e.Repo.GetTask(ctx, taskID)
}

// DeleteSubTask removes a sub-task and its files, leaving a feed entry with
// the former title. Removing the last incomplete sub-task can complete the
// task.
func (e Engine) DeleteSubTask(ctx context.Context, taskID, subTaskID, actorID string) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	var title string
	err = tx.QueryRowContext(ctx, `SELECT title FROM subtasks WHERE id=? AND task_id=?`, subTaskID, taskID).Scan(&title)
	if err == sql.ErrNoRows {
		return domain.Task{}, fmt.Errorf("sub-task %q: %w", subTaskID, repo.ErrNotFound)
	}
	if err != nil {
		return domain.Task{}, err
	}
	if err := e.Repo.DeleteSubTask(ctx, tx, subTaskID); err != nil {
		return domain.Task{}, err
	}
	if err := e.Repo.ClearContainerFiles(ctx, tx, subTaskID); err != nil {
		return domain.Task{}, err
	}
	if err := e.Activities.Append(ctx, tx, taskID, activity.Entry{
		Type: domain.ActivitySubTaskDeleted,
		Text: fmt.Sprintf("Sub-task %q has been deleted.", title),
		By:   actorID,
	}); err != nil {
		return domain.Task{}, err
	}

	changed, err := e.reconcile(ctx, tx, taskID, actorID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	if changed {
		e.cascadeFolders(ctx, taskID)
	}
	return e.Repo.GetTask(ctx, taskID)
}

// SetSubTaskCompletion toggles a sub-task's flag directly. The toggle is
// unconditional even when the sub-task owns files; the next ledger write
// re-derives the flag.
func (e Engine) SetSubTaskCompletion(ctx context.Context, taskID, subTaskID string, completed bool, actorID string) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.subTaskBelongs(ctx, tx, taskID, subTaskID); err != nil {
		return domain.Task{}, fmt.Errorf("%w: sub-task %q not in task", ErrValidation, subTaskID)
	}
	if err := e.Repo.SetSubTaskCompleted(ctx, tx, subTaskID, completed); err != nil {
		return domain.Task{}, err
	}
	changed, err := e.reconcile(ctx, tx, taskID, actorID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	if changed {
		e.cascadeFolders(ctx, taskID)
	}
	return e.Repo.GetTask(ctx, taskID)
}

// reconcile re-derives the task stage from sub-task completion or, absent
// sub-tasks, from the task's own file ledger. Rules, first match wins:
//
//  1. Sub-tasks present: completed when all are complete; otherwise demote
//     only a currently completed task to in_progress. A todo task is never
//     promoted here, starting work is an explicit move.
//  2. No sub-tasks but assets present: completed when every file is
//     approved; otherwise demote only from completed.
//  3. No sub-tasks and no assets: leave the stage alone. An empty task
//     never auto-completes.
//
// On a change it writes the stage and appends a stage activity. Folder
// re-checks are the caller's job, after commit.
func (e Engine) reconcile(ctx context.Context, tx *sql.Tx, taskID, actorID string) (bool, error) {
	var stage string
	err := tx.QueryRowContext(ctx, `SELECT stage FROM tasks WHERE id=?`, taskID).Scan(&stage)
	if err == sql.ErrNoRows {
		return false, repo.ErrNotFound
	}
	if err != nil {
		return false, err
	}

	target := stage
	flags, err := e.subTaskFlagsTx(ctx, tx, taskID)
	if err != nil {
		return false, err
	}
	switch {
	case len(flags) > 0:
		all := true
		for _, done := range flags {
			if !done {
				all = false
				break
			}
		}
		if all {
			target = domain.StageCompleted
		} else if stage == domain.StageCompleted {
			target = domain.StageInProgress
		}
	default:
		assets, err := e.assetsTx(ctx, tx, taskID)
		if err != nil {
			return false, err
		}
		if len(assets) > 0 {
			statuses, err := e.fileStatusesTx(ctx, tx, taskID)
			if err != nil {
				return false, err
			}
			agg := AggregateFiles(assets, statuses)
			if agg.AllApproved {
				target = domain.StageCompleted
			} else if stage == domain.StageCompleted {
				target = domain.StageInProgress
			}
		}
	}
	if target == stage {
		return false, nil
	}
	if err := e.Repo.UpdateTaskStage(ctx, tx, taskID, target, e.nowStr()); err != nil {
		return false, err
	}
	entry := activity.Entry{By: actorID}
	if target == domain.StageCompleted {
		entry.Type = domain.ActivityCompleted
		entry.Text = "Task has been completed."
	} else {
		entry.Type = domain.ActivityInProgress
		entry.Text = "Task has been moved back to in progress."
	}
	if err := e.Activities.Append(ctx, tx, taskID, entry); err != nil {
		return false, err
	}
	return true, nil
}

// CheckFolderStatus re-derives a folder's status from its member tasks.
// Missing folders fail soft: logged, never surfaced to the caller. Returns
// whether every non-trashed member task is completed.
func (e Engine) CheckFolderStatus(ctx context.Context, folderID string) (bool, error) {
	f, err := e.Repo.GetFolder(ctx, folderID)
	if errors.Is(err, repo.ErrNotFound) {
		e.Log.Warn().Str("folder", folderID).Msg("folder status check: folder not found")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(f.Tasks) == 0 {
		// An empty folder is never completed.
		if f.Status == domain.StageCompleted {
			if err := e.Repo.UpdateFolderStatus(ctx, folderID, domain.StageInProgress); err != nil {
				return false, err
			}
		}
		return false, nil
	}
	stages, err := e.Repo.TaskStagesByIDs(ctx, f.Tasks)
	if err != nil {
		return false, err
	}
	allCompleted := len(stages) > 0
	for _, stage := range stages {
		if stage != domain.StageCompleted {
			allCompleted = false
			break
		}
	}
	switch {
	case allCompleted && f.Status != domain.StageCompleted:
		err = e.Repo.UpdateFolderStatus(ctx, folderID, domain.StageCompleted)
	case !allCompleted && f.Status == domain.StageCompleted:
		err = e.Repo.UpdateFolderStatus(ctx, folderID, domain.StageInProgress)
	}
	if err != nil {
		return false, err
	}
	return allCompleted, nil
}

// cascadeFolders re-checks every folder containing the task. Failures are
// logged and swallowed; folder status is a derived view and must not undo
// the committed task write.
func (e Engine) cascadeFolders(ctx context.Context, taskID string) {
	folderIDs, err := e.Repo.ListFoldersContainingTask(ctx, taskID)
	if err != nil {
		e.Log.Warn().Err(err).Str("task", taskID).Msg("folder cascade: listing folders failed")
		return
	}
	e.checkFolders(ctx, folderIDs)
}

func (e Engine) checkFolders(ctx context.Context, folderIDs []string) {
	for _, id := range folderIDs {
		if _, err := e.CheckFolderStatus(ctx, id); err != nil {
			e.Log.Warn().Err(err).Str("folder", id).Msg("folder status check failed")
		}
	}
}

// --- tx-scoped reads ---

func (e Engine) taskExistsTx(ctx context.Context, tx *sql.Tx, taskID string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id=?`, taskID).Scan(&one)
	if err == sql.ErrNoRows {
		return fmt.Errorf("task %q: %w", taskID, repo.ErrNotFound)
	}
	return err
}

func (e Engine) subTaskBelongs(ctx context.Context, tx *sql.Tx, taskID, subTaskID string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM subtasks WHERE id=? AND task_id=?`, subTaskID, taskID).Scan(&one)
	if err == sql.ErrNoRows {
		return fmt.Errorf("sub-task %q: %w", subTaskID, repo.ErrNotFound)
	}
	return err
}

func (e Engine) assetsTx(ctx context.Context, tx *sql.Tx, containerID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT file_ref FROM assets WHERE container_id=? ORDER BY position ASC`, containerID)
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

func (e Engine) fileStatusesTx(ctx context.Context, tx *sql.Tx, containerID string) (map[string]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT file_ref,status FROM file_statuses WHERE container_id=?`, containerID)
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

func (e Engine) subTaskFlagsTx(ctx context.Context, tx *sql.Tx, taskID string) ([]bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT is_completed FROM subtasks WHERE task_id=?`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var flags []bool
	for rows.Next() {
		var done int
		if err := rows.Scan(&done); err != nil {
			return nil, err
		}
		flags = append(flags, done != 0)
	}
	return flags, rows.Err()
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
