package engine

import (
	"context"
	"fmt"

	"taskdeck/internal/domain"
	"taskdeck/internal/repo"
)

// FolderOptions are parameters for creating or updating a folder.
type FolderOptions struct {
	ID      string
	Name    string
	Date    string
	Company string
	Area    string
	PDFPath string
	Team    []string
	ActorID string
}

func (e Engine) CreateFolder(ctx context.Context, opts FolderOptions) (domain.Folder, error) {
	if opts.Name == "" {
		return domain.Folder{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	now := e.nowStr()
	if opts.Date == "" {
		opts.Date = now
	}
	if opts.Company == "" && e.Config != nil {
		opts.Company = e.Config.Defaults.Company
	}
	if opts.Area == "" && e.Config != nil {
		opts.Area = e.Config.Defaults.Area
	}
	id := opts.ID
	if id == "" {
		id = newID()
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Folder{}, err
	}
	defer tx.Rollback()
	f := domain.Folder{
		ID:        id,
		Name:      opts.Name,
		Date:      opts.Date,
		Company:   opts.Company,
		Area:      opts.Area,
		Status:    domain.StageInProgress,
		PDFPath:   opts.PDFPath,
		CreatedAt: now,
	}
	if err := e.Repo.InsertFolder(ctx, tx, f); err != nil {
		return domain.Folder{}, fmt.Errorf("insert folder: %w", err)
	}
	if err := e.Repo.ReplaceFolderTeam(ctx, tx, id, opts.Team); err != nil {
		return domain.Folder{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Folder{}, err
	}
	return e.Repo.GetFolder(ctx, id)
}

func (e Engine) UpdateFolder(ctx context.Context, opts FolderOptions) (domain.Folder, error) {
	if opts.Name == "" {
		return domain.Folder{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	cur, err := e.Repo.GetFolder(ctx, opts.ID)
	if err != nil {
		return domain.Folder{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Folder{}, err
	}
	defer tx.Rollback()
	f := cur
	f.Name = opts.Name
	if opts.Date != "" {
		f.Date = opts.Date
	}
	f.Company = opts.Company
	f.Area = opts.Area
	f.PDFPath = opts.PDFPath
	if err := e.Repo.UpdateFolderMeta(ctx, tx, f); err != nil {
		return domain.Folder{}, err
	}
	if err := e.Repo.ReplaceFolderTeam(ctx, tx, f.ID, opts.Team); err != nil {
		return domain.Folder{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Folder{}, err
	}
	return e.Repo.GetFolder(ctx, f.ID)
}

func (e Engine) TrashFolder(ctx context.Context, folderID string, trashed bool) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.SetFolderTrashed(ctx, tx, folderID, trashed); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) DeleteFolder(ctx context.Context, folderID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteFolder(ctx, tx, folderID); err != nil {
		return err
	}
	return tx.Commit()
}

// AddTaskToFolder puts a task into a folder's set and re-derives the folder
// status. Adding an already-present task is rejected.
func (e Engine) AddTaskToFolder(ctx context.Context, folderID, taskID string) (domain.Folder, error) {
	if _, err := e.Repo.GetFolder(ctx, folderID); err != nil {
		return domain.Folder{}, err
	}
	if _, err := e.Repo.GetTask(ctx, taskID); err != nil {
		return domain.Folder{}, err
	}
	present, err := e.Repo.FolderHasTask(ctx, folderID, taskID)
	if err != nil {
		return domain.Folder{}, err
	}
	if present {
		return domain.Folder{}, fmt.Errorf("%w: task already in folder", ErrValidation)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Folder{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.AddFolderTask(ctx, tx, folderID, taskID); err != nil {
		return domain.Folder{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Folder{}, err
	}
	if _, err := e.CheckFolderStatus(ctx, folderID); err != nil {
		e.Log.Warn().Err(err).Str("folder", folderID).Msg("folder status check failed")
	}
	return e.Repo.GetFolder(ctx, folderID)
}

// RemoveTaskFromFolder pulls a task out of a folder's set; losing an
// incomplete member can flip the folder to completed.
func (e Engine) RemoveTaskFromFolder(ctx context.Context, folderID, taskID string) (domain.Folder, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Folder{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.RemoveFolderTask(ctx, tx, folderID, taskID); err != nil {
		if err == repo.ErrNotFound {
			return domain.Folder{}, fmt.Errorf("task %q not in folder: %w", taskID, repo.ErrNotFound)
		}
		return domain.Folder{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Folder{}, err
	}
	if _, err := e.CheckFolderStatus(ctx, folderID); err != nil {
		e.Log.Warn().Err(err).Str("folder", folderID).Msg("folder status check failed")
	}
	return e.Repo.GetFolder(ctx, folderID)
}
