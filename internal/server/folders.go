package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"taskdeck/internal/domain"
	"taskdeck/internal/engine"
)

type folderOut struct {
	Body domain.Folder
}

type FolderPath struct {
	FolderID string `path:"folder_id"`
}

type folderBody struct {
	Name    string   `json:"name"`
	Date    string   `json:"date,omitempty"`
	Company string   `json:"company,omitempty"`
	Area    string   `json:"area,omitempty"`
	PDFPath string   `json:"pdf_path,omitempty"`
	Team    []string `json:"team,omitempty"`
}

func registerFolders(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-folder",
		Method:        http.MethodPost,
		Path:          "/folders",
		Summary:       "Create folder",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body folderBody
	}) (*folderOut, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		f, err := e.CreateFolder(ctx, engine.FolderOptions{
			Name:    input.Body.Name,
			Date:    input.Body.Date,
			Company: input.Body.Company,
			Area:    input.Body.Area,
			PDFPath: input.Body.PDFPath,
			Team:    input.Body.Team,
			ActorID: actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &folderOut{Body: f}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-folders",
		Method:      http.MethodGet,
		Path:        "/folders",
		Summary:     "List folders",
	}, func(ctx context.Context, input *struct {
		Trashed bool `query:"trashed"`
	}) (*struct {
		Body []domain.Folder `json:"body"`
	}, error) {
		folders, err := e.Repo.ListFolders(ctx, input.Trashed)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Folder `json:"body"`
		}{Body: folders}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-folder",
		Method:      http.MethodGet,
		Path:        "/folders/{folder_id}",
		Summary:     "Get folder",
	}, func(ctx context.Context, input *FolderPath) (*folderOut, error) {
		f, err := e.Repo.GetFolder(ctx, input.FolderID)
		if err != nil {
			return nil, handleError(err)
		}
		return &folderOut{Body: f}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-folder",
		Method:      http.MethodPut,
		Path:        "/folders/{folder_id}",
		Summary:     "Update folder",
	}, func(ctx context.Context, input *struct {
		FolderPath
		Body folderBody
	}) (*folderOut, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		f, err := e.UpdateFolder(ctx, engine.FolderOptions{
			ID:      input.FolderID,
			Name:    input.Body.Name,
			Date:    input.Body.Date,
			Company: input.Body.Company,
			Area:    input.Body.Area,
			PDFPath: input.Body.PDFPath,
			Team:    input.Body.Team,
			ActorID: actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &folderOut{Body: f}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-folder",
		Method:        http.MethodDelete,
		Path:          "/folders/{folder_id}",
		Summary:       "Hard-delete folder",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *FolderPath) (*struct{}, error) {
		if err := e.DeleteFolder(ctx, input.FolderID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "trash-folder",
		Method:      http.MethodPost,
		Path:        "/folders/{folder_id}/trash",
		Summary:     "Move folder to trash",
	}, func(ctx context.Context, input *FolderPath) (*struct{}, error) {
		if err := e.TrashFolder(ctx, input.FolderID, true); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "restore-folder",
		Method:      http.MethodPost,
		Path:        "/folders/{folder_id}/restore",
		Summary:     "Restore folder from trash",
	}, func(ctx context.Context, input *FolderPath) (*struct{}, error) {
		if err := e.TrashFolder(ctx, input.FolderID, false); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-folder-task",
		Method:      http.MethodPost,
		Path:        "/folders/{folder_id}/tasks",
		Summary:     "Add task to folder",
	}, func(ctx context.Context, input *struct {
		FolderPath
		Body struct {
			TaskID string `json:"task_id"`
		}
	}) (*folderOut, error) {
		f, err := e.AddTaskToFolder(ctx, input.FolderID, input.Body.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &folderOut{Body: f}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-folder-task",
		Method:      http.MethodDelete,
		Path:        "/folders/{folder_id}/tasks/{task_id}",
		Summary:     "Remove task from folder",
	}, func(ctx context.Context, input *struct {
		FolderPath
		TaskID string `path:"task_id"`
	}) (*folderOut, error) {
		f, err := e.RemoveTaskFromFolder(ctx, input.FolderID, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &folderOut{Body: f}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-folder-status",
		Method:      http.MethodPost,
		Path:        "/folders/{folder_id}/check",
		Summary:     "Re-derive folder status from member tasks",
	}, func(ctx context.Context, input *FolderPath) (*struct {
		Body map[string]bool `json:"body"`
	}, error) {
		allCompleted, err := e.CheckFolderStatus(ctx, input.FolderID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]bool `json:"body"`
		}{Body: map[string]bool{"all_completed": allCompleted}}, nil
	})
}
