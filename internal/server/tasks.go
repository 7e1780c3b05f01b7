package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"taskdeck/internal/activity"
	"taskdeck/internal/domain"
	"taskdeck/internal/engine"
	"taskdeck/internal/repo"
)

type taskOut struct {
	Body domain.Task
}

type TaskPath struct {
	TaskID string `path:"task_id"`
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body struct {
			Title       string   `json:"title"`
			Description string   `json:"description,omitempty"`
			Priority    string   `json:"priority,omitempty" enum:"high,medium,normal,low,"`
			Stage       string   `json:"stage,omitempty" enum:"todo,in_progress,completed,"`
			Date        string   `json:"date,omitempty"`
			Area        string   `json:"area,omitempty"`
			Company     string   `json:"company,omitempty"`
			Team        []string `json:"team,omitempty"`
			Links       []string `json:"links,omitempty"`
			Assets      []string `json:"assets,omitempty"`
		}
	}) (*taskOut, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Priority:    input.Body.Priority,
			Stage:       input.Body.Stage,
			Date:        input.Body.Date,
			Area:        input.Body.Area,
			Company:     input.Body.Company,
			Team:        input.Body.Team,
			Links:       input.Body.Links,
			Assets:      input.Body.Assets,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOut{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
	}, func(ctx context.Context, input *struct {
		Stage   string `query:"stage" enum:"todo,in_progress,completed,"`
		Trashed bool   `query:"trashed"`
		Search  string `query:"search"`
		User    string `query:"user"`
		Limit   int    `query:"limit"`
	}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{
			Stage:    input.Stage,
			Trashed:  input.Trashed,
			Search:   input.Search,
			TeamUser: input.User,
			Limit:    input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: tasks}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task",
	}, func(ctx context.Context, input *TaskPath) (*taskOut, error) {
		t, err := e.Repo.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOut{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPut,
		Path:        "/tasks/{task_id}",
		Summary:     "Update task",
	}, func(ctx context.Context, input *struct {
		TaskPath
		Body struct {
			Title       string   `json:"title"`
			Description string   `json:"description,omitempty"`
			Priority    string   `json:"priority" enum:"high,medium,normal,low"`
			Stage       string   `json:"stage" enum:"todo,in_progress,completed"`
			Date        string   `json:"date,omitempty"`
			Area        string   `json:"area,omitempty"`
			Company     string   `json:"company,omitempty"`
			Team        []string `json:"team,omitempty"`
			Links       []string `json:"links,omitempty"`
			Assets      []string `json:"assets,omitempty"`
		}
	}) (*taskOut, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.UpdateTask(ctx, engine.TaskUpdateOptions{
			ID:          input.TaskID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Priority:    input.Body.Priority,
			Stage:       input.Body.Stage,
			Date:        input.Body.Date,
			Area:        input.Body.Area,
			Company:     input.Body.Company,
			Team:        input.Body.Team,
			Links:       input.Body.Links,
			Assets:      input.Body.Assets,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOut{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "duplicate-task",
		Method:        http.MethodPost,
		Path:          "/tasks/{task_id}/duplicate",
		Summary:       "Duplicate task",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *TaskPath) (*taskOut, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.DuplicateTask(ctx, input.TaskID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOut{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-task-stage",
		Method:      http.MethodPut,
		Path:        "/tasks/{task_id}/stage",
		Summary:     "Move task on the board",
		Description: "Direct stage write. Sub-task and file consistency is not checked; folders containing the task are re-derived.",
	}, func(ctx context.Context, input *struct {
		TaskPath
		Body struct {
			Stage string `json:"stage" enum:"todo,in_progress,completed"`
		}
	}) (*taskOut, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.SetTaskStage(ctx, input.TaskID, input.Body.Stage, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOut{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "post-task-activity",
		Method:        http.MethodPost,
		Path:          "/tasks/{task_id}/activities",
		Summary:       "Post activity",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		TaskPath
		Body struct {
			Type string `json:"type" enum:"assigned,started,in_progress,bug,completed,commented,file_status_changed,file_removed,subtask_deleted"`
			Text string `json:"text"`
			File string `json:"file,omitempty"`
		}
	}) (*taskOut, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.PostActivity(ctx, input.TaskID, activity.Entry{
			Type: input.Body.Type,
			Text: input.Body.Text,
			File: input.Body.File,
			By:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOut{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{task_id}",
		Summary:       "Hard-delete task",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *TaskPath) (*struct{}, error) {
		if err := e.DeleteTask(ctx, input.TaskID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Task counts by stage",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]int `json:"body"`
	}, error) {
		counts, err := e.Repo.CountTasksByStage(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]int `json:"body"`
		}{Body: counts}, nil
	})
}

func registerSubTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-subtask",
		Method:        http.MethodPost,
		Path:          "/tasks/{task_id}/subtasks",
		Summary:       "Create sub-task",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		TaskPath
		Body struct {
			Title string `json:"title"`
			Date  string `json:"date,omitempty"`
			Tag   string `json:"tag,omitempty"`
			File  string `json:"file,omitempty"`
		}
	}) (*taskOut, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateSubTask(ctx, input.TaskID, input.Body.Title, input.Body.Date, input.Body.Tag, input.Body.File, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOut{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-subtask",
		Method:      http.MethodDelete,
		Path:        "/tasks/{task_id}/subtasks/{subtask_id}",
		Summary:     "Delete sub-task",
	}, func(ctx context.Context, input *struct {
		TaskPath
		SubTaskID string `path:"subtask_id"`
	}) (*taskOut, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.DeleteSubTask(ctx, input.TaskID, input.SubTaskID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOut{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-subtask-completion",
		Method:      http.MethodPut,
		Path:        "/tasks/{task_id}/subtasks/{subtask_id}/completion",
		Summary:     "Toggle sub-task completion",
	}, func(ctx context.Context, input *struct {
		TaskPath
		SubTaskID string `path:"subtask_id"`
		Body      struct {
			Completed bool `json:"completed"`
		}
	}) (*taskOut, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.SetSubTaskCompletion(ctx, input.TaskID, input.SubTaskID, input.Body.Completed, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOut{Body: t}, nil
	})
}

func registerFiles(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "set-file-status",
		Method:      http.MethodPut,
		Path:        "/tasks/{task_id}/files/status",
		Summary:     "Set file approval status",
	}, func(ctx context.Context, input *struct {
		TaskPath
		Body struct {
			SubTaskID string `json:"subtask_id,omitempty"`
			File      string `json:"file"`
			Status    string `json:"status" enum:"pending,approved,rejected"`
		}
	}) (*taskOut, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.SetFileStatus(ctx, input.TaskID, input.Body.SubTaskID, input.Body.File, input.Body.Status, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOut{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-file",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/files/remove",
		Summary:     "Remove file",
	}, func(ctx context.Context, input *struct {
		TaskPath
		Body struct {
			SubTaskID string `json:"subtask_id,omitempty"`
			File      string `json:"file"`
		}
	}) (*taskOut, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.RemoveFile(ctx, input.TaskID, input.Body.SubTaskID, input.Body.File, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOut{Body: t}, nil
	})
}

func registerTrash(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "trash-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/trash",
		Summary:     "Move task to trash",
	}, func(ctx context.Context, input *TaskPath) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.TrashTask(ctx, input.TaskID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "restore-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/restore",
		Summary:     "Restore task from trash",
	}, func(ctx context.Context, input *TaskPath) (*struct{}, error) {
		if err := e.RestoreTask(ctx, input.TaskID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "restore-all-tasks",
		Method:      http.MethodPost,
		Path:        "/trash/restore-all",
		Summary:     "Restore every trashed task",
	}, func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		if err := e.RestoreAllTasks(ctx); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "empty-trash",
		Method:      http.MethodPost,
		Path:        "/trash/empty",
		Summary:     "Hard-delete every trashed task",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]int `json:"body"`
	}, error) {
		n, err := e.EmptyTrash(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]int `json:"body"`
		}{Body: map[string]int{"deleted": n}}, nil
	})
}
