package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"taskdeck/internal/domain"
	"taskdeck/internal/engine"
	"taskdeck/internal/repo"
)

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "upsert-user",
		Method:        http.MethodPut,
		Path:          "/users/{user_id}",
		Summary:       "Create or update user",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
		Body   struct {
			Name     string `json:"name"`
			Title    string `json:"title,omitempty"`
			Role     string `json:"role,omitempty"`
			Email    string `json:"email,omitempty"`
			IsActive bool   `json:"is_active"`
		}
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		u := domain.User{
			ID:        input.UserID,
			Name:      input.Body.Name,
			Title:     input.Body.Title,
			Role:      input.Body.Role,
			Email:     input.Body.Email,
			IsActive:  input.Body.IsActive,
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if err := e.Repo.UpsertUser(ctx, u); err != nil {
			return nil, handleError(err)
		}
		stored, err := e.Repo.GetUser(ctx, u.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: stored}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}",
		Summary:     "Get user",
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		u, err := e.Repo.GetUser(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.User `json:"body"`
	}, error) {
		users, err := e.Repo.ListUsers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.User `json:"body"`
		}{Body: users}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/apikeys",
		Summary:       "Create API key",
		Description:   "The plaintext key is returned once; only its hash is stored.",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body struct {
			ActorID string `json:"actor_id"`
			Name    string `json:"name,omitempty"`
		}
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if input.Body.ActorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		plain, err := repo.GenerateAPIKey()
		if err != nil {
			return nil, handleError(err)
		}
		key := domain.APIKey{
			ID:        uuid.NewString(),
			ActorID:   input.Body.ActorID,
			Name:      input.Body.Name,
			KeyHash:   repo.HashAPIKey(plain),
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if err := e.Repo.InsertAPIKey(ctx, key); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"id": key.ID, "key": plain}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/apikeys",
		Summary:     "List API keys",
	}, func(ctx context.Context, input *struct {
		ActorID string `query:"actor_id"`
	}) (*struct {
		Body []domain.APIKey `json:"body"`
	}, error) {
		keys, err := e.Repo.ListAPIKeys(ctx, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.APIKey `json:"body"`
		}{Body: keys}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-api-key",
		Method:        http.MethodDelete,
		Path:          "/apikeys/{key_id}",
		Summary:       "Delete API key",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		if err := e.Repo.DeleteAPIKey(ctx, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
