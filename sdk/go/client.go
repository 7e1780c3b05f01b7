package taskdecksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Taskdeck HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	ActorID     string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Task represents the API task model (partial).
type Task struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Priority     string            `json:"priority"`
	Stage        string            `json:"stage"`
	Date         string            `json:"date"`
	Assets       []string          `json:"assets,omitempty"`
	FileStatuses map[string]string `json:"file_statuses,omitempty"`
	SubTasks     []SubTask         `json:"sub_tasks,omitempty"`
	IsTrashed    bool              `json:"is_trashed"`
}

// SubTask represents an embedded sub-task.
type SubTask struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Tag          string            `json:"tag,omitempty"`
	IsCompleted  bool              `json:"is_completed"`
	Assets       []string          `json:"assets,omitempty"`
	FileStatuses map[string]string `json:"file_statuses,omitempty"`
}

// Folder represents the API folder model (partial).
type Folder struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Status string   `json:"status"`
	Tasks  []string `json:"tasks,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateTask creates a task.
func (c *Client) CreateTask(ctx context.Context, title, priority string, team []string) (Task, error) {
	body := map[string]any{
		"title":    title,
		"priority": priority,
		"team":     team,
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "v0/tasks", body, &resp)
	return resp, err
}

// GetTask fetches the full task aggregate.
func (c *Client) GetTask(ctx context.Context, taskID string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "v0/tasks/"+url.PathEscape(taskID), nil, &resp)
	return resp, err
}

// SetTaskStage moves a task on the board directly.
func (c *Client) SetTaskStage(ctx context.Context, taskID, stage string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPut, "v0/tasks/"+url.PathEscape(taskID)+"/stage", map[string]any{"stage": stage}, &resp)
	return resp, err
}

// SetFileStatus sets a file's approval status. subTaskID may be empty for
// task-level files.
func (c *Client) SetFileStatus(ctx context.Context, taskID, subTaskID, file, status string) (Task, error) {
	body := map[string]any{
		"subtask_id": subTaskID,
		"file":       file,
		"status":     status,
	}
	var resp Task
	err := c.do(ctx, http.MethodPut, "v0/tasks/"+url.PathEscape(taskID)+"/files/status", body, &resp)
	return resp, err
}

// CreateSubTask adds a sub-task, optionally seeded with a file.
func (c *Client) CreateSubTask(ctx context.Context, taskID, title, tag, file string) (Task, error) {
	body := map[string]any{
		"title": title,
		"tag":   tag,
		"file":  file,
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "v0/tasks/"+url.PathEscape(taskID)+"/subtasks", body, &resp)
	return resp, err
}

// SetSubTaskCompletion toggles a sub-task's completion flag.
func (c *Client) SetSubTaskCompletion(ctx context.Context, taskID, subTaskID string, completed bool) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPut,
		"v0/tasks/"+url.PathEscape(taskID)+"/subtasks/"+url.PathEscape(subTaskID)+"/completion",
		map[string]any{"completed": completed}, &resp)
	return resp, err
}

// CreateFolder creates a folder.
func (c *Client) CreateFolder(ctx context.Context, name string) (Folder, error) {
	var resp Folder
	err := c.do(ctx, http.MethodPost, "v0/folders", map[string]any{"name": name}, &resp)
	return resp, err
}

// AddTaskToFolder puts a task into a folder.
func (c *Client) AddTaskToFolder(ctx context.Context, folderID, taskID string) (Folder, error) {
	var resp Folder
	err := c.do(ctx, http.MethodPost, "v0/folders/"+url.PathEscape(folderID)+"/tasks",
		map[string]any{"task_id": taskID}, &resp)
	return resp, err
}

// GetFolder fetches a folder.
func (c *Client) GetFolder(ctx context.Context, folderID string) (Folder, error) {
	var resp Folder
	err := c.do(ctx, http.MethodGet, "v0/folders/"+url.PathEscape(folderID), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
