package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/rs/zerolog"

	"taskdeck/internal/config"
	"taskdeck/internal/db"
	"taskdeck/internal/engine"
	"taskdeck/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default(), zerolog.Nop())
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{AllowLegacyActorHeader: true, Log: zerolog.Nop()},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.close)
	return ts
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

var actorHeader = map[string]string{"X-Actor-Id": "tester"}

func TestHealthRequiresNoAuth(t *testing.T) {
	ts := newTestServer(t)
	resp, _ := doJSON(t, ts.client, http.MethodGet, ts.URL+"/v0/health", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d, want 200", resp.StatusCode)
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	ts := newTestServer(t)
	resp, body := doJSON(t, ts.client, http.MethodGet, ts.URL+"/v0/tasks", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401: %s", resp.StatusCode, body)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Error.Code != "unauthorized" {
		t.Fatalf("code = %q, want unauthorized", envelope.Error.Code)
	}
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v0/tasks", map[string]any{
		"title":  "Ship release",
		"assets": []string{"notes.pdf"},
	}, actorHeader)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d: %s", resp.StatusCode, body)
	}
	var task struct {
		ID    string `json:"id"`
		Stage string `json:"stage"`
	}
	if err := json.Unmarshal(body, &task); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	if task.Stage != "todo" {
		t.Fatalf("new task stage = %q, want todo", task.Stage)
	}

	resp, body = doJSON(t, ts.client, http.MethodPut, ts.URL+"/v0/tasks/"+task.ID+"/files/status", map[string]any{
		"file":   "notes.pdf",
		"status": "approved",
	}, actorHeader)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("file status = %d: %s", resp.StatusCode, body)
	}
	var updated struct {
		Stage string `json:"stage"`
	}
	if err := json.Unmarshal(body, &updated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if updated.Stage != "completed" {
		t.Fatalf("stage = %q after approving only file, want completed", updated.Stage)
	}

	resp, body = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v0/tasks/"+task.ID, nil, actorHeader)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d: %s", resp.StatusCode, body)
	}
}

func TestValidationErrorsMapToStatusCodes(t *testing.T) {
	ts := newTestServer(t)
	resp, body := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v0/tasks", map[string]any{
		"title":  "t",
		"assets": []string{"a.pdf"},
	}, actorHeader)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", resp.StatusCode, body)
	}
	var task struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(body, &task)

	resp, _ = doJSON(t, ts.client, http.MethodPut, ts.URL+"/v0/tasks/"+task.ID+"/files/status", map[string]any{
		"file":   "missing.pdf",
		"status": "approved",
	}, actorHeader)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown file status = %d, want 404", resp.StatusCode)
	}

	resp, _ = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v0/tasks/does-not-exist", nil, actorHeader)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown task status = %d, want 404", resp.StatusCode)
	}
}

func TestFolderEndpoints(t *testing.T) {
	ts := newTestServer(t)
	resp, body := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v0/folders", map[string]any{
		"name": "release",
	}, actorHeader)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create folder: %d %s", resp.StatusCode, body)
	}
	var folder struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &folder); err != nil {
		t.Fatalf("decode folder: %v", err)
	}
	if folder.Status != "in_progress" {
		t.Fatalf("new folder status = %q, want in_progress", folder.Status)
	}

	resp, body = doJSON(t, ts.client, http.MethodPost, ts.URL+"/v0/tasks", map[string]any{"title": "t"}, actorHeader)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create task: %d %s", resp.StatusCode, body)
	}
	var task struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(body, &task)

	resp, body = doJSON(t, ts.client, http.MethodPost, ts.URL+"/v0/folders/"+folder.ID+"/tasks", map[string]any{
		"task_id": task.ID,
	}, actorHeader)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add task to folder: %d %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, ts.client, http.MethodPut, ts.URL+"/v0/tasks/"+task.ID+"/stage", map[string]any{
		"stage": "completed",
	}, actorHeader)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set stage: %d %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v0/folders/"+folder.ID, nil, actorHeader)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get folder: %d %s", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, &folder); err != nil {
		t.Fatalf("decode folder: %v", err)
	}
	if folder.Status != "completed" {
		t.Fatalf("folder status = %q after member completed, want completed", folder.Status)
	}
}
