package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"taskdeck/internal/activity"
	"taskdeck/internal/config"
	"taskdeck/internal/db"
	"taskdeck/internal/domain"
	"taskdeck/internal/engine"
	"taskdeck/internal/migrate"
	"taskdeck/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default(), zerolog.Nop())
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	eng.Activities.Now = eng.Now
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func createTask(t *testing.T, env testEnv, opts engine.TaskCreateOptions) domain.Task {
	t.Helper()
	if opts.Title == "" {
		opts.Title = "Do work"
	}
	if opts.ActorID == "" {
		opts.ActorID = "tester"
	}
	task, err := env.Engine.CreateTask(env.Ctx, opts)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func activityEntry(kind, text, file string) activity.Entry {
	return activity.Entry{Type: kind, Text: text, File: file, By: "tester"}
}

func TestSubTaskCompletionDrivesStage(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, engine.TaskCreateOptions{})
	task, err := env.Engine.CreateSubTask(env.Ctx, task.ID, "first", "", "", "", "tester")
	if err != nil {
		t.Fatalf("create sub-task: %v", err)
	}
	task, err = env.Engine.CreateSubTask(env.Ctx, task.ID, "second", "", "", "", "tester")
	if err != nil {
		t.Fatalf("create sub-task: %v", err)
	}
	if task.Stage != domain.StageTodo {
		t.Fatalf("stage = %q, want todo", task.Stage)
	}

	// Completing one of two sub-tasks must not drag a todo task forward.
	task, err = env.Engine.SetSubTaskCompletion(env.Ctx, task.ID, task.SubTasks[0].ID, true, "tester")
	if err != nil {
		t.Fatalf("complete sub-task: %v", err)
	}
	if task.Stage != domain.StageTodo {
		t.Fatalf("stage = %q after one completion, want todo", task.Stage)
	}

	task, err = env.Engine.SetSubTaskCompletion(env.Ctx, task.ID, task.SubTasks[1].ID, true, "tester")
	if err != nil {
		t.Fatalf("complete sub-task: %v", err)
	}
	if task.Stage != domain.StageCompleted {
		t.Fatalf("stage = %q after all completions, want completed", task.Stage)
	}
	if len(task.Activities) == 0 || task.Activities[0].Type != domain.ActivityCompleted {
		t.Fatalf("most recent activity = %+v, want completed entry first", task.Activities)
	}
}

func TestFileApprovalCompletesAndRejectionDemotes(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, engine.TaskCreateOptions{Assets: []string{"a.pdf"}})

	task, err := env.Engine.SetFileStatus(env.Ctx, task.ID, "", "a.pdf", domain.FileStatusApproved, "tester")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if task.Stage != domain.StageCompleted {
		t.Fatalf("stage = %q after approval, want completed", task.Stage)
	}

	task, err = env.Engine.SetFileStatus(env.Ctx, task.ID, "", "a.pdf", domain.FileStatusRejected, "tester")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if task.Stage != domain.StageInProgress {
		t.Fatalf("stage = %q after rejection, want in_progress", task.Stage)
	}
	if task.FileStatuses["a.pdf"] != domain.FileStatusRejected {
		t.Fatalf("ledger = %v, want a.pdf rejected", task.FileStatuses)
	}
}

func TestNewSubTaskDemotesCompletedTask(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, engine.TaskCreateOptions{})
	task, err := env.Engine.CreateSubTask(env.Ctx, task.ID, "only", "", "", "", "tester")
	if err != nil {
		t.Fatal(err)
	}
	task, err = env.Engine.SetSubTaskCompletion(env.Ctx, task.ID, task.SubTasks[0].ID, true, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if task.Stage != domain.StageCompleted {
		t.Fatalf("stage = %q, want completed", task.Stage)
	}

	task, err = env.Engine.CreateSubTask(env.Ctx, task.ID, "new", "", "", "", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if task.Stage != domain.StageInProgress {
		t.Fatalf("stage = %q after new sub-task, want in_progress", task.Stage)
	}
	if len(task.Activities) == 0 || task.Activities[0].Type != domain.ActivityInProgress {
		t.Fatalf("most recent activity type = %v, want in_progress", task.Activities[0].Type)
	}
}

func TestRemovingLastIncompleteSubTaskCompletes(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, engine.TaskCreateOptions{})
	task, err := env.Engine.CreateSubTask(env.Ctx, task.ID, "done", "", "", "", "tester")
	if err != nil {
		t.Fatal(err)
	}
	task, err = env.Engine.SetSubTaskCompletion(env.Ctx, task.ID, task.SubTasks[0].ID, true, "tester")
	if err != nil {
		t.Fatal(err)
	}
	task, err = env.Engine.CreateSubTask(env.Ctx, task.ID, "pending", "", "", "", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if task.Stage != domain.StageInProgress {
		t.Fatalf("stage = %q, want in_progress", task.Stage)
	}

	task, err = env.Engine.DeleteSubTask(env.Ctx, task.ID, task.SubTasks[1].ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if task.Stage != domain.StageCompleted {
		t.Fatalf("stage = %q after deleting incomplete sub-task, want completed", task.Stage)
	}
	found := false
	for _, a := range task.Activities {
		if a.Type == domain.ActivitySubTaskDeleted {
			found = true
		}
	}
	if !found {
		t.Fatalf("no subtask_deleted activity recorded")
	}
}

func TestEmptyTaskNeverAutoCompletes(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, engine.TaskCreateOptions{})
	task, err := env.Engine.CreateSubTask(env.Ctx, task.ID, "temp", "", "", "", "tester")
	if err != nil {
		t.Fatal(err)
	}
	// Deleting the only sub-task leaves zero sub-tasks and zero assets;
	// the stage must stay put instead of vacuously completing.
	task, err = env.Engine.DeleteSubTask(env.Ctx, task.ID, task.SubTasks[0].ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if task.Stage != domain.StageTodo {
		t.Fatalf("stage = %q, want todo", task.Stage)
	}
}

func TestSubTaskLedgerDrivesCompletion(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, engine.TaskCreateOptions{})
	task, err := env.Engine.CreateSubTask(env.Ctx, task.ID, "review doc", "", "", "doc.pdf", "tester")
	if err != nil {
		t.Fatal(err)
	}
	st := task.SubTasks[0]
	if st.IsCompleted {
		t.Fatalf("new sub-task is completed")
	}
	// Seed file is mirrored into the parent's assets.
	if len(task.Assets) != 1 || task.Assets[0] != "doc.pdf" {
		t.Fatalf("task assets = %v, want [doc.pdf]", task.Assets)
	}

	task, err = env.Engine.SetFileStatus(env.Ctx, task.ID, st.ID, "doc.pdf", domain.FileStatusApproved, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if !task.SubTasks[0].IsCompleted {
		t.Fatalf("sub-task not completed after approving its only file")
	}
	if task.Stage != domain.StageCompleted {
		t.Fatalf("stage = %q, want completed", task.Stage)
	}

	task, err = env.Engine.SetFileStatus(env.Ctx, task.ID, st.ID, "doc.pdf", domain.FileStatusRejected, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if task.SubTasks[0].IsCompleted {
		t.Fatalf("sub-task completed with a rejected file")
	}
	if task.Stage != domain.StageInProgress {
		t.Fatalf("stage = %q, want in_progress", task.Stage)
	}
}

func TestRemovingLastSubTaskFilePreservesFlag(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, engine.TaskCreateOptions{})
	task, err := env.Engine.CreateSubTask(env.Ctx, task.ID, "review doc", "", "", "doc.pdf", "tester")
	if err != nil {
		t.Fatal(err)
	}
	st := task.SubTasks[0]
	task, err = env.Engine.SetFileStatus(env.Ctx, task.ID, st.ID, "doc.pdf", domain.FileStatusApproved, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if !task.SubTasks[0].IsCompleted {
		t.Fatalf("sub-task not completed")
	}

	// Emptying the assets keeps the flag rather than resetting it.
	task, err = env.Engine.RemoveFile(env.Ctx, task.ID, st.ID, "doc.pdf", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if len(task.SubTasks[0].Assets) != 0 {
		t.Fatalf("sub-task assets = %v, want empty", task.SubTasks[0].Assets)
	}
	if !task.SubTasks[0].IsCompleted {
		t.Fatalf("completion flag reset by file removal")
	}
}

func TestFileStatusValidation(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, engine.TaskCreateOptions{Assets: []string{"a.pdf"}})

	if _, err := env.Engine.SetFileStatus(env.Ctx, task.ID, "", "a.pdf", "done", "tester"); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("bad status: err = %v, want ErrValidation", err)
	}
	if _, err := env.Engine.SetFileStatus(env.Ctx, task.ID, "", "missing.pdf", domain.FileStatusApproved, "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("unknown file: err = %v, want ErrNotFound", err)
	}
	if _, err := env.Engine.SetFileStatus(env.Ctx, task.ID, "nope", "a.pdf", domain.FileStatusApproved, "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("unknown sub-task: err = %v, want ErrNotFound", err)
	}
	if _, err := env.Engine.SetSubTaskCompletion(env.Ctx, task.ID, "nope", true, "tester"); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("unknown sub-task toggle: err = %v, want ErrValidation", err)
	}
	if _, err := env.Engine.DeleteSubTask(env.Ctx, task.ID, "nope", "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("delete unknown sub-task: err = %v, want ErrNotFound", err)
	}

	// Second removal of the same file fails; the operation is not idempotent.
	if _, err := env.Engine.RemoveFile(env.Ctx, task.ID, "", "a.pdf", "tester"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := env.Engine.RemoveFile(env.Ctx, task.ID, "", "a.pdf", "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("second remove: err = %v, want ErrNotFound", err)
	}
}

func TestTaskLevelStatusActivityCorrectedInPlace(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, engine.TaskCreateOptions{Assets: []string{"a.pdf"}})

	task, err := env.Engine.SetFileStatus(env.Ctx, task.ID, "", "a.pdf", domain.FileStatusApproved, "tester")
	if err != nil {
		t.Fatal(err)
	}
	task, err = env.Engine.SetFileStatus(env.Ctx, task.ID, "", "a.pdf", domain.FileStatusRejected, "tester")
	if err != nil {
		t.Fatal(err)
	}
	var statusEntries []domain.Activity
	for _, a := range task.Activities {
		if a.Type == domain.ActivityFileStatusChanged {
			statusEntries = append(statusEntries, a)
		}
	}
	if len(statusEntries) != 1 {
		t.Fatalf("status entries = %d, want 1 (corrected in place)", len(statusEntries))
	}
	if statusEntries[0].Status != domain.FileStatusRejected {
		t.Fatalf("entry status = %q, want rejected", statusEntries[0].Status)
	}
}

func TestSubTaskStatusActivityAppends(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, engine.TaskCreateOptions{})
	task, err := env.Engine.CreateSubTask(env.Ctx, task.ID, "review", "", "", "doc.pdf", "tester")
	if err != nil {
		t.Fatal(err)
	}
	st := task.SubTasks[0]
	task, err = env.Engine.SetFileStatus(env.Ctx, task.ID, st.ID, "doc.pdf", domain.FileStatusApproved, "tester")
	if err != nil {
		t.Fatal(err)
	}
	task, err = env.Engine.SetFileStatus(env.Ctx, task.ID, st.ID, "doc.pdf", domain.FileStatusRejected, "tester")
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	for _, a := range task.Activities {
		if a.Type == domain.ActivityFileStatusChanged {
			count++
		}
	}
	if count != 2 {
		t.Fatalf("status entries = %d, want 2 (sub-task path appends)", count)
	}
}

func TestManualStageMoveBypassesRules(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, engine.TaskCreateOptions{})
	task, err := env.Engine.CreateSubTask(env.Ctx, task.ID, "pending", "", "", "", "tester")
	if err != nil {
		t.Fatal(err)
	}
	// Direct move to completed sticks even with an incomplete sub-task.
	task, err = env.Engine.SetTaskStage(env.Ctx, task.ID, domain.StageCompleted, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if task.Stage != domain.StageCompleted {
		t.Fatalf("stage = %q, want completed", task.Stage)
	}
}

func TestDuplicateTaskCopiesGraph(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, engine.TaskCreateOptions{Title: "Ship it", Assets: []string{"a.pdf"}})
	task, err := env.Engine.CreateSubTask(env.Ctx, task.ID, "check", "", "", "sub.pdf", "tester")
	if err != nil {
		t.Fatal(err)
	}
	task, err = env.Engine.SetFileStatus(env.Ctx, task.ID, "", "a.pdf", domain.FileStatusApproved, "tester")
	if err != nil {
		t.Fatal(err)
	}

	dup, err := env.Engine.DuplicateTask(env.Ctx, task.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if dup.ID == task.ID {
		t.Fatalf("duplicate reuses the source id")
	}
	if dup.Title != "Duplicate - Ship it" {
		t.Fatalf("title = %q", dup.Title)
	}
	if len(dup.SubTasks) != 1 || dup.SubTasks[0].ID == task.SubTasks[0].ID {
		t.Fatalf("sub-tasks not copied under fresh ids: %+v", dup.SubTasks)
	}
	if dup.FileStatuses["a.pdf"] != domain.FileStatusApproved {
		t.Fatalf("ledger not copied: %v", dup.FileStatuses)
	}
}

func TestPostActivityAddsFileWithoutReconcile(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, engine.TaskCreateOptions{})
	task, err := env.Engine.PostActivity(env.Ctx, task.ID, activityEntry("bug", "found a bug", "shot.png"))
	if err != nil {
		t.Fatal(err)
	}
	if len(task.Assets) != 1 || task.Assets[0] != "shot.png" {
		t.Fatalf("assets = %v, want [shot.png]", task.Assets)
	}
	// The fresh file has no ledger entry and the stage is untouched.
	if _, ok := task.FileStatuses["shot.png"]; ok {
		t.Fatalf("fresh file has a ledger entry")
	}
	if task.Stage != domain.StageTodo {
		t.Fatalf("stage = %q, want todo", task.Stage)
	}
}
