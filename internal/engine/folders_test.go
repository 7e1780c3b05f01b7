package engine_test

import (
	"errors"
	"testing"

	"taskdeck/internal/domain"
	"taskdeck/internal/engine"
	"taskdeck/internal/repo"
)

func createFolder(t *testing.T, env testEnv, name string) domain.Folder {
	t.Helper()
	f, err := env.Engine.CreateFolder(env.Ctx, engine.FolderOptions{Name: name, ActorID: "tester"})
	if err != nil {
		t.Fatalf("create folder: %v", err)
	}
	return f
}

func TestFolderStatusFollowsMemberTasks(t *testing.T) {
	env := newTestEnv(t)
	folder := createFolder(t, env, "release")
	t1 := createTask(t, env, engine.TaskCreateOptions{Title: "one"})
	t2 := createTask(t, env, engine.TaskCreateOptions{Title: "two"})
	if _, err := env.Engine.AddTaskToFolder(env.Ctx, folder.ID, t1.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddTaskToFolder(env.Ctx, folder.ID, t2.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetTaskStage(env.Ctx, t1.ID, domain.StageCompleted, "tester"); err != nil {
		t.Fatal(err)
	}

	f, err := env.Engine.Repo.GetFolder(env.Ctx, folder.ID)
	if err != nil {
		t.Fatal(err)
	}
	if f.Status != domain.StageInProgress {
		t.Fatalf("folder status = %q with one todo member, want in_progress", f.Status)
	}

	if _, err := env.Engine.SetTaskStage(env.Ctx, t2.ID, domain.StageCompleted, "tester"); err != nil {
		t.Fatal(err)
	}
	f, err = env.Engine.Repo.GetFolder(env.Ctx, folder.ID)
	if err != nil {
		t.Fatal(err)
	}
	if f.Status != domain.StageCompleted {
		t.Fatalf("folder status = %q with all members completed, want completed", f.Status)
	}

	// Re-running the check without task changes is a no-op.
	if _, err := env.Engine.CheckFolderStatus(env.Ctx, folder.ID); err != nil {
		t.Fatal(err)
	}
	f, _ = env.Engine.Repo.GetFolder(env.Ctx, folder.ID)
	if f.Status != domain.StageCompleted {
		t.Fatalf("folder status flapped to %q on re-check", f.Status)
	}
}

func TestEmptyFolderNeverCompleted(t *testing.T) {
	env := newTestEnv(t)
	folder := createFolder(t, env, "empty")
	all, err := env.Engine.CheckFolderStatus(env.Ctx, folder.ID)
	if err != nil {
		t.Fatal(err)
	}
	if all {
		t.Fatalf("empty folder reported all-completed")
	}
	f, _ := env.Engine.Repo.GetFolder(env.Ctx, folder.ID)
	if f.Status == domain.StageCompleted {
		t.Fatalf("empty folder marked completed")
	}
}

func TestCheckMissingFolderFailsSoft(t *testing.T) {
	env := newTestEnv(t)
	all, err := env.Engine.CheckFolderStatus(env.Ctx, "no-such-folder")
	if err != nil || all {
		t.Fatalf("missing folder: all=%v err=%v, want false,nil", all, err)
	}
}

func TestTrashPullsTaskFromFolders(t *testing.T) {
	env := newTestEnv(t)
	folder := createFolder(t, env, "release")
	done := createTask(t, env, engine.TaskCreateOptions{Title: "done"})
	open := createTask(t, env, engine.TaskCreateOptions{Title: "open"})
	if _, err := env.Engine.AddTaskToFolder(env.Ctx, folder.ID, done.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddTaskToFolder(env.Ctx, folder.ID, open.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetTaskStage(env.Ctx, done.ID, domain.StageCompleted, "tester"); err != nil {
		t.Fatal(err)
	}

	// Trashing the open task removes it from the folder, and the remaining
	// member being complete flips the folder to completed.
	if err := env.Engine.TrashTask(env.Ctx, open.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	f, err := env.Engine.Repo.GetFolder(env.Ctx, folder.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range f.Tasks {
		if id == open.ID {
			t.Fatalf("trashed task still referenced by folder")
		}
	}
	if f.Status != domain.StageCompleted {
		t.Fatalf("folder status = %q after trash, want completed", f.Status)
	}
}

func TestHardDeleteLeavesNoDanglingFolderRefs(t *testing.T) {
	env := newTestEnv(t)
	f1 := createFolder(t, env, "one")
	f2 := createFolder(t, env, "two")
	task := createTask(t, env, engine.TaskCreateOptions{})
	if _, err := env.Engine.AddTaskToFolder(env.Ctx, f1.ID, task.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddTaskToFolder(env.Ctx, f2.ID, task.ID); err != nil {
		t.Fatal(err)
	}

	if err := env.Engine.DeleteTask(env.Ctx, task.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Repo.GetTask(env.Ctx, task.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("task still present: %v", err)
	}
	for _, folderID := range []string{f1.ID, f2.ID} {
		f, err := env.Engine.Repo.GetFolder(env.Ctx, folderID)
		if err != nil {
			t.Fatal(err)
		}
		if len(f.Tasks) != 0 {
			t.Fatalf("folder %s retains refs %v", folderID, f.Tasks)
		}
	}
}

func TestAddDuplicateTaskToFolderRejected(t *testing.T) {
	env := newTestEnv(t)
	folder := createFolder(t, env, "release")
	task := createTask(t, env, engine.TaskCreateOptions{})
	if _, err := env.Engine.AddTaskToFolder(env.Ctx, folder.ID, task.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddTaskToFolder(env.Ctx, folder.ID, task.ID); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("duplicate add: err = %v, want ErrValidation", err)
	}
}

func TestEmptyTrashDeletesAllTrashed(t *testing.T) {
	env := newTestEnv(t)
	keep := createTask(t, env, engine.TaskCreateOptions{Title: "keep"})
	gone := createTask(t, env, engine.TaskCreateOptions{Title: "gone"})
	if err := env.Engine.TrashTask(env.Ctx, gone.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	n, err := env.Engine.EmptyTrash(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("deleted = %d, want 1", n)
	}
	if _, err := env.Engine.Repo.GetTask(env.Ctx, gone.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("trashed task survived empty: %v", err)
	}
	if _, err := env.Engine.Repo.GetTask(env.Ctx, keep.ID); err != nil {
		t.Fatalf("untouched task lost: %v", err)
	}
}

func TestRestoreTask(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, engine.TaskCreateOptions{})
	if err := env.Engine.TrashTask(env.Ctx, task.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	got, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil || !got.IsTrashed {
		t.Fatalf("task not trashed: %+v err=%v", got, err)
	}
	if err := env.Engine.RestoreTask(env.Ctx, task.ID); err != nil {
		t.Fatal(err)
	}
	got, err = env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil || got.IsTrashed {
		t.Fatalf("task not restored: %+v err=%v", got, err)
	}
}
