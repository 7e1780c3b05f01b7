package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskdeck/internal/activity"
	"taskdeck/internal/app"
	"taskdeck/internal/config"
	"taskdeck/internal/db"
	"taskdeck/internal/domain"
	"taskdeck/internal/engine"
	"taskdeck/internal/repo"
	"taskdeck/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "td",
	Short: "Taskdeck CLI",
	Long: `Taskdeck tracks tasks, sub-tasks and file approvals, grouped into folders.
A task's stage moves between todo, in_progress and completed. Completion is
derived: a task with sub-tasks completes when every sub-task is done; a
sub-task that owns files completes when every file is approved; folders
complete when every member task does. Files wait as pending until someone
approves or rejects them.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TASKDECK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(subtaskCmd())
	rootCmd.AddCommand(fileCmd())
	rootCmd.AddCommand(folderCmd())
	rootCmd.AddCommand(trashCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			a, err := app.Open(workspace, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()
			cfgPath := config.Path(workspace)
			if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
				if err := os.WriteFile(cfgPath, []byte(config.GenerateDefault()), 0o644); err != nil {
					return err
				}
				fmt.Println("wrote", cfgPath)
			}
			fmt.Println("workspace ready:", db.Path(workspace))
			return nil
		},
	}
}

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "task", Short: "Manage tasks"}
	cmd.AddCommand(taskCreateCmd())
	cmd.AddCommand(taskListCmd())
	cmd.AddCommand(taskShowCmd())
	cmd.AddCommand(taskStageCmd())
	cmd.AddCommand(taskDuplicateCmd())
	cmd.AddCommand(taskActivityCmd())
	cmd.AddCommand(taskDeleteCmd())
	return cmd
}

func taskCreateCmd() *cobra.Command {
	var title, description, priority, stage, date, area, company string
	var team, links, assets []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
					Title:       title,
					Description: description,
					Priority:    priority,
					Stage:       stage,
					Date:        date,
					Area:        area,
					Company:     company,
					Team:        team,
					Links:       links,
					Assets:      assets,
					ActorID:     viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&priority, "priority", "", "priority (high|medium|normal|low)")
	cmd.Flags().StringVar(&stage, "stage", "", "stage (todo|in_progress|completed)")
	cmd.Flags().StringVar(&date, "date", "", "date (RFC3339)")
	cmd.Flags().StringVar(&area, "area", "", "area")
	cmd.Flags().StringVar(&company, "company", "", "company")
	cmd.Flags().StringSliceVar(&team, "team", nil, "team user ids")
	cmd.Flags().StringSliceVar(&links, "link", nil, "related links")
	cmd.Flags().StringSliceVar(&assets, "asset", nil, "file references")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.Repo.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Stage", "Priority", "Date"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.Title, t.Stage, t.Priority, t.Date})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Stage, "stage", "", "stage filter")
	cmd.Flags().BoolVar(&f.Trashed, "trashed", false, "list trashed tasks")
	cmd.Flags().StringVar(&f.Search, "search", "", "search title/stage/priority")
	cmd.Flags().StringVar(&f.TeamUser, "user", "", "filter by team member")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "limit results")
	return cmd
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task with sub-tasks, files and activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Repo.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskStageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stage <task-id> <stage>",
		Short: "Move task on the board (direct write)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.SetTaskStage(ctx, args[0], args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskDuplicateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "duplicate <task-id>",
		Short: "Duplicate a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.DuplicateTask(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskActivityCmd() *cobra.Command {
	var actType, text, file string
	cmd := &cobra.Command{
		Use:   "comment <task-id>",
		Short: "Post an activity entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.PostActivity(ctx, args[0], activity.Entry{
					Type: actType,
					Text: text,
					File: file,
					By:   viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&actType, "type", domain.ActivityCommented, "activity type")
	cmd.Flags().StringVar(&text, "text", "", "activity text")
	cmd.Flags().StringVar(&file, "file", "", "attach a file reference")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Hard-delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteTask(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
	return cmd
}

func subtaskCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "subtask", Short: "Manage sub-tasks"}

	var date, tag, file string
	create := &cobra.Command{
		Use:   "create <task-id> <title>",
		Short: "Add a sub-task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateSubTask(ctx, args[0], args[1], date, tag, file, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	create.Flags().StringVar(&date, "date", "", "date (RFC3339)")
	create.Flags().StringVar(&tag, "tag", "", "tag")
	create.Flags().StringVar(&file, "file", "", "seed file reference")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <task-id> <subtask-id>",
		Short: "Delete a sub-task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.DeleteSubTask(ctx, args[0], args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "complete <task-id> <subtask-id> <true|false>",
		Short: "Toggle sub-task completion",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			flag := args[2] == "true"
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.SetSubTaskCompletion(ctx, args[0], args[1], flag, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	})
	return cmd
}

func fileCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "file", Short: "Manage file approvals"}

	var subTaskID string
	status := &cobra.Command{
		Use:   "status <task-id> <file-ref> <pending|approved|rejected>",
		Short: "Set a file's approval status",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.SetFileStatus(ctx, args[0], subTaskID, args[1], args[2], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	status.Flags().StringVar(&subTaskID, "subtask", "", "sub-task owning the file")
	cmd.AddCommand(status)

	var rmSubTaskID string
	remove := &cobra.Command{
		Use:   "remove <task-id> <file-ref>",
		Short: "Remove a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.RemoveFile(ctx, args[0], rmSubTaskID, args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	remove.Flags().StringVar(&rmSubTaskID, "subtask", "", "sub-task owning the file")
	cmd.AddCommand(remove)
	return cmd
}

func folderCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "folder", Short: "Manage folders"}

	var name, date, company, area, pdf string
	var team []string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f, err := e.CreateFolder(ctx, engine.FolderOptions{
					Name:    name,
					Date:    date,
					Company: company,
					Area:    area,
					PDFPath: pdf,
					Team:    team,
					ActorID: viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(f)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "folder name")
	create.Flags().StringVar(&date, "date", "", "date (RFC3339)")
	create.Flags().StringVar(&company, "company", "", "company")
	create.Flags().StringVar(&area, "area", "", "area")
	create.Flags().StringVar(&pdf, "pdf", "", "pdf path")
	create.Flags().StringSliceVar(&team, "team", nil, "team user ids")
	_ = create.MarkFlagRequired("name")
	cmd.AddCommand(create)

	var trashed bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List folders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				folders, err := e.Repo.ListFolders(ctx, trashed)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(folders)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Tasks", "Date"})
				for _, f := range folders {
					tw.AppendRow(table.Row{f.ID, f.Name, f.Status, len(f.Tasks), f.Date})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().BoolVar(&trashed, "trashed", false, "list trashed folders")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "show <folder-id>",
		Short: "Show a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f, err := e.Repo.GetFolder(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(f)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add-task <folder-id> <task-id>",
		Short: "Add a task to a folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f, err := e.AddTaskToFolder(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(f)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove-task <folder-id> <task-id>",
		Short: "Remove a task from a folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f, err := e.RemoveTaskFromFolder(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(f)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check <folder-id>",
		Short: "Re-derive folder status from member tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				allCompleted, err := e.CheckFolderStatus(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Println("all_completed:", allCompleted)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "trash <folder-id>",
		Short: "Move a folder to trash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.TrashFolder(ctx, args[0], true)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "restore <folder-id>",
		Short: "Restore a folder from trash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.TrashFolder(ctx, args[0], false)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <folder-id>",
		Short: "Hard-delete a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteFolder(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	})
	return cmd
}

func trashCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "trash", Short: "Manage the trash"}

	cmd.AddCommand(&cobra.Command{
		Use:   "put <task-id>",
		Short: "Move a task to trash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.TrashTask(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "restore <task-id>",
		Short: "Restore a task from trash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RestoreTask(ctx, args[0])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "restore-all",
		Short: "Restore every trashed task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RestoreAllTasks(ctx)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "empty",
		Short: "Hard-delete every trashed task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.EmptyTrash(ctx)
				if err != nil {
					return err
				}
				fmt.Println("deleted:", n)
				return nil
			})
		},
	})
	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage users"}

	var name, title, role, email string
	add := &cobra.Command{
		Use:   "add <user-id>",
		Short: "Create or update a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u := domain.User{
					ID:        args[0],
					Name:      name,
					Title:     title,
					Role:      role,
					Email:     email,
					IsActive:  true,
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := e.Repo.UpsertUser(ctx, u); err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().StringVar(&title, "title", "", "job title")
	add.Flags().StringVar(&role, "role", "", "role")
	add.Flags().StringVar(&email, "email", "", "email")
	_ = add.MarkFlagRequired("name")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				users, err := e.Repo.ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Role", "Email", "Active"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Name, u.Role, u.Email, u.IsActive})
				}
				tw.Render()
				return nil
			})
		},
	})
	return cmd
}

func apiKeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage API keys"}

	var keyName string
	create := &cobra.Command{
		Use:   "create <actor-id>",
		Short: "Create an API key for an actor",
		Long:  "Prints the plaintext key once; only its hash is stored.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				plain, err := repo.GenerateAPIKey()
				if err != nil {
					return err
				}
				key := domain.APIKey{
					ID:        uuid.NewString(),
					ActorID:   args[0],
					Name:      keyName,
					KeyHash:   repo.HashAPIKey(plain),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := e.Repo.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "key": plain})
				}
				fmt.Println("id: ", key.ID)
				fmt.Println("key:", plain)
				return nil
			})
		},
	}
	create.Flags().StringVar(&keyName, "name", "", "key label")
	cmd.AddCommand(create)

	var actorFilter string
	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.Repo.ListAPIKeys(ctx, actorFilter)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&actorFilter, "actor", "", "filter by actor")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Repo.DeleteAPIKey(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("revoked", args[0])
				return nil
			})
		},
	})
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Task counts by stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				counts, err := e.Repo.CountTasksByStage(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(counts)
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			a, err := app.Open(workspace, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr == "" {
				addr = a.Config.Server.Addr
			}
			secret := os.Getenv("TASKDECK_JWT_SECRET")
			if secret == "" {
				secret = a.Config.Auth.JWTSecret
			}
			handler, err := server.New(server.Config{
				Engine:   a.Engine,
				Uploads:  a.Uploads,
				BasePath: basePath,
				Auth: server.AuthConfig{
					JWTSecret:              secret,
					AllowLegacyActorHeader: a.Config.Auth.AllowLegacyActorHeader,
					Log:                    a.Log,
				},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Taskdeck API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	a, err := app.Open(viper.GetString("workspace"), os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a.Engine)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
