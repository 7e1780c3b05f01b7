// Package app wires the database, config and engine for a workspace.
package app

import (
	"database/sql"
	"io"
	"os"

	"github.com/rs/zerolog"

	"taskdeck/internal/config"
	"taskdeck/internal/db"
	"taskdeck/internal/engine"
	"taskdeck/internal/migrate"
	"taskdeck/internal/upload"
)

type App struct {
	DB      *sql.DB
	Config  *config.Config
	Engine  engine.Engine
	Uploads *upload.Store
	Log     zerolog.Logger
}

// Open prepares the workspace: ensures the data directory, opens the
// database, runs migrations and loads config.
func Open(workspace string, logOut io.Writer) (*App, error) {
	if logOut == nil {
		logOut = os.Stderr
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: logOut}).With().Timestamp().Logger()

	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		conn.Close()
		return nil, err
	}
	dir := cfg.Upload.Dir
	if dir == "" {
		dir = upload.DefaultDir(workspace)
	}
	uploads, err := upload.New(dir)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &App{
		DB:      conn,
		Config:  cfg,
		Engine:  engine.New(conn, cfg, log),
		Uploads: uploads,
		Log:     log,
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}
