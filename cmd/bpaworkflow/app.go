package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bioplatforms/bpaworkflow/internal/config"
	"github.com/bioplatforms/bpaworkflow/internal/importer"
	"github.com/bioplatforms/bpaworkflow/internal/jobstate"
	"github.com/bioplatforms/bpaworkflow/internal/log"
	"github.com/bioplatforms/bpaworkflow/internal/pipeline"
	"github.com/bioplatforms/bpaworkflow/internal/queue"
	"github.com/bioplatforms/bpaworkflow/internal/snapshot"
	"github.com/bioplatforms/bpaworkflow/internal/staging"
	"github.com/bioplatforms/bpaworkflow/internal/storage"
)

// app holds the components shared by serve and the offline commands.
type app struct {
	cfg        *config.Config
	configPath string
	db         *sql.DB
	store      *jobstate.Store
	queue      *queue.Queue
	importers  *importer.Registry
	stager     *staging.Manager
	orch       *pipeline.Orchestrator
}

// loadConfig resolves, loads and applies logging settings from the config.
func loadConfig(g *globalFlags) (*config.Config, string, error) {
	path := g.configPath
	if path == "" {
		discovered, err := config.Discover()
		if err != nil {
			return nil, "", err
		}
		path = discovered
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}

	level := cfg.Service.LogLevel
	if g.logLevel != "" {
		level = g.logLevel
	}
	log.Setup(level, cfg.Service.LogFormat)
	return cfg, path, nil
}

// openApp loads the config and opens the state database. The caller must
// Close the app.
func openApp(ctx context.Context, g *globalFlags) (*app, error) {
	cfg, path, err := loadConfig(g)
	if err != nil {
		return nil, err
	}

	registry, err := importer.FromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("load importers: %w", err)
	}
	stager, err := staging.NewManager(cfg.Staging.Dir)
	if err != nil {
		return nil, fmt.Errorf("initialize staging: %w", err)
	}
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}

	a := &app{
		cfg:        cfg,
		configPath: path,
		db:         db,
		store:      jobstate.NewStore(db),
		queue:      queue.New(db),
		importers:  registry,
		stager:     stager,
	}
	a.orch = pipeline.New(a.store, a.queue, registry, stager,
		snapshot.NewBuilder(cfg.Dispatch.FetchTimeout), cfg.Staging.MaxUploadBytes)
	return a, nil
}

func (a *app) Close() error {
	return a.db.Close()
}
