package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bioplatforms/bpaworkflow/internal/api"
	"github.com/bioplatforms/bpaworkflow/internal/config"
	"github.com/bioplatforms/bpaworkflow/internal/dispatch"
	"github.com/bioplatforms/bpaworkflow/internal/events"
	"github.com/bioplatforms/bpaworkflow/internal/lock"
	"github.com/bioplatforms/bpaworkflow/internal/log"
	"github.com/bioplatforms/bpaworkflow/internal/scheduler"
	"github.com/bioplatforms/bpaworkflow/internal/storage"
	"github.com/bioplatforms/bpaworkflow/internal/webhook"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and stage workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, g)
		},
	}
}

func pidLockPath(cfg *config.Config) string {
	return filepath.Join(filepath.Dir(cfg.State.Path), "bpaworkflow.lock")
}

func runServe(ctx context.Context, g *globalFlags) error {
	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg
	logger := log.WithComponent("main")

	configHash, err := config.ComputeBlake3Hash(mustResolve(a.configPath))
	if err != nil {
		logger.Warn("failed to hash config", "error", err)
	}
	logger.Info("bpaworkflow starting", "version", version, "config", a.configPath, "config_hash", config.ShortHash(configHash))

	pidLock, err := lock.AcquirePIDLock(pidLockPath(cfg))
	if err != nil {
		return fmt.Errorf("acquire PID lock %s: %w", pidLockPath(cfg), err)
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLock.Path())

	if err := storage.CheckLocalFilesystem("staging.dir", cfg.Staging.Dir); err != nil {
		return err
	}
	for _, name := range a.importers.Names() {
		logger.Info("importer registered", "importer", name)
	}

	hub := events.NewHub(256)
	disp := dispatch.New(a.queue, a.orch, hub, cfg.Dispatch)
	sched := scheduler.New(scheduler.ConfigFrom(cfg), a.stager, a.queue, hub)

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	// Workers, housekeeping and the API server finish before the database
	// closes.
	defer func() {
		cancel()
		sched.Stop()
		wg.Wait()
	}()
	sched.Start(ctx)
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := disp.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("dispatcher: %w", err)
		}
	}()

	if len(cfg.Webhooks) > 0 {
		notifier := webhook.New(webhook.EndpointsFrom(cfg.Webhooks), a.store, nil)
		wg.Add(1)
		go func() {
			defer wg.Done()
			notifier.Run(ctx, hub)
		}()
		logger.Info("webhook notifications enabled", "endpoints", len(cfg.Webhooks))
	}

	if cfg.API.Enabled {
		apiServer := api.New(api.Config{
			Listen:         cfg.API.Listen,
			MaxUploadBytes: cfg.Staging.MaxUploadBytes,
			SubmitRate:     cfg.API.SubmitRate,
			SubmitBurst:    cfg.API.SubmitBurst,
		}, a.orch, a.importers, a.queue, hub)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := apiServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	logger.Info("bpaworkflow running (press Ctrl+C to stop)")

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		return err
	}

	logger.Info("bpaworkflow stopped")
	return nil
}

func mustResolve(path string) string {
	resolved, err := config.ResolvePath(path)
	if err != nil {
		return path
	}
	return resolved
}
