package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"

	"github.com/antigravity-dev/planboard/internal/api"
	"github.com/antigravity-dev/planboard/internal/board"
	"github.com/antigravity-dev/planboard/internal/config"
	"github.com/antigravity-dev/planboard/internal/lockfile"
	"github.com/antigravity-dev/planboard/internal/planner"
	"github.com/antigravity-dev/planboard/internal/refresh"
	"github.com/antigravity-dev/planboard/internal/store"
	"github.com/antigravity-dev/planboard/internal/temporal"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, board refresh and (optionally) the Temporal worker",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

// eventLogger records every board event. Rollbacks are the failure notice
// a user sees, so they are logged at warn.
func eventLogger(logger *slog.Logger) board.Notifier {
	return board.NotifierFunc(func(e board.Event) {
		attrs := []any{"project", e.Project, "kind", e.Kind}
		if e.TaskID != "" {
			attrs = append(attrs, "task", e.TaskID)
		}
		if e.To != "" {
			attrs = append(attrs, "to", e.To)
		}
		if e.Err != nil {
			attrs = append(attrs, "error", e.Err)
		}
		if e.Kind == board.EventRolledBack {
			logger.Warn("board change rolled back", attrs...)
			return
		}
		logger.Debug("board event", attrs...)
	})
}

// newCoordinator wires one project's board. records handles moves in
// records mode; assignee mode always patches the task directly.
func newCoordinator(name string, proj config.Project, st *store.Store, records board.Reassigner, logger *slog.Logger) (*board.Coordinator, error) {
	var reassigner board.Reassigner = records
	if proj.Mode() == board.ModeAssignee {
		reassigner = board.AssigneeReassigner{Tasks: st.Tasks()}
	}
	return board.NewCoordinator(board.Options{
		Project:    name,
		Mode:       proj.Mode(),
		Source:     board.StoreSource{Store: st},
		Reassigner: reassigner,
		Patcher:    st.Tasks(),
		Notifier:   eventLogger(logger),
		Logger:     logger,
	})
}

func buildCoordinators(cfg *config.Config, st *store.Store, records board.Reassigner, logger *slog.Logger) ([]*board.Coordinator, error) {
	var coords []*board.Coordinator
	for _, name := range cfg.EnabledProjects() {
		c, err := newCoordinator(name, cfg.Projects[name], st, records, logger)
		if err != nil {
			return nil, fmt.Errorf("board for %s: %w", name, err)
		}
		coords = append(coords, c)
	}
	return coords, nil
}

// recordReassigner picks the records-mode backend: a durable workflow when
// Temporal is enabled, direct store writes otherwise.
func recordReassigner(a *app, tc client.Client) board.Reassigner {
	cfg := a.cfg.Get()
	if tc == nil {
		return board.RecordReassigner{Records: a.store}
	}
	return &temporal.Reassigner{
		Client:    tc,
		TaskQueue: cfg.Temporal.TaskQueue,
		Timeout:   cfg.Temporal.ReassignTimeout.Duration,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg.Get()
	logger := a.logger

	lock, err := lockfile.Acquire(config.ExpandHome(cfg.General.LockFile))
	if err != nil {
		return err
	}
	defer lock.Release()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	svc := planner.NewService(a.store.Tasks(), logger)

	var tc client.Client
	if cfg.Temporal.Enabled {
		c, err := temporal.Dial(cfg.Temporal, logger)
		if err != nil {
			return err
		}
		defer c.Close()
		w := temporal.NewWorker(c, cfg.Temporal, a.store, svc)
		if err := w.Start(); err != nil {
			return fmt.Errorf("start temporal worker: %w", err)
		}
		defer w.Stop()
		logger.Info("temporal worker started", "task_queue", cfg.Temporal.TaskQueue)
		tc = c
	}

	coords, err := buildCoordinators(cfg, a.store, recordReassigner(a, tc), logger)
	if err != nil {
		return err
	}
	for _, c := range coords {
		if _, err := c.Refresh(ctx); err != nil {
			logger.Warn("initial board load failed", "project", c.Project(), "error", err)
		}
	}

	if cfg.Refresh.Enabled {
		rs := refresh.NewService(cfg.Refresh.Schedule, logger)
		for _, c := range coords {
			rs.Add(c)
		}
		if err := rs.Start(ctx); err != nil {
			return err
		}
		defer rs.Stop()
	}

	apiSrv := api.NewServer(a.cfg, a.store, svc, coords, logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- apiSrv.Start(ctx)
	}()

	logger.Info("planboard running",
		"bind", cfg.API.Bind,
		"projects", cfg.EnabledProjects(),
		"temporal", cfg.Temporal.Enabled,
		"refresh", cfg.Refresh.Schedule,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	for {
		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("api server: %w", err)
			}
			return nil
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				reloaded, err := a.cfg.Reload()
				if err != nil {
					logger.Error("config reload failed", "path", a.cfg.Path(), "error", err)
					continue
				}
				logger = configureLogger(reloaded.General.LogLevel, devLogs)
				slog.SetDefault(logger)
				logger.Info("config reloaded; board and bind changes apply on restart")
				continue
			}
			shutdownStart := time.Now()
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			<-errCh
			logger.Info("planboard stopped", "shutdown_duration", time.Since(shutdownStart).String())
			return nil
		}
	}
}
