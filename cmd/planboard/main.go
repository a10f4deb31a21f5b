package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/antigravity-dev/planboard/internal/config"
	"github.com/antigravity-dev/planboard/internal/store"
)

var (
	configPath string
	devLogs    bool
)

var rootCmd = &cobra.Command{
	Use:           "planboard",
	Short:         "planboard - task schedules and assignment boards",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "planboard.toml", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&devLogs, "dev", false, "use text log format (default is JSON)")

	rootCmd.AddCommand(serveCmd, scheduleCmd, boardCmd, moveCmd, importCmd, exportCmd, workerCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func configureLogger(logLevel string, useDev bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if useDev {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// app is the state shared by every subcommand.
type app struct {
	cfg    *config.Manager
	logger *slog.Logger
	store  *store.Store
}

func openApp() (*app, error) {
	mgr, err := config.Open(configPath)
	if err != nil {
		return nil, err
	}
	cfg := mgr.Get()

	logger := configureLogger(cfg.General.LogLevel, devLogs)
	slog.SetDefault(logger)

	dbPath := config.ExpandHome(cfg.General.StateDB)
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", dbPath, err)
	}
	return &app{cfg: mgr, logger: logger, store: st}, nil
}

func (a *app) Close() {
	a.store.Close()
}

// project looks a project up in the live config.
func (a *app) project(name string) (config.Project, error) {
	proj, ok := a.cfg.Get().Projects[name]
	if !ok {
		return config.Project{}, fmt.Errorf("project %q is not configured", name)
	}
	return proj, nil
}
