// Package config loads and validates the planboard TOML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"

	"github.com/antigravity-dev/planboard/internal/board"
	"github.com/antigravity-dev/planboard/internal/graph"
)

// Duration is a time.Duration that unmarshals from TOML strings like "60s" or "2m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Config struct {
	General  General            `toml:"general"`
	Projects map[string]Project `toml:"projects"`
	API      API                `toml:"api"`
	Temporal Temporal           `toml:"temporal"`
	Refresh  Refresh            `toml:"refresh"`
}

type General struct {
	LogLevel string `toml:"log_level"`
	StateDB  string `toml:"state_db"`
	LockFile string `toml:"lock_file"`
}

type Project struct {
	Enabled   bool   `toml:"enabled"`
	StartTime string `toml:"start_time"` // HH:MM anchor for the start task (default "09:00")
	StartTask string `toml:"start_task"` // id of the designated start node (default "start")
	BoardMode string `toml:"board_mode"` // "records" (default) or "assignee"
}

// PropagateOptions returns the scheduling inputs for this project.
func (p Project) PropagateOptions() graph.PropagateOptions {
	return graph.PropagateOptions{StartTaskID: p.StartTask, ProjectStart: p.StartTime}
}

// Mode returns the parsed board mode.
func (p Project) Mode() board.Mode {
	m, _ := board.ParseMode(p.BoardMode)
	return m
}

type API struct {
	Bind string `toml:"bind"`
}

type Temporal struct {
	Enabled         bool     `toml:"enabled"`
	HostPort        string   `toml:"host_port"`
	Namespace       string   `toml:"namespace"`
	TaskQueue       string   `toml:"task_queue"`
	ReassignTimeout Duration `toml:"reassign_timeout"`
}

type Refresh struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // robfig cron spec, e.g. "@every 30s"
}

// Load reads and validates a planboard TOML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.StateDB == "" {
		cfg.General.StateDB = "~/.planboard/planboard.db"
	}
	if cfg.General.LockFile == "" {
		cfg.General.LockFile = "/tmp/planboard.lock"
	}

	if cfg.API.Bind == "" {
		cfg.API.Bind = "127.0.0.1:8950"
	}

	if cfg.Temporal.HostPort == "" {
		cfg.Temporal.HostPort = "127.0.0.1:7233"
	}
	if cfg.Temporal.Namespace == "" {
		cfg.Temporal.Namespace = "default"
	}
	if cfg.Temporal.TaskQueue == "" {
		cfg.Temporal.TaskQueue = "planboard-task-queue"
	}
	if cfg.Temporal.ReassignTimeout.Duration == 0 {
		cfg.Temporal.ReassignTimeout.Duration = 30 * time.Second
	}

	if cfg.Refresh.Schedule == "" {
		cfg.Refresh.Schedule = "@every 30s"
	}

	for name, project := range cfg.Projects {
		if project.StartTime == "" {
			project.StartTime = "09:00"
		}
		if project.StartTask == "" {
			project.StartTask = "start"
		}
		if project.BoardMode == "" {
			project.BoardMode = string(board.ModeRecords)
		}
		cfg.Projects[name] = project
	}
}

func validate(cfg *Config) error {
	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", cfg.General.LogLevel)
	}

	hasEnabled := false
	for name, p := range cfg.Projects {
		if p.Enabled {
			hasEnabled = true
		}
		if _, err := graph.ParseClock(p.StartTime); err != nil {
			return fmt.Errorf("project %q start_time: %w", name, err)
		}
		if _, ok := board.ParseMode(p.BoardMode); !ok {
			return fmt.Errorf("project %q has unknown board_mode %q", name, p.BoardMode)
		}
	}
	if !hasEnabled {
		return fmt.Errorf("at least one project must be enabled")
	}

	if _, err := cron.ParseStandard(cfg.Refresh.Schedule); err != nil {
		return fmt.Errorf("refresh schedule %q: %w", cfg.Refresh.Schedule, err)
	}

	if cfg.General.StateDB != "" {
		dir := ExpandHome(filepath.Dir(cfg.General.StateDB))
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("state_db directory %q does not exist: %w", dir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("state_db parent path %q is not a directory", dir)
		}
	}

	return nil
}

// EnabledProjects returns the names of enabled projects, sorted.
func (c *Config) EnabledProjects() []string {
	names := make([]string, 0, len(c.Projects))
	for name, p := range c.Projects {
		if p.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if len(path) == 0 {
		return path
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}

// Clone returns a deep copy of the config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	if c.Projects != nil {
		out.Projects = make(map[string]Project, len(c.Projects))
		for name, p := range c.Projects {
			out.Projects[name] = p
		}
	}
	return &out
}
