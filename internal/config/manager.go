package config

import (
	"errors"
	"sync/atomic"
)

// Source hands out the live configuration.
type Source interface {
	Get() *Config
}

// Manager holds the live configuration together with the file it came from.
// Each stored value is a private copy, so a *Config returned by Get is never
// written to and can be read without locking.
type Manager struct {
	path    string
	current atomic.Pointer[Config]
}

// NewManager wraps cfg without a backing file; Reload on it fails.
func NewManager(cfg *Config) *Manager {
	m := &Manager{}
	m.current.Store(cfg.Clone())
	return m
}

// Open loads path and returns a manager that reloads from it.
func Open(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.current.Store(cfg)
	return m, nil
}

// Path is the file Reload reads, or "" for an in-memory manager.
func (m *Manager) Path() string { return m.path }

func (m *Manager) Get() *Config { return m.current.Load() }

// Reload re-reads the backing file. A file that fails to load or validate
// leaves the current config in place.
func (m *Manager) Reload() (*Config, error) {
	if m.path == "" {
		return nil, errors.New("config: manager has no file to reload")
	}
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.current.Store(cfg)
	return cfg, nil
}

var _ Source = (*Manager)(nil)
