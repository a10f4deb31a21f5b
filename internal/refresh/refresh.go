// Package refresh periodically re-fetches boards so changes made by other
// users show up without a push channel.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// Target is a board that can reload itself. Refresh returns false when it
// skipped the reload, for example while a move is pending.
type Target interface {
	Project() string
	Refresh(ctx context.Context) (bool, error)
}

// Service runs Refresh on every target on a cron schedule.
type Service struct {
	schedule string
	logger   *slog.Logger

	mu      sync.Mutex
	targets []Target
	cron    *rcron.Cron
	stopCh  chan struct{}
}

func NewService(schedule string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{schedule: schedule, logger: logger.With("component", "refresh")}
}

// Add registers a target. Safe to call while running.
func (s *Service) Add(t Target) {
	s.mu.Lock()
	s.targets = append(s.targets, t)
	s.mu.Unlock()
}

// Start schedules refreshes and stops them when ctx is done.
func (s *Service) Start(ctx context.Context) error {
	c := rcron.New(rcron.WithChain(rcron.SkipIfStillRunning(rcron.DiscardLogger)))
	if _, err := c.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("refresh: schedule %q: %w", s.schedule, err)
	}

	stopCh := make(chan struct{})
	s.mu.Lock()
	s.cron = c
	s.stopCh = stopCh
	s.mu.Unlock()

	c.Start()
	s.logger.Info("refresh started", "schedule", s.schedule)

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-stopCh:
		}
	}()
	return nil
}

// Stop halts the schedule and waits briefly for a running refresh.
func (s *Service) Stop() {
	s.mu.Lock()
	c, stopCh := s.cron, s.stopCh
	s.cron, s.stopCh = nil, nil
	s.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
	if c == nil {
		return
	}
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		s.logger.Warn("stop timeout waiting for running refresh")
	}
	s.logger.Info("refresh stopped")
}

// RunOnce refreshes every target and returns how many actually reloaded.
func (s *Service) RunOnce(ctx context.Context) int {
	s.mu.Lock()
	targets := append([]Target(nil), s.targets...)
	s.mu.Unlock()

	refreshed := 0
	for _, t := range targets {
		ok, err := t.Refresh(ctx)
		switch {
		case err != nil:
			s.logger.Error("board refresh failed", "project", t.Project(), "error", err)
		case ok:
			refreshed++
		default:
			s.logger.Debug("board refresh skipped", "project", t.Project())
		}
	}
	return refreshed
}
