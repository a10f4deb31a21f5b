// Package planner recalculates a project's schedule from its stored tasks and
// edges and writes changed start times back.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/antigravity-dev/planboard/internal/graph"
)

// TaskStore is the task query and mutation surface the planner needs.
type TaskStore interface {
	ListTasks(ctx context.Context, project string) ([]graph.Task, error)
	ListEdges(ctx context.Context, project string) ([]graph.Edge, error)
	SetStartTimes(ctx context.Context, changes []graph.Change) error
}

// Service runs the time propagator against stored project data.
type Service struct {
	tasks  TaskStore
	logger *slog.Logger
}

func NewService(tasks TaskStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{tasks: tasks, logger: logger.With("component", "planner")}
}

// Recalculate loads the project, propagates start times and persists only the
// tasks whose start time changed. Graph anomalies are returned on the
// schedule, never as an error.
func (s *Service) Recalculate(ctx context.Context, project string, opts graph.PropagateOptions) (graph.Schedule, error) {
	tasks, err := s.tasks.ListTasks(ctx, project)
	if err != nil {
		return graph.Schedule{}, fmt.Errorf("planner: load tasks for %s: %w", project, err)
	}
	edges, err := s.tasks.ListEdges(ctx, project)
	if err != nil {
		return graph.Schedule{}, fmt.Errorf("planner: load edges for %s: %w", project, err)
	}

	sched, err := graph.Propagate(tasks, edges, opts)
	if err != nil {
		return graph.Schedule{}, fmt.Errorf("planner: propagate %s: %w", project, err)
	}

	for _, a := range sched.Anomalies {
		s.logger.Warn("graph anomaly skipped", "project", project, "kind", a.Kind, "from", a.From, "to", a.To)
	}

	if len(sched.Changes) == 0 {
		s.logger.Debug("schedule unchanged", "project", project, "tasks", len(tasks))
		return sched, nil
	}
	if err := s.tasks.SetStartTimes(ctx, sched.Changes); err != nil {
		return graph.Schedule{}, fmt.Errorf("planner: write start times for %s: %w", project, err)
	}
	s.logger.Info("schedule recalculated", "project", project, "tasks", len(tasks), "changed", len(sched.Changes))
	return sched, nil
}

// Session is per-project state for one client. It remembers whether the
// initial schedule has been computed so opening the same project again does
// not repeat it.
type Session struct {
	Project string
	Options graph.PropagateOptions

	mu        sync.Mutex
	scheduled bool
}

func NewSession(project string, opts graph.PropagateOptions) *Session {
	return &Session{Project: project, Options: opts}
}

// Scheduled reports whether the initial schedule already ran.
func (s *Session) Scheduled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduled
}

// EnsureScheduled runs the initial recalculation once. It returns false
// without doing anything when a previous call already succeeded; a failed
// attempt leaves the flag unset so the next call retries.
func (s *Session) EnsureScheduled(ctx context.Context, svc *Service) (graph.Schedule, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduled {
		return graph.Schedule{}, false, nil
	}
	sched, err := svc.Recalculate(ctx, s.Project, s.Options)
	if err != nil {
		return graph.Schedule{}, false, err
	}
	s.scheduled = true
	return sched, true, nil
}

// Reset clears the flag, for example after a plan import replaced the tasks.
func (s *Session) Reset() {
	s.mu.Lock()
	s.scheduled = false
	s.mu.Unlock()
}
