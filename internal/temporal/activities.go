package temporal

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/antigravity-dev/planboard/internal/graph"
	"github.com/antigravity-dev/planboard/internal/planner"
	"github.com/antigravity-dev/planboard/internal/store"
)

// Activities holds dependencies for Temporal activity methods.
type Activities struct {
	Store   *store.Store
	Planner *planner.Service
}

// ListTaskAssignmentsActivity returns the current records of a task.
func (a *Activities) ListTaskAssignmentsActivity(ctx context.Context, taskID string) ([]store.Assignment, error) {
	return a.Store.ListTaskAssignments(ctx, taskID)
}

// DeleteAssignmentActivity removes one record. A record that is already gone
// counts as deleted so retries are safe.
func (a *Activities) DeleteAssignmentActivity(ctx context.Context, id string) error {
	logger := activity.GetLogger(ctx)
	err := a.Store.DeleteAssignment(ctx, id)
	if errors.Is(err, store.ErrAssignmentNotFound) {
		logger.Info("assignment already deleted", "AssignmentID", id)
		return nil
	}
	return err
}

// CreateAssignmentActivity binds a task to a member.
func (a *Activities) CreateAssignmentActivity(ctx context.Context, taskID, memberID string) (store.Assignment, error) {
	created, err := a.Store.CreateAssignment(ctx, taskID, memberID)
	if err != nil {
		return store.Assignment{}, err
	}
	activity.GetLogger(ctx).Info("assignment created", "TaskID", taskID, "MemberID", memberID, "AssignmentID", created.ID)
	return created, nil
}

// RestoreAssignmentsActivity re-inserts records deleted by a reassignment
// that could not finish. Records that still exist are skipped.
func (a *Activities) RestoreAssignmentsActivity(ctx context.Context, records []store.Assignment) (int, error) {
	logger := activity.GetLogger(ctx)
	existing := make(map[string]struct{})
	for _, r := range records {
		current, err := a.Store.ListTaskAssignments(ctx, r.TaskID)
		if err != nil {
			return 0, fmt.Errorf("list assignments for %s: %w", r.TaskID, err)
		}
		for _, c := range current {
			existing[c.ID] = struct{}{}
		}
	}

	restored := 0
	for _, r := range records {
		if _, ok := existing[r.ID]; ok {
			continue
		}
		if err := a.Store.RestoreAssignment(ctx, r); err != nil {
			return restored, err
		}
		restored++
	}
	logger.Info("assignments restored", "Count", restored)
	return restored, nil
}

// RecalculateActivity propagates start times for one project and persists
// the changes.
func (a *Activities) RecalculateActivity(ctx context.Context, req RecalculateRequest) (RecalculateResult, error) {
	if _, err := graph.ParseClock(req.ProjectStart); err != nil {
		return RecalculateResult{}, temporal.NewNonRetryableApplicationError("invalid project start", "InvalidProjectStart", err)
	}
	sched, err := a.Planner.Recalculate(ctx, req.Project, graph.PropagateOptions{
		StartTaskID:  req.StartTaskID,
		ProjectStart: req.ProjectStart,
	})
	if err != nil {
		return RecalculateResult{}, err
	}
	activity.GetLogger(ctx).Info("project recalculated", "Project", req.Project, "Changes", len(sched.Changes))
	return RecalculateResult{Changes: sched.Changes, Anomalies: sched.Anomalies, Slots: len(sched.Slots)}, nil
}
