package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/antigravity-dev/planboard/internal/board"
	"github.com/antigravity-dev/planboard/internal/store"
)

// ReassignWorkflow replaces every assignment record of a task with one for
// the target member:
//
//  1. LIST     current records of the task
//  2. CLEAR    delete each record
//  3. ASSIGN   create the new record (skipped for the unassigned column)
//  4. RESTORE  if 2 or 3 fails, put back what was deleted and fail
//
// The backend is never left with the task half moved.
func ReassignWorkflow(ctx workflow.Context, req ReassignRequest) (ReassignResult, error) {
	logger := workflow.GetLogger(ctx)

	storeOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	}
	createOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1}, // create is not idempotent
	}
	restoreOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 5},
	}

	var a *Activities
	storeCtx := workflow.WithActivityOptions(ctx, storeOpts)

	var existing []store.Assignment
	if err := workflow.ExecuteActivity(storeCtx, a.ListTaskAssignmentsActivity, req.TaskID).Get(ctx, &existing); err != nil {
		return ReassignResult{}, fmt.Errorf("list assignments: %w", err)
	}

	deleted := make([]store.Assignment, 0, len(existing))
	var failure error
	for _, rec := range existing {
		if err := workflow.ExecuteActivity(storeCtx, a.DeleteAssignmentActivity, rec.ID).Get(ctx, nil); err != nil {
			failure = fmt.Errorf("delete assignment %s: %w", rec.ID, err)
			break
		}
		deleted = append(deleted, rec)
	}

	var created store.Assignment
	if failure == nil && req.MemberID != board.Unassigned {
		createCtx := workflow.WithActivityOptions(ctx, createOpts)
		if err := workflow.ExecuteActivity(createCtx, a.CreateAssignmentActivity, req.TaskID, req.MemberID).Get(ctx, &created); err != nil {
			failure = fmt.Errorf("create assignment: %w", err)
		}
	}

	if failure != nil {
		logger.Warn("Reassignment failed, restoring records", "TaskID", req.TaskID, "Deleted", len(deleted), "error", failure)
		if len(deleted) > 0 {
			restoreCtx := workflow.WithActivityOptions(ctx, restoreOpts)
			var restored int
			if err := workflow.ExecuteActivity(restoreCtx, a.RestoreAssignmentsActivity, deleted).Get(ctx, &restored); err != nil {
				logger.Error("Restore failed, assignments lost", "TaskID", req.TaskID, "error", err)
				return ReassignResult{}, fmt.Errorf("%w (restore also failed: %v)", failure, err)
			}
		}
		return ReassignResult{}, failure
	}

	result := ReassignResult{Records: []store.Assignment{}, Removed: len(deleted)}
	if req.MemberID != board.Unassigned {
		result.Records = append(result.Records, created)
	}
	logger.Info("Task reassigned", "TaskID", req.TaskID, "MemberID", req.MemberID, "Removed", len(deleted))
	return result, nil
}

// RecalculateWorkflow runs the time propagator for one project as a durable
// job so the write-back survives a crashed caller.
func RecalculateWorkflow(ctx workflow.Context, req RecalculateRequest) (RecalculateResult, error) {
	opts := workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	}
	var a *Activities

	var result RecalculateResult
	if err := workflow.ExecuteActivity(workflow.WithActivityOptions(ctx, opts), a.RecalculateActivity, req).Get(ctx, &result); err != nil {
		return RecalculateResult{}, fmt.Errorf("recalculate %s: %w", req.Project, err)
	}
	workflow.GetLogger(ctx).Info("Recalculation complete", "Project", req.Project, "Changes", len(result.Changes), "Anomalies", len(result.Anomalies))
	return result, nil
}
