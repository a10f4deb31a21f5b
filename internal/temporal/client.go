package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"

	"github.com/antigravity-dev/planboard/internal/board"
	"github.com/antigravity-dev/planboard/internal/config"
	"github.com/antigravity-dev/planboard/internal/store"
)

// Dial connects to the Temporal frontend described by cfg.
func Dial(cfg config.Temporal, logger *slog.Logger) (client.Client, error) {
	opts := client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
	}
	if logger != nil {
		opts.Logger = tlog.NewStructuredLogger(logger)
	}
	c, err := client.Dial(opts)
	if err != nil {
		return nil, fmt.Errorf("temporal: dial %s: %w", cfg.HostPort, err)
	}
	return c, nil
}

// Reassigner runs each board move as a ReassignWorkflow and waits for it.
type Reassigner struct {
	Client    client.Client
	TaskQueue string
	Timeout   time.Duration
}

var _ board.Reassigner = (*Reassigner)(nil)

func (r *Reassigner) Reassign(ctx context.Context, project, taskID, memberID string) ([]store.Assignment, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	run, err := r.Client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                       fmt.Sprintf("reassign-%s-%s", taskID, uuid.NewString()),
		TaskQueue:                r.taskQueue(),
		WorkflowExecutionTimeout: r.Timeout,
	}, ReassignWorkflow, ReassignRequest{Project: project, TaskID: taskID, MemberID: memberID})
	if err != nil {
		return nil, fmt.Errorf("start reassign workflow: %w", err)
	}

	var result ReassignResult
	if err := run.Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("reassign workflow %s: %w", run.GetID(), err)
	}
	return result.Records, nil
}

func (r *Reassigner) taskQueue() string {
	if r.TaskQueue == "" {
		return DefaultTaskQueue
	}
	return r.TaskQueue
}

// StartRecalculate starts a RecalculateWorkflow for the project. Only one runs
// per project at a time; if one is already running it returns started=false.
func StartRecalculate(ctx context.Context, c client.Client, taskQueue string, req RecalculateRequest) (started bool, err error) {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	_, err = c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                                       RecalculateWorkflowID(req.Project),
		TaskQueue:                                taskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, RecalculateWorkflow, req)
	if err != nil {
		var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &alreadyStarted) {
			return false, nil
		}
		return false, fmt.Errorf("start recalculate workflow: %w", err)
	}
	return true, nil
}

// RecalculateWorkflowID is the fixed workflow id for a project's recalculation.
func RecalculateWorkflowID(project string) string {
	return "recalculate-" + project
}
