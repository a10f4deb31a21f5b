package temporal

import (
	"log/slog"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/antigravity-dev/planboard/internal/config"
	"github.com/antigravity-dev/planboard/internal/planner"
	"github.com/antigravity-dev/planboard/internal/store"
)

// NewWorker builds a worker on the configured task queue with every planboard
// workflow and activity registered.
func NewWorker(c client.Client, cfg config.Temporal, st *store.Store, svc *planner.Service) worker.Worker {
	queue := cfg.TaskQueue
	if queue == "" {
		queue = DefaultTaskQueue
	}
	w := worker.New(c, queue, worker.Options{})

	acts := &Activities{Store: st, Planner: svc}

	w.RegisterWorkflow(ReassignWorkflow)
	w.RegisterWorkflow(RecalculateWorkflow)

	w.RegisterActivity(acts.ListTaskAssignmentsActivity)
	w.RegisterActivity(acts.DeleteAssignmentActivity)
	w.RegisterActivity(acts.CreateAssignmentActivity)
	w.RegisterActivity(acts.RestoreAssignmentsActivity)
	w.RegisterActivity(acts.RecalculateActivity)

	return w
}

// StartWorker connects to Temporal and runs the planboard worker until
// interrupted.
func StartWorker(cfg config.Temporal, st *store.Store, svc *planner.Service, logger *slog.Logger) error {
	c, err := Dial(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	w := NewWorker(c, cfg, st, svc)
	logger.Info("temporal worker started", "task_queue", cfg.TaskQueue, "namespace", cfg.Namespace)
	return w.Run(worker.InterruptCh())
}
