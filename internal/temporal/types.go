package temporal

import (
	"github.com/antigravity-dev/planboard/internal/graph"
	"github.com/antigravity-dev/planboard/internal/store"
)

// DefaultTaskQueue is used when no task queue is configured.
const DefaultTaskQueue = "planboard-task-queue"

// ReassignRequest moves one task to a single member, or clears it when
// MemberID is the unassigned column key.
type ReassignRequest struct {
	Project  string `json:"project"`
	TaskID   string `json:"task_id"`
	MemberID string `json:"member_id"`
}

// ReassignResult is the task's assignment state after the workflow.
type ReassignResult struct {
	Records []store.Assignment `json:"records"`
	Removed int                `json:"removed"`
}

// RecalculateRequest schedules one project.
type RecalculateRequest struct {
	Project      string `json:"project"`
	StartTaskID  string `json:"start_task_id"`
	ProjectStart string `json:"project_start"`
}

// RecalculateResult carries what changed and which edges were ignored.
type RecalculateResult struct {
	Changes   []graph.Change  `json:"changes"`
	Anomalies []graph.Anomaly `json:"anomalies"`
	Slots     int             `json:"slots"`
}
