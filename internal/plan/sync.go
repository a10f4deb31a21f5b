package plan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/antigravity-dev/planboard/internal/graph"
	"github.com/antigravity-dev/planboard/internal/store"
	"github.com/antigravity-dev/planboard/internal/team"
)

// Report summarizes an import. Warnings list entries that were skipped
// without failing the import, such as dependencies on unknown keys.
type Report struct {
	Created     int      `json:"created"`
	Updated     int      `json:"updated"`
	Edges       int      `json:"edges"`
	Members     int      `json:"members"`
	Assignments int      `json:"assignments"`
	Warnings    []string `json:"warnings,omitempty"`
}

func (r *Report) warn(logger *slog.Logger, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.Warnings = append(r.Warnings, msg)
	logger.Warn("plan import", "warning", msg)
}

// Import writes doc into the store. Re-importing the same document is safe:
// tasks are updated in place, edges and assignment records are only added
// when missing.
func Import(ctx context.Context, st *store.Store, doc Document, logger *slog.Logger) (Report, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("project", doc.Project)
	if err := doc.Validate(); err != nil {
		return Report{}, err
	}

	var report Report
	project := strings.TrimSpace(doc.Project)

	for _, m := range doc.Members {
		if _, err := st.Roster().AddMember(ctx, team.Member{ID: m.ID, Project: project, Name: m.Name}); err != nil {
			return report, err
		}
		report.Members++
	}

	for _, t := range doc.Tasks {
		created, err := upsertTask(ctx, st.Tasks(), project, t)
		if err != nil {
			return report, err
		}
		if created {
			report.Created++
		} else {
			report.Updated++
		}
	}

	keys := make(map[string]struct{}, len(doc.Tasks))
	for _, t := range doc.Tasks {
		keys[strings.TrimSpace(t.Key)] = struct{}{}
	}
	existing, err := st.Tasks().ListTasks(ctx, project)
	if err != nil {
		return report, err
	}
	for _, t := range existing {
		keys[t.ID] = struct{}{}
	}
	edges, err := st.Tasks().ListEdges(ctx, project)
	if err != nil {
		return report, err
	}
	linked := make(map[graph.Edge]struct{}, len(edges))
	for _, e := range edges {
		linked[graph.Edge{From: e.From, To: e.To}] = struct{}{}
	}

	for _, t := range doc.Tasks {
		to := strings.TrimSpace(t.Key)
		for _, dep := range t.DependsOn {
			from := strings.TrimSpace(dep)
			if _, ok := keys[from]; !ok {
				report.warn(logger, "task %q depends on unknown key %q", to, from)
				continue
			}
			if from == to {
				report.warn(logger, "task %q depends on itself", to)
				continue
			}
			edge := graph.Edge{From: from, To: to}
			if _, dup := linked[edge]; dup {
				continue
			}
			if err := st.Tasks().AddEdge(ctx, from, to); err != nil {
				return report, fmt.Errorf("plan: edge %s -> %s: %w", from, to, err)
			}
			linked[edge] = struct{}{}
			report.Edges++
		}
	}

	members, err := st.Roster().ListMembers(ctx, project)
	if err != nil {
		return report, err
	}
	for _, t := range doc.Tasks {
		if len(t.Assignees) == 0 {
			continue
		}
		key := strings.TrimSpace(t.Key)
		current, err := st.ListTaskAssignments(ctx, key)
		if err != nil {
			return report, err
		}
		have := make(map[string]struct{}, len(current))
		for _, rec := range current {
			have[rec.MemberID] = struct{}{}
		}
		for _, label := range t.Assignees {
			m, ok := team.Resolve(members, label)
			if !ok {
				report.warn(logger, "task %q assigned to unknown member %q", key, label)
				continue
			}
			if _, dup := have[m.ID]; dup {
				continue
			}
			if _, err := st.CreateAssignment(ctx, key, m.ID); err != nil {
				return report, err
			}
			have[m.ID] = struct{}{}
			report.Assignments++
		}
	}

	logger.Info("plan imported",
		"created", report.Created,
		"updated", report.Updated,
		"edges", report.Edges,
		"assignments", report.Assignments,
		"warnings", len(report.Warnings))
	return report, nil
}

func upsertTask(ctx context.Context, dag *graph.DAG, project string, t Task) (bool, error) {
	key := strings.TrimSpace(t.Key)
	current, err := dag.GetTask(ctx, key)
	switch {
	case errors.Is(err, graph.ErrTaskNotFound):
		_, err := dag.CreateTask(ctx, graph.Task{
			ID:            key,
			Project:       project,
			Title:         t.Title,
			Category:      graph.Category(t.Category),
			Completed:     t.Completed,
			DurationHours: t.Duration,
			StartTime:     t.StartTime,
		})
		if err != nil {
			return false, fmt.Errorf("plan: task %q: %w", key, err)
		}
		return true, nil
	case err != nil:
		return false, err
	}

	if current.Project != project {
		return false, fmt.Errorf("plan: task %q already belongs to project %q", key, current.Project)
	}
	fields := map[string]any{
		"title":          t.Title,
		"category":       t.Category,
		"completed":      t.Completed,
		"duration_hours": t.Duration,
	}
	if t.StartTime != "" {
		fields["start_time"] = t.StartTime
	}
	if err := dag.UpdateTask(ctx, key, fields); err != nil {
		return false, fmt.Errorf("plan: task %q: %w", key, err)
	}
	return false, nil
}

// Export reads a project back into a Document. Dependencies and assignees
// keep store order, so an export round-trips through Import unchanged.
func Export(ctx context.Context, st *store.Store, project string) (Document, error) {
	tasks, err := st.Tasks().ListTasks(ctx, project)
	if err != nil {
		return Document{}, err
	}
	edges, err := st.Tasks().ListEdges(ctx, project)
	if err != nil {
		return Document{}, err
	}
	records, err := st.ListAssignments(ctx, project)
	if err != nil {
		return Document{}, err
	}
	members, err := st.Roster().ListMembers(ctx, project)
	if err != nil {
		return Document{}, err
	}

	deps := make(map[string][]string)
	for _, e := range edges {
		deps[e.To] = append(deps[e.To], e.From)
	}
	assignees := make(map[string][]string)
	for _, rec := range records {
		assignees[rec.TaskID] = append(assignees[rec.TaskID], rec.MemberID)
	}

	doc := Document{Project: project}
	for _, m := range members {
		name := m.Name
		if name == m.ID {
			name = ""
		}
		doc.Members = append(doc.Members, Member{ID: m.ID, Name: name})
	}
	for _, t := range tasks {
		doc.Tasks = append(doc.Tasks, Task{
			Key:       t.ID,
			Title:     t.Title,
			Category:  string(t.Category),
			Duration:  t.DurationHours,
			Completed: t.Completed,
			StartTime: t.StartTime,
			DependsOn: deps[t.ID],
			Assignees: assignees[t.ID],
		})
	}
	return doc, nil
}
