package graph

import "fmt"

// PropagateOptions anchors a schedule run.
type PropagateOptions struct {
	// StartTaskID is the designated start node. Only this root is pinned to
	// ProjectStart; other roots keep whatever start time they already had.
	StartTaskID string
	// ProjectStart is the operator-configured HH:MM start of the project.
	ProjectStart string
}

// Slot is the computed window of one task.
type Slot struct {
	TaskID       string `json:"task_id"`
	Start        string `json:"start"`
	End          string `json:"end"`
	StartMinutes int    `json:"start_minutes"`
	EndMinutes   int    `json:"end_minutes"`
	RolledOver   bool   `json:"rolled_over,omitempty"`
}

// Change is a start time that differs from the stored value.
type Change struct {
	TaskID string `json:"task_id"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// Schedule is the output of one propagation pass.
type Schedule struct {
	Order     []string  `json:"order"`
	Slots     []Slot    `json:"slots"`
	Changes   []Change  `json:"changes"`
	Anomalies []Anomaly `json:"anomalies,omitempty"`
	// Tasks mirrors the input slice with StartTime updated.
	Tasks []Task `json:"-"`
}

// Propagate derives start times for every task from its dependencies.
//
// A task with dependencies starts at the latest end time among them. If that
// end reaches midnight the task starts at RolloverStart instead; the overflow
// is not carried. Only tasks whose start time actually moves are reported in
// Changes, so a second pass over a stable graph reports nothing.
func Propagate(tasks []Task, edges []Edge, opts PropagateOptions) (Schedule, error) {
	projectStart, err := ParseClock(opts.ProjectStart)
	if err != nil {
		return Schedule{}, fmt.Errorf("project start: %w", err)
	}
	rollover, _ := ParseClock(RolloverStart)

	g := BuildDepGraph(tasks, edges)
	order := TopoOrder(g)

	starts := make(map[string]int, len(order.IDs))
	rolled := make(map[string]bool)

	for _, id := range order.IDs {
		task := g.nodes[id]
		deps := effectiveDeps(g, order, id)

		if len(deps) == 0 {
			if id == opts.StartTaskID {
				starts[id] = projectStart
			} else if prev, err := ParseClock(task.StartTime); err == nil {
				starts[id] = prev
			}
			continue
		}

		maxEnd := -1
		for _, depID := range deps {
			depStart, ok := starts[depID]
			if !ok {
				continue
			}
			end := depStart + DurationMinutes(g.nodes[depID].DurationHours)
			if end > maxEnd {
				maxEnd = end
			}
		}

		switch {
		case maxEnd < 0:
			if prev, err := ParseClock(task.StartTime); err == nil {
				starts[id] = prev
			}
		case maxEnd >= MinutesPerDay:
			starts[id] = rollover
			rolled[id] = true
		default:
			starts[id] = maxEnd
		}
	}

	sched := Schedule{
		Order:     order.IDs,
		Slots:     make([]Slot, 0, len(starts)),
		Changes:   make([]Change, 0),
		Anomalies: order.Anomalies,
		Tasks:     make([]Task, len(tasks)),
	}

	for _, id := range order.IDs {
		start, ok := starts[id]
		if !ok {
			continue
		}
		end := start + DurationMinutes(g.nodes[id].DurationHours)
		sched.Slots = append(sched.Slots, Slot{
			TaskID:       id,
			Start:        FormatClock(start),
			End:          FormatClock(end),
			StartMinutes: start,
			EndMinutes:   end,
			RolledOver:   rolled[id],
		})
	}

	updated := make(map[string]string, len(starts))
	for id, start := range starts {
		updated[id] = FormatClock(start)
	}
	reported := make(map[string]struct{}, len(tasks))
	for i, task := range tasks {
		sched.Tasks[i] = task
		next, ok := updated[task.ID]
		if !ok || next == task.StartTime {
			continue
		}
		sched.Tasks[i].StartTime = next
		if _, dup := reported[task.ID]; dup {
			continue
		}
		reported[task.ID] = struct{}{}
		sched.Changes = append(sched.Changes, Change{TaskID: task.ID, From: task.StartTime, To: next})
	}

	return sched, nil
}

// effectiveDeps drops the edges TopoOrder skipped so a cycle cannot feed a
// stale start time back into itself.
func effectiveDeps(g *DepGraph, order Order, id string) []string {
	deps := g.forward[id]
	if len(deps) == 0 {
		return nil
	}
	out := make([]string, 0, len(deps))
	for _, dep := range deps {
		if order.Skipped(dep, id) {
			continue
		}
		out = append(out, dep)
	}
	return out
}
