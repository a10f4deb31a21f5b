package graph

import "strings"

// AnomalyKind classifies an edge the scheduler could not honour.
type AnomalyKind string

const (
	AnomalyDangling AnomalyKind = "dangling"
	AnomalySelfLoop AnomalyKind = "self_loop"
	AnomalyCycle    AnomalyKind = "cycle"
)

// Anomaly records an edge that was skipped. Anomalies never abort a build or
// a schedule; they are reported so callers can surface them as warnings.
type Anomaly struct {
	Kind AnomalyKind `json:"kind"`
	From string      `json:"from"`
	To   string      `json:"to"`
}

// DepGraph is a directed dependency graph for tasks.
type DepGraph struct {
	ids       []string
	nodes     map[string]*Task
	forward   map[string][]string // task -> depends on
	reverse   map[string][]string // task -> blocks
	anomalies []Anomaly
}

// BuildDepGraph converts a flat edge list into an adjacency structure keyed by
// target task. Every task gets an entry, empty when it has no dependencies.
// Edges naming unknown tasks are recorded as dangling and left out; duplicate
// edges collapse to one. Self-loops are kept here and skipped by TopoOrder.
func BuildDepGraph(tasks []Task, edges []Edge) *DepGraph {
	g := &DepGraph{
		ids:     make([]string, 0, len(tasks)),
		nodes:   make(map[string]*Task, len(tasks)),
		forward: make(map[string][]string, len(tasks)),
		reverse: make(map[string][]string, len(tasks)),
	}
	graphTasks := make([]Task, len(tasks))
	copy(graphTasks, tasks)

	for i := range graphTasks {
		id := graphTasks[i].ID
		if _, dup := g.nodes[id]; dup {
			continue
		}
		g.ids = append(g.ids, id)
		g.nodes[id] = &graphTasks[i]
		g.forward[id] = make([]string, 0)
		g.reverse[id] = make([]string, 0)
	}

	seen := make(map[Edge]struct{}, len(edges))
	for _, e := range edges {
		e.From = strings.TrimSpace(e.From)
		e.To = strings.TrimSpace(e.To)
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}

		_, fromOK := g.nodes[e.From]
		_, toOK := g.nodes[e.To]
		if !fromOK || !toOK {
			g.anomalies = append(g.anomalies, Anomaly{Kind: AnomalyDangling, From: e.From, To: e.To})
			continue
		}
		g.forward[e.To] = append(g.forward[e.To], e.From)
		g.reverse[e.From] = append(g.reverse[e.From], e.To)
	}

	return g
}

// IDs returns task IDs in input order.
func (g *DepGraph) IDs() []string {
	if g == nil {
		return nil
	}
	return cloneStringSlice(g.ids)
}

// Task returns a copy of the node with the given ID.
func (g *DepGraph) Task(id string) (Task, bool) {
	if g == nil {
		return Task{}, false
	}
	t, ok := g.nodes[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// DependsOnIDs returns all task IDs the task depends on.
func (g *DepGraph) DependsOnIDs(id string) []string {
	if g == nil || g.forward == nil {
		return nil
	}
	dependencies, ok := g.forward[id]
	if !ok {
		return nil
	}
	return cloneStringSlice(dependencies)
}

// BlocksIDs returns all task IDs directly blocked by the task.
func (g *DepGraph) BlocksIDs(id string) []string {
	if g == nil || g.reverse == nil {
		return nil
	}
	blockers, ok := g.reverse[id]
	if !ok {
		return nil
	}
	return cloneStringSlice(blockers)
}

// Dependencies returns a copy of the full target -> sources mapping.
func (g *DepGraph) Dependencies() map[string][]string {
	if g == nil {
		return nil
	}
	out := make(map[string][]string, len(g.forward))
	for id, deps := range g.forward {
		out[id] = cloneStringSlice(deps)
	}
	return out
}

// Anomalies returns the edges dropped while building the graph.
func (g *DepGraph) Anomalies() []Anomaly {
	if g == nil || len(g.anomalies) == 0 {
		return nil
	}
	out := make([]Anomaly, len(g.anomalies))
	copy(out, g.anomalies)
	return out
}

func cloneStringSlice(values []string) []string {
	if len(values) == 0 {
		return make([]string, 0)
	}
	cp := make([]string, len(values))
	copy(cp, values)
	return cp
}
