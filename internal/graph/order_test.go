package graph

import (
	"fmt"
	"testing"
)

func positions(order []string) map[string]int {
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	return pos
}

func TestTopoOrder_DependenciesComeFirst(t *testing.T) {
	tasks := []Task{{ID: "c"}, {ID: "b"}, {ID: "a"}, {ID: "start"}, {ID: "lonely"}}
	edges := []Edge{
		{From: "start", To: "a"},
		{From: "start", To: "b"},
		{From: "a", To: "c"},
		{From: "b", To: "c"},
	}

	order := TopoOrder(BuildDepGraph(tasks, edges))

	if len(order.IDs) != len(tasks) {
		t.Fatalf("expected every task in order, got %v", order.IDs)
	}
	pos := positions(order.IDs)
	for _, e := range edges {
		if pos[e.From] >= pos[e.To] {
			t.Fatalf("edge %s -> %s violated in %v", e.From, e.To, order.IDs)
		}
	}
	if len(order.Anomalies) != 0 {
		t.Fatalf("expected no anomalies, got %v", order.Anomalies)
	}
}

func TestTopoOrder_Deterministic(t *testing.T) {
	tasks := []Task{{ID: "x"}, {ID: "y"}, {ID: "z"}}
	edges := []Edge{{From: "z", To: "x"}}

	first := TopoOrder(BuildDepGraph(tasks, edges)).IDs
	for i := 0; i < 20; i++ {
		again := TopoOrder(BuildDepGraph(tasks, edges)).IDs
		if !equalStringSlice(first, again) {
			t.Fatalf("order changed between runs: %v vs %v", first, again)
		}
	}
	if !equalStringSlice(first, []string{"z", "x", "y"}) {
		t.Fatalf("unexpected order: %v", first)
	}
}

func TestTopoOrder_SelfLoopSkipped(t *testing.T) {
	order := TopoOrder(BuildDepGraph([]Task{{ID: "a"}, {ID: "b"}}, []Edge{{From: "a", To: "a"}, {From: "a", To: "b"}}))

	if !equalStringSlice(order.IDs, []string{"a", "b"}) {
		t.Fatalf("unexpected order: %v", order.IDs)
	}
	if len(order.Anomalies) != 1 || order.Anomalies[0].Kind != AnomalySelfLoop {
		t.Fatalf("expected one self-loop anomaly, got %v", order.Anomalies)
	}
	if !order.Skipped("a", "a") {
		t.Fatal("expected self-loop edge to be marked skipped")
	}
}

func TestTopoOrder_CycleCompletesBestEffort(t *testing.T) {
	tasks := []Task{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}
	edges := []Edge{
		{From: "a", To: "b"},
		{From: "b", To: "c"},
		{From: "c", To: "a"}, // closes the cycle
		{From: "c", To: "d"},
	}

	order := TopoOrder(BuildDepGraph(tasks, edges))

	if len(order.IDs) != 4 {
		t.Fatalf("expected all tasks despite cycle, got %v", order.IDs)
	}
	cycles := 0
	for _, a := range order.Anomalies {
		if a.Kind == AnomalyCycle {
			cycles++
		}
	}
	if cycles != 1 {
		t.Fatalf("expected exactly one cycle edge skipped, got %v", order.Anomalies)
	}

	pos := positions(order.IDs)
	for _, e := range edges {
		if order.Skipped(e.From, e.To) {
			continue
		}
		if pos[e.From] >= pos[e.To] {
			t.Fatalf("non-cyclic edge %s -> %s violated in %v", e.From, e.To, order.IDs)
		}
	}
}

func TestTopoOrder_DeepChainDoesNotRecurse(t *testing.T) {
	const n = 5000
	tasks := make([]Task, n)
	edges := make([]Edge, 0, n)
	for i := 0; i < n; i++ {
		tasks[i] = Task{ID: fmt.Sprintf("t%d", i)}
		if i > 0 {
			edges = append(edges, Edge{From: fmt.Sprintf("t%d", i-1), To: fmt.Sprintf("t%d", i)})
		}
	}
	// Walk from the tail so the whole chain sits on the stack at once.
	tasks[0], tasks[n-1] = tasks[n-1], tasks[0]

	order := TopoOrder(BuildDepGraph(tasks, edges))
	if len(order.IDs) != n {
		t.Fatalf("expected %d ids, got %d", n, len(order.IDs))
	}
	if order.IDs[0] != "t0" || order.IDs[n-1] != fmt.Sprintf("t%d", n-1) {
		t.Fatalf("unexpected chain ends: %s ... %s", order.IDs[0], order.IDs[n-1])
	}
}

func TestTopoOrder_NilGraph(t *testing.T) {
	order := TopoOrder(nil)
	if len(order.IDs) != 0 || order.Skipped("a", "b") {
		t.Fatalf("expected empty order, got %+v", order)
	}
}
