package graph

// Order is a processing sequence in which every task comes after all of its
// dependencies, except across edges listed in Anomalies.
type Order struct {
	IDs       []string
	Anomalies []Anomaly
	skipped   map[Edge]struct{}
}

// Skipped reports whether the edge was dropped to break a cycle or self-loop.
func (o Order) Skipped(from, to string) bool {
	_, ok := o.skipped[Edge{From: from, To: to}]
	return ok
}

type visitFrame struct {
	id   string
	next int
}

// TopoOrder walks the graph depth-first from every task in input order, so
// disconnected components are all covered and the result is deterministic.
// Revisiting a task that is still on the walk stack means the edge closes a
// cycle; that edge is skipped and the walk carries on.
func TopoOrder(g *DepGraph) Order {
	order := Order{skipped: make(map[Edge]struct{})}
	if g == nil {
		return order
	}
	order.IDs = make([]string, 0, len(g.ids))
	order.Anomalies = g.Anomalies()

	onStack := make(map[string]struct{}, len(g.ids))
	done := make(map[string]struct{}, len(g.ids))

	for _, root := range g.ids {
		if _, ok := done[root]; ok {
			continue
		}
		stack := []visitFrame{{id: root}}
		onStack[root] = struct{}{}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			deps := g.forward[top.id]

			if top.next < len(deps) {
				dep := deps[top.next]
				top.next++

				switch {
				case dep == top.id:
					order.skip(Anomaly{Kind: AnomalySelfLoop, From: dep, To: top.id})
				case isMember(onStack, dep):
					order.skip(Anomaly{Kind: AnomalyCycle, From: dep, To: top.id})
				case isMember(done, dep):
				default:
					onStack[dep] = struct{}{}
					stack = append(stack, visitFrame{id: dep})
				}
				continue
			}

			delete(onStack, top.id)
			done[top.id] = struct{}{}
			order.IDs = append(order.IDs, top.id)
			stack = stack[:len(stack)-1]
		}
	}

	return order
}

func (o *Order) skip(a Anomaly) {
	o.Anomalies = append(o.Anomalies, a)
	o.skipped[Edge{From: a.From, To: a.To}] = struct{}{}
}

func isMember(set map[string]struct{}, id string) bool {
	_, ok := set[id]
	return ok
}
