// Package board derives the assignment board (one column per member plus an
// unassigned column) and coordinates optimistic moves on it.
package board

import (
	"reflect"
	"strings"

	"github.com/antigravity-dev/planboard/internal/graph"
	"github.com/antigravity-dev/planboard/internal/store"
	"github.com/antigravity-dev/planboard/internal/team"
)

// Unassigned is the key of the column holding tasks with no assignment.
const Unassigned = team.UnassignedID

// Mode selects which assignment relation a board is built from.
type Mode string

const (
	// ModeRecords builds columns from assignment records (multi-assignee).
	ModeRecords Mode = "records"
	// ModeAssignee builds columns from each task's free-text assignee label.
	ModeAssignee Mode = "assignee"
)

// ParseMode maps a config value to a Mode, defaulting to ModeRecords.
func ParseMode(raw string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeRecords:
		return ModeRecords, true
	case ModeAssignee:
		return ModeAssignee, true
	default:
		return ModeRecords, false
	}
}

// Column is one board lane. Tasks are copies; mutating them does not touch
// any other column.
type Column struct {
	Key   string       `json:"key"`
	Title string       `json:"title"`
	Tasks []graph.Task `json:"tasks"`
}

// Board is derived state: it can always be rebuilt from tasks, roster and
// assignments. The unassigned column is always first.
type Board struct {
	Columns []Column `json:"columns"`
}

// Build lays out tasks by assignment record. Records pointing at members not
// on the roster are ignored, so such tasks may not appear at all.
func Build(tasks []graph.Task, members []team.Member, records []store.Assignment) Board {
	b, index := newBoard(members)

	byTask := make(map[string][]string, len(records))
	for _, r := range records {
		byTask[r.TaskID] = append(byTask[r.TaskID], r.MemberID)
	}

	for _, task := range tasks {
		memberIDs := byTask[task.ID]
		if len(memberIDs) == 0 {
			b.Columns[0].Tasks = append(b.Columns[0].Tasks, task)
			continue
		}
		placed := make(map[string]struct{}, len(memberIDs))
		for _, memberID := range memberIDs {
			col, ok := index[memberID]
			if !ok {
				continue
			}
			if _, dup := placed[memberID]; dup {
				continue
			}
			placed[memberID] = struct{}{}
			b.Columns[col].Tasks = append(b.Columns[col].Tasks, task)
		}
	}
	return b
}

// BuildFromAssignee lays out tasks by their single free-text assignee. A blank
// label means unassigned; a label matching no member hides the task.
func BuildFromAssignee(tasks []graph.Task, members []team.Member) Board {
	b, index := newBoard(members)
	for _, task := range tasks {
		if strings.TrimSpace(task.Assignee) == "" {
			b.Columns[0].Tasks = append(b.Columns[0].Tasks, task)
			continue
		}
		m, ok := team.Resolve(members, task.Assignee)
		if !ok {
			continue
		}
		col := index[m.ID]
		b.Columns[col].Tasks = append(b.Columns[col].Tasks, task)
	}
	return b
}

func newBoard(members []team.Member) (Board, map[string]int) {
	b := Board{Columns: make([]Column, 0, len(members)+1)}
	b.Columns = append(b.Columns, Column{Key: Unassigned, Title: "Unassigned", Tasks: []graph.Task{}})
	index := make(map[string]int, len(members))
	for _, m := range members {
		if m.ID == Unassigned {
			continue
		}
		if _, dup := index[m.ID]; dup {
			continue
		}
		index[m.ID] = len(b.Columns)
		title := m.Name
		if title == "" {
			title = m.ID
		}
		b.Columns = append(b.Columns, Column{Key: m.ID, Title: title, Tasks: []graph.Task{}})
	}
	return b, index
}

// Keys returns the column keys in display order.
func (b Board) Keys() []string {
	keys := make([]string, len(b.Columns))
	for i, c := range b.Columns {
		keys[i] = c.Key
	}
	return keys
}

// Column returns the column with the given key.
func (b Board) Column(key string) (Column, bool) {
	if i := b.columnIndex(key); i >= 0 {
		return b.Columns[i], true
	}
	return Column{}, false
}

// Locate returns the keys of every column currently holding the task.
func (b Board) Locate(taskID string) []string {
	var keys []string
	for _, c := range b.Columns {
		if indexOfTask(c.Tasks, taskID) >= 0 {
			keys = append(keys, c.Key)
		}
	}
	return keys
}

// Clone returns a deep copy.
func (b Board) Clone() Board {
	out := Board{Columns: make([]Column, len(b.Columns))}
	for i, c := range b.Columns {
		tasks := make([]graph.Task, len(c.Tasks))
		copy(tasks, c.Tasks)
		out.Columns[i] = Column{Key: c.Key, Title: c.Title, Tasks: tasks}
	}
	return out
}

// Equal reports whether two boards hold the same columns, tasks and order.
func (b Board) Equal(other Board) bool {
	return reflect.DeepEqual(b, other)
}

// TaskCount returns the number of distinct tasks visible on the board.
func (b Board) TaskCount() int {
	seen := make(map[string]struct{})
	for _, c := range b.Columns {
		for _, t := range c.Tasks {
			seen[t.ID] = struct{}{}
		}
	}
	return len(seen)
}

func (b Board) columnIndex(key string) int {
	for i, c := range b.Columns {
		if c.Key == key {
			return i
		}
	}
	return -1
}

// findTask returns a copy of the task from the first column holding it.
func (b Board) findTask(taskID string) (graph.Task, bool) {
	for _, c := range b.Columns {
		if i := indexOfTask(c.Tasks, taskID); i >= 0 {
			return c.Tasks[i], true
		}
	}
	return graph.Task{}, false
}

// removeTask drops the task from every column.
func (b *Board) removeTask(taskID string) {
	for i := range b.Columns {
		tasks := b.Columns[i].Tasks
		kept := tasks[:0]
		for _, t := range tasks {
			if t.ID != taskID {
				kept = append(kept, t)
			}
		}
		b.Columns[i].Tasks = kept
	}
}

// prependTask places the task at the head of one column.
func (b *Board) prependTask(col int, task graph.Task) {
	tasks := make([]graph.Task, 0, len(b.Columns[col].Tasks)+1)
	tasks = append(tasks, task)
	tasks = append(tasks, b.Columns[col].Tasks...)
	b.Columns[col].Tasks = tasks
}

// updateTask rewrites every copy of the task in place.
func (b *Board) updateTask(taskID string, apply func(*graph.Task)) {
	for i := range b.Columns {
		for j := range b.Columns[i].Tasks {
			if b.Columns[i].Tasks[j].ID == taskID {
				apply(&b.Columns[i].Tasks[j])
			}
		}
	}
}

// restoreTask puts task back exactly where it sat in snapshot, leaving the
// rest of the board alone. The placement comes from snapshot; the task's
// fields come from the caller.
func (b *Board) restoreTask(snapshot Board, task graph.Task) {
	b.removeTask(task.ID)
	for _, sc := range snapshot.Columns {
		pos := indexOfTask(sc.Tasks, task.ID)
		if pos < 0 {
			continue
		}
		col := b.columnIndex(sc.Key)
		if col < 0 {
			continue
		}
		tasks := b.Columns[col].Tasks
		if pos > len(tasks) {
			pos = len(tasks)
		}
		out := make([]graph.Task, 0, len(tasks)+1)
		out = append(out, tasks[:pos]...)
		out = append(out, task)
		out = append(out, tasks[pos:]...)
		b.Columns[col].Tasks = out
	}
}

func indexOfTask(tasks []graph.Task, taskID string) int {
	for i, t := range tasks {
		if t.ID == taskID {
			return i
		}
	}
	return -1
}
