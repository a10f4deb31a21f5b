package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/antigravity-dev/planboard/internal/graph"
	"github.com/antigravity-dev/planboard/internal/store"
	"github.com/antigravity-dev/planboard/internal/team"
)

var (
	// ErrTaskNotOnBoard is returned when the task is in no column.
	ErrTaskNotOnBoard = errors.New("board: task is not on the board")
	// ErrUnknownColumn is returned when the target column does not exist.
	ErrUnknownColumn = errors.New("board: unknown column")
	// ErrMoveFailed wraps a backend failure after the board was rolled back.
	ErrMoveFailed = errors.New("board: move failed and was rolled back")
	// ErrSuperseded wraps a backend failure that was ignored because a newer
	// change to the same task had already been applied.
	ErrSuperseded = errors.New("board: change superseded")
	// ErrNotLoaded is returned before the first successful Refresh.
	ErrNotLoaded = errors.New("board: not loaded")
)

// Inputs are the authoritative values a board is derived from.
type Inputs struct {
	Tasks   []graph.Task
	Members []team.Member
	Records []store.Assignment
}

// Build derives the board for the given mode.
func (in Inputs) Build(mode Mode) Board {
	if mode == ModeAssignee {
		return BuildFromAssignee(in.Tasks, in.Members)
	}
	return Build(in.Tasks, in.Members, in.Records)
}

// Source fetches the inputs of one project.
type Source interface {
	Load(ctx context.Context, project string) (Inputs, error)
}

// Reassigner replaces every assignment of a task with a single one. A
// memberID of Unassigned only clears. It returns the task's records after the
// change.
type Reassigner interface {
	Reassign(ctx context.Context, project, taskID, memberID string) ([]store.Assignment, error)
}

// TaskPatcher applies a partial update to one task.
type TaskPatcher interface {
	UpdateTask(ctx context.Context, id string, fields map[string]any) error
}

// EventKind describes what happened to the board.
type EventKind string

const (
	EventMoved      EventKind = "moved"
	EventConfirmed  EventKind = "confirmed"
	EventRolledBack EventKind = "rolled_back"
	EventStale      EventKind = "stale"
	EventToggled    EventKind = "toggled"
	EventRefreshed  EventKind = "refreshed"
)

// Event is delivered to the Notifier after each state change.
type Event struct {
	Kind    EventKind
	Project string
	TaskID  string
	From    []string
	To      string
	Err     error
}

// Notifier receives board events. Rollbacks are the user-facing failure notice.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

// Options configure a Coordinator.
type Options struct {
	Project    string
	Mode       Mode
	Source     Source
	Reassigner Reassigner
	Patcher    TaskPatcher
	Notifier   Notifier
	Logger     *slog.Logger
}

// Coordinator owns one project's board and applies moves optimistically: the
// board changes before the backend confirms and is rolled back if it fails.
type Coordinator struct {
	project    string
	mode       Mode
	source     Source
	reassigner Reassigner
	patcher    TaskPatcher
	notifier   Notifier
	logger     *slog.Logger

	mu      sync.Mutex
	loaded  bool
	inputs  Inputs
	board   Board
	version uint64 // bumped on every board change
	seq     uint64
	latest  map[string]uint64 // kind/task id -> sequence of the newest mutation
	pending map[string]int    // task id -> mutations in flight
}

// NewCoordinator validates options. Call Refresh to load the board.
func NewCoordinator(opts Options) (*Coordinator, error) {
	if strings.TrimSpace(opts.Project) == "" {
		return nil, fmt.Errorf("board: project is required")
	}
	if opts.Source == nil {
		return nil, fmt.Errorf("board: source is required")
	}
	if opts.Reassigner == nil {
		return nil, fmt.Errorf("board: reassigner is required")
	}
	if opts.Mode == "" {
		opts.Mode = ModeRecords
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		project:    opts.Project,
		mode:       opts.Mode,
		source:     opts.Source,
		reassigner: opts.Reassigner,
		patcher:    opts.Patcher,
		notifier:   opts.Notifier,
		logger:     logger.With("component", "board", "project", opts.Project),
		latest:     make(map[string]uint64),
		pending:    make(map[string]int),
	}, nil
}

// Project returns the project this coordinator manages.
func (c *Coordinator) Project() string { return c.project }

// Board returns a copy of the current board, optimistic changes included.
func (c *Coordinator) Board() Board {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.board.Clone()
}

// Pending reports whether any mutation of the task is awaiting the backend.
func (c *Coordinator) Pending(taskID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[taskID] > 0
}

// Refresh re-fetches the inputs and rebuilds the board. It does nothing and
// returns false while any mutation is pending.
func (c *Coordinator) Refresh(ctx context.Context) (bool, error) {
	c.mu.Lock()
	busy := len(c.pending) > 0
	c.mu.Unlock()
	if busy {
		c.logger.Debug("refresh skipped, mutations pending")
		return false, nil
	}

	in, err := c.source.Load(ctx, c.project)
	if err != nil {
		return false, fmt.Errorf("board: refresh %s: %w", c.project, err)
	}

	c.mu.Lock()
	if len(c.pending) > 0 {
		// A move started while we were fetching; its optimistic state wins.
		c.mu.Unlock()
		return false, nil
	}
	c.inputs = in
	c.board = in.Build(c.mode)
	c.version++
	c.loaded = true
	c.mu.Unlock()

	c.notify(Event{Kind: EventRefreshed, Project: c.project})
	return true, nil
}

// Move reassigns a task to a single column. The board reflects the move
// before the backend is called; on backend failure the task is put back where
// it was and ErrMoveFailed is returned. Moving a task to the only column it
// already occupies is a no-op and makes no backend call.
func (c *Coordinator) Move(ctx context.Context, taskID, target string) error {
	c.mu.Lock()
	if !c.loaded {
		c.mu.Unlock()
		return ErrNotLoaded
	}
	from := c.board.Locate(taskID)
	if len(from) == 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotOnBoard, taskID)
	}
	col := c.board.columnIndex(target)
	if col < 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownColumn, target)
	}
	if len(from) == 1 && from[0] == target {
		c.mu.Unlock()
		return nil
	}

	snapshot := c.board.Clone()
	task, _ := c.board.findTask(taskID)
	c.board.removeTask(taskID)
	c.board.prependTask(col, task)
	c.version++
	applied := c.version
	seq := c.begin(mutationMove, taskID)
	c.mu.Unlock()

	c.logger.Info("task moved", "task", taskID, "from", from, "to", target, "seq", seq)
	c.notify(Event{Kind: EventMoved, Project: c.project, TaskID: taskID, From: from, To: target})

	records, err := c.reassigner.Reassign(ctx, c.project, taskID, target)

	c.mu.Lock()
	stale := c.finish(mutationMove, taskID, seq)
	switch {
	case stale:
		c.mu.Unlock()
		c.logger.Warn("discarding stale move result", "task", taskID, "seq", seq, "error", err)
		c.notify(Event{Kind: EventStale, Project: c.project, TaskID: taskID, To: target, Err: err})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSuperseded, err)
		}
		return nil
	case err != nil:
		c.rollback(mutationMove, snapshot, taskID, applied)
		c.mu.Unlock()
		c.logger.Error("move failed, rolled back", "task", taskID, "to", target, "error", err)
		c.notify(Event{Kind: EventRolledBack, Project: c.project, TaskID: taskID, From: from, To: target, Err: err})
		return fmt.Errorf("%w: %v", ErrMoveFailed, err)
	default:
		c.confirmMove(taskID, target, records)
		c.mu.Unlock()
		c.notify(Event{Kind: EventConfirmed, Project: c.project, TaskID: taskID, To: target})
		return nil
	}
}

// SetCompleted toggles a task's completion flag with the same optimistic and
// rollback behavior as Move.
func (c *Coordinator) SetCompleted(ctx context.Context, taskID string, completed bool) error {
	if c.patcher == nil {
		return fmt.Errorf("board: no task patcher configured")
	}

	c.mu.Lock()
	if !c.loaded {
		c.mu.Unlock()
		return ErrNotLoaded
	}
	current, ok := c.board.findTask(taskID)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotOnBoard, taskID)
	}
	if current.Completed == completed {
		c.mu.Unlock()
		return nil
	}
	snapshot := c.board.Clone()
	c.board.updateTask(taskID, func(t *graph.Task) { t.Completed = completed })
	c.version++
	applied := c.version
	seq := c.begin(mutationCompleted, taskID)
	c.mu.Unlock()

	err := c.patcher.UpdateTask(ctx, taskID, map[string]any{"completed": completed})

	c.mu.Lock()
	stale := c.finish(mutationCompleted, taskID, seq)
	switch {
	case stale:
		c.mu.Unlock()
		c.logger.Warn("discarding stale completion result", "task", taskID, "seq", seq, "error", err)
		c.notify(Event{Kind: EventStale, Project: c.project, TaskID: taskID, Err: err})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSuperseded, err)
		}
		return nil
	case err != nil:
		c.rollback(mutationCompleted, snapshot, taskID, applied)
		c.mu.Unlock()
		c.logger.Error("completion toggle failed, rolled back", "task", taskID, "error", err)
		c.notify(Event{Kind: EventRolledBack, Project: c.project, TaskID: taskID, Err: err})
	default:
		for i := range c.inputs.Tasks {
			if c.inputs.Tasks[i].ID == taskID {
				c.inputs.Tasks[i].Completed = completed
			}
		}
		c.mu.Unlock()
		c.notify(Event{Kind: EventToggled, Project: c.project, TaskID: taskID})
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMoveFailed, err)
	}
	return nil
}

const (
	mutationMove      = "move"
	mutationCompleted = "completed"
)

// begin registers an in-flight mutation. Caller holds mu.
func (c *Coordinator) begin(kind, taskID string) uint64 {
	c.seq++
	c.latest[kind+"/"+taskID] = c.seq
	c.pending[taskID]++
	return c.seq
}

// finish retires an in-flight mutation and reports whether a newer one of the
// same kind on the same task superseded it. Caller holds mu.
func (c *Coordinator) finish(kind, taskID string, seq uint64) bool {
	c.pending[taskID]--
	if c.pending[taskID] <= 0 {
		delete(c.pending, taskID)
	}
	return c.latest[kind+"/"+taskID] != seq
}

// rollback undoes one failed mutation. If the board has not changed since
// the mutation was applied the snapshot is restored whole. Otherwise only what
// this kind of mutation touched is put back, so confirmed changes of the other
// kind survive: a move restores placement, a toggle restores Completed.
// Caller holds mu.
func (c *Coordinator) rollback(kind string, snapshot Board, taskID string, applied uint64) {
	defer func() { c.version++ }()
	if c.version == applied {
		c.board = snapshot
		return
	}
	before, ok := snapshot.findTask(taskID)
	if !ok {
		return
	}
	if kind == mutationCompleted {
		c.board.updateTask(taskID, func(t *graph.Task) { t.Completed = before.Completed })
		return
	}
	if current, ok := c.board.findTask(taskID); ok {
		before = current
	}
	c.board.restoreTask(snapshot, before)
}

// confirmMove folds a confirmed move into the local inputs without
// re-deriving the board. Caller holds mu.
func (c *Coordinator) confirmMove(taskID, target string, records []store.Assignment) {
	if c.mode == ModeAssignee {
		assignee := target
		if target == Unassigned {
			assignee = ""
		}
		for i := range c.inputs.Tasks {
			if c.inputs.Tasks[i].ID == taskID {
				c.inputs.Tasks[i].Assignee = assignee
			}
		}
		c.board.updateTask(taskID, func(t *graph.Task) { t.Assignee = assignee })
		c.version++
		return
	}

	kept := c.inputs.Records[:0:0]
	for _, r := range c.inputs.Records {
		if r.TaskID != taskID {
			kept = append(kept, r)
		}
	}
	c.inputs.Records = append(kept, records...)
}

func (c *Coordinator) notify(e Event) {
	if c.notifier != nil {
		c.notifier.Notify(e)
	}
}
