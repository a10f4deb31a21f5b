package board

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/planboard/internal/graph"
	"github.com/antigravity-dev/planboard/internal/store"
	"github.com/antigravity-dev/planboard/internal/team"
)

type staticSource struct {
	mu    sync.Mutex
	in    Inputs
	err   error
	loads int
}

func (s *staticSource) Load(context.Context, string) (Inputs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	return s.in, s.err
}

const (
	timeout = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// fakeReassigner records calls. A call keyed "task->member" with a gate
// blocks until the test sends its result.
type fakeReassigner struct {
	mu    sync.Mutex
	calls []string
	err   error
	gates map[string]chan error
}

func (f *fakeReassigner) gate(call string) chan error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gates == nil {
		f.gates = make(map[string]chan error)
	}
	ch := make(chan error)
	f.gates[call] = ch
	return ch
}

func (f *fakeReassigner) Reassign(_ context.Context, _ string, taskID, memberID string) ([]store.Assignment, error) {
	call := taskID + "->" + memberID
	f.mu.Lock()
	f.calls = append(f.calls, call)
	gate, err := f.gates[call], f.err
	f.mu.Unlock()
	if gate != nil {
		err = <-gate
	}
	if err != nil {
		return nil, err
	}
	if memberID == Unassigned {
		return []store.Assignment{}, nil
	}
	return []store.Assignment{{ID: "new-" + taskID, TaskID: taskID, MemberID: memberID}}, nil
}

func (f *fakeReassigner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakePatcher records patches. With a gate set, each call blocks until the
// test sends its result.
type fakePatcher struct {
	mu     sync.Mutex
	err    error
	gate   chan error
	fields []map[string]any
}

func (f *fakePatcher) UpdateTask(_ context.Context, _ string, fields map[string]any) error {
	f.mu.Lock()
	f.fields = append(f.fields, fields)
	gate, err := f.gate, f.err
	f.mu.Unlock()
	if gate != nil {
		err = <-gate
	}
	return err
}

func (f *fakePatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fields)
}

func newCoordinator(t *testing.T, r Reassigner, p TaskPatcher, n Notifier) *Coordinator {
	t.Helper()
	src := &staticSource{in: Inputs{
		Tasks:   fixtureTasks(),
		Members: fixtureMembers(),
		Records: []store.Assignment{{ID: "r1", TaskID: "t1", MemberID: "ada"}},
	}}
	c, err := NewCoordinator(Options{Project: "proj", Source: src, Reassigner: r, Patcher: p, Notifier: n})
	require.NoError(t, err)
	ok, err := c.Refresh(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	return c
}

func TestMove_Success(t *testing.T) {
	r := &fakeReassigner{}
	var events []EventKind
	c := newCoordinator(t, r, nil, NotifierFunc(func(e Event) { events = append(events, e.Kind) }))

	require.NoError(t, c.Move(context.Background(), "t1", "bob"))

	b := c.Board()
	require.Empty(t, column(t, b, "ada").Tasks)
	require.Equal(t, []string{"t1"}, taskIDs(column(t, b, "bob")))
	require.Equal(t, 1, r.callCount())
	require.False(t, c.Pending("t1"))
	require.Equal(t, []EventKind{EventRefreshed, EventMoved, EventConfirmed}, events)

	c.mu.Lock()
	records := c.inputs.Records
	c.mu.Unlock()
	require.Equal(t, []store.Assignment{{ID: "new-t1", TaskID: "t1", MemberID: "bob"}}, records)
}

func TestMove_PrependsToTarget(t *testing.T) {
	c := newCoordinator(t, &fakeReassigner{}, nil, nil)

	require.NoError(t, c.Move(context.Background(), "t3", "ada"))
	require.Equal(t, []string{"t3", "t1"}, taskIDs(column(t, c.Board(), "ada")))
}

func TestMove_FailureRestoresBoardExactly(t *testing.T) {
	r := &fakeReassigner{err: errors.New("backend down")}
	var rolledBack Event
	c := newCoordinator(t, r, nil, NotifierFunc(func(e Event) {
		if e.Kind == EventRolledBack {
			rolledBack = e
		}
	}))
	before := c.Board()

	err := c.Move(context.Background(), "t1", "bob")

	require.ErrorIs(t, err, ErrMoveFailed)
	require.True(t, before.Equal(c.Board()), "board must be byte-for-byte restored")
	require.Equal(t, "t1", rolledBack.TaskID)
	require.EqualError(t, rolledBack.Err, "backend down")
	require.False(t, c.Pending("t1"))
}

func TestMove_SameColumnIsNoop(t *testing.T) {
	r := &fakeReassigner{}
	c := newCoordinator(t, r, nil, nil)
	before := c.Board()

	require.NoError(t, c.Move(context.Background(), "t1", "ada"))
	require.NoError(t, c.Move(context.Background(), "t2", Unassigned))

	require.True(t, before.Equal(c.Board()))
	require.Zero(t, r.callCount())
}

func TestMove_Errors(t *testing.T) {
	c := newCoordinator(t, &fakeReassigner{}, nil, nil)

	require.ErrorIs(t, c.Move(context.Background(), "nope", "bob"), ErrTaskNotOnBoard)
	require.ErrorIs(t, c.Move(context.Background(), "t1", "carol"), ErrUnknownColumn)

	fresh, err := NewCoordinator(Options{Project: "p", Source: &staticSource{}, Reassigner: &fakeReassigner{}})
	require.NoError(t, err)
	require.ErrorIs(t, fresh.Move(context.Background(), "t1", "bob"), ErrNotLoaded)
}

func TestMove_MultiAssignedTaskCollapsesToTarget(t *testing.T) {
	src := &staticSource{in: Inputs{
		Tasks:   fixtureTasks(),
		Members: fixtureMembers(),
		Records: []store.Assignment{
			{ID: "r1", TaskID: "t1", MemberID: "ada"},
			{ID: "r2", TaskID: "t1", MemberID: "bob"},
		},
	}}
	c, err := NewCoordinator(Options{Project: "proj", Source: src, Reassigner: &fakeReassigner{}})
	require.NoError(t, err)
	_, err = c.Refresh(context.Background())
	require.NoError(t, err)

	require.NoError(t, c.Move(context.Background(), "t1", "bob"))
	require.Equal(t, []string{"bob"}, c.Board().Locate("t1"))
}

func TestMove_OptimisticStateVisibleWhilePending(t *testing.T) {
	r := &fakeReassigner{}
	gate := r.gate("t1->bob")
	c := newCoordinator(t, r, nil, nil)

	done := make(chan error, 1)
	go func() { done <- c.Move(context.Background(), "t1", "bob") }()

	require.Eventually(t, func() bool { return c.Pending("t1") }, timeout, tick)
	require.Equal(t, []string{"bob"}, c.Board().Locate("t1"))

	refreshed, err := c.Refresh(context.Background())
	require.NoError(t, err)
	require.False(t, refreshed, "refresh must not clobber a pending move")

	gate <- errors.New("conflict")
	require.ErrorIs(t, <-done, ErrMoveFailed)
	require.Equal(t, []string{"ada"}, c.Board().Locate("t1"))
}

func TestMove_StaleResultIsDiscarded(t *testing.T) {
	r := &fakeReassigner{}
	firstGate := r.gate("t1->bob")
	secondGate := r.gate("t1->" + Unassigned)
	c := newCoordinator(t, r, nil, nil)

	first := make(chan error, 1)
	go func() { first <- c.Move(context.Background(), "t1", "bob") }()
	require.Eventually(t, func() bool { return r.callCount() == 1 }, timeout, tick)

	second := make(chan error, 1)
	go func() { second <- c.Move(context.Background(), "t1", Unassigned) }()
	require.Eventually(t, func() bool { return r.callCount() == 2 }, timeout, tick)

	// Second move confirms first, then the first move fails late.
	secondGate <- nil
	require.NoError(t, <-second)
	firstGate <- errors.New("late failure")
	require.ErrorIs(t, <-first, ErrSuperseded)

	require.False(t, c.Pending("t1"))
	require.Equal(t, []string{Unassigned}, c.Board().Locate("t1"), "late failure must not roll back the newer move")
}

func TestMove_RollbackKeepsOtherTasksMove(t *testing.T) {
	r := &fakeReassigner{}
	failGate := r.gate("t1->bob")
	okGate := r.gate("t2->ada")
	c := newCoordinator(t, r, nil, nil)

	failing := make(chan error, 1)
	go func() { failing <- c.Move(context.Background(), "t1", "bob") }()
	require.Eventually(t, func() bool { return r.callCount() == 1 }, timeout, tick)

	other := make(chan error, 1)
	go func() { other <- c.Move(context.Background(), "t2", "ada") }()
	require.Eventually(t, func() bool { return r.callCount() == 2 }, timeout, tick)

	failGate <- errors.New("boom")
	require.ErrorIs(t, <-failing, ErrMoveFailed)
	okGate <- nil
	require.NoError(t, <-other)

	b := c.Board()
	require.Equal(t, []string{"t1", "t2"}, taskIDs(column(t, b, "ada")))
	require.Empty(t, column(t, b, "bob").Tasks)
}

func TestSetCompleted(t *testing.T) {
	p := &fakePatcher{}
	c := newCoordinator(t, &fakeReassigner{}, p, nil)

	require.NoError(t, c.SetCompleted(context.Background(), "t1", true))
	task, ok := c.Board().findTask("t1")
	require.True(t, ok)
	require.True(t, task.Completed)
	require.Equal(t, []map[string]any{{"completed": true}}, p.fields)

	// Same value again is a no-op.
	require.NoError(t, c.SetCompleted(context.Background(), "t1", true))
	require.Len(t, p.fields, 1)
}

func TestSetCompleted_FailureRollsBack(t *testing.T) {
	p := &fakePatcher{err: errors.New("patch rejected")}
	c := newCoordinator(t, &fakeReassigner{}, p, nil)
	before := c.Board()

	require.ErrorIs(t, c.SetCompleted(context.Background(), "t2", true), ErrMoveFailed)
	require.True(t, before.Equal(c.Board()))
}

func TestMove_RollbackKeepsConfirmedToggle(t *testing.T) {
	r := &fakeReassigner{}
	moveGate := r.gate("t1->bob")
	p := &fakePatcher{}
	c := newCoordinator(t, r, p, nil)

	moved := make(chan error, 1)
	go func() { moved <- c.Move(context.Background(), "t1", "bob") }()
	require.Eventually(t, func() bool { return r.callCount() == 1 }, timeout, tick)

	require.NoError(t, c.SetCompleted(context.Background(), "t1", true))

	moveGate <- errors.New("conflict")
	require.ErrorIs(t, <-moved, ErrMoveFailed)

	require.Equal(t, []string{"ada"}, c.Board().Locate("t1"))
	task, ok := c.Board().findTask("t1")
	require.True(t, ok)
	require.True(t, task.Completed, "confirmed completion must survive the move rollback")
}

func TestSetCompleted_RollbackKeepsConfirmedMove(t *testing.T) {
	p := &fakePatcher{gate: make(chan error)}
	c := newCoordinator(t, &fakeReassigner{}, p, nil)

	toggled := make(chan error, 1)
	go func() { toggled <- c.SetCompleted(context.Background(), "t1", true) }()
	require.Eventually(t, func() bool { return p.callCount() == 1 }, timeout, tick)

	require.NoError(t, c.Move(context.Background(), "t1", "bob"))

	p.gate <- errors.New("patch rejected")
	require.ErrorIs(t, <-toggled, ErrMoveFailed)

	require.Equal(t, []string{"bob"}, c.Board().Locate("t1"), "confirmed move must survive the toggle rollback")
	task, ok := c.Board().findTask("t1")
	require.True(t, ok)
	require.False(t, task.Completed)
}

func TestSetCompleted_NoPatcher(t *testing.T) {
	c := newCoordinator(t, &fakeReassigner{}, nil, nil)
	require.Error(t, c.SetCompleted(context.Background(), "t1", true))
}

func TestRefresh_SourceError(t *testing.T) {
	c, err := NewCoordinator(Options{Project: "p", Source: &staticSource{err: errors.New("db gone")}, Reassigner: &fakeReassigner{}})
	require.NoError(t, err)
	ok, err := c.Refresh(context.Background())
	require.Error(t, err)
	require.False(t, ok)
}

func TestNewCoordinator_Validation(t *testing.T) {
	_, err := NewCoordinator(Options{Source: &staticSource{}, Reassigner: &fakeReassigner{}})
	require.Error(t, err)
	_, err = NewCoordinator(Options{Project: "p", Reassigner: &fakeReassigner{}})
	require.Error(t, err)
	_, err = NewCoordinator(Options{Project: "p", Source: &staticSource{}})
	require.Error(t, err)
}

func TestAssigneeMode_EndToEnd(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "board.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	_, err = s.Tasks().CreateTask(ctx, graph.Task{ID: "t1", Project: "proj", Title: "One", DurationHours: 1, Assignee: "Ada"})
	require.NoError(t, err)
	_, err = s.Roster().AddMember(ctx, team.Member{ID: "ada", Project: "proj", Name: "Ada"})
	require.NoError(t, err)
	_, err = s.Roster().AddMember(ctx, team.Member{ID: "bob", Project: "proj", Name: "Bob"})
	require.NoError(t, err)

	c, err := NewCoordinator(Options{
		Project:    "proj",
		Mode:       ModeAssignee,
		Source:     StoreSource{Store: s},
		Reassigner: AssigneeReassigner{Tasks: s.Tasks()},
		Patcher:    s.Tasks(),
	})
	require.NoError(t, err)
	_, err = c.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"ada"}, c.Board().Locate("t1"))

	require.NoError(t, c.Move(ctx, "t1", "bob"))
	stored, err := s.Tasks().GetTask(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "bob", stored.Assignee)

	_, err = c.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"bob"}, c.Board().Locate("t1"))
}

func TestRecordReassigner_AgainstStore(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "board.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	_, err = s.Tasks().CreateTask(ctx, graph.Task{ID: "t1", Project: "proj", DurationHours: 1})
	require.NoError(t, err)
	_, err = s.CreateAssignment(ctx, "t1", "ada")
	require.NoError(t, err)
	_, err = s.CreateAssignment(ctx, "t1", "bob")
	require.NoError(t, err)

	r := RecordReassigner{Records: s}
	records, err := r.Reassign(ctx, "proj", "t1", "carol")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "carol", records[0].MemberID)

	stored, err := s.ListTaskAssignments(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, records[0].ID, stored[0].ID)

	records, err = r.Reassign(ctx, "proj", "t1", Unassigned)
	require.NoError(t, err)
	require.Empty(t, records)
	stored, err = s.ListTaskAssignments(ctx, "t1")
	require.NoError(t, err)
	require.Empty(t, stored)
}
