package board

import (
	"context"
	"fmt"

	"github.com/antigravity-dev/planboard/internal/store"
)

// StoreSource loads board inputs straight from the planboard database.
type StoreSource struct {
	Store *store.Store
}

func (s StoreSource) Load(ctx context.Context, project string) (Inputs, error) {
	tasks, err := s.Store.Tasks().ListTasks(ctx, project)
	if err != nil {
		return Inputs{}, fmt.Errorf("load tasks: %w", err)
	}
	members, err := s.Store.Roster().ListMembers(ctx, project)
	if err != nil {
		return Inputs{}, fmt.Errorf("load members: %w", err)
	}
	records, err := s.Store.ListAssignments(ctx, project)
	if err != nil {
		return Inputs{}, fmt.Errorf("load assignments: %w", err)
	}
	return Inputs{Tasks: tasks, Members: members, Records: records}, nil
}

// RecordStore is the assignment query and mutation interface.
type RecordStore interface {
	ListTaskAssignments(ctx context.Context, taskID string) ([]store.Assignment, error)
	DeleteAssignment(ctx context.Context, id string) error
	CreateAssignment(ctx context.Context, taskID, memberID string) (store.Assignment, error)
}

// RecordReassigner deletes every record of the task and then creates one for
// the target member. It does not undo deletions if the create fails; the
// coordinator's rollback covers the board and the next refresh shows the
// backend's state.
type RecordReassigner struct {
	Records RecordStore
}

func (r RecordReassigner) Reassign(ctx context.Context, _ string, taskID, memberID string) ([]store.Assignment, error) {
	existing, err := r.Records.ListTaskAssignments(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("list assignments for %s: %w", taskID, err)
	}
	for _, a := range existing {
		if err := r.Records.DeleteAssignment(ctx, a.ID); err != nil {
			return nil, fmt.Errorf("delete assignment %s: %w", a.ID, err)
		}
	}
	if memberID == Unassigned {
		return []store.Assignment{}, nil
	}
	created, err := r.Records.CreateAssignment(ctx, taskID, memberID)
	if err != nil {
		return nil, fmt.Errorf("assign %s to %s: %w", taskID, memberID, err)
	}
	return []store.Assignment{created}, nil
}

// AssigneeReassigner patches the task's single free-text assignee instead of
// touching assignment records.
type AssigneeReassigner struct {
	Tasks TaskPatcher
}

func (r AssigneeReassigner) Reassign(ctx context.Context, _ string, taskID, memberID string) ([]store.Assignment, error) {
	assignee := memberID
	if memberID == Unassigned {
		assignee = ""
	}
	if err := r.Tasks.UpdateTask(ctx, taskID, map[string]any{"assignee": assignee}); err != nil {
		return nil, fmt.Errorf("set assignee of %s: %w", taskID, err)
	}
	return nil, nil
}
