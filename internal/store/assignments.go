package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrAssignmentNotFound is returned when an assignment id does not exist.
var ErrAssignmentNotFound = errors.New("store: assignment not found")

// Assignment links one task to one member. A task may hold several.
type Assignment struct {
	ID        string    `json:"id"`
	Project   string    `json:"project"`
	TaskID    string    `json:"task_id"`
	MemberID  string    `json:"member_id"`
	CreatedAt time.Time `json:"created_at"`
}

const assignmentColumns = `id, project, task_id, member_id, created_at`

// CreateAssignment binds a task to a member and returns the new record.
func (s *Store) CreateAssignment(ctx context.Context, taskID, memberID string) (Assignment, error) {
	taskID = strings.TrimSpace(taskID)
	memberID = strings.TrimSpace(memberID)
	if taskID == "" || memberID == "" {
		return Assignment{}, fmt.Errorf("store: task id and member id are required")
	}

	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return Assignment{}, fmt.Errorf("store: create assignment: %w", err)
	}

	a := Assignment{
		ID:        uuid.NewString(),
		Project:   task.Project,
		TaskID:    taskID,
		MemberID:  memberID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.insertAssignment(ctx, a); err != nil {
		return Assignment{}, err
	}
	return a, nil
}

// RestoreAssignment re-inserts a previously deleted record under its original id.
func (s *Store) RestoreAssignment(ctx context.Context, a Assignment) error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("store: restore assignment: id is required")
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	return s.insertAssignment(ctx, a)
}

func (s *Store) insertAssignment(ctx context.Context, a Assignment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assignments (`+assignmentColumns+`) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Project, a.TaskID, a.MemberID, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert assignment %s: %w", a.ID, err)
	}
	return nil
}

// DeleteAssignment removes one assignment record by id.
func (s *Store) DeleteAssignment(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM assignments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete assignment %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrAssignmentNotFound, id)
	}
	return nil
}

// ListTaskAssignments returns the records of one task, oldest first.
func (s *Store) ListTaskAssignments(ctx context.Context, taskID string) ([]Assignment, error) {
	return s.queryAssignments(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE task_id = ? ORDER BY created_at ASC, rowid ASC`, taskID)
}

// ListAssignments returns every record in a project, oldest first.
func (s *Store) ListAssignments(ctx context.Context, project string) ([]Assignment, error) {
	return s.queryAssignments(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE project = ? ORDER BY created_at ASC, rowid ASC`, project)
}

func (s *Store) queryAssignments(ctx context.Context, query string, args ...any) ([]Assignment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query assignments: %w", err)
	}
	defer rows.Close()

	out := make([]Assignment, 0)
	for rows.Next() {
		var a Assignment
		var created sql.NullTime
		if err := rows.Scan(&a.ID, &a.Project, &a.TaskID, &a.MemberID, &created); err != nil {
			return nil, fmt.Errorf("store: scan assignment: %w", err)
		}
		if created.Valid {
			a.CreatedAt = created.Time
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
