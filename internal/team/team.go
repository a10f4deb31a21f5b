// Package team keeps the project roster: the members that become board columns.
package team

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// UnassignedID is the reserved key of the pseudo-member that holds tasks with
// no assignment. No real member may use it.
const UnassignedID = "unassigned"

// ErrReservedID is returned when a member would collide with UnassignedID.
var ErrReservedID = errors.New("team: member id is reserved")

// ErrMemberNotFound is returned when a member id does not exist.
var ErrMemberNotFound = errors.New("team: member not found")

// Member is one person on a project team.
type Member struct {
	ID        string    `json:"id"`
	Project   string    `json:"project"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

const membersSchema = `CREATE TABLE IF NOT EXISTS members (
	id TEXT NOT NULL,
	project TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	PRIMARY KEY (project, id)
);`

// Roster reads and writes project members. The board engine only reads it.
type Roster struct {
	db *sql.DB
}

func NewRoster(db *sql.DB) *Roster {
	return &Roster{db: db}
}

func (r *Roster) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("team: roster is not initialized")
	}
	if _, err := r.db.ExecContext(ctx, membersSchema); err != nil {
		return fmt.Errorf("create members table: %w", err)
	}
	return nil
}

// AddMember inserts or renames a member.
func (r *Roster) AddMember(ctx context.Context, m Member) (Member, error) {
	if r == nil || r.db == nil {
		return Member{}, fmt.Errorf("team: roster is not initialized")
	}
	m.ID = strings.TrimSpace(m.ID)
	m.Project = strings.TrimSpace(m.Project)
	m.Name = strings.TrimSpace(m.Name)
	if m.Project == "" {
		return Member{}, fmt.Errorf("project is required")
	}
	if m.ID == "" {
		return Member{}, fmt.Errorf("member id is required")
	}
	if strings.EqualFold(m.ID, UnassignedID) {
		return Member{}, fmt.Errorf("%w: %q", ErrReservedID, m.ID)
	}
	if m.Name == "" {
		m.Name = m.ID
	}
	m.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `INSERT INTO members (id, project, name, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(project, id) DO UPDATE SET name = excluded.name;`, m.ID, m.Project, m.Name, m.CreatedAt)
	if err != nil {
		return Member{}, fmt.Errorf("team: add member %s: %w", m.ID, err)
	}
	return m, nil
}

// ListMembers returns the roster in the order members joined.
func (r *Roster) ListMembers(ctx context.Context, project string) ([]Member, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("team: roster is not initialized")
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id, project, name, created_at FROM members
		WHERE project = ? ORDER BY created_at ASC, rowid ASC;`, strings.TrimSpace(project))
	if err != nil {
		return nil, fmt.Errorf("team: list members: %w", err)
	}
	defer rows.Close()

	members := make([]Member, 0)
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.Project, &m.Name, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("team: scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *Roster) RemoveMember(ctx context.Context, project, id string) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("team: roster is not initialized")
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM members WHERE project = ? AND id = ?;`, project, id)
	if err != nil {
		return fmt.Errorf("team: remove member %s: %w", id, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: %s", ErrMemberNotFound, id)
	}
	return nil
}

// Resolve finds the member a free-text assignee label refers to, matching the
// id first and then the display name, case-insensitively.
func Resolve(members []Member, label string) (Member, bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		return Member{}, false
	}
	for _, m := range members {
		if strings.EqualFold(m.ID, label) {
			return m, true
		}
	}
	for _, m := range members {
		if strings.EqualFold(m.Name, label) {
			return m, true
		}
	}
	return Member{}, false
}
