package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/antigravity-dev/planboard/internal/graph"
	"github.com/antigravity-dev/planboard/internal/team"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedTask(t *testing.T, s *Store, id, project string) {
	t.Helper()
	if _, err := s.Tasks().CreateTask(context.Background(), graph.Task{ID: id, Project: project, Title: id, DurationHours: 1}); err != nil {
		t.Fatalf("CreateTask %s: %v", id, err)
	}
}

func TestOpenAndSchema(t *testing.T) {
	s := tempStore(t)
	for _, table := range []string{"tasks", "task_edges", "members", "assignments"} {
		var name string
		err := s.DB().QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Fatalf("expected table %s: %v", table, err)
		}
	}
}

func TestOpenIsRepeatable(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	s.Close()

	s, err = Open(dbPath)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	s.Close()
}

func TestMigrateAddsProjectColumn(t *testing.T) {
	s := tempStore(t)
	db := s.DB()
	if _, err := db.Exec(`DROP TABLE assignments`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`CREATE TABLE assignments (id TEXT PRIMARY KEY, task_id TEXT NOT NULL, member_id TEXT NOT NULL, created_at DATETIME NOT NULL DEFAULT (datetime('now')))`); err != nil {
		t.Fatal(err)
	}
	seedTask(t, s, "t1", "proj")
	if _, err := db.Exec(`INSERT INTO assignments (id, task_id, member_id) VALUES ('a1', 't1', 'ada')`); err != nil {
		t.Fatal(err)
	}

	if err := migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	records, err := s.ListAssignments(context.Background(), "proj")
	if err != nil {
		t.Fatalf("ListAssignments: %v", err)
	}
	if len(records) != 1 || records[0].ID != "a1" || records[0].Project != "proj" {
		t.Fatalf("expected backfilled record, got %+v", records)
	}
}

func TestAssignmentLifecycle(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	seedTask(t, s, "t1", "proj")
	seedTask(t, s, "t2", "proj")

	a1, err := s.CreateAssignment(ctx, "t1", "ada")
	if err != nil {
		t.Fatalf("CreateAssignment: %v", err)
	}
	if a1.ID == "" || a1.Project != "proj" {
		t.Fatalf("unexpected record: %+v", a1)
	}
	a2, err := s.CreateAssignment(ctx, "t1", "bob")
	if err != nil {
		t.Fatalf("CreateAssignment: %v", err)
	}
	if a1.ID == a2.ID {
		t.Fatal("expected distinct ids")
	}
	if _, err := s.CreateAssignment(ctx, "t2", "ada"); err != nil {
		t.Fatalf("CreateAssignment: %v", err)
	}

	forTask, err := s.ListTaskAssignments(ctx, "t1")
	if err != nil {
		t.Fatalf("ListTaskAssignments: %v", err)
	}
	if len(forTask) != 2 || forTask[0].MemberID != "ada" || forTask[1].MemberID != "bob" {
		t.Fatalf("unexpected task records: %+v", forTask)
	}

	all, err := s.ListAssignments(ctx, "proj")
	if err != nil {
		t.Fatalf("ListAssignments: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}

	if err := s.DeleteAssignment(ctx, a1.ID); err != nil {
		t.Fatalf("DeleteAssignment: %v", err)
	}
	if err := s.DeleteAssignment(ctx, a1.ID); !errors.Is(err, ErrAssignmentNotFound) {
		t.Fatalf("expected ErrAssignmentNotFound, got %v", err)
	}

	if err := s.RestoreAssignment(ctx, a1); err != nil {
		t.Fatalf("RestoreAssignment: %v", err)
	}
	forTask, _ = s.ListTaskAssignments(ctx, "t1")
	if len(forTask) != 2 {
		t.Fatalf("expected restored record, got %+v", forTask)
	}
}

func TestCreateAssignment_UnknownTask(t *testing.T) {
	s := tempStore(t)
	_, err := s.CreateAssignment(context.Background(), "missing", "ada")
	if !errors.Is(err, graph.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestDeleteTaskCascadesAssignments(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	seedTask(t, s, "t1", "proj")
	if _, err := s.CreateAssignment(ctx, "t1", "ada"); err != nil {
		t.Fatal(err)
	}
	if err := s.Tasks().DeleteTask(ctx, "t1"); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	records, err := s.ListAssignments(ctx, "proj")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Fatalf("expected cascade delete, got %+v", records)
	}
}

func TestListProjects(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	seedTask(t, s, "t1", "beta")
	if _, err := s.Roster().AddMember(ctx, team.Member{ID: "ada", Project: "alpha"}); err != nil {
		t.Fatal(err)
	}
	seedTask(t, s, "t2", "beta")

	projects, err := s.ListProjects(ctx)
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(projects) != 2 || projects[0] != "alpha" || projects[1] != "beta" {
		t.Fatalf("unexpected projects: %v", projects)
	}
}
