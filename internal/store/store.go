// Package store owns the planboard SQLite database: tasks, dependency edges,
// project members and task assignment records.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/antigravity-dev/planboard/internal/graph"
	"github.com/antigravity-dev/planboard/internal/team"

	_ "modernc.org/sqlite"
)

// Store wraps a SQLite database for planboard state.
type Store struct {
	db     *sql.DB
	tasks  *graph.DAG
	roster *team.Roster
}

const schema = `
CREATE TABLE IF NOT EXISTS assignments (
	id TEXT PRIMARY KEY,
	project TEXT NOT NULL DEFAULT '',
	task_id TEXT NOT NULL,
	member_id TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_assignments_task ON assignments(task_id);
`

// Open creates or opens a SQLite database at the given path and ensures the schema exists.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dbPath, err)
	}

	ctx := context.Background()
	tasks := graph.NewDAG(db)
	if err := tasks.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create task schema: %w", err)
	}
	roster := team.NewRoster(db)
	if err := roster.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create roster schema: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	// Run migrations for existing databases
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Store{db: db, tasks: tasks, roster: roster}, nil
}

// migrate applies incremental schema migrations for existing databases.
func migrate(db *sql.DB) error {
	// Assignments created before projects were tracked per record.
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('assignments') WHERE name = 'project'`).Scan(&count)
	if err != nil {
		return fmt.Errorf("check project column: %w", err)
	}
	if count == 0 {
		if _, err := db.Exec(`ALTER TABLE assignments ADD COLUMN project TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("add project column: %w", err)
		}
		if _, err := db.Exec(`UPDATE assignments SET project = COALESCE((SELECT project FROM tasks WHERE tasks.id = assignments.task_id), '')`); err != nil {
			return fmt.Errorf("backfill assignment project: %w", err)
		}
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_assignments_project ON assignments(project)`); err != nil {
		return fmt.Errorf("create assignments project index: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Tasks returns the task and dependency edge store.
func (s *Store) Tasks() *graph.DAG {
	return s.tasks
}

// Roster returns the project member store.
func (s *Store) Roster() *team.Roster {
	return s.roster
}

// ListProjects returns every project that has tasks or members, sorted by name.
func (s *Store) ListProjects(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT project FROM tasks UNION SELECT project FROM members ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("store: list projects: %w", err)
	}
	defer rows.Close()

	var projects []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("store: scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}
