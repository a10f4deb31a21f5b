package graph

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register sqlite3 driver
)

const (
	pragmaJournalModeWAL = `PRAGMA journal_mode = WAL;`
	pragmaForeignKeysOn  = `PRAGMA foreign_keys = ON;`
)

const (
	taskColumns = `id, project, title, category, completed, duration_hours, start_time, assignee, created_at, updated_at`
)

const (
	taskTableSchema = `CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		project TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT 'feature',
		completed INTEGER NOT NULL DEFAULT 0,
		duration_hours REAL NOT NULL DEFAULT 1,
		start_time TEXT NOT NULL DEFAULT '',
		assignee TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);`

	taskEdgesSchema = `CREATE TABLE IF NOT EXISTS task_edges (
		from_task TEXT NOT NULL,
		to_task TEXT NOT NULL,
		project TEXT NOT NULL,
		PRIMARY KEY (from_task, to_task),
		FOREIGN KEY (from_task) REFERENCES tasks(id) ON DELETE CASCADE,
		FOREIGN KEY (to_task) REFERENCES tasks(id) ON DELETE CASCADE
	);`

	taskProjectIndex = `CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project);`
)

const (
	insertTaskSQL = `INSERT INTO tasks (
		id,
		project,
		title,
		category,
		completed,
		duration_hours,
		start_time,
		assignee,
		created_at,
		updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`

	getTaskSQL = `SELECT ` + taskColumns + `
		FROM tasks
		WHERE id = ?;`

	listTasksSQL = `SELECT ` + taskColumns + `
		FROM tasks
		WHERE project = ?
		ORDER BY created_at ASC, id ASC;`

	deleteTaskSQL = `DELETE FROM tasks WHERE id = ?;`

	insertEdgeSQL        = `INSERT OR IGNORE INTO task_edges (from_task, to_task, project) VALUES (?, ?, ?);`
	deleteEdgeSQL        = `DELETE FROM task_edges WHERE from_task = ? AND to_task = ?;`
	listEdgesSQL         = `SELECT from_task, to_task FROM task_edges WHERE project = ? ORDER BY rowid ASC;`
	selectTaskProjectSQL = `SELECT project FROM tasks WHERE id = ?;`
	cycleCheckSQL        = `
		WITH RECURSIVE reachable(task_id) AS (
			SELECT to_task FROM task_edges WHERE from_task = ?
			UNION
			SELECT e.to_task
			FROM task_edges e
			INNER JOIN reachable r ON e.from_task = r.task_id
		)
		SELECT 1 FROM reachable WHERE task_id = ? LIMIT 1;`
)

const (
	maxTaskIDAttempts = 10
)

var updatableColumns = map[string]struct{}{
	"title":          {},
	"category":       {},
	"completed":      {},
	"duration_hours": {},
	"start_time":     {},
	"assignee":       {},
}

// ErrTaskNotFound is returned when a task id does not exist.
var ErrTaskNotFound = errors.New("graph: task not found")

type rowScanner interface {
	Scan(dest ...any) error
}

// DAG persists tasks and dependency edges in sqlite. It stores edges as plain
// data: cycles are tolerated here and resolved by TopoOrder at schedule time.
type DAG struct {
	db *sql.DB
}

func NewDAG(db *sql.DB) *DAG {
	return &DAG{db: db}
}

func (d *DAG) EnsureSchema(ctx context.Context) error {
	if d == nil || d.db == nil {
		return fmt.Errorf("graph: DAG is not initialized")
	}

	ctx = sanitizeContext(ctx)
	if _, err := execContext(ctx, d.db, pragmaJournalModeWAL); err != nil {
		return fmt.Errorf("set journal mode WAL: %w", err)
	}
	if _, err := execContext(ctx, d.db, pragmaForeignKeysOn); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := execContext(ctx, d.db, taskTableSchema); err != nil {
		return fmt.Errorf("create tasks table: %w", err)
	}
	if _, err := execContext(ctx, d.db, taskEdgesSchema); err != nil {
		return fmt.Errorf("create task_edges table: %w", err)
	}
	if _, err := execContext(ctx, d.db, taskProjectIndex); err != nil {
		return fmt.Errorf("create tasks index: %w", err)
	}
	return nil
}

func (d *DAG) generateTaskID(project string) (string, error) {
	project = strings.TrimSpace(project)
	if project == "" {
		return "", fmt.Errorf("project is required")
	}
	const maxSuffix = int64(0x1000000) // 16^6
	n, err := rand.Int(rand.Reader, big.NewInt(maxSuffix))
	if err != nil {
		return "", fmt.Errorf("generate task ID: %w", err)
	}
	return fmt.Sprintf("%s-%06x", project, n), nil
}

func sanitizeContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// CreateTask inserts a task and returns its ID. When task.ID is empty an ID of
// the form {project}-{6 hex} is generated.
func (d *DAG) CreateTask(ctx context.Context, task Task) (string, error) {
	if d == nil || d.db == nil {
		return "", fmt.Errorf("graph: DAG is not initialized")
	}
	project := strings.TrimSpace(task.Project)
	if project == "" {
		return "", fmt.Errorf("project is required")
	}
	if task.DurationHours <= 0 {
		return "", fmt.Errorf("graph: duration must be positive, got %v", task.DurationHours)
	}
	if task.StartTime != "" {
		if _, err := ParseClock(task.StartTime); err != nil {
			return "", err
		}
	}

	category := NormalizeCategory(string(task.Category))
	now := time.Now().UTC()

	insert := func(id string) error {
		_, err := execContext(ctx, d.db, insertTaskSQL,
			id,
			project,
			task.Title,
			string(category),
			boolToInt(task.Completed),
			task.DurationHours,
			strings.TrimSpace(task.StartTime),
			task.Assignee,
			now,
			now,
		)
		return err
	}

	if id := strings.TrimSpace(task.ID); id != "" {
		if err := insert(id); err != nil {
			return "", fmt.Errorf("create task: %w", err)
		}
		return id, nil
	}

	for attempt := 0; attempt < maxTaskIDAttempts; attempt++ {
		id, err := d.generateTaskID(project)
		if err != nil {
			return "", err
		}
		err = insert(id)
		if err == nil {
			return id, nil
		}
		if !isUniqueTaskIDError(err) {
			return "", fmt.Errorf("create task: %w", err)
		}
	}

	return "", fmt.Errorf("create task: exceeded maximum id generation attempts (%d)", maxTaskIDAttempts)
}

func (d *DAG) GetTask(ctx context.Context, id string) (Task, error) {
	if d == nil || d.db == nil {
		return Task{}, fmt.Errorf("graph: DAG is not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Task{}, fmt.Errorf("id is required")
	}

	row := queryRowContext(ctx, d.db, getTaskSQL, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Task{}, fmt.Errorf("task %q: %w", id, ErrTaskNotFound)
		}
		return Task{}, err
	}
	return task, nil
}

func (d *DAG) ListTasks(ctx context.Context, project string) ([]Task, error) {
	if d == nil || d.db == nil {
		return nil, fmt.Errorf("graph: DAG is not initialized")
	}
	project = strings.TrimSpace(project)
	if project == "" {
		return nil, fmt.Errorf("project is required")
	}

	rows, err := queryContext(ctx, d.db, listTasksSQL, project)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]Task, 0)
	for rows.Next() {
		task, scanErr := scanTask(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan task: %w", scanErr)
		}
		tasks = append(tasks, task)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("list tasks: %w", rowsErr)
	}
	return tasks, nil
}

// UpdateTask applies a partial update of the mutable task fields: title,
// category, completed, duration_hours, start_time and assignee.
func (d *DAG) UpdateTask(ctx context.Context, id string, fields map[string]any) error {
	if d == nil || d.db == nil {
		return fmt.Errorf("graph: DAG is not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("id is required")
	}
	if len(fields) == 0 {
		return nil
	}

	type updateField struct {
		column string
		value  any
	}

	assignments := make([]updateField, 0, len(fields))
	for rawKey, rawValue := range fields {
		key := strings.TrimSpace(strings.ToLower(rawKey))
		if _, ok := updatableColumns[key]; !ok {
			return fmt.Errorf("graph: field %q is not updatable", rawKey)
		}

		switch key {
		case "title", "assignee":
			assignments = append(assignments, updateField{column: key, value: coerceString(rawValue)})
		case "category":
			assignments = append(assignments, updateField{column: key, value: string(NormalizeCategory(coerceString(rawValue)))})
		case "completed":
			done, err := coerceBool(rawValue)
			if err != nil {
				return err
			}
			assignments = append(assignments, updateField{column: key, value: boolToInt(done)})
		case "duration_hours":
			hours, err := coerceFloat(rawValue)
			if err != nil {
				return err
			}
			if hours <= 0 {
				return fmt.Errorf("graph: duration must be positive, got %v", hours)
			}
			assignments = append(assignments, updateField{column: key, value: hours})
		case "start_time":
			start := strings.TrimSpace(coerceString(rawValue))
			if start != "" {
				if _, err := ParseClock(start); err != nil {
					return err
				}
			}
			assignments = append(assignments, updateField{column: key, value: start})
		}
	}

	sort.Slice(assignments, func(i, j int) bool {
		return assignments[i].column < assignments[j].column
	})

	setClauses := make([]string, len(assignments))
	args := make([]any, 0, len(assignments)+2)
	for i := range assignments {
		setClauses[i] = fmt.Sprintf("%s = ?", assignments[i].column)
		args = append(args, assignments[i].value)
	}
	now := time.Now().UTC()
	args = append(args, now, id)

	query := fmt.Sprintf("UPDATE tasks SET %s, updated_at = ? WHERE id = ?;", strings.Join(setClauses, ", "))
	result, err := execContext(ctx, d.db, query, args...)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("task %q: %w", id, ErrTaskNotFound)
	}

	return nil
}

// SetStartTimes writes computed start times in one transaction.
func (d *DAG) SetStartTimes(ctx context.Context, changes []Change) error {
	if d == nil || d.db == nil {
		return fmt.Errorf("graph: DAG is not initialized")
	}
	if len(changes) == 0 {
		return nil
	}

	ctx = sanitizeContext(ctx)
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin start time update: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := time.Now().UTC()
	for _, c := range changes {
		if _, err := tx.ExecContext(ctx, `UPDATE tasks SET start_time = ?, updated_at = ? WHERE id = ?;`, c.To, now, c.TaskID); err != nil {
			return fmt.Errorf("update start time %s: %w", c.TaskID, err)
		}
	}
	return tx.Commit()
}

func (d *DAG) DeleteTask(ctx context.Context, id string) error {
	if d == nil || d.db == nil {
		return fmt.Errorf("graph: DAG is not initialized")
	}
	result, err := execContext(ctx, d.db, deleteTaskSQL, strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("task %q: %w", id, ErrTaskNotFound)
	}
	return nil
}

// AddEdge records that to depends on from. Both tasks must exist in the same
// project. Self-loops are rejected; longer cycles are accepted and can be
// detected beforehand with WouldCycle.
func (d *DAG) AddEdge(ctx context.Context, from, to string) error {
	if d == nil || d.db == nil {
		return fmt.Errorf("graph: DAG is not initialized")
	}
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if from == "" {
		return fmt.Errorf("from task id is required")
	}
	if to == "" {
		return fmt.Errorf("to task id is required")
	}
	if from == to {
		return fmt.Errorf("graph: self-loop edges are not allowed")
	}

	fromProject, err := d.taskProject(ctx, from)
	if err != nil {
		return err
	}
	toProject, err := d.taskProject(ctx, to)
	if err != nil {
		return err
	}
	if fromProject != toProject {
		return fmt.Errorf("graph: cross-project dependencies are not allowed")
	}

	_, err = execContext(ctx, d.db, insertEdgeSQL, from, to, fromProject)
	return err
}

func (d *DAG) RemoveEdge(ctx context.Context, from, to string) error {
	if d == nil || d.db == nil {
		return fmt.Errorf("graph: DAG is not initialized")
	}
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if from == "" {
		return fmt.Errorf("from task id is required")
	}
	if to == "" {
		return fmt.Errorf("to task id is required")
	}

	_, err := execContext(ctx, d.db, deleteEdgeSQL, from, to)
	return err
}

func (d *DAG) ListEdges(ctx context.Context, project string) ([]Edge, error) {
	if d == nil || d.db == nil {
		return nil, fmt.Errorf("graph: DAG is not initialized")
	}
	project = strings.TrimSpace(project)
	if project == "" {
		return nil, fmt.Errorf("project is required")
	}

	rows, err := queryContext(ctx, d.db, listEdgesSQL, project)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	defer rows.Close()

	edges := make([]Edge, 0)
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.From, &e.To); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	return edges, nil
}

// WouldCycle reports whether adding from -> to would close a dependency cycle.
func (d *DAG) WouldCycle(ctx context.Context, from, to string) (bool, error) {
	if d == nil || d.db == nil {
		return false, fmt.Errorf("graph: DAG is not initialized")
	}
	if from == to {
		return true, nil
	}
	var marker int
	err := queryRowContext(ctx, d.db, cycleCheckSQL, to, from).Scan(&marker)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("cycle check: %w", err)
	}
	return false, nil
}

func (d *DAG) taskProject(ctx context.Context, id string) (string, error) {
	row := queryRowContext(ctx, d.db, selectTaskProjectSQL, id)
	var project string
	if err := row.Scan(&project); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("graph: task %q: %w", id, ErrTaskNotFound)
		}
		return "", fmt.Errorf("lookup task %q project: %w", id, err)
	}
	return project, nil
}

func scanTask(scanner rowScanner) (Task, error) {
	var task Task
	var category string
	var completed int

	if err := scanner.Scan(
		&task.ID,
		&task.Project,
		&task.Title,
		&category,
		&completed,
		&task.DurationHours,
		&task.StartTime,
		&task.Assignee,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return Task{}, err
	}
	task.Category = Category(category)
	task.Completed = completed != 0
	return task, nil
}

func queryContext(ctx context.Context, db *sql.DB, query string, args ...any) (*sql.Rows, error) {
	return db.QueryContext(sanitizeContext(ctx), query, args...)
}

func queryRowContext(ctx context.Context, db *sql.DB, query string, args ...any) *sql.Row {
	return db.QueryRowContext(sanitizeContext(ctx), query, args...)
}

func execContext(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	return db.ExecContext(sanitizeContext(ctx), query, args...)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func coerceString(value any) string {
	if value == nil {
		return ""
	}
	return fmt.Sprintf("%v", value)
}

func coerceBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no", "":
			return false, nil
		}
	}
	return false, fmt.Errorf("value is not a boolean: %v", value)
}

func coerceFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("value is not a number: %T", value)
	}
}

func isUniqueTaskIDError(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "unique constraint failed") && strings.Contains(text, "tasks.id")
}
