// Package api provides the HTTP JSON API over schedules and boards.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/antigravity-dev/planboard/internal/board"
	"github.com/antigravity-dev/planboard/internal/config"
	"github.com/antigravity-dev/planboard/internal/graph"
	"github.com/antigravity-dev/planboard/internal/planner"
	"github.com/antigravity-dev/planboard/internal/store"
)

// Server is the HTTP API server.
type Server struct {
	cfg        config.Source
	store      *store.Store
	planner    *planner.Service
	boards     map[string]*board.Coordinator
	logger     *slog.Logger
	startTime  time.Time
	httpServer *http.Server

	mu       sync.Mutex
	sessions map[string]*planner.Session
}

// NewServer creates a new API server. boards holds one coordinator per
// project whose board is served; projects without one only expose tasks,
// edges and schedules.
func NewServer(cfg config.Source, st *store.Store, svc *planner.Service, boards []*board.Coordinator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	byProject := make(map[string]*board.Coordinator, len(boards))
	for _, c := range boards {
		byProject[c.Project()] = c
	}
	return &Server{
		cfg:       cfg,
		store:     st,
		planner:   svc,
		boards:    byProject,
		logger:    logger.With("component", "api"),
		startTime: time.Now(),
		sessions:  make(map[string]*planner.Session),
	}
}

// Handler returns the routed mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /projects", s.handleProjects)

	mux.HandleFunc("GET /projects/{project}/tasks", s.handleListTasks)
	mux.HandleFunc("POST /projects/{project}/tasks", s.handleCreateTask)
	mux.HandleFunc("PATCH /projects/{project}/tasks/{id}", s.handlePatchTask)
	mux.HandleFunc("POST /projects/{project}/tasks/{id}/completed", s.handleSetCompleted)

	mux.HandleFunc("POST /projects/{project}/edges", s.handleAddEdge)
	mux.HandleFunc("DELETE /projects/{project}/edges", s.handleRemoveEdge)

	mux.HandleFunc("POST /projects/{project}/schedule", s.handleSchedule)

	mux.HandleFunc("GET /projects/{project}/board", s.handleBoard)
	mux.HandleFunc("POST /projects/{project}/board/move", s.handleMove)

	return mux
}

// Start begins listening on the configured bind address. Blocks until context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	bind := s.cfg.Get().API.Bind
	s.httpServer = &http.Server{
		Addr:              bind,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutCtx)
	}()

	s.logger.Info("api server starting", "bind", bind)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSONStatus(w, code, map[string]string{"error": msg})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// project resolves the {project} path value against the live config and
// writes a 404 when it is unknown.
func (s *Server) project(w http.ResponseWriter, r *http.Request) (string, config.Project, bool) {
	name := r.PathValue("project")
	proj, ok := s.cfg.Get().Projects[name]
	if !ok {
		writeError(w, http.StatusNotFound, "project not found")
		return "", config.Project{}, false
	}
	return name, proj, true
}

// projectTask loads a task and checks that it belongs to the project.
func (s *Server) projectTask(w http.ResponseWriter, r *http.Request, project, id string) (graph.Task, bool) {
	task, err := s.store.Tasks().GetTask(r.Context(), id)
	if err != nil {
		if errors.Is(err, graph.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return graph.Task{}, false
	}
	if task.Project != project {
		writeError(w, http.StatusNotFound, "task not found")
		return graph.Task{}, false
	}
	return task, true
}

// recalculate re-runs the propagator and reloads the project's board so it
// shows the new start times.
func (s *Server) recalculate(ctx context.Context, name string, proj config.Project) (graph.Schedule, error) {
	sched, err := s.planner.Recalculate(ctx, name, proj.PropagateOptions())
	if err != nil {
		return graph.Schedule{}, err
	}
	s.refreshBoard(ctx, name)
	return sched, nil
}

func (s *Server) refreshBoard(ctx context.Context, name string) {
	coord, ok := s.boards[name]
	if !ok {
		return
	}
	if _, err := coord.Refresh(ctx); err != nil {
		s.logger.Warn("board refresh failed", "project", name, "error", err)
	}
}

func (s *Server) session(name string, proj config.Project) *planner.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[name]
	if !ok {
		sess = planner.NewSession(name, proj.PropagateOptions())
		s.sessions[name] = sess
	}
	return sess
}

// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	healthy := true
	dbErr := ""
	if err := s.store.DB().PingContext(r.Context()); err != nil {
		healthy = false
		dbErr = err.Error()
	}

	resp := map[string]any{
		"healthy":  healthy,
		"uptime_s": time.Since(s.startTime).Seconds(),
		"boards":   len(s.boards),
	}
	if dbErr != "" {
		resp["db_error"] = dbErr
	}
	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSONStatus(w, code, resp)
}

// GET /projects
func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	type projectInfo struct {
		Name      string `json:"name"`
		Enabled   bool   `json:"enabled"`
		StartTime string `json:"start_time"`
		StartTask string `json:"start_task"`
		BoardMode string `json:"board_mode"`
		Board     bool   `json:"board"`
	}
	cfg := s.cfg.Get()
	projects := make([]projectInfo, 0, len(cfg.Projects))
	for name, proj := range cfg.Projects {
		_, hasBoard := s.boards[name]
		projects = append(projects, projectInfo{
			Name:      name,
			Enabled:   proj.Enabled,
			StartTime: proj.StartTime,
			StartTask: proj.StartTask,
			BoardMode: string(proj.Mode()),
			Board:     hasBoard,
		})
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })
	writeJSON(w, projects)
}

// GET /projects/{project}/tasks
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	name, _, ok := s.project(w, r)
	if !ok {
		return
	}
	tasks, err := s.store.Tasks().ListTasks(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, tasks)
}

type createTaskRequest struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Category      string  `json:"category"`
	DurationHours float64 `json:"duration_hours"`
	StartTime     string  `json:"start_time"`
	Assignee      string  `json:"assignee"`
}

// POST /projects/{project}/tasks
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	name, _, ok := s.project(w, r)
	if !ok {
		return
	}
	var req createTaskRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	id, err := s.store.Tasks().CreateTask(r.Context(), graph.Task{
		ID:            req.ID,
		Project:       name,
		Title:         req.Title,
		Category:      graph.Category(req.Category),
		DurationHours: req.DurationHours,
		StartTime:     req.StartTime,
		Assignee:      req.Assignee,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	task, err := s.store.Tasks().GetTask(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.refreshBoard(r.Context(), name)
	s.logger.Info("task created", "project", name, "task", id)
	writeJSONStatus(w, http.StatusCreated, task)
}

// PATCH /projects/{project}/tasks/{id}
func (s *Server) handlePatchTask(w http.ResponseWriter, r *http.Request) {
	name, proj, ok := s.project(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if _, ok := s.projectTask(w, r, name, id); !ok {
		return
	}

	var fields map[string]any
	if err := decodeBody(r, &fields); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.Tasks().UpdateTask(r.Context(), id, fields); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := map[string]any{}
	_, durationChanged := fields["duration_hours"]
	_, startChanged := fields["start_time"]
	if durationChanged || startChanged {
		sched, err := s.recalculate(r.Context(), name, proj)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp["changes"] = sched.Changes
		resp["warnings"] = sched.Anomalies
	} else {
		s.refreshBoard(r.Context(), name)
	}

	task, err := s.store.Tasks().GetTask(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp["task"] = task
	writeJSON(w, resp)
}

type edgeRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// POST /projects/{project}/edges
func (s *Server) handleAddEdge(w http.ResponseWriter, r *http.Request) {
	name, proj, ok := s.project(w, r)
	if !ok {
		return
	}
	var req edgeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, ok := s.projectTask(w, r, name, req.From); !ok {
		return
	}
	if _, ok := s.projectTask(w, r, name, req.To); !ok {
		return
	}

	var warnings []graph.Anomaly
	cycle, err := s.store.Tasks().WouldCycle(r.Context(), req.From, req.To)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if cycle {
		warnings = append(warnings, graph.Anomaly{Kind: graph.AnomalyCycle, From: req.From, To: req.To})
	}
	if err := s.store.Tasks().AddEdge(r.Context(), req.From, req.To); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sched, err := s.recalculate(r.Context(), name, proj)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSONStatus(w, http.StatusCreated, map[string]any{
		"changes":  sched.Changes,
		"warnings": append(warnings, sched.Anomalies...),
	})
}

// DELETE /projects/{project}/edges?from=&to=
func (s *Server) handleRemoveEdge(w http.ResponseWriter, r *http.Request) {
	name, proj, ok := s.project(w, r)
	if !ok {
		return
	}
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}
	if _, ok := s.projectTask(w, r, name, from); !ok {
		return
	}
	if _, ok := s.projectTask(w, r, name, to); !ok {
		return
	}
	if err := s.store.Tasks().RemoveEdge(r.Context(), from, to); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sched, err := s.recalculate(r.Context(), name, proj)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]any{"changes": sched.Changes, "warnings": sched.Anomalies})
}

// POST /projects/{project}/schedule
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	name, proj, ok := s.project(w, r)
	if !ok {
		return
	}
	sched, err := s.recalculate(r.Context(), name, proj)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]any{
		"changes":  sched.Changes,
		"slots":    sched.Slots,
		"warnings": sched.Anomalies,
	})
}

// coordinator returns the project's board coordinator, loading it and
// running the initial schedule the first time the project is opened.
func (s *Server) coordinator(w http.ResponseWriter, r *http.Request) (*board.Coordinator, bool) {
	name, proj, ok := s.project(w, r)
	if !ok {
		return nil, false
	}
	coord, ok := s.boards[name]
	if !ok {
		writeError(w, http.StatusNotFound, "board not enabled for project")
		return nil, false
	}

	if _, ran, err := s.session(name, proj).EnsureScheduled(r.Context(), s.planner); err != nil {
		s.logger.Warn("initial schedule failed", "project", name, "error", err)
	} else if ran {
		s.refreshBoard(r.Context(), name)
	}
	if len(coord.Board().Columns) == 0 {
		if _, err := coord.Refresh(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return nil, false
		}
	}
	return coord, true
}

func boardErrorStatus(err error) int {
	switch {
	case errors.Is(err, board.ErrTaskNotOnBoard), errors.Is(err, board.ErrUnknownColumn):
		return http.StatusNotFound
	case errors.Is(err, board.ErrMoveFailed), errors.Is(err, board.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, board.ErrNotLoaded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// GET /projects/{project}/board
func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	coord, ok := s.coordinator(w, r)
	if !ok {
		return
	}
	writeJSON(w, coord.Board())
}

type moveRequest struct {
	TaskID string `json:"task_id"`
	Column string `json:"column"`
}

// POST /projects/{project}/board/move
func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	coord, ok := s.coordinator(w, r)
	if !ok {
		return
	}
	var req moveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := coord.Move(r.Context(), req.TaskID, req.Column); err != nil {
		writeJSONStatus(w, boardErrorStatus(err), map[string]any{
			"error": err.Error(),
			"board": coord.Board(),
		})
		return
	}
	writeJSON(w, coord.Board())
}

type completedRequest struct {
	Completed bool `json:"completed"`
}

// POST /projects/{project}/tasks/{id}/completed
func (s *Server) handleSetCompleted(w http.ResponseWriter, r *http.Request) {
	coord, ok := s.coordinator(w, r)
	if !ok {
		return
	}
	var req completedRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := coord.SetCompleted(r.Context(), r.PathValue("id"), req.Completed); err != nil {
		writeJSONStatus(w, boardErrorStatus(err), map[string]any{
			"error": err.Error(),
			"board": coord.Board(),
		})
		return
	}
	writeJSON(w, coord.Board())
}
