// Package server exposes a Maestro agent over the A2A HTTP protocol.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maestro-a2a/maestro/pkg/a2a"
	"github.com/maestro-a2a/maestro/pkg/capability"
	"github.com/maestro-a2a/maestro/pkg/registry"
)

// Card is the agent's public identity served at /v1/card.
type Card struct {
	Name            string             `json:"name"`
	Description     string             `json:"description,omitempty"`
	Version         string             `json:"version,omitempty"`
	ProtocolVersion string             `json:"protocolVersion"`
	Skills          []capability.Skill `json:"skills,omitempty"`
}

// TaskStore keeps completed tasks addressable by id. The bundled store is
// in-memory; durable storage plugs in behind this interface.
type TaskStore interface {
	Put(task *a2a.Task) error
	Get(taskID string) (*a2a.Task, bool)
}

// MemoryTaskStore is the in-memory TaskStore. State does not survive a
// restart.
type MemoryTaskStore struct {
	tasks *registry.SnapshotRegistry[*a2a.Task]
}

// NewMemoryTaskStore creates an empty store.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{tasks: registry.New[*a2a.Task]()}
}

// Put stores or replaces a task.
func (s *MemoryTaskStore) Put(task *a2a.Task) error {
	return s.tasks.Put(task.ID, task)
}

// Get returns the task stored under taskID.
func (s *MemoryTaskStore) Get(taskID string) (*a2a.Task, bool) {
	return s.tasks.Get(taskID)
}

// Server is the agent HTTP server.
type Server struct {
	card     Card
	boundary *Boundary
	store    TaskStore
	router   chi.Router
	httpSrv  *http.Server
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithTaskStore replaces the task store.
func WithTaskStore(store TaskStore) ServerOption {
	return func(s *Server) { s.store = store }
}

// NewServer creates the agent server.
func NewServer(card Card, boundary *Boundary, opts ...ServerOption) *Server {
	if card.ProtocolVersion == "" {
		card.ProtocolVersion = a2a.ProtocolVersion
	}

	s := &Server{
		card:     card,
		boundary: boundary,
		store:    NewMemoryTaskStore(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/v1/tasks/send", s.handleSendTask)
	r.Get("/v1/tasks/{id}", s.handleGetTask)
	r.Get("/v1/card", s.handleCard)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	s.router = r

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is canceled, then drains with a
// short grace period.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.httpSrv = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Agent server listening", "addr", addr, "agent", s.card.Name)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleSendTask(w http.ResponseWriter, r *http.Request) {
	var params a2a.SendTaskParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid send params: "+err.Error())
		return
	}

	taskID := params.TaskID
	if taskID == "" {
		taskID = uuid.NewString()
	}

	task := s.boundary.Handle(r.Context(), taskID, params.SessionID, params.Message)
	if err := s.store.Put(task); err != nil {
		slog.Error("Failed to store task", "task", taskID, "error", err)
	}

	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	task, ok := s.store.Get(taskID)
	if !ok {
		writeError(w, http.StatusNotFound, "task not found: "+taskID)
		return
	}

	historyLength := 0
	if raw := r.URL.Query().Get("historyLength"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid historyLength")
			return
		}
		historyLength = n
	}

	writeJSON(w, http.StatusOK, trimHistory(task, historyLength))
}

func (s *Server) handleCard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.card)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// trimHistory returns a copy of the task with at most n trailing history
// messages; n == 0 drops history entirely.
func trimHistory(task *a2a.Task, n int) *a2a.Task {
	trimmed := *task
	switch {
	case n == 0:
		trimmed.History = nil
	case len(task.History) > n:
		trimmed.History = task.History[len(task.History)-n:]
	}
	return &trimmed
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
