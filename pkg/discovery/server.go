package discovery

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/maestro-a2a/maestro/pkg/capability"
	"github.com/maestro-a2a/maestro/pkg/registry"
)

// Server is the discovery service: an in-memory agent directory behind a
// small HTTP API. State does not survive a restart; agents re-register on
// their own startup.
type Server struct {
	agents *registry.SnapshotRegistry[*capability.AgentDefinition]
	router chi.Router
}

// NewServer creates an empty discovery service.
func NewServer() *Server {
	s := &Server{
		agents: registry.New[*capability.AgentDefinition](),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/register", s.handleRegister)
	r.Post("/deregister", s.handleDeregister)
	r.Get("/agents", s.handleListAgents)
	r.Get("/agents/search", s.handleSearch)
	r.Get("/health", s.handleHealth)
	s.router = r

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var def capability.AgentDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent definition: "+err.Error())
		return
	}
	if def.ID == "" || def.EndpointURL == "" {
		writeError(w, http.StatusBadRequest, "agent definition requires id and endpoint_url")
		return
	}

	// Re-registration replaces the previous entry, so a restarted agent
	// refreshes its own record.
	if err := s.agents.Put(def.ID, &def); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	slog.Info("Agent registered", "agent", def.ID, "endpoint", def.EndpointURL)
	writeJSON(w, http.StatusCreated, map[string]string{"id": def.ID})
}

func (s *Server) handleDeregister(w http.ResponseWriter, r *http.Request) {
	var def capability.AgentDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil || def.ID == "" {
		writeError(w, http.StatusBadRequest, "deregister requires an agent definition with an id")
		return
	}

	if err := s.agents.Remove(def.ID); err != nil {
		writeError(w, http.StatusNotFound, "agent not registered: "+def.ID)
		return
	}

	slog.Info("Agent deregistered", "agent", def.ID)
	writeJSON(w, http.StatusOK, map[string]string{"id": def.ID})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sortedAgents(""))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	skill := r.URL.Query().Get("skill")
	if skill == "" {
		writeError(w, http.StatusBadRequest, "search requires a skill parameter")
		return
	}
	writeJSON(w, http.StatusOK, s.sortedAgents(skill))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"agents": s.agents.Len(),
	})
}

// sortedAgents returns registered agents in id order, optionally filtered by
// exact skill name.
func (s *Server) sortedAgents(skill string) []*capability.AgentDefinition {
	snapshot := s.agents.Snapshot()
	out := make([]*capability.AgentDefinition, 0, len(snapshot))
	for _, id := range s.agents.Names() {
		agent := snapshot[id]
		if skill != "" && !agent.HasSkill(skill) {
			continue
		}
		out = append(out, agent)
	}
	return out
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
