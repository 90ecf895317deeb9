package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/evidence-cli/internal/model"
)

func (s *Server) agentsEnabled(w http.ResponseWriter) bool {
	if s.svc.Agents == nil {
		writeError(w, http.StatusServiceUnavailable, "text generation is not configured", nil)
		return false
	}
	return true
}

func (s *Server) createAgent(w http.ResponseWriter, r *http.Request) {
	if !s.agentsEnabled(w) {
		return
	}
	var body model.Agent
	if !decode(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Name) == "" || strings.TrimSpace(body.SystemPrompt) == "" {
		writeError(w, http.StatusBadRequest, "name and system_prompt are required", nil)
		return
	}
	if body.Temperature < 0 || body.Temperature > 1 {
		writeError(w, http.StatusBadRequest, "temperature must be between 0 and 1", nil)
		return
	}
	a, err := s.svc.Agents.CreateAgent(r.Context(), body, userFrom(r))
	if err != nil {
		fail(w, "create agent failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) executeAgent(w http.ResponseWriter, r *http.Request) {
	if !s.agentsEnabled(w) {
		return
	}
	var body struct {
		Input string `json:"input"`
	}
	if !decode(w, r, &body) {
		return
	}
	exec, err := s.svc.Agents.Execute(r.Context(), chi.URLParam(r, "agentID"), userFrom(r), body.Input)
	if err != nil {
		fail(w, "execute agent failed", err)
		return
	}
	if exec == nil {
		writeError(w, http.StatusBadRequest, "input is required", nil)
		return
	}
	writeJSON(w, http.StatusCreated, exec)
}

func (s *Server) agentHistory(w http.ResponseWriter, r *http.Request) {
	if !s.agentsEnabled(w) {
		return
	}
	history, err := s.svc.Agents.History(r.Context(), chi.URLParam(r, "agentID"), userFrom(r), queryInt(r, "limit", 20))
	if err != nil {
		if isNotFound(err) {
			fail(w, "agent history failed", err)
			return
		}
		degrade("agent history", err)
	}
	if history == nil {
		history = []model.AgentExecution{}
	}
	writeJSON(w, http.StatusOK, history)
}
