package server

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/evidence-cli/internal/export"
	"github.com/sells-group/evidence-cli/internal/model"
)

func (s *Server) recommend(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.Decisions.EvaluatePilotOutcome(r.Context(), chi.URLParam(r, "attributionID"))
	readOne(w, "evaluate pilot outcome", rec, err)
}

func (s *Server) listDecisions(w http.ResponseWriter, r *http.Request) {
	decisions, err := s.svc.Store.ListDecisions(r.Context(), chi.URLParam(r, "pilotID"))
	if err != nil {
		degrade("list decisions", err)
	}
	if decisions == nil {
		decisions = []model.RolloutDecision{}
	}
	writeJSON(w, http.StatusOK, decisions)
}

func (s *Server) getDecision(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.Store.GetDecision(r.Context(), chi.URLParam(r, "decisionID"))
	readOne(w, "get decision", d, err)
}

func (s *Server) listPlans(w http.ResponseWriter, r *http.Request) {
	planType := model.PlanType(r.URL.Query().Get("type"))
	if planType == "" {
		planType = model.PlanTypeRollout
	}
	plans, err := s.svc.Store.ListSitePlans(r.Context(), chi.URLParam(r, "decisionID"), planType)
	if err != nil {
		degrade("list site plans", err)
	}
	if plans == nil {
		plans = []model.SitePlan{}
	}
	writeJSON(w, http.StatusOK, plans)
}

func (s *Server) recordDecision(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PilotID       string         `json:"pilot_id"`
		AttributionID string         `json:"attribution_id"`
		Decision      model.Decision `json:"decision"`
		Rationale     string         `json:"rationale"`
	}
	if !decode(w, r, &body) {
		return
	}
	d, err := s.svc.Decisions.RecordDecision(r.Context(), body.PilotID, body.AttributionID, body.Decision, userFrom(r), body.Rationale)
	if err != nil {
		fail(w, "record decision failed", err)
		return
	}
	if d == nil {
		conflict(w, "decision is invalid for this pilot")
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) initializeRollout(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.Decisions.InitializeRollout(r.Context(), chi.URLParam(r, "decisionID"))
	planned(w, n, err, "initialize rollout")
}

func (s *Server) executeRollback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "decisionID")
	n, err := s.svc.Decisions.InitializeRollback(r.Context(), id)
	if err != nil {
		fail(w, "initialize rollback failed", err)
		return
	}
	activated, err := s.svc.Decisions.ExecuteRollback(r.Context(), id, s.now())
	if err != nil {
		fail(w, "execute rollback failed", err)
		return
	}
	if n == 0 && activated == 0 {
		conflict(w, "execute rollback precondition not met")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"planned": int64(n), "activated": activated})
}

func (s *Server) executePhase(w http.ResponseWriter, r *http.Request) {
	phase, err := strconv.Atoi(chi.URLParam(r, "phase"))
	if err != nil || phase < 1 || phase > 3 {
		writeError(w, http.StatusBadRequest, "phase must be 1, 2 or 3", nil)
		return
	}
	n, err := s.svc.Decisions.ExecutePhaseRollout(r.Context(), phase, s.now())
	if err != nil {
		fail(w, "execute phase failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"activated": n})
}

func (s *Server) storeLearning(w http.ResponseWriter, r *http.Request) {
	var findings model.Findings
	if !decode(w, r, &findings) {
		return
	}
	rec, stored, err := s.svc.Decisions.StoreLearning(r.Context(), chi.URLParam(r, "decisionID"), findings, userFrom(r))
	if err != nil {
		fail(w, "store learning failed", err)
		return
	}
	if !stored {
		conflict(w, "learning already stored")
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) searchLearnings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Decisions.SearchLearnings(r.Context(), r.URL.Query().Get("q"), queryInt(r, "limit", 20)))
}

func (s *Server) exportLearnings(w http.ResponseWriter, r *http.Request) {
	records := s.svc.Decisions.SearchLearnings(r.Context(), r.URL.Query().Get("q"), queryInt(r, "limit", 500))
	var buf bytes.Buffer
	if err := export.WriteLearnings(&buf, records); err != nil {
		writeError(w, http.StatusInternalServerError, "export learnings failed", err)
		return
	}
	writeWorkbook(w, "learnings.xlsx", buf.Bytes())
}

func planned(w http.ResponseWriter, n int, err error, msg string) {
	switch {
	case err != nil:
		fail(w, msg+" failed", err)
	case n == 0:
		conflict(w, msg+" precondition not met")
	default:
		writeJSON(w, http.StatusCreated, map[string]int{"planned": n})
	}
}
