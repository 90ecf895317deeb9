package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/pilot"
)

func (s *Server) listPilots(w http.ResponseWriter, r *http.Request) {
	pilots, err := s.svc.Store.ListPilots(r.Context(), model.PilotStatus(r.URL.Query().Get("status")))
	if err != nil {
		degrade("list pilots", err)
	}
	if pilots == nil {
		pilots = []model.PracticePilot{}
	}
	writeJSON(w, http.StatusOK, pilots)
}

func (s *Server) getPilot(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Store.GetPilot(r.Context(), chi.URLParam(r, "pilotID"))
	readOne(w, "get pilot", p, err)
}

func (s *Server) listAssignments(w http.ResponseWriter, r *http.Request) {
	assignments, err := s.svc.Store.ListSiteAssignments(r.Context(), chi.URLParam(r, "pilotID"))
	if err != nil {
		degrade("list site assignments", err)
	}
	if assignments == nil {
		assignments = []model.SiteAssignment{}
	}
	writeJSON(w, http.StatusOK, assignments)
}

func (s *Server) overduePilots(w http.ResponseWriter, r *http.Request) {
	reports, err := s.svc.Pilots.CheckPilotCompletion(r.Context(), s.now())
	if err != nil {
		degrade("check pilot completion", err)
	}
	if reports == nil {
		reports = []pilot.OverdueReport{}
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) definePilot(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProposalID   string   `json:"proposal_id"`
		SiteIDs      []string `json:"site_ids"`
		DurationDays int      `json:"duration_days"`
	}
	if !decode(w, r, &body) {
		return
	}
	p, err := s.svc.Pilots.DefinePilot(r.Context(), body.ProposalID, body.SiteIDs, body.DurationDays, userFrom(r))
	if err != nil {
		fail(w, "define pilot failed", err)
		return
	}
	if p == nil {
		conflict(w, "pilot cannot be defined for this proposal")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) lockMetrics(w http.ResponseWriter, r *http.Request) {
	var req pilot.LockRequest
	if !decode(w, r, &req) {
		return
	}
	ok, err := s.svc.Pilots.LockSuccessMetrics(r.Context(), chi.URLParam(r, "pilotID"), req, userFrom(r))
	changed(w, ok, err, "lock success metrics")
}

func (s *Server) startPilot(w http.ResponseWriter, r *http.Request) {
	ok, err := s.svc.Pilots.StartPilot(r.Context(), chi.URLParam(r, "pilotID"), userFrom(r))
	changed(w, ok, err, "start pilot")
}

func (s *Server) endPilot(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status model.PilotStatus `json:"status"`
	}
	if !decode(w, r, &body) {
		return
	}
	if body.Status == "" {
		body.Status = model.PilotStatusCompleted
	}
	ok, err := s.svc.Pilots.EndPilot(r.Context(), chi.URLParam(r, "pilotID"), body.Status, userFrom(r))
	changed(w, ok, err, "end pilot")
}

func (s *Server) recordMetric(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SiteID     string     `json:"site_id"`
		Metric     string     `json:"metric"`
		Value      float64    `json:"value"`
		ObservedAt *time.Time `json:"observed_at"`
	}
	if !decode(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.SiteID) == "" || strings.TrimSpace(body.Metric) == "" {
		writeError(w, http.StatusBadRequest, "site_id and metric are required", nil)
		return
	}
	at := s.now()
	if body.ObservedAt != nil {
		at = body.ObservedAt.UTC()
	}
	obs, err := s.svc.Metrics.Record(r.Context(), body.SiteID, body.Metric, body.Value, at)
	if err != nil {
		fail(w, "record metric failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, obs)
}

func (s *Server) listAttributions(w http.ResponseWriter, r *http.Request) {
	attributions, err := s.svc.Store.ListAttributions(r.Context(), chi.URLParam(r, "pilotID"))
	if err != nil {
		degrade("list attributions", err)
	}
	if attributions == nil {
		attributions = []model.OutcomeAttribution{}
	}
	writeJSON(w, http.StatusOK, attributions)
}

func (s *Server) attribute(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EvidenceID string `json:"evidence_id"`
		SOPVersion string `json:"sop_version"`
	}
	if !decode(w, r, &body) {
		return
	}
	a, err := s.svc.Attribution.AttributeOutcomes(r.Context(), chi.URLParam(r, "pilotID"), body.EvidenceID, body.SOPVersion, userFrom(r))
	if err != nil {
		fail(w, "attribute outcomes failed", err)
		return
	}
	if a == nil {
		conflict(w, "pilot has no baseline")
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) finalizeAttribution(w http.ResponseWriter, r *http.Request) {
	ok, err := s.svc.Attribution.FinalizeAttribution(r.Context(), chi.URLParam(r, "attributionID"), userFrom(r))
	changed(w, ok, err, "finalize attribution")
}
