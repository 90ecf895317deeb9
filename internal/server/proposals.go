package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/evidence-cli/internal/model"
)

func (s *Server) listProposals(w http.ResponseWriter, r *http.Request) {
	proposals, err := s.svc.Store.ListProposals(r.Context(), model.ProposalStatus(r.URL.Query().Get("status")))
	if err != nil {
		degrade("list proposals", err)
	}
	if proposals == nil {
		proposals = []model.PracticeTranslation{}
	}
	writeJSON(w, http.StatusOK, proposals)
}

func (s *Server) getProposal(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Store.GetProposal(r.Context(), chi.URLParam(r, "proposalID"))
	readOne(w, "get proposal", p, err)
}

func (s *Server) generateProposal(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Proposals.GenerateFromFlag(r.Context(), chi.URLParam(r, "flagID"), userFrom(r))
	if err != nil {
		fail(w, "generate proposal failed", err)
		return
	}
	if p == nil {
		conflict(w, "flag is not actionable")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) routeProposal(w http.ResponseWriter, r *http.Request) {
	ok, err := s.svc.Proposals.RouteToCCO(r.Context(), chi.URLParam(r, "proposalID"), userFrom(r))
	changed(w, ok, err, "route proposal")
}

type reviewBody struct {
	Rationale string `json:"rationale"`
}

func (s *Server) approveProposal(w http.ResponseWriter, r *http.Request) {
	var body reviewBody
	if !decode(w, r, &body) {
		return
	}
	ok, err := s.svc.Proposals.Approve(r.Context(), chi.URLParam(r, "proposalID"), userFrom(r), body.Rationale)
	changed(w, ok, err, "approve proposal")
}

func (s *Server) rejectProposal(w http.ResponseWriter, r *http.Request) {
	var body reviewBody
	if !decode(w, r, &body) {
		return
	}
	ok, err := s.svc.Proposals.Reject(r.Context(), chi.URLParam(r, "proposalID"), userFrom(r), body.Rationale)
	changed(w, ok, err, "reject proposal")
}

func (s *Server) listViewers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.presence.Viewers(chi.URLParam(r, "proposalID")))
}

func (s *Server) touchViewer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "proposalID")
	if _, err := s.svc.Store.GetProposal(r.Context(), id); err != nil {
		fail(w, "get proposal failed", err)
		return
	}
	s.presence.Touch(id, userFrom(r))
	writeJSON(w, http.StatusOK, s.presence.Viewers(id))
}

func (s *Server) leaveViewer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "proposalID")
	s.presence.Leave(id, userFrom(r))
	writeJSON(w, http.StatusOK, s.presence.Viewers(id))
}
