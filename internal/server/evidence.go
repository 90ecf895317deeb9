package server

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/evidence-cli/internal/digest"
	"github.com/sells-group/evidence-cli/internal/export"
	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/monitoring"
	"github.com/sells-group/evidence-cli/internal/store"
	"github.com/sells-group/evidence-cli/internal/synthesis"
)

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if _, err := s.svc.Store.ListSources(r.Context(), store.SourceFilter{}); err != nil {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) monitoringSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.svc.Monitoring == nil {
		writeError(w, http.StatusServiceUnavailable, "monitoring is not configured", nil)
		return
	}
	snap, alerts, err := s.svc.Monitoring.Snapshot(r.Context())
	if err != nil {
		fail(w, "monitoring snapshot", err)
		return
	}
	if alerts == nil {
		alerts = []monitoring.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshot": snap, "alerts": alerts})
}

func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.svc.Store.ListSources(r.Context(), store.SourceFilter{})
	if err != nil {
		degrade("list sources", err)
	}
	if sources == nil {
		sources = []model.Source{}
	}
	writeJSON(w, http.StatusOK, sources)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.svc.Store.ListJobs(r.Context(), store.JobFilter{
		SourceID: r.URL.Query().Get("source_id"),
		Status:   model.JobStatus(r.URL.Query().Get("status")),
		Limit:    queryInt(r, "limit", 100),
	})
	if err != nil {
		degrade("list jobs", err)
	}
	if jobs == nil {
		jobs = []model.IngestionJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) scheduleJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.svc.Scheduler.ScheduleJobs(r.Context(), userFrom(r))
	if err != nil {
		fail(w, "schedule jobs failed", err)
		return
	}
	if jobs == nil {
		jobs = []model.IngestionJob{}
	}
	writeJSON(w, http.StatusCreated, jobs)
}

func (s *Server) runJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.Ingest.RunJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		fail(w, "run job failed", err)
		return
	}
	if job == nil {
		conflict(w, "job is not runnable")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) ingestBatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Documents []model.Document `json:"documents"`
	}
	if !decode(w, r, &body) {
		return
	}
	job, err := s.svc.Ingest.IngestBatch(r.Context(), chi.URLParam(r, "jobID"), body.Documents)
	if err != nil {
		fail(w, "ingest batch failed", err)
		return
	}
	if job == nil {
		conflict(w, "job is not runnable")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) getPaper(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Store.GetPaper(r.Context(), chi.URLParam(r, "paperID"))
	readOne(w, "get paper", p, err)
}

func (s *Server) synthesize(w http.ResponseWriter, r *http.Request) {
	if s.svc.Synthesis == nil {
		writeError(w, http.StatusServiceUnavailable, "text generation is not configured", nil)
		return
	}
	var body struct {
		Query string `json:"query"`
	}
	if !decode(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required", nil)
		return
	}
	syn, err := s.svc.Synthesis.Synthesize(r.Context(), body.Query, userFrom(r))
	if err != nil {
		fail(w, "synthesis failed", err)
		return
	}
	if syn == nil {
		conflict(w, "no papers match the query")
		return
	}
	writeJSON(w, http.StatusCreated, syn)
}

func (s *Server) getSynthesis(w http.ResponseWriter, r *http.Request) {
	syn, err := s.svc.Store.GetSynthesis(r.Context(), chi.URLParam(r, "synthesisID"))
	readOne(w, "get synthesis", syn, err)
}

func (s *Server) listSynthesisVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.svc.Store.ListSynthesisVersions(r.Context(), chi.URLParam(r, "synthesisID"))
	if err != nil {
		degrade("list synthesis versions", err)
	}
	if versions == nil {
		versions = []model.SynthesisVersion{}
	}
	writeJSON(w, http.StatusOK, versions)
}

func (s *Server) reviseSynthesis(w http.ResponseWriter, r *http.Request) {
	if s.svc.Synthesis == nil {
		writeError(w, http.StatusServiceUnavailable, "text generation is not configured", nil)
		return
	}
	var edit synthesis.Edit
	if !decode(w, r, &edit) {
		return
	}
	syn, err := s.svc.Synthesis.Revise(r.Context(), chi.URLParam(r, "synthesisID"), edit, userFrom(r))
	if err != nil {
		fail(w, "revise synthesis failed", err)
		return
	}
	if syn == nil {
		conflict(w, "edit changes nothing")
		return
	}
	writeJSON(w, http.StatusOK, syn)
}

func (s *Server) listDigests(w http.ResponseWriter, r *http.Request) {
	digests, err := s.svc.Store.ListDigests(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		degrade("list digests", err)
	}
	if digests == nil {
		digests = []model.EvidenceDigest{}
	}
	writeJSON(w, http.StatusOK, digests)
}

func (s *Server) getDigest(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.Store.GetDigest(r.Context(), chi.URLParam(r, "digestID"))
	readOne(w, "get digest", d, err)
}

func (s *Server) generateDigest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		At *time.Time `json:"at"`
	}
	if !decode(w, r, &body) {
		return
	}
	at := s.now()
	if body.At != nil {
		at = body.At.UTC()
	}
	d, created, err := s.svc.Digests.GenerateDigest(r.Context(), at, userFrom(r))
	if err != nil {
		fail(w, "generate digest failed", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, d)
}

func (s *Server) publishDigest(w http.ResponseWriter, r *http.Request) {
	ok, flags, err := s.svc.Digests.PublishDigest(r.Context(), chi.URLParam(r, "digestID"), userFrom(r))
	if err != nil {
		fail(w, "publish digest failed", err)
		return
	}
	if !ok {
		conflict(w, "digest is not a draft")
		return
	}
	if flags == nil {
		flags = []model.EvidenceFlag{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"published": true, "flags": flags})
}

func (s *Server) compareDigest(w http.ResponseWriter, r *http.Request) {
	cmp, err := s.svc.Digests.ChangeComparison(r.Context(), chi.URLParam(r, "digestID"))
	readOne(w, "compare digest", cmp, err)
}

func (s *Server) renderDigest(w http.ResponseWriter, r *http.Request) {
	d, cmp, ok := s.digestWithComparison(w, r)
	if !ok {
		return
	}
	html, err := digest.RenderHTML(d, cmp)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "render digest failed", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(html))
}

func (s *Server) exportDigest(w http.ResponseWriter, r *http.Request) {
	d, cmp, ok := s.digestWithComparison(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.WriteDigest(&buf, d, cmp); err != nil {
		writeError(w, http.StatusInternalServerError, "export digest failed", err)
		return
	}
	writeWorkbook(w, "digest-"+d.PeriodKey+".xlsx", buf.Bytes())
}

func (s *Server) digestWithComparison(w http.ResponseWriter, r *http.Request) (*model.EvidenceDigest, *model.DigestComparison, bool) {
	id := chi.URLParam(r, "digestID")
	d, err := s.svc.Store.GetDigest(r.Context(), id)
	if err != nil {
		fail(w, "get digest failed", err)
		return nil, nil, false
	}
	cmp, err := s.svc.Digests.ChangeComparison(r.Context(), id)
	if err != nil {
		degrade("compare digest", err)
		cmp = nil
	}
	return d, cmp, true
}

func (s *Server) listFlags(w http.ResponseWriter, r *http.Request) {
	state := model.FlagState(r.URL.Query().Get("state"))
	if state == "" {
		state = model.FlagStateActionable
	}
	flags, err := s.svc.Store.ListFlags(r.Context(), state)
	if err != nil {
		degrade("list flags", err)
	}
	if flags == nil {
		flags = []model.EvidenceFlag{}
	}
	writeJSON(w, http.StatusOK, flags)
}

func (s *Server) listContradictions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Contradictions.ListUnresolved(r.Context()))
}

func (s *Server) detectContradictions(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PaperIDs []string `json:"paper_ids"`
	}
	if !decode(w, r, &body) {
		return
	}
	found, err := s.svc.Contradictions.DetectContradictions(r.Context(), body.PaperIDs, userFrom(r))
	if err != nil {
		fail(w, "detect contradictions failed", err)
		return
	}
	if found == nil {
		found = []model.EvidenceContradiction{}
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) updateContradiction(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status model.ContradictionStatus `json:"status"`
		Notes  string                    `json:"notes"`
	}
	if !decode(w, r, &body) {
		return
	}
	ok, err := s.svc.Contradictions.UpdateContradictionStatus(r.Context(), chi.URLParam(r, "contradictionID"), body.Status, body.Notes, userFrom(r))
	changed(w, ok, err, "update contradiction")
}

// readOne writes v, a 404 for a missing entity, or null for other failures.
func readOne(w http.ResponseWriter, msg string, v any, err error) {
	if err != nil {
		if isNotFound(err) {
			fail(w, msg, err)
			return
		}
		degrade(msg, err)
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func writeWorkbook(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
