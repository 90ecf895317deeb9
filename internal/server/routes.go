package server

import (
	"github.com/go-chi/chi/v5"
)

func (s *Server) registerRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.health)
		r.Get("/monitoring", s.monitoringSnapshot)

		// Reads
		r.Get("/sources", s.listSources)
		r.Get("/ingest/jobs", s.listJobs)
		r.Get("/papers/{paperID}", s.getPaper)
		r.Get("/syntheses/{synthesisID}", s.getSynthesis)
		r.Get("/syntheses/{synthesisID}/versions", s.listSynthesisVersions)
		r.Get("/digests", s.listDigests)
		r.Get("/digests/{digestID}", s.getDigest)
		r.Get("/digests/{digestID}/comparison", s.compareDigest)
		r.Get("/digests/{digestID}/html", s.renderDigest)
		r.Get("/digests/{digestID}/export.xlsx", s.exportDigest)
		r.Get("/flags", s.listFlags)
		r.Get("/contradictions", s.listContradictions)
		r.Get("/proposals", s.listProposals)
		r.Get("/proposals/{proposalID}", s.getProposal)
		r.Get("/proposals/{proposalID}/viewers", s.listViewers)
		r.Get("/pilots", s.listPilots)
		r.Get("/pilots/overdue", s.overduePilots)
		r.Get("/pilots/{pilotID}", s.getPilot)
		r.Get("/pilots/{pilotID}/assignments", s.listAssignments)
		r.Get("/pilots/{pilotID}/attributions", s.listAttributions)
		r.Get("/pilots/{pilotID}/decisions", s.listDecisions)
		r.Get("/attributions/{attributionID}/recommendation", s.recommend)
		r.Get("/decisions/{decisionID}", s.getDecision)
		r.Get("/decisions/{decisionID}/plans", s.listPlans)
		r.Get("/learnings", s.searchLearnings)
		r.Get("/learnings/export.xlsx", s.exportLearnings)

		// Mutations
		r.Group(func(r chi.Router) {
			r.Use(requireUser)

			r.Post("/ingest/schedule", s.scheduleJobs)
			r.Post("/ingest/jobs/{jobID}/run", s.runJob)
			r.Post("/ingest/jobs/{jobID}/batch", s.ingestBatch)

			r.Post("/syntheses", s.synthesize)
			r.Patch("/syntheses/{synthesisID}", s.reviseSynthesis)

			r.Post("/digests", s.generateDigest)
			r.Post("/digests/{digestID}/publish", s.publishDigest)

			r.Post("/contradictions/detect", s.detectContradictions)
			r.Patch("/contradictions/{contradictionID}", s.updateContradiction)

			r.Post("/flags/{flagID}/proposal", s.generateProposal)
			r.Post("/proposals/{proposalID}/route", s.routeProposal)
			r.Post("/proposals/{proposalID}/approve", s.approveProposal)
			r.Post("/proposals/{proposalID}/reject", s.rejectProposal)
			r.Post("/proposals/{proposalID}/viewers", s.touchViewer)
			r.Delete("/proposals/{proposalID}/viewers", s.leaveViewer)

			r.Post("/pilots", s.definePilot)
			r.Post("/pilots/{pilotID}/lock", s.lockMetrics)
			r.Post("/pilots/{pilotID}/start", s.startPilot)
			r.Post("/pilots/{pilotID}/end", s.endPilot)
			r.Post("/metrics", s.recordMetric)

			r.Post("/pilots/{pilotID}/attributions", s.attribute)
			r.Post("/attributions/{attributionID}/finalize", s.finalizeAttribution)

			r.Post("/decisions", s.recordDecision)
			r.Post("/decisions/{decisionID}/rollout", s.initializeRollout)
			r.Post("/decisions/{decisionID}/rollback", s.executeRollback)
			r.Post("/rollout/phases/{phase}/execute", s.executePhase)
			r.Post("/decisions/{decisionID}/learning", s.storeLearning)

			r.Post("/agents", s.createAgent)
			r.Post("/agents/{agentID}/executions", s.executeAgent)
			r.Get("/agents/{agentID}/executions", s.agentHistory)
		})
	})
}
