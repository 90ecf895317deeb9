// Package ingest schedules ingestion jobs for approved sources and scores,
// filters and persists the documents they produce.
package ingest

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/store"
)

// Default acceptance thresholds.
const (
	DefaultMinQuality      = 40
	DefaultMinCompleteness = 50
)

// DocumentFetcher retrieves the current documents of a source.
type DocumentFetcher interface {
	Fetch(ctx context.Context, src *model.Source) ([]model.Document, error)
}

// Scheduler creates pending jobs for auto-ingesting sources.
type Scheduler struct {
	store store.SourceStore
}

// NewScheduler creates a Scheduler.
func NewScheduler(st store.SourceStore) *Scheduler {
	return &Scheduler{store: st}
}

// ScheduleJobs creates one pending job per approved auto-ingest source that
// has no running job. Returns the jobs it created.
func (s *Scheduler) ScheduleJobs(ctx context.Context, userID string) ([]model.IngestionJob, error) {
	log := zap.L().With(zap.String("component", "ingest"))
	yes := true
	sources, err := s.store.ListSources(ctx, store.SourceFilter{Approved: &yes, AutoIngest: &yes})
	if err != nil {
		return nil, eris.Wrap(err, "ingest: list sources")
	}

	var jobs []model.IngestionJob
	for _, src := range sources {
		running, err := s.store.HasRunningJob(ctx, src.ID)
		if err != nil {
			return jobs, eris.Wrapf(err, "ingest: check running job for %s", src.Name)
		}
		if running {
			log.Info("skipping source with running job", zap.String("source", src.Name))
			continue
		}
		job, err := s.store.CreateJob(ctx, src.ID, userID)
		if err != nil {
			return jobs, eris.Wrapf(err, "ingest: create job for %s", src.Name)
		}
		jobs = append(jobs, *job)
	}

	log.Info("scheduled ingestion jobs", zap.Int("sources", len(sources)), zap.Int("created", len(jobs)))
	return jobs, nil
}

// WorkerOptions configures document acceptance and concurrency.
type WorkerOptions struct {
	MinQuality      float64
	MinCompleteness float64
	Concurrency     int
}

// Worker runs ingestion jobs.
type Worker struct {
	sources store.SourceStore
	papers  store.PaperStore
	fetcher DocumentFetcher
	opts    WorkerOptions
}

// NewWorker creates a Worker. The fetcher may be nil when only IngestBatch
// is used.
func NewWorker(sources store.SourceStore, papers store.PaperStore, fetcher DocumentFetcher, opts WorkerOptions) *Worker {
	if opts.MinQuality == 0 {
		opts.MinQuality = DefaultMinQuality
	}
	if opts.MinCompleteness == 0 {
		opts.MinCompleteness = DefaultMinCompleteness
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Worker{sources: sources, papers: papers, fetcher: fetcher, opts: opts}
}

// IngestBatch starts a pending job, scores docs and persists the accepted
// ones. Returns nil without error when the job cannot be started.
func (w *Worker) IngestBatch(ctx context.Context, jobID string, docs []model.Document) (*model.IngestionJob, error) {
	if ok, err := w.start(ctx, jobID); err != nil || !ok {
		return nil, err
	}
	return w.process(ctx, jobID, docs)
}

// RunJob starts a pending job, fetches its source and ingests the result.
// A fetch failure marks the job failed.
func (w *Worker) RunJob(ctx context.Context, jobID string) (*model.IngestionJob, error) {
	if w.fetcher == nil {
		return nil, eris.New("ingest: worker has no fetcher")
	}
	job, err := w.sources.GetJob(ctx, jobID)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: get job")
	}
	src, err := w.sources.GetSource(ctx, job.SourceID)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: get source")
	}

	if ok, err := w.start(ctx, jobID); err != nil || !ok {
		return nil, err
	}

	docs, err := w.fetcher.Fetch(ctx, src)
	if err != nil {
		w.fail(ctx, jobID, 0, 0, err)
		return nil, eris.Wrapf(err, "ingest: fetch source %s", src.Name)
	}
	return w.process(ctx, jobID, docs)
}

// RunPending runs every pending job concurrently. Failed jobs are logged and
// recorded on the job. Returns the number of jobs that completed.
func (w *Worker) RunPending(ctx context.Context) (int, error) {
	jobs, err := w.sources.ListJobs(ctx, store.JobFilter{Status: model.JobStatusPending})
	if err != nil {
		return 0, eris.Wrap(err, "ingest: list pending jobs")
	}

	results := make([]bool, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.Concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			done, err := w.RunJob(gctx, job.ID)
			if err != nil {
				zap.L().Warn("ingest: job failed", zap.String("job_id", job.ID), zap.Error(err))
				return nil
			}
			results[i] = done != nil && done.Status == model.JobStatusCompleted
			return nil
		})
	}
	_ = g.Wait()

	completed := 0
	for _, ok := range results {
		if ok {
			completed++
		}
	}
	return completed, nil
}

func (w *Worker) start(ctx context.Context, jobID string) (bool, error) {
	ok, err := w.sources.StartJob(ctx, jobID)
	if err != nil {
		return false, eris.Wrap(err, "ingest: start job")
	}
	if ok {
		return true, nil
	}
	if _, err := w.sources.GetJob(ctx, jobID); err != nil {
		return false, eris.Wrap(err, "ingest: start job")
	}
	zap.L().Warn("ingest: job not started, not pending or source already running",
		zap.String("component", "ingest"),
		zap.String("job_id", jobID),
	)
	return false, nil
}

func (w *Worker) fail(ctx context.Context, jobID string, found, rejected int, cause error) {
	if err := w.sources.FailJob(ctx, jobID, found, rejected, cause.Error()); err != nil {
		zap.L().Error("ingest: mark job failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

// process scores docs for a running job and completes or fails it.
func (w *Worker) process(ctx context.Context, jobID string, docs []model.Document) (*model.IngestionJob, error) {
	log := zap.L().With(zap.String("component", "ingest"), zap.String("job_id", jobID))

	job, err := w.sources.GetJob(ctx, jobID)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: get job")
	}

	priorities, err := w.sources.ListActivePriorities(ctx)
	if err != nil {
		w.fail(ctx, jobID, len(docs), 0, err)
		return nil, eris.Wrap(err, "ingest: list priorities")
	}
	relevance := NewRelevance(priorities)

	var (
		accepted        []model.ResearchPaper
		rejected        int
		completenessSum float64
	)
	for _, doc := range docs {
		completeness := CompletenessScore(doc)
		quality, qualityTags := QualityScore(doc)
		if quality < w.opts.MinQuality || completeness < w.opts.MinCompleteness {
			rejected++
			log.Debug("document rejected",
				zap.String("title", doc.Title),
				zap.Float64("quality", quality),
				zap.Float64("completeness", completeness),
			)
			continue
		}

		clinical, operational, relevanceTags := relevance.Score(doc)
		accepted = append(accepted, model.ResearchPaper{
			SourceID:             job.SourceID,
			JobID:                jobID,
			Title:                strings.TrimSpace(doc.Title),
			Authors:              doc.Authors,
			Abstract:             doc.Abstract,
			PublicationDate:      doc.PublicationDate,
			DOI:                  doc.DOI,
			URL:                  doc.URL,
			StudyType:            studyType(doc.StudyDesign),
			PrimaryOutcome:       doc.PrimaryOutcome,
			SampleSize:           doc.SampleSize,
			QualityScore:         quality,
			CompletenessScore:    completeness,
			ClinicalRelevance:    clinical,
			OperationalRelevance: operational,
			QualityTags:          qualityTags,
			RelevanceTags:        relevanceTags,
			Status:               model.PaperStatusProcessed,
		})
		completenessSum += completeness
	}

	if err := w.papers.InsertPapers(ctx, accepted); err != nil {
		w.fail(ctx, jobID, len(docs), rejected, err)
		return nil, eris.Wrap(err, "ingest: insert papers")
	}

	var aggregate float64
	if len(accepted) > 0 {
		aggregate = completenessSum / float64(len(accepted))
	}
	if err := w.sources.CompleteJob(ctx, jobID, len(docs), len(accepted), rejected, aggregate); err != nil {
		return nil, eris.Wrap(err, "ingest: complete job")
	}

	log.Info("ingestion job completed",
		zap.Int("found", len(docs)),
		zap.Int("ingested", len(accepted)),
		zap.Int("rejected", rejected),
		zap.Float64("quality", aggregate),
	)
	return w.sources.GetJob(ctx, jobID)
}

// studyType is the design label, or empty when the feed gave no design.
func studyType(design string) string {
	if strings.TrimSpace(design) == "" {
		return ""
	}
	return ClassifyDesign(design)
}
