// Package orchestrator owns the scraping job lifecycle: it drives sources
// through the fetch and classification pipeline, persists progress, and
// enforces the global concurrency budget.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/leadscout/internal/authenticity"
	"github.com/sells-group/leadscout/internal/config"
	"github.com/sells-group/leadscout/internal/extract"
	"github.com/sells-group/leadscout/internal/fetch"
	"github.com/sells-group/leadscout/internal/intent"
	"github.com/sells-group/leadscout/internal/model"
	"github.com/sells-group/leadscout/internal/normalize"
	"github.com/sells-group/leadscout/internal/resilience"
	"github.com/sells-group/leadscout/internal/score"
	"github.com/sells-group/leadscout/internal/store"
)

// jobHandle tracks a job the orchestrator is actively running.
type jobHandle struct {
	job       *model.ScrapingJob
	cancel    context.CancelFunc
	paused    bool
	cancelled bool
	done      chan struct{}
}

// Orchestrator coordinates jobs across sources. All job state mutations go
// through it; handles live in the registry, never in package globals.
type Orchestrator struct {
	cfg        config.OrchestratorConfig
	store      store.Store
	fetcher    *fetch.Fetcher
	normalizer *normalize.Normalizer
	extractor  *extract.Extractor
	classifier intent.Classifier
	detector   *authenticity.Detector
	engine     *score.Engine
	queue      *resilience.WriteQueue
	sem        *semaphore.Weighted

	mu      sync.Mutex
	handles map[string]*jobHandle
}

// New wires the pipeline stages into an orchestrator.
func New(cfg *config.Config, st store.Store) (*Orchestrator, error) {
	engine, err := score.New(cfg.Score, cfg.Authenticity.SoftSuspicion)
	if err != nil {
		return nil, err
	}

	limit := int64(cfg.Orchestrator.GlobalConcurrency)
	if limit <= 0 {
		limit = 4
	}

	return &Orchestrator{
		cfg:        cfg.Orchestrator,
		store:      st,
		fetcher:    fetch.NewFetcher(cfg.Fetch),
		normalizer: normalize.New(cfg.Normalize.DefaultLanguage, cfg.Normalize.ExtraAbbrevs),
		extractor:  extract.New(cfg.Extract),
		classifier: intent.NewClassifier(cfg.Intent, cfg.Anthropic),
		detector:   authenticity.New(cfg.Authenticity),
		engine:     engine,
		queue:      resilience.NewWriteQueue(),
		sem:        semaphore.NewWeighted(limit),
		handles:    make(map[string]*jobHandle),
	}, nil
}

// Queue exposes the pending-write queue for monitoring.
func (o *Orchestrator) Queue() *resilience.WriteQueue { return o.queue }

// CreateJob registers a new queued job for a source and persists it.
func (o *Orchestrator) CreateJob(ctx context.Context, source model.SourceConfig) (*model.ScrapingJob, error) {
	if source.ID == "" || source.URL == "" {
		return nil, eris.New("orchestrator: source id and url are required")
	}

	job := &model.ScrapingJob{
		ID:        uuid.NewString(),
		Source:    source,
		State:     model.JobQueued,
		CreatedAt: time.Now().UTC(),
	}
	if err := o.store.SaveJob(ctx, *job); err != nil {
		return nil, err
	}
	return job, nil
}

// StartJob transitions a queued job to RUNNING and begins processing in the
// background, subject to the global concurrency budget.
func (o *Orchestrator) StartJob(ctx context.Context, jobID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, running := o.handles[jobID]; running {
		return eris.Errorf("orchestrator: job %s is already running", jobID)
	}

	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if err := job.Transition(model.JobRunning); err != nil {
		return err
	}
	if err := o.store.SaveJob(ctx, *job); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	handle := &jobHandle{job: job, cancel: cancel, done: make(chan struct{})}
	o.handles[jobID] = handle

	go o.run(runCtx, handle)
	return nil
}

// Pause stops a running job after the artifact in flight; the persisted
// checkpoint lets Resume continue without re-emitting leads.
func (o *Orchestrator) Pause(jobID string) error {
	o.mu.Lock()
	handle, ok := o.handles[jobID]
	if !ok {
		o.mu.Unlock()
		return eris.Errorf("orchestrator: job %s is not running", jobID)
	}
	handle.paused = true
	handle.cancel()
	done := handle.done
	o.mu.Unlock()

	<-done
	return nil
}

// Cancel stops a job for good. A queued job fails immediately; a running job
// stops after the artifact in flight. Cancelled jobs carry reason CANCELLED
// and can still be requeued with Retry.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) error {
	o.mu.Lock()
	if handle, ok := o.handles[jobID]; ok {
		handle.cancelled = true
		handle.cancel()
		done := handle.done
		o.mu.Unlock()

		<-done
		return nil
	}
	o.mu.Unlock()

	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if err := job.Transition(model.JobFailed); err != nil {
		return err
	}
	job.FailureReason = failureCancelled
	return o.store.SaveJob(ctx, *job)
}

// Resume restarts a paused job from its checkpoint.
func (o *Orchestrator) Resume(ctx context.Context, jobID string) error {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.State != model.JobPaused {
		return eris.Errorf("orchestrator: job %s is %s, not PAUSED", jobID, job.State)
	}
	return o.startExisting(ctx, job)
}

// Retry requeues a failed job and starts it again. Counters and checkpoint
// survive, so only unprocessed artifacts are fetched.
func (o *Orchestrator) Retry(ctx context.Context, jobID string) error {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if err := job.Transition(model.JobQueued); err != nil {
		return err
	}
	if err := o.store.SaveJob(ctx, *job); err != nil {
		return err
	}
	return o.startExisting(ctx, job)
}

// JobStatus returns the current persisted view of a job.
func (o *Orchestrator) JobStatus(ctx context.Context, jobID string) (*model.ScrapingJob, error) {
	o.mu.Lock()
	if handle, ok := o.handles[jobID]; ok {
		snapshot := cloneJob(*handle.job)
		o.mu.Unlock()
		return &snapshot, nil
	}
	o.mu.Unlock()
	return o.store.GetJob(ctx, jobID)
}

// Wait blocks until a job's current run finishes. No-op for idle jobs.
func (o *Orchestrator) Wait(jobID string) {
	o.mu.Lock()
	handle, ok := o.handles[jobID]
	o.mu.Unlock()
	if ok {
		<-handle.done
	}
}

// Shutdown pauses every running job and waits for them to stop.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	ids := make([]string, 0, len(o.handles))
	for id := range o.handles {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	for _, id := range ids {
		if err := o.Pause(id); err != nil {
			zap.L().Warn("orchestrator: pause on shutdown", zap.String("job_id", id), zap.Error(err))
		}
	}
}

// mutateJob applies fn to a running job under the registry lock and returns
// a snapshot safe to persist. JobStatus reads the same fields under the same
// lock, so status polls never race with pipeline counter updates.
func (o *Orchestrator) mutateJob(job *model.ScrapingJob, fn func(*model.ScrapingJob)) model.ScrapingJob {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(job)
	return cloneJob(*job)
}

func (o *Orchestrator) snapshotJob(job *model.ScrapingJob) model.ScrapingJob {
	return o.mutateJob(job, func(*model.ScrapingJob) {})
}

// cloneJob copies the job's error-count map so a snapshot never shares
// mutable state with the running pipeline.
func cloneJob(j model.ScrapingJob) model.ScrapingJob {
	if j.ErrorCounts != nil {
		counts := make(map[string]int, len(j.ErrorCounts))
		for k, v := range j.ErrorCounts {
			counts[k] = v
		}
		j.ErrorCounts = counts
	}
	return j
}

func (o *Orchestrator) startExisting(ctx context.Context, job *model.ScrapingJob) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, running := o.handles[job.ID]; running {
		return eris.Errorf("orchestrator: job %s is already running", job.ID)
	}
	if err := job.Transition(model.JobRunning); err != nil {
		return err
	}
	if err := o.store.SaveJob(ctx, *job); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	handle := &jobHandle{job: job, cancel: cancel, done: make(chan struct{})}
	o.handles[job.ID] = handle

	go o.run(runCtx, handle)
	return nil
}

func (o *Orchestrator) finish(handle *jobHandle, to model.JobState, failure string, lastErr error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	job := handle.job
	if lastErr != nil {
		job.LastError = lastErr.Error()
	}
	job.FailureReason = failure
	if err := job.Transition(to); err != nil {
		zap.L().Error("orchestrator: finish transition", zap.String("job_id", job.ID), zap.Error(err))
	}

	persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.store.SaveJob(persistCtx, *job); err != nil {
		zap.L().Error("orchestrator: persist final job state",
			zap.String("job_id", job.ID), zap.Error(err))
	}

	delete(o.handles, job.ID)
	close(handle.done)
}
