package orchestrator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadscout/internal/fetch"
	"github.com/sells-group/leadscout/internal/intent"
	"github.com/sells-group/leadscout/internal/model"
	"github.com/sells-group/leadscout/internal/resilience"
)

// reason strings recorded on failed jobs.
const (
	failureBlocked   = "BLOCKED"
	failureFetch     = "FETCH_ERROR"
	failureCancelled = "CANCELLED"
)

// run drives one job from its checkpoint to completion.
func (o *Orchestrator) run(ctx context.Context, handle *jobHandle) {
	job := handle.job
	log := zap.L().With(zap.String("job_id", job.ID), zap.String("source", job.Source.ID))

	if err := o.sem.Acquire(ctx, 1); err != nil {
		// Paused or cancelled while waiting for a slot.
		state, reason := stopDisposition(handle)
		o.finish(handle, state, reason, nil)
		return
	}
	defer o.sem.Release(1)

	log.Info("job started", zap.Int("checkpoint", job.Checkpoint), zap.Int("attempt", job.Attempts))

	stream := o.fetcher.Fetch(ctx, job.Source, job.Checkpoint)
	for artifact := range stream.Artifacts() {
		o.processArtifact(ctx, job, artifact)

		snapshot := o.mutateJob(job, func(j *model.ScrapingJob) {
			j.ArtifactsProcessed++
			j.Checkpoint = artifact.Cursor
		})
		if err := o.store.SaveJob(ctx, snapshot); err != nil {
			log.Warn("checkpoint persist failed", zap.Error(err))
		}
	}

	// Flush on a fresh context so a pause cancellation cannot strand writes.
	flushCtx, cancelFlush := context.WithTimeout(context.Background(), 30*time.Second)
	o.flushQueue(flushCtx, job)
	cancelFlush()

	if err := stream.Err(); err != nil {
		if handle.paused || handle.cancelled || ctx.Err() != nil {
			state, reason := stopDisposition(handle)
			log.Info("job stopped", zap.String("state", string(state)), zap.Int("checkpoint", job.Checkpoint))
			o.finish(handle, state, reason, nil)
			return
		}

		reason := failureFetch
		if fetch.KindOf(err) == fetch.KindBlocked {
			reason = failureBlocked
		}
		log.Error("job failed", zap.String("reason", reason), zap.Error(err))
		o.finish(handle, model.JobFailed, reason, err)
		return
	}

	if handle.paused || handle.cancelled {
		state, reason := stopDisposition(handle)
		log.Info("job stopped", zap.String("state", string(state)), zap.Int("checkpoint", job.Checkpoint))
		o.finish(handle, state, reason, nil)
		return
	}

	final := o.snapshotJob(job)
	log.Info("job completed",
		zap.Int("artifacts", final.ArtifactsProcessed),
		zap.Int("leads", final.LeadsCreated),
		zap.Int("rejected", final.LeadsRejected),
	)
	o.finish(handle, model.JobCompleted, "", nil)
}

// stopDisposition maps an interrupted run to its final state. Pause wins over
// cancel so a checkpointed pause is never reported as a failure.
func stopDisposition(handle *jobHandle) (model.JobState, string) {
	if handle.paused {
		return model.JobPaused, ""
	}
	return model.JobFailed, failureCancelled
}

// processArtifact runs one artifact through normalize, the three parallel
// classification stages, the rejection gates, scoring, and persistence.
// Classification failures degrade; only persistence is retried.
func (o *Orchestrator) processArtifact(ctx context.Context, job *model.ScrapingJob, artifact model.RawArtifact) {
	log := zap.L().With(zap.String("job_id", job.ID), zap.String("artifact_id", artifact.ID))

	text := o.normalizer.Normalize(artifact.RawText)

	var (
		contacts  model.ContactSet
		intentRes model.IntentResult
		authRes   model.AuthenticityResult
	)

	// The three analyses are independent; only the classifier can block on
	// I/O, so the group's lifetime is bounded by its timeout. A classifier
	// failure degrades the artifact, never the sibling analyses, so it is
	// captured separately instead of aborting the group.
	var classifyErr error
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		contacts = o.extractor.Extract(text)
		return nil
	})
	g.Go(func() error {
		intentRes, classifyErr = o.classifier.Classify(gCtx, text)
		return nil
	})
	g.Go(func() error {
		authRes = o.detector.Analyze(artifact.Signals)
		return nil
	})
	_ = g.Wait()

	if classifyErr != nil {
		code := "CLASSIFY_ERROR"
		var ce *intent.Error
		if errors.As(classifyErr, &ce) {
			code = string(ce.Code)
		}
		// Tally the degradation on the job; it persists with the next
		// checkpoint save.
		o.mutateJob(job, func(j *model.ScrapingJob) { j.RecordError(code) })
		log.Warn("intent classification degraded",
			zap.String("code", code), zap.Error(classifyErr))
		if intentRes.Phase == "" {
			intentRes = model.IntentResult{Phase: model.PhaseUnknown, Tense: model.TenseAmbiguous}
		}
	}

	// Hard gates. Rejected artifacts leave an audit row, never a lead.
	if o.detector.HardReject(authRes) {
		o.reject(ctx, job, artifact, model.RejectBot, authRes.BotProbability)
		return
	}
	if contacts.Empty() {
		o.reject(ctx, job, artifact, model.RejectNoContact, authRes.BotProbability)
		return
	}

	result := o.engine.Score(contacts, intentRes, authRes)

	status := model.StatusMQL
	if result.Qualified {
		status = model.StatusSQL
	}

	lead := model.Lead{
		Key:            model.LeadKey(artifact.SourceID, contacts),
		Contact:        contacts,
		Phase:          intentRes.Phase,
		Score:          result.Score,
		Tier:           result.Tier,
		Status:         status,
		ScoreBreakdown: result.Breakdown,
		BotProbability: authRes.BotProbability,
		Language:       text.Language,
		SourceID:       artifact.SourceID,
		SourceURL:      artifact.URL,
		ArtifactID:     artifact.ID,
	}

	if err := o.persistLead(ctx, lead); err != nil {
		log.Warn("lead write parked after retries", zap.String("lead_key", lead.Key), zap.Error(err))
		o.queue.Enqueue(lead, job.ID, err)
		return
	}
	o.mutateJob(job, func(j *model.ScrapingJob) { j.LeadsCreated++ })

	log.Debug("lead upserted",
		zap.String("lead_key", lead.Key),
		zap.Int("score", result.Score),
		zap.String("tier", string(result.Tier)),
	)
}

func (o *Orchestrator) reject(ctx context.Context, job *model.ScrapingJob, artifact model.RawArtifact, reason model.RejectionReason, botProb float64) {
	o.mutateJob(job, func(j *model.ScrapingJob) { j.LeadsRejected++ })
	rejection := model.Rejection{
		ArtifactID:     artifact.ID,
		SourceID:       artifact.SourceID,
		URL:            artifact.URL,
		Reason:         reason,
		BotProbability: botProb,
		CreatedAt:      time.Now().UTC(),
	}
	if err := o.store.LogRejection(ctx, rejection); err != nil {
		zap.L().Warn("rejection audit write failed",
			zap.String("artifact_id", artifact.ID), zap.Error(err))
	}
}

// persistLead upserts with bounded retries. CONFLICT means a concurrent
// writer raced on the same key; the retried upsert merges with its result.
func (o *Orchestrator) persistLead(ctx context.Context, lead model.Lead) error {
	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.MaxAttempts = o.cfg.WriteRetryCap
	retryCfg.ShouldRetry = func(err error) bool { return true }
	retryCfg.OnRetry = resilience.RetryLogger("orchestrator", "upsert_lead")

	return resilience.Do(ctx, retryCfg, func(ctx context.Context) error {
		_, err := o.store.UpsertLead(ctx, lead)
		return err
	})
}

// flushQueue redelivers parked lead writes. Writes that fail again go back
// on the queue with their attempt counts intact.
func (o *Orchestrator) flushQueue(ctx context.Context, job *model.ScrapingJob) {
	pending := o.queue.Drain()
	for _, w := range pending {
		if _, err := o.store.UpsertLead(ctx, w.Lead); err != nil {
			o.queue.Enqueue(w.Lead, w.JobID, err)
			continue
		}
		if w.JobID == job.ID {
			o.mutateJob(job, func(j *model.ScrapingJob) { j.LeadsCreated++ })
		}
	}
	if n := o.queue.Len(); n > 0 {
		zap.L().Warn("write queue not fully drained", zap.Int("remaining", n))
	}
}
