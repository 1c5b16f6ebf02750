// Package monitoring aggregates pipeline health from persisted jobs and
// leads into point-in-time snapshots.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadscout/internal/model"
	"github.com/sells-group/leadscout/internal/store"
)

// MetricsSnapshot holds a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	// Job metrics.
	JobsTotal     int     `json:"jobs_total"`
	JobsRunning   int     `json:"jobs_running"`
	JobsQueued    int     `json:"jobs_queued"`
	JobsPaused    int     `json:"jobs_paused"`
	JobsCompleted int     `json:"jobs_completed"`
	JobsFailed    int     `json:"jobs_failed"`
	JobFailRate   float64 `json:"job_fail_rate"`

	// Throughput, summed across jobs.
	ArtifactsProcessed int `json:"artifacts_processed"`
	LeadsCreated       int `json:"leads_created"`
	LeadsRejected      int `json:"leads_rejected"`

	// Lead quality.
	LeadsHot  int `json:"leads_hot"`
	LeadsWarm int `json:"leads_warm"`
	LeadsSQL  int `json:"leads_sql"`

	// Pending writes not yet flushed to the store.
	WriteQueueDepth int `json:"write_queue_depth"`

	CollectedAt time.Time `json:"collected_at"`
}

// QueueDepther reports the number of parked lead writes.
type QueueDepther interface {
	Len() int
}

// Collector gathers metrics from the store and the orchestrator write queue.
type Collector struct {
	store store.Store
	queue QueueDepther
}

// NewCollector creates a metrics collector. queue may be nil when no
// orchestrator is running (the serve-only deployment).
func NewCollector(st store.Store, queue QueueDepther) *Collector {
	return &Collector{store: st, queue: queue}
}

// Collect gathers a snapshot of pipeline health.
func (c *Collector) Collect(ctx context.Context) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{CollectedAt: time.Now().UTC()}

	jobs, err := c.store.ListJobs(ctx, store.JobFilter{Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list jobs")
	}

	snap.JobsTotal = len(jobs)
	for _, j := range jobs {
		switch j.State {
		case model.JobRunning:
			snap.JobsRunning++
		case model.JobQueued:
			snap.JobsQueued++
		case model.JobPaused:
			snap.JobsPaused++
		case model.JobCompleted:
			snap.JobsCompleted++
		case model.JobFailed:
			snap.JobsFailed++
		}
		snap.ArtifactsProcessed += j.ArtifactsProcessed
		snap.LeadsCreated += j.LeadsCreated
		snap.LeadsRejected += j.LeadsRejected
	}

	finished := snap.JobsCompleted + snap.JobsFailed
	if finished > 0 {
		snap.JobFailRate = float64(snap.JobsFailed) / float64(finished)
	}

	hot, err := c.store.ListLeads(ctx, store.LeadFilter{Tier: model.TierHot, Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list hot leads")
	}
	snap.LeadsHot = len(hot)
	for _, l := range hot {
		if l.Status == model.StatusSQL {
			snap.LeadsSQL++
		}
	}

	warm, err := c.store.ListLeads(ctx, store.LeadFilter{Tier: model.TierWarm, Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list warm leads")
	}
	snap.LeadsWarm = len(warm)

	if c.queue != nil {
		snap.WriteQueueDepth = c.queue.Len()
	}

	return snap, nil
}
