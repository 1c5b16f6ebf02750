package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// JobState is the lifecycle state of a scraping job.
type JobState string

const (
	JobQueued    JobState = "QUEUED"
	JobRunning   JobState = "RUNNING"
	JobPaused    JobState = "PAUSED"
	JobCompleted JobState = "COMPLETED"
	JobFailed    JobState = "FAILED"
)

// validJobTransitions enumerates the allowed state machine edges. FAILED is
// terminal except for an explicit retry back to QUEUED. QUEUED -> FAILED is
// the cancellation of a job that never started.
var validJobTransitions = map[JobState][]JobState{
	JobQueued:    {JobRunning, JobFailed},
	JobRunning:   {JobCompleted, JobFailed, JobPaused},
	JobPaused:    {JobRunning, JobFailed},
	JobFailed:    {JobQueued},
	JobCompleted: {},
}

// CanTransition reports whether moving from -> to is a legal edge.
func CanTransition(from, to JobState) bool {
	for _, next := range validJobTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SourceConfig describes one scraping source and its budgets.
type SourceConfig struct {
	ID                string     `yaml:"id" mapstructure:"id" json:"id"`
	Type              SourceType `yaml:"type" mapstructure:"type" json:"type"`
	URL               string     `yaml:"url" mapstructure:"url" json:"url"`
	MaxArtifacts      int        `yaml:"max_artifacts" mapstructure:"max_artifacts" json:"max_artifacts"`
	Concurrency       int        `yaml:"concurrency" mapstructure:"concurrency" json:"concurrency"`
	RequestsPerSecond float64    `yaml:"requests_per_second" mapstructure:"requests_per_second" json:"requests_per_second"`
	MinDelayMS        int        `yaml:"min_delay_ms" mapstructure:"min_delay_ms" json:"min_delay_ms"`
	DisallowPaths     []string   `yaml:"disallow_paths" mapstructure:"disallow_paths" json:"disallow_paths,omitempty"`
}

// ScrapingJob tracks one run of a source through the pipeline. The state
// machine is owned by the orchestrator.
type ScrapingJob struct {
	ID                 string         `json:"id"`
	Source             SourceConfig   `json:"source_config"`
	State              JobState       `json:"state"`
	Attempts           int            `json:"attempts"`
	ArtifactsProcessed int            `json:"artifacts_processed"`
	LeadsCreated       int            `json:"leads_created"`
	LeadsRejected      int            `json:"leads_rejected"`
	Checkpoint         int            `json:"checkpoint"`
	LastError          string         `json:"last_error,omitempty"`
	FailureReason      string         `json:"failure_reason,omitempty"`
	ErrorCounts        map[string]int `json:"error_counts,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	StartedAt          *time.Time     `json:"started_at,omitempty"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
}

// RecordError tallies a degraded pipeline stage against the job, keyed by
// error code. Degradations are not failures; the job keeps running, but the
// counts persist with it.
func (j *ScrapingJob) RecordError(code string) {
	if j.ErrorCounts == nil {
		j.ErrorCounts = make(map[string]int)
	}
	j.ErrorCounts[code]++
}

// Transition moves the job to a new state, validating the edge.
func (j *ScrapingJob) Transition(to JobState) error {
	if !CanTransition(j.State, to) {
		return eris.Errorf("job %s: invalid transition %s -> %s", j.ID, j.State, to)
	}
	now := time.Now().UTC()
	switch to {
	case JobRunning:
		if j.StartedAt == nil {
			j.StartedAt = &now
		}
	case JobCompleted, JobFailed:
		j.CompletedAt = &now
	case JobQueued:
		// Retry path: reset terminal markers, keep counters.
		j.Attempts++
		j.CompletedAt = nil
		j.LastError = ""
		j.FailureReason = ""
	}
	j.State = to
	return nil
}
