// Package store persists leads, jobs, and rejection audit records across
// sqlite, postgres, and mongo backends.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/sells-group/leadscout/internal/model"
)

// ErrorCode classifies a persistence failure.
type ErrorCode string

const (
	// CodeConflict means a concurrent write raced on the same lead key.
	// Retrying the upsert converges.
	CodeConflict ErrorCode = "CONFLICT"
	// CodeUnavailable means the backend could not be reached.
	CodeUnavailable ErrorCode = "UNAVAILABLE"
)

// Error is a typed persistence failure.
type Error struct {
	Code ErrorCode
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf extracts the error code, or "" for untyped errors.
func CodeOf(err error) ErrorCode {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// LeadFilter specifies criteria for listing leads.
type LeadFilter struct {
	Tier     model.Tier       `json:"tier,omitempty"`
	Status   model.LeadStatus `json:"status,omitempty"`
	SourceID string           `json:"source_id,omitempty"`
	MinScore int              `json:"min_score,omitempty"`
	Limit    int              `json:"limit,omitempty"`
	Offset   int              `json:"offset,omitempty"`
}

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	State    model.JobState `json:"state,omitempty"`
	SourceID string         `json:"source_id,omitempty"`
	Limit    int            `json:"limit,omitempty"`
}

// Store defines the persistence interface for the qualification pipeline.
type Store interface {
	// Leads. UpsertLead is keyed on the lead's dedup key: a second write for
	// the same key unions the contact sets and takes the newer score.
	UpsertLead(ctx context.Context, lead model.Lead) (*model.Lead, error)
	GetLead(ctx context.Context, key string) (*model.Lead, error)
	ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error)

	// Jobs. SaveJob upserts the full job record including checkpoint, so a
	// crashed run can resume from persisted state.
	SaveJob(ctx context.Context, job model.ScrapingJob) error
	GetJob(ctx context.Context, jobID string) (*model.ScrapingJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.ScrapingJob, error)

	// Rejections are audit-only rows, never read back by the pipeline.
	LogRejection(ctx context.Context, rejection model.Rejection) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
