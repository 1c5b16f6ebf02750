package resilience

import (
	"sync"
	"time"

	"github.com/sells-group/leadscout/internal/model"
)

// PendingWrite holds a computed lead whose persistence failed after retries.
// The lead is never discarded; the orchestrator redelivers queued writes on
// a later attempt.
type PendingWrite struct {
	Lead        model.Lead `json:"lead"`
	JobID       string     `json:"job_id"`
	Error       string     `json:"error"`
	Attempts    int        `json:"attempts"`
	FirstFailed time.Time  `json:"first_failed"`
	LastFailed  time.Time  `json:"last_failed"`
}

// WriteQueue is an in-memory FIFO of failed lead writes, keyed by lead key
// so a newer computation of the same lead replaces the stale one.
type WriteQueue struct {
	mu      sync.Mutex
	order   []string
	entries map[string]*PendingWrite
}

// NewWriteQueue creates an empty write queue.
func NewWriteQueue() *WriteQueue {
	return &WriteQueue{entries: make(map[string]*PendingWrite)}
}

// Enqueue records a failed write. A lead already queued under the same key
// is replaced with the newer snapshot; its attempt count carries over.
func (q *WriteQueue) Enqueue(lead model.Lead, jobID string, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := q.entries[lead.Key]; ok {
		existing.Lead = lead
		existing.Error = err.Error()
		existing.Attempts++
		existing.LastFailed = now
		return
	}

	q.entries[lead.Key] = &PendingWrite{
		Lead:        lead,
		JobID:       jobID,
		Error:       err.Error(),
		Attempts:    1,
		FirstFailed: now,
		LastFailed:  now,
	}
	q.order = append(q.order, lead.Key)
}

// Drain removes and returns all pending writes in FIFO order.
func (q *WriteQueue) Drain() []PendingWrite {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]PendingWrite, 0, len(q.order))
	for _, key := range q.order {
		if e, ok := q.entries[key]; ok {
			out = append(out, *e)
		}
	}
	q.order = nil
	q.entries = make(map[string]*PendingWrite)
	return out
}

// Len returns the number of queued writes.
func (q *WriteQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
