package resilience

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadscout/internal/model"
)

func queuedLead(key string, score int) model.Lead {
	return model.Lead{Key: key, Score: score}
}

func TestWriteQueue_DrainFIFO(t *testing.T) {
	q := NewWriteQueue()
	writeErr := eris.New("db down")

	q.Enqueue(queuedLead("a", 10), "job-1", writeErr)
	q.Enqueue(queuedLead("b", 20), "job-1", writeErr)
	q.Enqueue(queuedLead("c", 30), "job-2", writeErr)

	assert.Equal(t, 3, q.Len())

	drained := q.Drain()
	require.Len(t, drained, 3)
	assert.Equal(t, "a", drained[0].Lead.Key)
	assert.Equal(t, "b", drained[1].Lead.Key)
	assert.Equal(t, "c", drained[2].Lead.Key)
	assert.Equal(t, "job-2", drained[2].JobID)

	assert.Zero(t, q.Len())
	assert.Empty(t, q.Drain())
}

func TestWriteQueue_ReplacesByKey(t *testing.T) {
	q := NewWriteQueue()

	q.Enqueue(queuedLead("a", 10), "job-1", eris.New("first failure"))
	q.Enqueue(queuedLead("b", 20), "job-1", eris.New("first failure"))
	q.Enqueue(queuedLead("a", 55), "job-1", eris.New("second failure"))

	assert.Equal(t, 2, q.Len())

	drained := q.Drain()
	require.Len(t, drained, 2)

	// The replacement keeps the original queue position and accumulates
	// the attempt count.
	assert.Equal(t, "a", drained[0].Lead.Key)
	assert.Equal(t, 55, drained[0].Lead.Score)
	assert.Equal(t, 2, drained[0].Attempts)
	assert.Equal(t, "second failure", drained[0].Error)
	assert.Equal(t, 1, drained[1].Attempts)
}

func TestWriteQueue_TracksFailureTimes(t *testing.T) {
	q := NewWriteQueue()

	q.Enqueue(queuedLead("a", 10), "job-1", eris.New("boom"))
	q.Enqueue(queuedLead("a", 10), "job-1", eris.New("boom again"))

	drained := q.Drain()
	require.Len(t, drained, 1)
	assert.False(t, drained[0].FirstFailed.IsZero())
	assert.False(t, drained[0].LastFailed.Before(drained[0].FirstFailed))
}
