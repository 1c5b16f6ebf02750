package monitoring

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadscout/internal/model"
	"github.com/sells-group/leadscout/internal/store"
)

type fakeQueue struct{ depth int }

func (q *fakeQueue) Len() int { return q.depth }

func seedStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	jobs := []model.ScrapingJob{
		{ID: "j1", State: model.JobCompleted, ArtifactsProcessed: 10, LeadsCreated: 4, LeadsRejected: 2},
		{ID: "j2", State: model.JobCompleted, ArtifactsProcessed: 5, LeadsCreated: 1, LeadsRejected: 1},
		{ID: "j3", State: model.JobFailed},
		{ID: "j4", State: model.JobRunning, ArtifactsProcessed: 3},
	}
	for i := range jobs {
		jobs[i].Source = model.SourceConfig{ID: "foro", Type: model.SourceForumThread, URL: "https://x.example.com"}
		jobs[i].CreatedAt = time.Now().UTC()
		require.NoError(t, st.SaveJob(ctx, jobs[i]))
	}

	leads := []struct {
		phone  string
		score  int
		tier   model.Tier
		status model.LeadStatus
	}{
		{"+51987654321", 85, model.TierHot, model.StatusSQL},
		{"+51911222333", 82, model.TierHot, model.StatusSQL},
		{"+51944555666", 60, model.TierWarm, model.StatusMQL},
	}
	for _, l := range leads {
		contact := model.ContactSet{Phones: []model.Phone{{Number: l.phone, Region: "PE", WhatsAppEligible: true}}}
		_, err := st.UpsertLead(ctx, model.Lead{
			Key:      model.LeadKey("foro", contact),
			Contact:  contact,
			Phase:    model.PhaseBooking,
			Score:    l.score,
			Tier:     l.tier,
			Status:   l.status,
			SourceID: "foro",
		})
		require.NoError(t, err)
	}
	return st
}

func TestCollector_Collect(t *testing.T) {
	st := seedStore(t)
	c := NewCollector(st, &fakeQueue{depth: 2})

	snap, err := c.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, snap.JobsTotal)
	assert.Equal(t, 2, snap.JobsCompleted)
	assert.Equal(t, 1, snap.JobsFailed)
	assert.Equal(t, 1, snap.JobsRunning)
	assert.InDelta(t, 1.0/3.0, snap.JobFailRate, 1e-9)

	assert.Equal(t, 18, snap.ArtifactsProcessed)
	assert.Equal(t, 5, snap.LeadsCreated)
	assert.Equal(t, 3, snap.LeadsRejected)

	assert.Equal(t, 2, snap.LeadsHot)
	assert.Equal(t, 1, snap.LeadsWarm)
	assert.Equal(t, 2, snap.LeadsSQL)
	assert.Equal(t, 2, snap.WriteQueueDepth)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_NilQueue(t *testing.T) {
	st := seedStore(t)
	c := NewCollector(st, nil)

	snap, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Zero(t, snap.WriteQueueDepth)
}
