package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/leadscout/internal/config"
	"github.com/sells-group/leadscout/internal/intent"
	"github.com/sells-group/leadscout/internal/model"
	"github.com/sells-group/leadscout/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func testConfig() *config.Config {
	return &config.Config{
		Fetch: config.FetchConfig{
			TimeoutSecs:  5,
			RetryCap:     1,
			DefaultRPS:   100,
			DefaultBurst: 10,
			MaxBodyBytes: 1 << 20,
		},
		Normalize: config.NormalizeConfig{DefaultLanguage: "es"},
		Extract: config.ExtractConfig{
			Region:            "PE",
			DisposableDomains: []string{"mailinator.com"},
		},
		Intent: config.IntentConfig{
			Backend:         "heuristic",
			MinTokenQuality: 0.3,
			MinConfidence:   0.2,
		},
		Authenticity: config.AuthenticityConfig{
			HeadlessWeight:      0.4,
			TimingWeight:        0.3,
			IPReputationWeight:  0.3,
			HoneypotOverride:    true,
			TimingVarianceFloor: 25.0,
			SoftSuspicion:       0.5,
			HardRejection:       0.8,
		},
		Score: config.ScoreConfig{
			WhatsAppPhone:    35,
			ValidEmail:       15,
			PhaseBooking:     30,
			PhasePlanning:    20,
			FlagshipLandmark: 10,
			PriceMarkers:     10,
			DisposableEmail:  -15,
			BotSuspicion:     -50,
			HotFloor:         80,
			WarmFloor:        50,
			SQLThreshold:     80,
		},
		Orchestrator: config.OrchestratorConfig{
			GlobalConcurrency: 2,
			WriteRetryCap:     2,
		},
	}
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	orch, err := New(testConfig(), st)
	require.NoError(t, err)
	return orch, st
}

const forumFixture = `<html><body>
<article class="post">
  <div class="post-body">precio del tour al valle sagrado? mi whatsapp es +51 987 654 321</div>
</article>
<article class="post">
  <div class="post-body">que lindo lugar, hermosas fotos</div>
</article>
<article class="post" data-honeypot="1">
  <div class="post-body">promocion unica, escribe ya al 911 222 333</div>
</article>
</body></html>`

func TestOrchestrator_RunsJobToCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(forumFixture)) //nolint:errcheck
	}))
	defer srv.Close()

	orch, st := newTestOrchestrator(t)
	ctx := context.Background()

	job, err := orch.CreateJob(ctx, model.SourceConfig{
		ID:   "foro-viajeros",
		Type: model.SourceForumThread,
		URL:  srv.URL + "/threads/1",
	})
	require.NoError(t, err)
	assert.Equal(t, model.JobQueued, job.State)

	require.NoError(t, orch.StartJob(ctx, job.ID))
	orch.Wait(job.ID)

	final, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, final.State)
	assert.Equal(t, 3, final.ArtifactsProcessed)
	assert.Equal(t, 3, final.Checkpoint)

	// One booking post with a WhatsApp number becomes a lead; the no-contact
	// post and the honeypot post are rejected.
	assert.Equal(t, 1, final.LeadsCreated)
	assert.Equal(t, 2, final.LeadsRejected)
	require.NotNil(t, final.CompletedAt)

	leads, err := st.ListLeads(ctx, store.LeadFilter{})
	require.NoError(t, err)
	require.Len(t, leads, 1)

	lead := leads[0]
	assert.Equal(t, model.PhaseBooking, lead.Phase)
	assert.Equal(t, 85, lead.Score)
	assert.Equal(t, model.TierHot, lead.Tier)
	assert.Equal(t, model.StatusSQL, lead.Status)
	assert.Equal(t, "+51987654321", lead.Contact.Phones[0].Number)
	assert.Equal(t, "foro-viajeros", lead.SourceID)
	assert.Equal(t, "es", lead.Language)
	assert.Zero(t, orch.Queue().Len())
}

func TestOrchestrator_CreateJobValidates(t *testing.T) {
	orch, _ := newTestOrchestrator(t)

	_, err := orch.CreateJob(context.Background(), model.SourceConfig{Type: model.SourceForumThread})
	assert.Error(t, err)
}

func TestOrchestrator_StartJobUnknown(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	assert.Error(t, orch.StartJob(context.Background(), "nope"))
}

func TestOrchestrator_BlockedSourceFailsJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	orch, st := newTestOrchestrator(t)
	ctx := context.Background()

	job, err := orch.CreateJob(ctx, model.SourceConfig{
		ID:   "foro-bloqueado",
		Type: model.SourceForumThread,
		URL:  srv.URL + "/threads/1",
	})
	require.NoError(t, err)

	require.NoError(t, orch.StartJob(ctx, job.ID))
	orch.Wait(job.ID)

	final, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobFailed, final.State)
	assert.Equal(t, "BLOCKED", final.FailureReason)
	assert.NotEmpty(t, final.LastError)
}

func TestOrchestrator_RetryRequeuesFailedJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	orch, st := newTestOrchestrator(t)
	ctx := context.Background()

	job, err := orch.CreateJob(ctx, model.SourceConfig{
		ID:   "foro-bloqueado",
		Type: model.SourceForumThread,
		URL:  srv.URL + "/threads/1",
	})
	require.NoError(t, err)
	require.NoError(t, orch.StartJob(ctx, job.ID))
	orch.Wait(job.ID)

	require.NoError(t, orch.Retry(ctx, job.ID))
	orch.Wait(job.ID)

	final, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobFailed, final.State)
	assert.Equal(t, 1, final.Attempts)
}

// unavailableClassifier degrades every call the way the remote backend does
// when its circuit is open: the heuristic result comes back with the error.
type unavailableClassifier struct {
	inner intent.Classifier
}

func (c unavailableClassifier) Classify(ctx context.Context, text model.NormalizedText) (model.IntentResult, error) {
	res, _ := c.inner.Classify(ctx, text)
	return res, &intent.Error{Code: intent.CodeModelUnavailable, Err: eris.New("model down")}
}

func TestOrchestrator_RecordsClassifierDegradations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(forumFixture)) //nolint:errcheck
	}))
	defer srv.Close()

	orch, st := newTestOrchestrator(t)
	orch.classifier = unavailableClassifier{inner: orch.classifier}
	ctx := context.Background()

	job, err := orch.CreateJob(ctx, model.SourceConfig{
		ID:   "foro-viajeros",
		Type: model.SourceForumThread,
		URL:  srv.URL + "/threads/1",
	})
	require.NoError(t, err)
	require.NoError(t, orch.StartJob(ctx, job.ID))
	orch.Wait(job.ID)

	final, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, final.State)

	// Every artifact's degradation is tallied on the job, and the degraded
	// heuristic result still qualifies the booking lead.
	assert.Equal(t, 3, final.ErrorCounts["MODEL_UNAVAILABLE"])
	assert.Equal(t, 1, final.LeadsCreated)
}

func TestOrchestrator_JobStatusDuringRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Millisecond)
		w.Write([]byte(forumFixture)) //nolint:errcheck
	}))
	defer srv.Close()

	orch, _ := newTestOrchestrator(t)
	ctx := context.Background()

	job, err := orch.CreateJob(ctx, model.SourceConfig{
		ID:   "foro-lento",
		Type: model.SourceForumThread,
		URL:  srv.URL + "/threads/1",
	})
	require.NoError(t, err)
	require.NoError(t, orch.StartJob(ctx, job.ID))

	// Status polls while the pipeline is mutating counters must be safe
	// and eventually observe the terminal state.
	for {
		got, err := orch.JobStatus(ctx, job.ID)
		require.NoError(t, err)
		if got.State != model.JobRunning {
			assert.Equal(t, model.JobCompleted, got.State)
			assert.Equal(t, 3, got.ArtifactsProcessed)
			break
		}
		time.Sleep(time.Millisecond)
	}
	orch.Wait(job.ID)
}

func TestOrchestrator_CancelQueuedJob(t *testing.T) {
	orch, st := newTestOrchestrator(t)
	ctx := context.Background()

	job, err := orch.CreateJob(ctx, model.SourceConfig{
		ID:   "foro",
		Type: model.SourceForumThread,
		URL:  "https://foro.example.com/threads/1",
	})
	require.NoError(t, err)

	require.NoError(t, orch.Cancel(ctx, job.ID))

	final, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobFailed, final.State)
	assert.Equal(t, "CANCELLED", final.FailureReason)

	// A cancelled job can still be requeued.
	require.NoError(t, orch.Retry(ctx, job.ID))
	orch.Wait(job.ID)
}

func TestOrchestrator_CancelUnknownJob(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	assert.Error(t, orch.Cancel(context.Background(), "nope"))
}

func TestOrchestrator_ResumeRequiresPaused(t *testing.T) {
	orch, st := newTestOrchestrator(t)
	ctx := context.Background()

	job, err := orch.CreateJob(ctx, model.SourceConfig{
		ID:   "foro",
		Type: model.SourceForumThread,
		URL:  "https://foro.example.com/threads/1",
	})
	require.NoError(t, err)

	// Still QUEUED, not PAUSED.
	assert.Error(t, orch.Resume(ctx, job.ID))

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobQueued, got.State)
}

func TestOrchestrator_JobStatusFallsBackToStore(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	ctx := context.Background()

	job, err := orch.CreateJob(ctx, model.SourceConfig{
		ID:   "foro",
		Type: model.SourceForumThread,
		URL:  "https://foro.example.com/threads/1",
	})
	require.NoError(t, err)

	got, err := orch.JobStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobQueued, got.State)

	_, err = orch.JobStatus(ctx, "missing")
	assert.Error(t, err)
}
