package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadscout/internal/model"
	"github.com/sells-group/leadscout/internal/orchestrator"
	"github.com/sells-group/leadscout/internal/store"
)

var runSource string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run scraping jobs for the configured sources",
	Long:  "Creates and runs one job per configured source (or one source with --source), waiting for all jobs to finish.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := store.New(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		orch, err := orchestrator.New(cfg, st)
		if err != nil {
			return err
		}

		sources := cfg.Sources
		if runSource != "" {
			sources = nil
			for _, s := range cfg.Sources {
				if s.ID == runSource {
					sources = []model.SourceConfig{s}
				}
			}
			if len(sources) == 0 {
				return eris.Errorf("run: source %q is not configured", runSource)
			}
		}
		if len(sources) == 0 {
			return eris.New("run: no sources configured")
		}

		var jobIDs []string
		for _, source := range sources {
			job, err := orch.CreateJob(ctx, source)
			if err != nil {
				return err
			}
			if err := orch.StartJob(ctx, job.ID); err != nil {
				return err
			}
			jobIDs = append(jobIDs, job.ID)
		}

		// Stop cleanly on SIGINT: pause everything so checkpoints persist.
		go func() {
			<-ctx.Done()
			orch.Shutdown()
		}()

		for _, id := range jobIDs {
			orch.Wait(id)
		}

		for _, id := range jobIDs {
			job, err := orch.JobStatus(context.Background(), id)
			if err != nil {
				zap.L().Warn("run: read final job state", zap.String("job_id", id), zap.Error(err))
				continue
			}
			zap.L().Info("job finished",
				zap.String("job_id", job.ID),
				zap.String("source", job.Source.ID),
				zap.String("state", string(job.State)),
				zap.Int("artifacts", job.ArtifactsProcessed),
				zap.Int("leads", job.LeadsCreated),
				zap.Int("rejected", job.LeadsRejected),
			)
		}

		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runSource, "source", "", "run only the named source")
	rootCmd.AddCommand(runCmd)
}
