package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadscout/internal/model"
	"github.com/sells-group/leadscout/internal/monitoring"
	"github.com/sells-group/leadscout/internal/orchestrator"
	"github.com/sells-group/leadscout/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the job and lead API server",
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
		defer orch.Shutdown()

		collector := monitoring.NewCollector(st, orch.Queue())

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			snap, err := collector.Collect(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, snap)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", func(w http.ResponseWriter, r *http.Request) {
				var source model.SourceConfig
				if err := json.NewDecoder(r.Body).Decode(&source); err != nil {
					writeError(w, http.StatusBadRequest, eris.Wrap(err, "invalid request body"))
					return
				}

				job, err := orch.CreateJob(r.Context(), source)
				if err != nil {
					writeError(w, http.StatusBadRequest, err)
					return
				}
				if err := orch.StartJob(r.Context(), job.ID); err != nil {
					writeError(w, http.StatusInternalServerError, err)
					return
				}
				writeJSON(w, http.StatusAccepted, job)
			})

			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				filter := store.JobFilter{
					State:    model.JobState(r.URL.Query().Get("state")),
					SourceID: r.URL.Query().Get("source_id"),
				}
				jobs, err := st.ListJobs(r.Context(), filter)
				if err != nil {
					writeError(w, http.StatusInternalServerError, err)
					return
				}
				writeJSON(w, http.StatusOK, jobs)
			})

			r.Get("/{jobID}", func(w http.ResponseWriter, r *http.Request) {
				job, err := orch.JobStatus(r.Context(), chi.URLParam(r, "jobID"))
				if err != nil {
					writeError(w, http.StatusNotFound, err)
					return
				}
				writeJSON(w, http.StatusOK, job)
			})

			r.Post("/{jobID}/pause", func(w http.ResponseWriter, r *http.Request) {
				jobID := chi.URLParam(r, "jobID")
				if err := orch.Pause(jobID); err != nil {
					writeError(w, http.StatusConflict, err)
					return
				}
				job, err := orch.JobStatus(r.Context(), jobID)
				if err != nil {
					writeError(w, http.StatusInternalServerError, err)
					return
				}
				writeJSON(w, http.StatusOK, job)
			})

			r.Post("/{jobID}/resume", func(w http.ResponseWriter, r *http.Request) {
				if err := orch.Resume(r.Context(), chi.URLParam(r, "jobID")); err != nil {
					writeError(w, http.StatusConflict, err)
					return
				}
				writeJSON(w, http.StatusAccepted, map[string]string{"status": "resumed"})
			})

			r.Post("/{jobID}/cancel", func(w http.ResponseWriter, r *http.Request) {
				jobID := chi.URLParam(r, "jobID")
				if err := orch.Cancel(r.Context(), jobID); err != nil {
					writeError(w, http.StatusConflict, err)
					return
				}
				job, err := orch.JobStatus(r.Context(), jobID)
				if err != nil {
					writeError(w, http.StatusInternalServerError, err)
					return
				}
				writeJSON(w, http.StatusOK, job)
			})

			r.Post("/{jobID}/retry", func(w http.ResponseWriter, r *http.Request) {
				if err := orch.Retry(r.Context(), chi.URLParam(r, "jobID")); err != nil {
					writeError(w, http.StatusConflict, err)
					return
				}
				writeJSON(w, http.StatusAccepted, map[string]string{"status": "retrying"})
			})
		})

		r.Get("/leads", func(w http.ResponseWriter, r *http.Request) {
			filter := store.LeadFilter{
				Tier:     model.Tier(r.URL.Query().Get("tier")),
				Status:   model.LeadStatus(r.URL.Query().Get("status")),
				SourceID: r.URL.Query().Get("source_id"),
			}
			leads, err := st.ListLeads(r.Context(), filter)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, leads)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
