package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/suitability-cli/internal/export"
	"github.com/sells-group/suitability-cli/internal/model"
	"github.com/sells-group/suitability-cli/internal/monitoring"
	"github.com/sells-group/suitability-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve run history, metrics, and health alerts over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		processMetrics()
		collector := monitoring.NewCollector(st, nil)
		checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring, nil)
		go checker.Run(ctx)

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           buildRouter(st, collector, cfg.Monitoring.LookbackWindowHours),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

// buildRouter wires the read-only HTTP API over st.
func buildRouter(st store.Store, collector *monitoring.Collector, lookbackHours int) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		hours := lookbackHours
		if v := req.URL.Query().Get("hours"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "hours must be a positive integer")
				return
			}
			hours = n
		}
		snap, err := collector.Collect(req.Context(), hours)
		if err != nil {
			zap.L().Error("collect status", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to collect status")
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	r.Route("/runs", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			filter, err := runFilterFromQuery(req)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			runs, err := st.ListRuns(req.Context(), filter)
			if err != nil {
				zap.L().Error("list runs", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "failed to list runs")
				return
			}
			if runs == nil {
				runs = []model.Run{}
			}
			writeJSON(w, http.StatusOK, runs)
		})

		r.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
			run, ok := lookupRun(w, req, st)
			if !ok {
				return
			}
			writeJSON(w, http.StatusOK, run)
		})

		r.Get("/{id}/results", func(w http.ResponseWriter, req *http.Request) {
			run, ok := lookupRun(w, req, st)
			if !ok {
				return
			}
			if run.Status != model.RunStatusComplete {
				writeError(w, http.StatusConflict, fmt.Sprintf("run is %s", run.Status))
				return
			}
			format := export.FormatJSON
			if v := req.URL.Query().Get("format"); v != "" {
				f, err := export.ParseFormat(v)
				if err != nil {
					writeError(w, http.StatusBadRequest, err.Error())
					return
				}
				format = f
			}
			results, err := st.ListResults(req.Context(), run.ID)
			if err != nil {
				zap.L().Error("list results", zap.String("run_id", run.ID), zap.Error(err))
				writeError(w, http.StatusInternalServerError, "failed to list results")
				return
			}
			w.Header().Set("Content-Type", contentTypes[format])
			if err := export.Write(w, format, export.FromRun(run, results)); err != nil {
				zap.L().Error("write results", zap.String("run_id", run.ID), zap.Error(err))
			}
		})
	})

	return r
}

var contentTypes = map[export.Format]string{
	export.FormatJSON: "application/json",
	export.FormatCSV:  "text/csv",
	export.FormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

func runFilterFromQuery(req *http.Request) (store.RunFilter, error) {
	q := req.URL.Query()
	filter := store.RunFilter{
		Status:       model.RunStatus(q.Get("status")),
		SpeciesLabel: q.Get("species"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return filter, eris.Errorf("unknown status %q", filter.Status)
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, eris.Errorf("%s must be a non-negative integer", name)
		}
		*dst = n
	}
	return filter, nil
}

func lookupRun(w http.ResponseWriter, req *http.Request, st store.Store) (*model.Run, bool) {
	run, err := st.GetRun(req.Context(), chi.URLParam(req, "id"))
	switch {
	case errors.Is(err, store.ErrRunNotFound):
		writeError(w, http.StatusNotFound, "run not found")
		return nil, false
	case err != nil:
		zap.L().Error("get run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get run")
		return nil, false
	}
	return run, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
