package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/searchlab/ablate/internal/ablation"
	"github.com/searchlab/ablate/internal/report"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve run results over a read-only JSON API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		port := resolvePort(servePort, cfg.Server.Port)
		zap.L().Info("starting server", zap.Int("port", port))
		return startServer(ctx, buildMux(e.report), port)
	},
}

// buildMux assembles the read-only results API.
func buildMux(rep *report.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(v); err != nil {
			zap.L().Error("encode response", zap.Error(err))
		}
	}
	writeErr := func(w http.ResponseWriter, status int, msg string) {
		writeJSON(w, status, map[string]string{"error": msg})
	}

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/runs", func(w http.ResponseWriter, req *http.Request) {
		runs, err := rep.ListRuns(req.Context())
		if err != nil {
			zap.L().Error("list runs", zap.Error(err))
			writeErr(w, http.StatusInternalServerError, "list runs failed")
			return
		}
		writeJSON(w, http.StatusOK, runs)
	})

	r.Get("/api/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		run, err := rep.GetRun(req.Context(), id)
		if eris.Is(err, report.ErrRunNotFound) {
			writeErr(w, http.StatusNotFound, "run not found")
			return
		} else if err != nil {
			zap.L().Error("get run", zap.String("run_id", id), zap.Error(err))
			writeErr(w, http.StatusInternalServerError, "get run failed")
			return
		}
		results, err := rep.RunResults(req.Context(), id)
		if err != nil {
			zap.L().Error("run results", zap.String("run_id", id), zap.Error(err))
			writeErr(w, http.StatusInternalServerError, "load results failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"run":      run,
			"impact":   ablation.AggregateImpact(results),
			"findings": ablation.CheckResults(results),
		})
	})

	r.Get("/api/runs/{id}/results", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		if _, err := rep.GetRun(req.Context(), id); eris.Is(err, report.ErrRunNotFound) {
			writeErr(w, http.StatusNotFound, "run not found")
			return
		} else if err != nil {
			writeErr(w, http.StatusInternalServerError, "get run failed")
			return
		}
		results, err := rep.RunResults(req.Context(), id)
		if err != nil {
			zap.L().Error("run results", zap.String("run_id", id), zap.Error(err))
			writeErr(w, http.StatusInternalServerError, "load results failed")
			return
		}
		writeJSON(w, http.StatusOK, results)
	})

	return r
}

func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves handler until ctx is canceled, then drains in-flight
// requests under a fresh timeout before returning.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		err := srv.ListenAndServe()
		if err == http.ErrServerClosed {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return eris.Wrap(err, "server listen")
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server shutdown")
	}
	return eris.Wrap(<-errCh, "server listen")
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
