package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/prospectpro/leadengine/internal/model"
	"github.com/prospectpro/leadengine/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the campaign submission API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
		}))

		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/campaigns", func(w http.ResponseWriter, req *http.Request) {
			var campaignCfg model.CampaignConfig
			if err := json.NewDecoder(req.Body).Decode(&campaignCfg); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
			if campaignCfg.OwnerID == "" {
				campaignCfg.OwnerID = "default"
			}
			if err := campaignCfg.Validate(); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}

			campaign, err := env.Store.CreateCampaign(req.Context(), campaignCfg)
			if err != nil {
				zap.L().Error("create campaign failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "create campaign failed"})
				return
			}

			// Campaigns run asynchronously; poll GET /campaigns/{id} for the
			// status and cost report. Detached from the request context so a
			// closed connection does not cancel the run.
			go func() {
				runCtx := context.WithoutCancel(ctx)
				result, err := env.Engine.Run(runCtx, campaign)
				if err != nil {
					zap.L().Error("campaign run failed",
						zap.String("campaign_id", campaign.ID),
						zap.Error(err))
					return
				}
				zap.L().Info("campaign run complete",
					zap.String("campaign_id", campaign.ID),
					zap.String("status", string(result.Status)),
					zap.Int("leads", len(result.Leads)))
			}()

			writeJSON(w, http.StatusAccepted, campaign)
		})

		r.Get("/campaigns/{id}", func(w http.ResponseWriter, req *http.Request) {
			campaign, err := env.Store.GetCampaign(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					writeJSON(w, http.StatusNotFound, map[string]string{"error": "campaign not found"})
					return
				}
				zap.L().Error("get campaign failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "get campaign failed"})
				return
			}
			writeJSON(w, http.StatusOK, campaign)
		})

		r.Get("/campaigns/{id}/leads", func(w http.ResponseWriter, req *http.Request) {
			leads, err := env.Store.ListLeads(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				zap.L().Error("list leads failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list leads failed"})
				return
			}
			writeJSON(w, http.StatusOK, leads)
		})

		r.Get("/campaigns/{id}/metrics", func(w http.ResponseWriter, req *http.Request) {
			metrics, err := env.Metrics.Collect(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				zap.L().Error("collect metrics failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "collect metrics failed"})
				return
			}
			writeJSON(w, http.StatusOK, metrics)
		})

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			zap.L().Info("server listening", zap.Int("port", port))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
			zap.L().Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case err := <-errCh:
			return err
		}
	},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (defaults to server.port config)")
	rootCmd.AddCommand(serveCmd)
}
