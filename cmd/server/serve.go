package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/Brownie44l1/facenet-api/internal/handlers"
	"github.com/Brownie44l1/facenet-api/internal/metrics"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load the model and serve the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log.Info().Str("version", Version).Msg("Starting facenet-api")

	pre, modelServer, err := loadPipeline(cfg)
	if err != nil {
		return err
	}
	defer modelServer.Close()

	m := metrics.NewNoopMetrics()
	metricsPath := ""
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics(Version)
		metricsPath = cfg.Metrics.Path
	}

	handler := handlers.NewHandler(modelServer, pre, m)
	router := handlers.NewRouter(handler, handlers.RouterOptions{
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		MetricsPath:  metricsPath,
		Metrics:      m,
	})
	server := handlers.NewServer(cfg.Addr(), router, cfg.Server.ReadHeaderTimeout)

	g, ctx := errgroup.WithContext(cmd.Context())

	g.Go(func() error {
		log.Info().
			Str("addr", server.Addr).
			Int("dimensions", modelServer.Dimensions()).
			Msg("Server starting")
		log.Info().Msg("Endpoints:")
		log.Info().Msg("  GET  /                          - Liveness")
		log.Info().Msg("  GET  /health                    - Health check")
		log.Info().Msg("  POST /generate-embedding        - Base64 JSON image")
		log.Info().Msg("  POST /generate-embedding/upload - Multipart image upload")
		if metricsPath != "" {
			log.Info().Msgf("  GET  %s - Prometheus metrics", metricsPath)
		}

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Received shutdown signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info().Msg("Server shutdown complete")
	return nil
}
