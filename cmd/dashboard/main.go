// cmd/dashboard/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/briangreenhill/mldash/dashapi"
	"github.com/briangreenhill/mldash/internal/config"
	"github.com/briangreenhill/mldash/internal/http/routes"
	"github.com/briangreenhill/mldash/internal/metrics"
	"github.com/briangreenhill/mldash/internal/upstream"
	"github.com/briangreenhill/mldash/panels"
)

func main() {
	configPath := flag.String("config", os.Getenv("MLDASH_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.Logger()
	metrics.Init()

	// no client-wide timeout: dashapi applies the request and pipeline deadlines per call
	httpClient, err := upstream.NewClient(0, upstream.Options{})
	if err != nil {
		logger.Fatal().Err(err).Msg("build http transport")
	}
	api, err := dashapi.New(cfg.API,
		dashapi.WithHTTPClient(httpClient),
		dashapi.WithLogger(logger.With().Str("component", "dashapi").Logger()),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("build api client")
	}

	var queue routes.Enqueuer
	if cfg.Queue.Enabled() {
		qc := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Queue.RedisAddr})
		defer func() {
			if err := qc.Close(); err != nil {
				logger.Error().Err(err).Msg("close queue client")
			}
		}()
		queue = qc
		logger.Info().Str("redis", cfg.Queue.RedisAddr).Msg("pipeline actions go through the job queue")
	}

	s := routes.New(routes.ServerOptions{
		Panels:    panels.Defaults(api),
		Cache:     api.Cache(),
		Pipelines: api,
		Queue:     queue,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("backend", cfg.API.BaseURL).Msg("starting dashboard")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown")
	}
}
