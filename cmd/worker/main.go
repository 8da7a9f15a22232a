package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/hibiken/asynq"

	"github.com/briangreenhill/mldash/dashapi"
	"github.com/briangreenhill/mldash/internal/config"
	"github.com/briangreenhill/mldash/internal/jobs"
	"github.com/briangreenhill/mldash/internal/metrics"
	"github.com/briangreenhill/mldash/internal/upstream"
)

func main() {
	configPath := flag.String("config", os.Getenv("MLDASH_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.Logger().With().Str("component", "worker").Logger()
	if !cfg.Queue.Enabled() {
		logger.Fatal().Msg("MLDASH_REDIS_ADDR is required to run the worker")
	}
	metrics.Init()

	// no client-wide timeout: dashapi applies the request and pipeline deadlines per call
	httpClient, err := upstream.NewClient(0, upstream.Options{})
	if err != nil {
		logger.Fatal().Err(err).Msg("build http transport")
	}
	api, err := dashapi.New(cfg.API, dashapi.WithHTTPClient(httpClient), dashapi.WithLogger(logger))
	if err != nil {
		logger.Fatal().Err(err).Msg("build api client")
	}

	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.Queue.RedisAddr}, asynq.Config{
		Concurrency:    cfg.Queue.Concurrency,
		StrictPriority: false,
		Queues: map[string]int{
			jobs.QueuePipelines: 10,
			"default":           1,
		},
	})
	mux := asynq.NewServeMux()
	jobs.NewHandler(api, logger).Register(mux)

	logger.Info().Int("concurrency", cfg.Queue.Concurrency).Msg("worker running")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped")
	}
}
