package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/mldash/dashapi"
)

// Pipelines is the part of the backend client the handlers call
type Pipelines interface {
	TriggerDAG(ctx context.Context, dagID string) (*dashapi.TriggerResult, error)
	RunPipeline(ctx context.Context, name string) (*dashapi.PipelineResult, error)
}

// ErrPipelineFailed reports a pipeline run that completed but exited non-zero
var ErrPipelineFailed = errors.New("pipeline failed")

type Handler struct {
	api    Pipelines
	logger zerolog.Logger
}

func NewHandler(api Pipelines, logger zerolog.Logger) *Handler {
	return &Handler{api: api, logger: logger}
}

// Register attaches the pipeline handlers to mux
func (h *Handler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskTriggerDAG, h.HandleTriggerDAG)
	mux.HandleFunc(TaskZenMLRun, h.HandleZenMLRun)
}

func (h *Handler) HandleTriggerDAG(ctx context.Context, t *asynq.Task) error {
	var p TriggerDAGPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("bad payload: %v: %w", err, asynq.SkipRetry)
	}
	log := h.logger.With().Str("task", t.Type()).Str("dag_id", p.DagID).Logger()
	log.Info().Msg("start")

	start := time.Now()
	res, err := h.api.TriggerDAG(ctx, p.DagID)
	if err != nil {
		return h.outcome(log, err, time.Since(start))
	}
	log.Info().Str("output", res.Output).Dur("took", time.Since(start)).Msg("done")
	return nil
}

func (h *Handler) HandleZenMLRun(ctx context.Context, t *asynq.Task) error {
	var p ZenMLRunPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("bad payload: %v: %w", err, asynq.SkipRetry)
	}
	log := h.logger.With().Str("task", t.Type()).Str("pipeline", p.Pipeline).Logger()
	log.Info().Msg("start")

	start := time.Now()
	res, err := h.api.RunPipeline(ctx, p.Pipeline)
	if err != nil {
		return h.outcome(log, err, time.Since(start))
	}
	if !res.Success {
		log.Error().Str("stderr", res.Stderr).Dur("took", time.Since(start)).Msg("pipeline exited with failure (dropping job)")
		return fmt.Errorf("%w: %s: %w", ErrPipelineFailed, p.Pipeline, asynq.SkipRetry)
	}
	log.Info().Dur("took", time.Since(start)).Msg("done")
	return nil
}

// outcome decides whether asynq should retry a failed call
func (h *Handler) outcome(log zerolog.Logger, err error, took time.Duration) error {
	if IsRetryable(err) {
		log.Warn().Err(err).Dur("took", took).Msg("retryable error")
		return err
	}
	log.Error().Err(err).Dur("took", took).Msg("permanent error (dropping job)")
	return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
}

// IsRetryable reports whether err came from a failure that retrying could fix
func IsRetryable(err error) bool {
	var ce *dashapi.ClassifiedError
	if errors.As(err, &ce) {
		return ce.Recoverable()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
