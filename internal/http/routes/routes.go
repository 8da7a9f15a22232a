package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/briangreenhill/mldash/cache"
	"github.com/briangreenhill/mldash/dashapi"
	appmw "github.com/briangreenhill/mldash/internal/http/middleware"
	"github.com/briangreenhill/mldash/internal/jobs"
	"github.com/briangreenhill/mldash/internal/metrics"
	"github.com/briangreenhill/mldash/panels"
)

// Enqueuer accepts background tasks; *asynq.Client satisfies it
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Pipelines runs backend pipelines inline when no queue is configured
type Pipelines interface {
	TriggerDAG(ctx context.Context, dagID string) (*dashapi.TriggerResult, error)
	RunPipeline(ctx context.Context, name string) (*dashapi.PipelineResult, error)
}

type Server struct {
	Router    *chi.Mux
	Panels    *panels.Registry
	Cache     cache.Invalidator
	Pipelines Pipelines
	Queue     Enqueuer // nil runs pipelines inline
	Logger    zerolog.Logger
}

type ServerOptions struct {
	Panels    *panels.Registry
	Cache     cache.Invalidator
	Pipelines Pipelines
	Queue     Enqueuer
	Logger    zerolog.Logger
}

func New(opts ServerOptions) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(hlog.NewHandler(opts.Logger))
	r.Use(appmw.LogRequestID)
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, took time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("took", took).
			Msg("request")
	}))
	r.Use(chimw.Recoverer)

	s := &Server{
		Router:    r,
		Panels:    opts.Panels,
		Cache:     opts.Cache,
		Pipelines: opts.Pipelines,
		Queue:     opts.Queue,
		Logger:    opts.Logger,
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("write health check response")
		}
	})
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(pr chi.Router) {
		pr.Use(appmw.DetectFresh)
		pr.Get("/panels", s.handleListPanels)
		pr.Get("/panels/{name}", s.handlePanel)
		pr.Get("/dashboard", s.handleDashboard)
	})

	r.Post("/cache/clear", s.handleClearCache)
	r.Post("/actions/airflow/{dagID}", s.handleTriggerDAG)
	r.Post("/actions/zenml/{pipeline}", s.handleRunPipeline)

	return s
}

func (s *Server) handleListPanels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{"panels": s.Panels.List()})
}

func (s *Server) handlePanel(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	res, err := s.Panels.Render(r.Context(), name, appmw.Fresh(r.Context()))
	if errors.Is(err, panels.ErrUnknownPanel) {
		writeJSON(w, r, http.StatusNotFound, map[string]string{"message": "unknown panel: " + name})
		return
	}
	if res.Failure != nil {
		hlog.FromRequest(r).Warn().Str("panel", name).Bool("retry", res.Failure.Retry).Msg(res.Failure.Message)
		writeJSON(w, r, http.StatusBadGateway, res.Failure)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write([]byte(res.Output)); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("write panel")
	}
}

// handleDashboard renders every panel at once; failed panels carry a failure block
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	results := s.Panels.RenderAll(r.Context(), appmw.Fresh(r.Context()))
	writeJSON(w, r, http.StatusOK, map[string]any{"panels": results})
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	n := s.Cache.ClearPrefix(prefix)
	hlog.FromRequest(r).Info().Str("prefix", prefix).Int("cleared", n).Msg("cache cleared")
	writeJSON(w, r, http.StatusOK, map[string]int{"cleared": n})
}

func (s *Server) handleTriggerDAG(w http.ResponseWriter, r *http.Request) {
	dagID := chi.URLParam(r, "dagID")

	if s.Queue != nil {
		task, err := jobs.NewTriggerDAGTask(dagID)
		if err != nil {
			writeJSON(w, r, http.StatusBadRequest, map[string]string{"message": err.Error()})
			return
		}
		s.enqueue(w, r, task)
		return
	}

	res, err := s.Pipelines.TriggerDAG(r.Context(), dagID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) handleRunPipeline(w http.ResponseWriter, r *http.Request) {
	pipeline := chi.URLParam(r, "pipeline")
	if pipeline != dashapi.PipelineTraining && pipeline != dashapi.PipelinePrediction {
		writeJSON(w, r, http.StatusBadRequest, map[string]string{"message": "pipeline must be training or prediction"})
		return
	}

	if s.Queue != nil {
		task, err := jobs.NewZenMLTask(pipeline)
		if err != nil {
			writeJSON(w, r, http.StatusInternalServerError, map[string]string{"message": err.Error()})
			return
		}
		s.enqueue(w, r, task)
		return
	}

	res, err := s.Pipelines.RunPipeline(r.Context(), pipeline)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) enqueue(w http.ResponseWriter, r *http.Request, task *asynq.Task) {
	info, err := s.Queue.Enqueue(task)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("task", task.Type()).Msg("enqueue failed")
		writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{"message": "failed to queue job"})
		return
	}
	hlog.FromRequest(r).Info().Str("task", task.Type()).Str("id", info.ID).Str("queue", info.Queue).Msg("enqueued")
	writeJSON(w, r, http.StatusAccepted, map[string]string{"id": info.ID, "queue": info.Queue})
}

// writeFailure answers with the same block a panel would show
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	hlog.FromRequest(r).Warn().Err(err).Msg("backend call failed")
	writeJSON(w, r, http.StatusBadGateway, panels.FailureBlock(err))
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("encode response")
	}
}
