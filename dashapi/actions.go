package dashapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/briangreenhill/mldash/cache"
)

// Pipelines accepted by RunPipeline
const (
	PipelineTraining   = "training"
	PipelinePrediction = "prediction"
)

// ErrUnknownPipeline is returned for a pipeline name other than training or prediction
var ErrUnknownPipeline = errors.New("unknown pipeline")

// invalidates lists, per mutation, the cached endpoints its success makes stale
var invalidates = map[string][]string{
	"/api/dataset/add-row":      {EndpointDataset},
	"/api/airflow/trigger":      {EndpointFeatureStoreData, EndpointDVCInfo},
	"/api/zenml/run-prediction": {EndpointFeatureStoreData, EndpointDVCInfo},
	"/api/zenml/run-training":   {EndpointDVCInfo},
}

// Invalidate drops every cached response whose key starts with one of the
// given endpoints and returns how many were removed.
func (c *Client) Invalidate(endpoints ...string) int {
	n := 0
	for _, e := range endpoints {
		n += c.cache.ClearPrefix(e)
	}
	return n
}

// mutate sends a body-carrying call. A success clears the cache entries the
// mutation is registered against.
func mutate[T any](ctx context.Context, c *Client, method, path string, body any, idempotent bool) (*T, error) {
	return send[T](ctx, c, request{method: method, path: path, body: body, retry: idempotent})
}

// runPipeline posts to a pipeline endpoint under Config.PipelineTimeout. It is
// never retried.
func runPipeline[T any](ctx context.Context, c *Client, path string) (*T, error) {
	return send[T](ctx, c, request{method: http.MethodPost, path: path, body: struct{}{}, timeout: c.cfg.PipelineTimeout})
}

func send[T any](ctx context.Context, c *Client, r request) (*T, error) {
	path := r.path
	raw, err := c.do(ctx, r)
	if err != nil {
		return nil, err
	}
	for prefix, endpoints := range invalidates {
		if strings.HasPrefix(path, prefix) {
			if n := c.Invalidate(endpoints...); n > 0 {
				c.logger.Debug().Str("mutation", path).Int("cleared", n).Msg("cache invalidated")
			}
		}
	}
	return decode[T](path, raw)
}

// get performs an uncached GET
func get[T any](ctx context.Context, c *Client, endpoint string, params map[string]string) (*T, error) {
	path := cache.KeyFor(endpoint, params)
	raw, err := c.do(ctx, request{method: http.MethodGet, path: path, retry: true})
	if err != nil {
		return nil, err
	}
	return decode[T](path, raw)
}

// Predict scores a single patient
func (c *Client) Predict(ctx context.Context, p PatientFeatures) (*Prediction, error) {
	return mutate[Prediction](ctx, c, http.MethodPost, "/api/predict", p, true)
}

// PredictBatch scores several patients in one call
func (c *Client) PredictBatch(ctx context.Context, patients []PatientFeatures) ([]Prediction, error) {
	type batch struct {
		Predictions []Prediction `json:"predictions"`
	}
	body := struct {
		Patients []PatientFeatures `json:"patients"`
	}{patients}
	out, err := mutate[batch](ctx, c, http.MethodPost, "/api/predict/batch", body, true)
	if err != nil {
		return nil, err
	}
	return out.Predictions, nil
}

func (c *Client) ModelInfo(ctx context.Context) (*ModelInfo, error) {
	return get[ModelInfo](ctx, c, "/api/model/info", nil)
}

func (c *Client) ListModels(ctx context.Context) (*ModelList, error) {
	return get[ModelList](ctx, c, "/api/model/list", nil)
}

// SwitchModel loads registryName at alias as the serving model. An empty
// alias means "latest".
func (c *Client) SwitchModel(ctx context.Context, registryName, alias string) (*SwitchResult, error) {
	if alias == "" {
		alias = "latest"
	}
	body := map[string]string{"registry_name": registryName, "alias": alias}
	return mutate[SwitchResult](ctx, c, http.MethodPost, "/api/model/switch", body, false)
}

// SetModelAlias points alias (e.g. champion) at a registered model version
func (c *Client) SetModelAlias(ctx context.Context, registryName, alias, version string) (*ActionResult, error) {
	body := map[string]string{"registry_name": registryName, "alias": alias, "version": version}
	return mutate[ActionResult](ctx, c, http.MethodPost, "/api/model/set-alias", body, false)
}

// OnlineStoreQuery pages through materialized features scored by the current model
type OnlineStoreQuery = DatasetQuery

func (c *Client) OnlineStore(ctx context.Context, q OnlineStoreQuery) (*DatasetPage, error) {
	return get[DatasetPage](ctx, c, "/api/online-store", q.params())
}

// AddDatasetRow appends a labelled row to the raw dataset
func (c *Client) AddDatasetRow(ctx context.Context, row DatasetRow) (*AddRowResult, error) {
	return mutate[AddRowResult](ctx, c, http.MethodPost, "/api/dataset/add-row", row, false)
}

func (c *Client) AirflowDAGs(ctx context.Context) (*DAGList, error) {
	return get[DAGList](ctx, c, "/api/airflow/dags", nil)
}

// TriggerDAG starts a run of dagID
func (c *Client) TriggerDAG(ctx context.Context, dagID string) (*TriggerResult, error) {
	return runPipeline[TriggerResult](ctx, c, "/api/airflow/trigger/"+url.PathEscape(dagID))
}

// DAGRuns returns the most recent runs of dagID
func (c *Client) DAGRuns(ctx context.Context, dagID string) (*DAGRuns, error) {
	return get[DAGRuns](ctx, c, "/api/airflow/runs/"+url.PathEscape(dagID), nil)
}

func (c *Client) RunTrainingPipeline(ctx context.Context) (*PipelineResult, error) {
	return runPipeline[PipelineResult](ctx, c, "/api/zenml/run-training")
}

func (c *Client) RunPredictionPipeline(ctx context.Context) (*PipelineResult, error) {
	return runPipeline[PipelineResult](ctx, c, "/api/zenml/run-prediction")
}

// RunPipeline runs the named pipeline, PipelineTraining or PipelinePrediction
func (c *Client) RunPipeline(ctx context.Context, name string) (*PipelineResult, error) {
	switch name {
	case PipelineTraining:
		return c.RunTrainingPipeline(ctx)
	case PipelinePrediction:
		return c.RunPredictionPipeline(ctx)
	default:
		return nil, ErrUnknownPipeline
	}
}

// AnalyticsQuery splits the feature history at Cutoff (YYYY-MM-DD) and keeps
// only rows with the given Outcome category. Empty fields use the backend defaults.
type AnalyticsQuery struct {
	Cutoff   string
	Category string
}

func (c *Client) AnalyticsStats(ctx context.Context, q AnalyticsQuery) (*AnalyticsStats, error) {
	params := map[string]string{}
	if q.Cutoff != "" {
		params["cutoff"] = q.Cutoff
	}
	if q.Category != "" && q.Category != "all" {
		params["category"] = q.Category
	}
	return get[AnalyticsStats](ctx, c, "/api/analytics/stats", params)
}

func (c *Client) TrainingConfig(ctx context.Context) (PipelineConfig, error) {
	out, err := get[PipelineConfig](ctx, c, "/api/config/training", nil)
	if err != nil {
		return nil, err
	}
	return *out, nil
}

func (c *Client) UpdateTrainingConfig(ctx context.Context, cfg PipelineConfig) (*ActionResult, error) {
	return mutate[ActionResult](ctx, c, http.MethodPut, "/api/config/training", cfg, false)
}

func (c *Client) PredictionConfig(ctx context.Context) (PipelineConfig, error) {
	out, err := get[PipelineConfig](ctx, c, "/api/config/prediction", nil)
	if err != nil {
		return nil, err
	}
	return *out, nil
}

func (c *Client) UpdatePredictionConfig(ctx context.Context, cfg PipelineConfig) (*ActionResult, error) {
	return mutate[ActionResult](ctx, c, http.MethodPut, "/api/config/prediction", cfg, false)
}
