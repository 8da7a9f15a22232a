package dashapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backend is a small fake of the dashboard API
func backend(t *testing.T, datasetCalls, dvcCalls *atomic.Int32) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/dataset", func(w http.ResponseWriter, r *http.Request) {
		datasetCalls.Add(1)
		writeJSON(w, http.StatusOK, `{"columns":[],"data":[],"total":768,"page":1,"pageSize":50,"totalPages":16}`)
	})
	mux.HandleFunc("GET /api/dvc-info", func(w http.ResponseWriter, r *http.Request) {
		dvcCalls.Add(1)
		writeJSON(w, http.StatusOK, `{"tracked":true}`)
	})
	mux.HandleFunc("POST /api/dataset/add-row", func(w http.ResponseWriter, r *http.Request) {
		var row map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&row))
		assert.Contains(t, row, "Outcome")
		assert.Contains(t, row, "DiabetesPedigreeFunction")
		writeJSON(w, http.StatusOK, `{"success":true,"total_rows":769,"added":{"Outcome":1}}`)
	})
	mux.HandleFunc("POST /api/zenml/run-training", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"success":false,"stdout":"","stderr":"step failed"}`)
	})
	mux.HandleFunc("POST /api/airflow/trigger/{dag}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"success":true,"dag_id":"`+r.PathValue("dag")+`","output":"queued"}`)
	})
	mux.HandleFunc("POST /api/model/switch", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, http.StatusOK, `{"success":true,"model_name":"`+body["registry_name"]+`","version":"4","alias":"`+body["alias"]+`","message":"ok"}`)
	})
	mux.HandleFunc("GET /api/analytics/stats", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2026-01-15", r.URL.Query().Get("cutoff"))
		assert.False(t, r.URL.Query().Has("category"))
		writeJSON(w, http.StatusOK, `{"total_rows":800,"before_count":768,"after_count":32,"split_label":"2026-01-15",
			"features":{"Glucose":{"drift":{"ks_statistic":0.31,"ks_pvalue":0.01,"psi":0.2,"drifted":true}}}}`)
	})
	return mux
}

func TestAddRowInvalidatesDataset(t *testing.T) {
	var datasetCalls, dvcCalls atomic.Int32
	c, _ := newTestClient(t, backend(t, &datasetCalls, &dvcCalls))
	ctx := context.Background()

	_, err := c.Dataset(ctx, DatasetQuery{Page: 1}, true)
	require.NoError(t, err)
	_, err = c.DVCInfo(ctx, true)
	require.NoError(t, err)

	res, err := c.AddDatasetRow(ctx, DatasetRow{PatientFeatures: PatientFeatures{Glucose: 120, Age: 40}, Outcome: 1})
	require.NoError(t, err)
	assert.Equal(t, 769, res.TotalRows)

	_, err = c.Dataset(ctx, DatasetQuery{Page: 1}, true)
	require.NoError(t, err)
	_, err = c.DVCInfo(ctx, true)
	require.NoError(t, err)

	assert.Equal(t, int32(2), datasetCalls.Load(), "dataset refetched after add-row")
	assert.Equal(t, int32(1), dvcCalls.Load(), "dvc info untouched")
}

func TestFetchStartedBeforeAddRowIsNotCached(t *testing.T) {
	var (
		total atomic.Int32
		hold  atomic.Bool
	)
	total.Store(768)
	hold.Store(true)
	started := make(chan struct{}, 1)
	release := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/dataset", func(w http.ResponseWriter, r *http.Request) {
		n := total.Load()
		if hold.CompareAndSwap(true, false) {
			started <- struct{}{}
			<-release
		}
		writeJSON(w, http.StatusOK, fmt.Sprintf(`{"columns":[],"data":[],"total":%d,"page":1,"pageSize":50,"totalPages":16}`, n))
	})
	mux.HandleFunc("POST /api/dataset/add-row", func(w http.ResponseWriter, r *http.Request) {
		n := total.Add(1)
		writeJSON(w, http.StatusOK, fmt.Sprintf(`{"success":true,"total_rows":%d}`, n))
	})
	c, _ := newTestClient(t, mux)
	// runs before the server closes, so a failed assertion cannot leave the handler blocked
	unblock := sync.OnceFunc(func() { close(release) })
	t.Cleanup(unblock)
	ctx := context.Background()

	done := make(chan *DatasetPage, 1)
	go func() {
		page, err := c.Dataset(ctx, DatasetQuery{Page: 1}, true)
		assert.NoError(t, err)
		done <- page
	}()
	<-started

	_, err := c.AddDatasetRow(ctx, DatasetRow{PatientFeatures: PatientFeatures{Glucose: 120, Age: 40}, Outcome: 1})
	require.NoError(t, err)
	unblock()

	old := <-done
	require.NotNil(t, old)
	assert.Equal(t, 768, old.Total, "the slow caller still gets its own response")

	page, err := c.Dataset(ctx, DatasetQuery{Page: 1}, true)
	require.NoError(t, err)
	assert.Equal(t, 769, page.Total, "pre-mutation response was not cached")
}

func TestPipelineRunInvalidatesDVCInfo(t *testing.T) {
	var datasetCalls, dvcCalls atomic.Int32
	c, _ := newTestClient(t, backend(t, &datasetCalls, &dvcCalls))
	ctx := context.Background()

	_, err := c.DVCInfo(ctx, true)
	require.NoError(t, err)

	res, err := c.RunPipeline(ctx, PipelineTraining)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "step failed", res.Stderr)

	_, err = c.DVCInfo(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), dvcCalls.Load())
}

func TestRunPipelineUnknown(t *testing.T) {
	c, err := New(Config{})
	require.NoError(t, err)
	_, err = c.RunPipeline(context.Background(), "deploy")
	assert.ErrorIs(t, err, ErrUnknownPipeline)
}

func TestTriggerDAG(t *testing.T) {
	var datasetCalls, dvcCalls atomic.Int32
	c, _ := newTestClient(t, backend(t, &datasetCalls, &dvcCalls))

	res, err := c.TriggerDAG(context.Background(), "materialize_features")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "materialize_features", res.DagID)
}

func TestSwitchModelDefaultsAlias(t *testing.T) {
	var datasetCalls, dvcCalls atomic.Int32
	c, _ := newTestClient(t, backend(t, &datasetCalls, &dvcCalls))

	res, err := c.SwitchModel(context.Background(), "diabetes-xgb", "")
	require.NoError(t, err)
	assert.Equal(t, "diabetes-xgb", res.ModelName)
	assert.Equal(t, "latest", res.Alias)
}

func TestAnalyticsStats(t *testing.T) {
	var datasetCalls, dvcCalls atomic.Int32
	c, _ := newTestClient(t, backend(t, &datasetCalls, &dvcCalls))

	stats, err := c.AnalyticsStats(context.Background(), AnalyticsQuery{Cutoff: "2026-01-15", Category: "all"})
	require.NoError(t, err)
	assert.Equal(t, 32, stats.AfterCount)
	require.Contains(t, stats.Features, "Glucose")
	assert.True(t, stats.Features["Glucose"].Drift.Drifted)
	require.NotNil(t, stats.Features["Glucose"].Drift.KSPValue)
	assert.InDelta(t, 0.01, *stats.Features["Glucose"].Drift.KSPValue, 1e-9)
}

func TestPatientFeaturesValidate(t *testing.T) {
	ok := PatientFeatures{Pregnancies: 6, Glucose: 148, BloodPressure: 72, SkinThickness: 35, BMI: 33.6, DiabetesPedigreeFunction: 0.627, Age: 50}
	require.NoError(t, ok.Validate())

	young := ok
	young.Age = 12
	assert.ErrorContains(t, young.Validate(), "Age")

	dpf := ok
	dpf.DiabetesPedigreeFunction = 3.5
	assert.ErrorContains(t, dpf.Validate(), "DiabetesPedigreeFunction")
}
