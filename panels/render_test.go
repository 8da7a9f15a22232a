package panels

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/mldash/dashapi"
)

// fakeSource serves canned responses and records whether the cache was allowed
type fakeSource struct {
	err      error
	useCache []bool
}

func (f *fakeSource) ModelInfo(ctx context.Context) (*dashapi.ModelInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dashapi.ModelInfo{Loaded: true, ModelName: "diabetes-rf", Version: "3", Alias: "champion", Tags: map[string]string{"framework": "sklearn"}}, nil
}

func (f *fakeSource) DVCInfo(ctx context.Context, useCache bool) (*dashapi.DVCInfo, error) {
	f.useCache = append(f.useCache, useCache)
	return &dashapi.DVCInfo{
		Tracked: true,
		Remote:  "s3://ml-data/dvc",
		Files:   []dashapi.DVCFile{{Path: "data/raw/diabetes.csv", MD5: "a1b2c3d4e5f60718", Size: 23873}},
	}, nil
}

func (f *fakeSource) Dataset(ctx context.Context, q dashapi.DatasetQuery, useCache bool) (*dashapi.DatasetPage, error) {
	f.useCache = append(f.useCache, useCache)
	if f.err != nil {
		return nil, f.err
	}
	return &dashapi.DatasetPage{
		Columns:    []string{"Glucose", "BMI", "Outcome"},
		Data:       []map[string]any{{"Glucose": 148.0, "BMI": 33.6, "Outcome": 1.0}, {"Glucose": 85.0, "BMI": nil, "Outcome": 0.0}},
		Total:      768,
		Page:       1,
		PageSize:   20,
		TotalPages: 39,
	}, nil
}

func (f *fakeSource) FeatureStoreConfig(ctx context.Context, useCache bool) (*dashapi.FeatureStoreConfig, error) {
	return &dashapi.FeatureStoreConfig{Project: "diabetes", Provider: "local", OnlineStore: map[string]any{"type": "sqlite"}}, nil
}

func (f *fakeSource) FeatureStoreViews(ctx context.Context, useCache bool) (*dashapi.FeatureViews, error) {
	return &dashapi.FeatureViews{Views: []dashapi.FeatureView{{
		Name:     "patient_features",
		Entities: []string{"patient_id"},
		TTL:      "365d",
		Fields:   []dashapi.FeatureField{{Name: "Glucose", Dtype: "Float32"}, {Name: "Age", Dtype: "Int64"}},
	}}}, nil
}

func (f *fakeSource) FeatureStoreData(ctx context.Context, page, pageSize int, useCache bool) (*dashapi.DatasetPage, error) {
	return &dashapi.DatasetPage{Total: 0, Page: page, PageSize: pageSize, TotalPages: 1}, nil
}

func (f *fakeSource) AnalyticsStats(ctx context.Context, q dashapi.AnalyticsQuery) (*dashapi.AnalyticsStats, error) {
	ks, p := 0.31, 0.0123
	return &dashapi.AnalyticsStats{
		TotalRows: 800, BeforeCount: 768, AfterCount: 32, SplitLabel: "2026-01-15",
		Features: map[string]dashapi.FeatureStats{
			"Glucose": {Drift: dashapi.Drift{KSStatistic: &ks, KSPValue: &p, Drifted: true}},
			"Age":     {Drift: dashapi.Drift{}},
		},
	}, nil
}

func TestHomePanel(t *testing.T) {
	src := &fakeSource{}
	out, err := NewHome(src).Render(context.Background(), false)
	require.NoError(t, err)

	assert.Contains(t, out, "Serving: diabetes-rf v3 @champion")
	assert.Contains(t, out, "- framework: sklearn")
	assert.Contains(t, out, "- data/raw/diabetes.csv (a1b2c3d4, 23873 bytes)")
	assert.Equal(t, []bool{true}, src.useCache)
}

func TestDatasetPanelFreshBypassesCache(t *testing.T) {
	src := &fakeSource{}
	p := NewDataset(src, dashapi.DatasetQuery{Page: 1, PageSize: 20})

	out, err := p.Render(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, []bool{false}, src.useCache)
	assert.Contains(t, out, "## Dataset (768 rows)")
	assert.Contains(t, out, "Glucose | BMI | Outcome\n---|---|---\n")
	assert.Contains(t, out, "148 | 33.600 | 1\n")
	assert.Contains(t, out, "85 | — | 0\n")
}

func TestDatasetPanelError(t *testing.T) {
	ce := &dashapi.ClassifiedError{Kind: dashapi.KindHTTPClient, Message: "Dataset not found", StatusCode: 404}
	_, err := NewDataset(&fakeSource{err: ce}, dashapi.DatasetQuery{}).Render(context.Background(), false)
	assert.ErrorIs(t, err, ce)
}

func TestFeatureStorePanel(t *testing.T) {
	out, err := NewFeatureStore(&fakeSource{}, 10).Render(context.Background(), false)
	require.NoError(t, err)

	assert.Contains(t, out, "## Feature store: diabetes")
	assert.Contains(t, out, "Online store: sqlite")
	assert.Contains(t, out, "- patient_features [patient_id] ttl=365d, 2 fields")
	assert.Contains(t, out, "Nothing materialized yet")
}

func TestAnalyticsPanel(t *testing.T) {
	out, err := NewAnalytics(&fakeSource{}, dashapi.AnalyticsQuery{}).Render(context.Background(), false)
	require.NoError(t, err)

	assert.Contains(t, out, "Split: 2026-01-15 (768 before, 32 after, 800 total)")
	assert.Contains(t, out, "Age | — | — | — | no\n")
	assert.Contains(t, out, "Glucose | 0.310 | 0.0123 | — | YES\n")
	assert.Contains(t, out, "1 of 2 features drifted")
}

func TestDefaults(t *testing.T) {
	r := Defaults(&fakeSource{})
	assert.Equal(t, []string{"analytics", "dataset", "feature-store", "home"}, r.List())
}
