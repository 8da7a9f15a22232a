package dashapi

import (
	"encoding/json"
	"fmt"
)

// DatasetPage is one page of tabular rows. The dataset, feature-store data and
// online-store endpoints all answer with this shape.
type DatasetPage struct {
	Columns    []string         `json:"columns"`
	Data       []map[string]any `json:"data"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	PageSize   int              `json:"pageSize"`
	TotalPages int              `json:"totalPages"`
	ModelName  string           `json:"model_name,omitempty"`
}

// DVCInfo describes the data-versioning state of the tracked dataset
type DVCInfo struct {
	Tracked  bool        `json:"tracked"`
	Remote   string      `json:"remote,omitempty"`
	Files    []DVCFile   `json:"files"`
	Commits  []DVCCommit `json:"commits,omitempty"`
	Message  string      `json:"message,omitempty"`
	Modified bool        `json:"modified"`
}

type DVCFile struct {
	Path string `json:"path"`
	MD5  string `json:"md5"`
	Size int64  `json:"size"`
}

type DVCCommit struct {
	Hash    string `json:"hash"`
	Date    string `json:"date"`
	Message string `json:"message"`
}

// FeatureStoreConfig is the feature store's YAML configuration served as JSON.
// Only the common keys are typed; the whole document is kept in Raw.
type FeatureStoreConfig struct {
	Project      string         `json:"project"`
	Registry     any            `json:"registry"`
	Provider     string         `json:"provider"`
	OnlineStore  map[string]any `json:"online_store"`
	OfflineStore map[string]any `json:"offline_store"`

	Raw map[string]any `json:"-"`
}

func (f *FeatureStoreConfig) UnmarshalJSON(b []byte) error {
	type plain FeatureStoreConfig
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	if err := json.Unmarshal(b, &p.Raw); err != nil {
		return err
	}
	*f = FeatureStoreConfig(p)
	return nil
}

type FeatureViews struct {
	Views    []FeatureView `json:"views"`
	Entities []Entity      `json:"entities,omitempty"`
}

type FeatureView struct {
	Name     string         `json:"name"`
	Entities []string       `json:"entities"`
	TTL      string         `json:"ttl"`
	Source   string         `json:"source,omitempty"`
	Online   bool           `json:"online"`
	Fields   []FeatureField `json:"fields"`
}

type FeatureField struct {
	Name  string `json:"name"`
	Dtype string `json:"dtype"`
}

type Entity struct {
	Name        string `json:"name"`
	JoinKey     string `json:"join_key"`
	Description string `json:"description,omitempty"`
}

// PatientFeatures is the model input. Ranges mirror what the backend accepts.
type PatientFeatures struct {
	Pregnancies              int     `json:"Pregnancies" yaml:"Pregnancies"`
	Glucose                  float64 `json:"Glucose" yaml:"Glucose"`
	BloodPressure            float64 `json:"BloodPressure" yaml:"BloodPressure"`
	SkinThickness            float64 `json:"SkinThickness" yaml:"SkinThickness"`
	Insulin                  float64 `json:"Insulin" yaml:"Insulin"`
	BMI                      float64 `json:"BMI" yaml:"BMI"`
	DiabetesPedigreeFunction float64 `json:"DiabetesPedigreeFunction" yaml:"DiabetesPedigreeFunction"`
	Age                      int     `json:"Age" yaml:"Age"`
}

// Validate checks field ranges before anything is sent
func (p PatientFeatures) Validate() error {
	checks := []struct {
		name   string
		v      float64
		lo, hi float64
	}{
		{"Pregnancies", float64(p.Pregnancies), 0, 20},
		{"Glucose", p.Glucose, 0, 250},
		{"BloodPressure", p.BloodPressure, 0, 200},
		{"SkinThickness", p.SkinThickness, 0, 120},
		{"Insulin", p.Insulin, 0, 900},
		{"BMI", p.BMI, 0, 80},
		{"DiabetesPedigreeFunction", p.DiabetesPedigreeFunction, 0, 3},
		{"Age", float64(p.Age), 18, 100},
	}
	for _, c := range checks {
		if c.v < c.lo || c.v > c.hi {
			return fmt.Errorf("%s must be between %g and %g, got %g", c.name, c.lo, c.hi, c.v)
		}
	}
	return nil
}

// DatasetRow is a labelled row appended to the raw dataset
type DatasetRow struct {
	PatientFeatures `yaml:",inline"`
	Outcome         int `json:"Outcome" yaml:"Outcome"`
}

type Prediction struct {
	Prediction  int     `json:"prediction"`
	Probability float64 `json:"probability"`
	ModelName   string  `json:"model_name"`
}

type ModelInfo struct {
	Loaded    bool              `json:"loaded"`
	ModelName string            `json:"model_name"`
	Version   string            `json:"version,omitempty"`
	Alias     string            `json:"alias,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
}

type RegisteredModel struct {
	RegistryName string            `json:"registry_name"`
	Version      string            `json:"version"`
	Aliases      []string          `json:"aliases"`
	Tags         map[string]string `json:"tags"`
	ModelTags    map[string]string `json:"model_tags"`
	Description  string            `json:"description"`
	RunID        string            `json:"run_id"`
}

type CurrentModel struct {
	Name    string            `json:"name"`
	Version string            `json:"version"`
	Alias   string            `json:"alias"`
	Tags    map[string]string `json:"tags"`
}

type ModelList struct {
	Models  []RegisteredModel `json:"models"`
	Current *CurrentModel     `json:"current"`
	Message string            `json:"message,omitempty"`
}

type SwitchResult struct {
	Success   bool              `json:"success"`
	ModelName string            `json:"model_name"`
	Version   string            `json:"version"`
	Alias     string            `json:"alias"`
	Tags      map[string]string `json:"tags"`
	Message   string            `json:"message"`
}

// ActionResult is the generic {success, message} acknowledgement
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type AddRowResult struct {
	Success   bool           `json:"success"`
	TotalRows int            `json:"total_rows"`
	Added     map[string]any `json:"added"`
}

type DAG struct {
	DagID    string `json:"dag_id"`
	Fileloc  string `json:"fileloc,omitempty"`
	Owners   string `json:"owners,omitempty"`
	IsPaused any    `json:"is_paused,omitempty"`
}

type DAGList struct {
	DAGs []DAG `json:"dags"`
}

type TriggerResult struct {
	Success bool   `json:"success"`
	DagID   string `json:"dag_id"`
	Output  string `json:"output"`
}

type DAGRun struct {
	DagID         string `json:"dag_id"`
	RunID         string `json:"run_id"`
	State         string `json:"state"`
	ExecutionDate string `json:"execution_date"`
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date"`
}

type DAGRuns struct {
	Runs    []DAGRun `json:"runs"`
	Message string   `json:"message,omitempty"`
}

// PipelineResult is the outcome of a synchronous pipeline run. Success can be
// false on a 200 response when the pipeline itself exited non-zero.
type PipelineResult struct {
	Success bool   `json:"success"`
	Stdout  string `json:"stdout"`
	Stderr  string `json:"stderr"`
}

type SeriesStats struct {
	Count    int      `json:"count"`
	Mean     *float64 `json:"mean"`
	Std      *float64 `json:"std"`
	Min      *float64 `json:"min"`
	Max      *float64 `json:"max"`
	Median   *float64 `json:"median"`
	Q1       *float64 `json:"q1"`
	Q3       *float64 `json:"q3"`
	Skew     *float64 `json:"skew"`
	Kurtosis *float64 `json:"kurtosis"`
	ZMean    *float64 `json:"z_mean"`
}

type Drift struct {
	KSStatistic *float64 `json:"ks_statistic"`
	KSPValue    *float64 `json:"ks_pvalue"`
	PSI         *float64 `json:"psi"`
	Drifted     bool     `json:"drifted"`
}

type Histogram struct {
	Labels []float64 `json:"labels"`
	Before []int     `json:"before"`
	After  []int     `json:"after"`
}

type TimeSeries struct {
	Dates     []string   `json:"dates"`
	Values    []*float64 `json:"values"`
	Window    int        `json:"window"`
	SplitDate string     `json:"split_date"`
}

type FeatureStats struct {
	Overall    *SeriesStats `json:"overall"`
	Before     *SeriesStats `json:"before"`
	After      *SeriesStats `json:"after"`
	Drift      Drift        `json:"drift"`
	Histogram  *Histogram   `json:"histogram"`
	TimeSeries *TimeSeries  `json:"timeseries"`
}

type DateRange struct {
	Min         *string  `json:"min"`
	Max         *string  `json:"max"`
	UniqueDates []string `json:"unique_dates"`
}

type AnalyticsStats struct {
	TotalRows   int                     `json:"total_rows"`
	BeforeCount int                     `json:"before_count"`
	AfterCount  int                     `json:"after_count"`
	SplitLabel  string                  `json:"split_label"`
	HasDates    bool                    `json:"has_dates"`
	DateRange   DateRange               `json:"date_range"`
	Features    map[string]FeatureStats `json:"features"`
}

// PipelineConfig is a free-form YAML pipeline configuration served as JSON
type PipelineConfig map[string]any
