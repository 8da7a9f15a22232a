// Package jobs defines background tasks for the long-running backend pipelines
package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/briangreenhill/mldash/dashapi"
)

const (
	TaskTriggerDAG = "pipeline:airflow_trigger"
	TaskZenMLRun   = "pipeline:zenml_run"

	// QueuePipelines is the queue pipeline tasks are enqueued on
	QueuePipelines = "pipelines"
)

const (
	defaultMaxRetry = 3
	defaultTimeout  = 6 * time.Minute
)

type TriggerDAGPayload struct {
	DagID string `json:"dag_id"`
}

type ZenMLRunPayload struct {
	Pipeline string `json:"pipeline"`
}

// NewTriggerDAGTask builds a task that triggers an Airflow DAG run
func NewTriggerDAGTask(dagID string) (*asynq.Task, error) {
	if dagID == "" {
		return nil, fmt.Errorf("dag id required")
	}
	payload, err := json.Marshal(TriggerDAGPayload{DagID: dagID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTriggerDAG, payload, taskOptions()...), nil
}

// NewZenMLTask builds a task that runs a ZenML pipeline (training or prediction)
func NewZenMLTask(pipeline string) (*asynq.Task, error) {
	if pipeline != dashapi.PipelineTraining && pipeline != dashapi.PipelinePrediction {
		return nil, fmt.Errorf("%w: %q", dashapi.ErrUnknownPipeline, pipeline)
	}
	payload, err := json.Marshal(ZenMLRunPayload{Pipeline: pipeline})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskZenMLRun, payload, taskOptions()...), nil
}

func taskOptions() []asynq.Option {
	return []asynq.Option{
		asynq.Queue(QueuePipelines),
		asynq.MaxRetry(defaultMaxRetry),
		asynq.Timeout(defaultTimeout),
	}
}
