package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/mldash/dashapi"
)

type fakePipelines struct {
	triggerErr error
	runErr     error
	run        *dashapi.PipelineResult
	dags       []string
	pipelines  []string
}

func (f *fakePipelines) TriggerDAG(ctx context.Context, dagID string) (*dashapi.TriggerResult, error) {
	f.dags = append(f.dags, dagID)
	if f.triggerErr != nil {
		return nil, f.triggerErr
	}
	return &dashapi.TriggerResult{Success: true, DagID: dagID, Output: "queued"}, nil
}

func (f *fakePipelines) RunPipeline(ctx context.Context, name string) (*dashapi.PipelineResult, error) {
	f.pipelines = append(f.pipelines, name)
	if f.runErr != nil {
		return nil, f.runErr
	}
	if f.run != nil {
		return f.run, nil
	}
	return &dashapi.PipelineResult{Success: true}, nil
}

func TestNewTriggerDAGTask(t *testing.T) {
	task, err := NewTriggerDAGTask("materialize_features")
	require.NoError(t, err)
	assert.Equal(t, TaskTriggerDAG, task.Type())

	var p TriggerDAGPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	assert.Equal(t, "materialize_features", p.DagID)

	_, err = NewTriggerDAGTask("")
	assert.Error(t, err)
}

func TestNewZenMLTask(t *testing.T) {
	task, err := NewZenMLTask(dashapi.PipelineTraining)
	require.NoError(t, err)
	assert.Equal(t, TaskZenMLRun, task.Type())
	assert.JSONEq(t, `{"pipeline":"training"}`, string(task.Payload()))
}

func TestNewZenMLTaskRejectsUnknownPipeline(t *testing.T) {
	for _, name := range []string{"", "deploy", "Training"} {
		task, err := NewZenMLTask(name)
		assert.ErrorIs(t, err, dashapi.ErrUnknownPipeline, name)
		assert.Nil(t, task)
	}
}

func TestHandleTriggerDAG(t *testing.T) {
	api := &fakePipelines{}
	h := NewHandler(api, zerolog.Nop())

	task, err := NewTriggerDAGTask("process_transactions")
	require.NoError(t, err)
	require.NoError(t, h.HandleTriggerDAG(context.Background(), task))
	assert.Equal(t, []string{"process_transactions"}, api.dags)
}

func TestHandleRetryableFailure(t *testing.T) {
	ce := &dashapi.ClassifiedError{Kind: dashapi.KindNetwork, Message: dashapi.MsgUnreachable}
	h := NewHandler(&fakePipelines{triggerErr: ce}, zerolog.Nop())

	task, _ := NewTriggerDAGTask("materialize_features")
	err := h.HandleTriggerDAG(context.Background(), task)
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry), "recoverable errors are retried by the queue")
	assert.ErrorIs(t, err, ce)
}

func TestHandlePermanentFailure(t *testing.T) {
	ce := &dashapi.ClassifiedError{Kind: dashapi.KindHTTPClient, Message: "DAG not found", StatusCode: 404}
	h := NewHandler(&fakePipelines{triggerErr: ce}, zerolog.Nop())

	task, _ := NewTriggerDAGTask("nope")
	err := h.HandleTriggerDAG(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.ErrorIs(t, err, ce)
}

func TestHandleZenMLRunNonZeroExit(t *testing.T) {
	api := &fakePipelines{run: &dashapi.PipelineResult{Success: false, Stderr: "training step failed"}}
	h := NewHandler(api, zerolog.Nop())

	task, _ := NewZenMLTask(dashapi.PipelinePrediction)
	err := h.HandleZenMLRun(context.Background(), task)
	assert.ErrorIs(t, err, ErrPipelineFailed)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, []string{"prediction"}, api.pipelines)
}

func TestHandleZenMLRunUnknownPipeline(t *testing.T) {
	h := NewHandler(&fakePipelines{runErr: dashapi.ErrUnknownPipeline}, zerolog.Nop())

	// built by hand: NewZenMLTask refuses the name
	task := asynq.NewTask(TaskZenMLRun, []byte(`{"pipeline":"deploy"}`))
	err := h.HandleZenMLRun(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleBadPayload(t *testing.T) {
	h := NewHandler(&fakePipelines{}, zerolog.Nop())
	err := h.HandleZenMLRun(context.Background(), asynq.NewTask(TaskZenMLRun, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&dashapi.ClassifiedError{Kind: dashapi.KindHTTPServer}))
	assert.False(t, IsRetryable(&dashapi.ClassifiedError{Kind: dashapi.KindHTTPClient}))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.False(t, IsRetryable(errors.New("bad data")))
}

func TestRegister(t *testing.T) {
	mux := asynq.NewServeMux()
	NewHandler(&fakePipelines{}, zerolog.Nop()).Register(mux)

	task, _ := NewZenMLTask(dashapi.PipelineTraining)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, mux.ProcessTask(ctx, task))
}
