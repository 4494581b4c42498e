package steps

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomind-flow/flowcore/expression"
	"github.com/gomind-flow/flowcore/flowerrors"
	"github.com/gomind-flow/flowcore/logger"
	"github.com/gomind-flow/flowcore/workflowmodel"
)

func TestTransformExecutorEvaluatesExpression(t *testing.T) {
	e := NewTransformExecutor(logger.NoOp{})
	step := &workflowmodel.Step{ID: "t1", Kind: workflowmodel.KindTransform, Transform: "input + 1"}
	v, err := e.Execute(context.Background(), step, nil, expression.Scope{"input": 41.0})
	require.NoError(t, err)
	assert.Equal(t, 42.0, v)
}

func TestConditionExecutorReturnsConditionBoolean(t *testing.T) {
	e := NewConditionExecutor(logger.NoOp{})
	step := &workflowmodel.Step{ID: "c1", Kind: workflowmodel.KindCondition, Condition: "input > 0", Then: "pos", Else: "neg"}

	v, err := e.Execute(context.Background(), step, nil, expression.Scope{"input": 1.0})
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = e.Execute(context.Background(), step, nil, expression.Scope{"input": -1.0})
	require.NoError(t, err)
	assert.Equal(t, false, v)
}

func TestBaseExecutorRetriesTransientErrors(t *testing.T) {
	base := &BaseExecutor{Log: logger.NoOp{}, DefaultTimeout: time.Second}
	step := &workflowmodel.Step{ID: "s1", MaxRetries: 2, RetryDelayMS: 1}

	attempts := 0
	result, err := base.RunWithRetry(context.Background(), step, func(context.Context) (interface{}, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)
}

func TestBaseExecutorDoesNotRetryPreconditionErrors(t *testing.T) {
	base := &BaseExecutor{Log: logger.NoOp{}, DefaultTimeout: time.Second}
	step := &workflowmodel.Step{ID: "s1", MaxRetries: 5, RetryDelayMS: 1}

	attempts := 0
	_, err := base.RunWithRetry(context.Background(), step, func(context.Context) (interface{}, error) {
		attempts++
		return nil, &flowerrors.PreconditionError{StepID: "s1", Message: "missing input"}
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestBaseExecutorStopsAfterMaxRetriesExhausted(t *testing.T) {
	base := &BaseExecutor{Log: logger.NoOp{}, DefaultTimeout: time.Second}
	step := &workflowmodel.Step{ID: "s1", MaxRetries: 1, RetryDelayMS: 1}

	attempts := 0
	_, err := base.RunWithRetry(context.Background(), step, func(context.Context) (interface{}, error) {
		attempts++
		return nil, errors.New("always fails")
	})

	require.Error(t, err)
	assert.Equal(t, 2, attempts) // max_retries=1 means 2 total attempts
}

func TestRegistryReturnsExecutorMissingError(t *testing.T) {
	r := NewRegistry(NewTransformExecutor(logger.NoOp{}))
	_, err := r.For(workflowmodel.KindAgent)
	require.Error(t, err)
	var missing *flowerrors.ExecutorMissingError
	assert.ErrorAs(t, err, &missing)
}
