// Package steps implements the three step executor strategies (agent,
// transform, condition) on top of a shared retry/timeout base, mirroring
// the teacher's resilience.Retry in spirit but delegating the mechanics
// to backoff/v5.
package steps

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/gomind-flow/flowcore/agentadapter"
	"github.com/gomind-flow/flowcore/expression"
	"github.com/gomind-flow/flowcore/flowerrors"
	"github.com/gomind-flow/flowcore/logger"
	"github.com/gomind-flow/flowcore/workflowmodel"
)

// StepExecutor runs one step of a kind against the given input and
// expression scope, returning the value to record as the step's result.
// For condition steps the result is the condition's boolean value; the
// engine picks step.Then or step.Else from it.
type StepExecutor interface {
	Execute(ctx context.Context, step *workflowmodel.Step, input interface{}, scope expression.Scope) (interface{}, error)
	Kind() workflowmodel.StepKind
}

// BaseExecutor bounds every attempt by a per-attempt timeout and retries
// up to step.MaxRetries+1 total attempts with exponential backoff,
// skipping retry entirely for non-retriable errors (flowerrors.Retryable).
type BaseExecutor struct {
	Log            logger.Logger
	DefaultTimeout time.Duration
}

// RunAttempt is the work a concrete executor performs for a single try.
type RunAttempt func(ctx context.Context) (interface{}, error)

// RunWithRetry drives attempt up to step.MaxRetries+1 times, honoring
// step.Timeout per attempt and step.RetryDelay (doubled each retry) as
// the backoff base.
func (b *BaseExecutor) RunWithRetry(ctx context.Context, step *workflowmodel.Step, attempt RunAttempt) (interface{}, error) {
	maxAttempts := step.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	perAttemptTimeout := step.Timeout(b.DefaultTimeout)
	baseDelay := step.RetryDelay()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = baseDelay
	bo.Multiplier = 2
	bo.MaxInterval = 30 * time.Second

	operation := func() (interface{}, error) {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if perAttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, perAttemptTimeout)
			defer cancel()
		}
		result, err := attempt(attemptCtx)
		if err != nil {
			if attemptCtx.Err() == context.DeadlineExceeded {
				return nil, &flowerrors.TimeoutError{Scope: "step", StepID: step.ID, Bound: perAttemptTimeout.String(), Observed: perAttemptTimeout.String()}
			}
			if !flowerrors.Retryable(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return result, nil
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(maxAttempts)),
	)
	if err != nil {
		b.Log.Warn("step exhausted retries", map[string]interface{}{
			"step_id": step.ID, "max_attempts": maxAttempts, "error": err.Error(),
		})
		return nil, err
	}
	return result, nil
}

func (b *BaseExecutor) Kind() workflowmodel.StepKind { return "" }

// TransformExecutor evaluates a pure expression against the run scope.
type TransformExecutor struct {
	BaseExecutor
}

func NewTransformExecutor(log logger.Logger) *TransformExecutor {
	return &TransformExecutor{BaseExecutor{Log: log, DefaultTimeout: 5 * time.Second}}
}

func (e *TransformExecutor) Kind() workflowmodel.StepKind { return workflowmodel.KindTransform }

func (e *TransformExecutor) Execute(ctx context.Context, step *workflowmodel.Step, input interface{}, scope expression.Scope) (interface{}, error) {
	return e.RunWithRetry(ctx, step, func(context.Context) (interface{}, error) {
		val, err := expression.Evaluate(step.Transform, scope)
		if err != nil {
			keys := make([]string, 0, len(scope))
			for k := range scope {
				keys = append(keys, k)
			}
			return nil, &flowerrors.ExpressionError{Expression: step.Transform, Cause: err, AvailableVariables: keys}
		}
		return val, nil
	})
}

// ConditionExecutor evaluates a boolean expression. The returned result is
// the boolean itself, addressable by later steps per spec.md §4.4; the
// engine derives the routing branch (step.Then or step.Else) from it
// rather than the executor picking a branch id directly.
type ConditionExecutor struct {
	BaseExecutor
}

func NewConditionExecutor(log logger.Logger) *ConditionExecutor {
	return &ConditionExecutor{BaseExecutor{Log: log, DefaultTimeout: 5 * time.Second}}
}

func (e *ConditionExecutor) Kind() workflowmodel.StepKind { return workflowmodel.KindCondition }

func (e *ConditionExecutor) Execute(ctx context.Context, step *workflowmodel.Step, input interface{}, scope expression.Scope) (interface{}, error) {
	return e.RunWithRetry(ctx, step, func(context.Context) (interface{}, error) {
		val, err := expression.Evaluate(step.Condition, scope)
		if err != nil {
			keys := make([]string, 0, len(scope))
			for k := range scope {
				keys = append(keys, k)
			}
			return nil, &flowerrors.ExpressionError{Expression: step.Condition, Cause: err, AvailableVariables: keys}
		}
		return truthy(val), nil
	})
}

func truthy(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	default:
		return true
	}
}

// AgentExecutor delegates to the host session protocol via an
// agentadapter.Adapter.
type AgentExecutor struct {
	BaseExecutor
	Adapter *agentadapter.Adapter
}

func NewAgentExecutor(log logger.Logger, adapter *agentadapter.Adapter, defaultTimeout time.Duration) *AgentExecutor {
	return &AgentExecutor{BaseExecutor{Log: log, DefaultTimeout: defaultTimeout}, adapter}
}

func (e *AgentExecutor) Kind() workflowmodel.StepKind { return workflowmodel.KindAgent }

func (e *AgentExecutor) Execute(ctx context.Context, step *workflowmodel.Step, input interface{}, scope expression.Scope) (interface{}, error) {
	if step.Agent == "" {
		return nil, &flowerrors.PreconditionError{StepID: step.ID, Message: "agent step has no agent name"}
	}
	priorContext := make(map[string]interface{}, len(scope))
	for k, v := range scope {
		if k == "input" {
			continue
		}
		priorContext[k] = v
	}
	return e.RunWithRetry(ctx, step, func(attemptCtx context.Context) (interface{}, error) {
		result, err := e.Adapter.Run(attemptCtx, step.Agent, input, priorContext)
		if err != nil {
			return nil, err
		}
		return result.JSON, nil
	})
}

// Registry maps step kind to the executor that handles it.
type Registry struct {
	executors map[workflowmodel.StepKind]StepExecutor
}

func NewRegistry(executors ...StepExecutor) *Registry {
	r := &Registry{executors: make(map[workflowmodel.StepKind]StepExecutor, len(executors))}
	for _, e := range executors {
		r.executors[e.Kind()] = e
	}
	return r
}

func (r *Registry) For(kind workflowmodel.StepKind) (StepExecutor, error) {
	e, ok := r.executors[kind]
	if !ok {
		known := make([]string, 0, len(r.executors))
		for k := range r.executors {
			known = append(known, string(k))
		}
		return nil, &flowerrors.ExecutorMissingError{Kind: string(kind), KnownKinds: known}
	}
	return e, nil
}
