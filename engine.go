// Package flowcore drives a declarative, typed workflow graph to a
// terminal state: one step at a time, single-threaded per run, with
// bounded iterations and wall-clock duration.
package flowcore

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/gomind-flow/flowcore/agentadapter"
	"github.com/gomind-flow/flowcore/agentregistry"
	"github.com/gomind-flow/flowcore/expression"
	"github.com/gomind-flow/flowcore/flowerrors"
	"github.com/gomind-flow/flowcore/guard"
	"github.com/gomind-flow/flowcore/logger"
	"github.com/gomind-flow/flowcore/runctx"
	"github.com/gomind-flow/flowcore/steps"
	"github.com/gomind-flow/flowcore/telemetry"
	"github.com/gomind-flow/flowcore/workflowmodel"
)

// UIAdapter reports traversal events to whatever surface the host
// exposes to a human operator. Every method must be fire-and-forget from
// the engine's perspective except ApprovalPrompt, which the engine
// blocks on only when a step asks for approval.
type UIAdapter interface {
	WorkflowStart(workflowID string, input interface{})
	WorkflowComplete(result *WorkflowResult)
	WorkflowError(workflowID string, err error)
	StepStart(stepID string, kind workflowmodel.StepKind)
	StepComplete(stepID string, result interface{})
	StepError(stepID string, err error)
	ApprovalPrompt(message string, context map[string]interface{}, timeout time.Duration) bool
}

// NoOpUI discards every event and approves nothing it isn't asked about;
// ApprovalPrompt defaults to allowing the step through, matching a host
// that never wires a real approval surface.
type NoOpUI struct{}

func (NoOpUI) WorkflowStart(string, interface{})                  {}
func (NoOpUI) WorkflowComplete(*WorkflowResult)                   {}
func (NoOpUI) WorkflowError(string, error)                        {}
func (NoOpUI) StepStart(string, workflowmodel.StepKind)           {}
func (NoOpUI) StepComplete(string, interface{})                   {}
func (NoOpUI) StepError(string, error)                            {}
func (NoOpUI) ApprovalPrompt(string, map[string]interface{}, time.Duration) bool { return true }

// StepResult is the recorded outcome of one executed step.
type StepResult struct {
	StepID string
	Kind   workflowmodel.StepKind
	Value  interface{}
	Err    error
}

// WorkflowResult is the terminal outcome of a run.
type WorkflowResult struct {
	WorkflowID string
	Completed  bool
	Output     interface{}
	Steps      []StepResult
	Err        error
	Iterations int
	Duration   time.Duration
}

// Config holds engine-wide defaults; individual steps may override the
// per-step ones.
type Config struct {
	DefaultStepTimeout time.Duration
	DefaultMaxRetries  int
	MaxErrors          int
	MaxRevisits        int
	Logger             logger.Logger
	UI                 UIAdapter
	Metrics            *telemetry.Metrics

	// PollInterval and SessionCleanupRetryDelay are independent knobs:
	// the first paces agent-session status polling, the second paces
	// best-effort retries of session deletion. See DESIGN.md.
	PollInterval            time.Duration
	SessionCleanupRetryDelay time.Duration
}

// DefaultConfig matches the documented defaults: a 30s per-step timeout,
// an engine-level DefaultMaxRetries of 3 (reported by
// Engine.DefaultMaxRetries, not applied to steps that omit max_retries),
// and a max-error guard of 5.
func DefaultConfig() Config {
	return Config{
		DefaultStepTimeout: 30 * time.Second,
		DefaultMaxRetries:  3,
		MaxErrors:          5,
		MaxRevisits:        3,
		Logger:             logger.NewSimple(),
		UI:                 NoOpUI{},
		PollInterval:       agentadapter.PollIntervalMS * time.Millisecond,
		SessionCleanupRetryDelay: agentadapter.SessionCleanupDelayMS * time.Millisecond,
	}
}

// Option customizes a Config passed to New.
type Option func(*Config)

func WithLogger(l logger.Logger) Option            { return func(c *Config) { c.Logger = l } }
func WithUIAdapter(ui UIAdapter) Option            { return func(c *Config) { c.UI = ui } }
func WithMetrics(m *telemetry.Metrics) Option      { return func(c *Config) { c.Metrics = m } }
func WithDefaultStepTimeout(d time.Duration) Option { return func(c *Config) { c.DefaultStepTimeout = d } }
func WithMaxErrors(n int) Option                   { return func(c *Config) { c.MaxErrors = n } }
func WithMaxRevisits(n int) Option                 { return func(c *Config) { c.MaxRevisits = n } }
func WithPollInterval(d time.Duration) Option      { return func(c *Config) { c.PollInterval = d } }
func WithSessionCleanupRetryDelay(d time.Duration) Option {
	return func(c *Config) { c.SessionCleanupRetryDelay = d }
}

// Engine executes WorkflowDefinitions. An Engine carries no mutable
// per-run state; the same Engine may run many workflows concurrently,
// each call to Execute owning its own Context.
type Engine struct {
	cfg       Config
	executors *steps.Registry
	guards    []guard.Guard
}

// New builds an Engine. registry resolves agent step names; sessions is
// the host session API agent steps delegate to.
func New(registry agentregistry.AgentRegistry, sessions agentadapter.SessionAPI, opts ...Option) *Engine {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	adapter := agentadapter.New(registry, sessions, cfg.Logger).
		WithPollInterval(cfg.PollInterval).
		WithCleanupRetryDelay(cfg.SessionCleanupRetryDelay)
	executors := steps.NewRegistry(
		steps.NewAgentExecutor(cfg.Logger, adapter, cfg.DefaultStepTimeout),
		steps.NewTransformExecutor(cfg.Logger),
		steps.NewConditionExecutor(cfg.Logger),
	)

	return &Engine{
		cfg:       cfg,
		executors: executors,
		guards: []guard.Guard{
			guard.MaxErrorGuard{Limit: cfg.MaxErrors},
			guard.CircularDependencyGuard{MaxRevisits: cfg.MaxRevisits},
		},
	}
}

// DefaultMaxRetries returns the engine-level retry default a caller can
// use when building steps programmatically; it is distinct from
// workflowmodel.DefaultMaxRetries, which is what a step gets when its
// own max_retries field is left at zero.
func (e *Engine) DefaultMaxRetries() int { return e.cfg.DefaultMaxRetries }

// Execute validates def, then drives it to a terminal state: success
// (no further step routed to), a step's unhandled error, a guard
// refusal, or an iteration/duration bound. Execute never panics; a step
// executor panic is recovered and turned into the step's error.
func (e *Engine) Execute(ctx context.Context, def *workflowmodel.WorkflowDefinition, input interface{}) *WorkflowResult {
	if issues := workflowmodel.Validate(def); workflowmodel.HasErrors(issues) {
		msgs := make([]string, 0, len(issues))
		for _, i := range issues {
			if i.Severity == workflowmodel.SeverityError {
				msgs = append(msgs, i.String())
			}
		}
		err := &flowerrors.ValidationError{WorkflowID: def.ID, Issues: msgs}
		return &WorkflowResult{WorkflowID: def.ID, Err: err}
	}

	ctx, span := telemetry.StartSpan(ctx, "Engine.Execute",
		attribute.String("workflow_id", def.ID))
	defer span.End()

	e.cfg.Metrics.RecordWorkflowRun(ctx, def.ID)
	e.cfg.UI.WorkflowStart(def.ID, input)

	rc := runctx.New(input, def.EntryStepID())
	var trail []StepResult
	maxIter := def.EffectiveMaxIterations()
	maxDur := time.Duration(def.EffectiveMaxDurationMS()) * time.Millisecond

	for {
		if rc.Metadata.IterationCount >= maxIter {
			err := &flowerrors.IterationBoundError{WorkflowID: def.ID, MaxIterations: maxIter, LastSteps: tail(rc.Metadata.PreviousSteps, 5)}
			return e.finish(ctx, def, rc, trail, nil, err)
		}
		if rc.Elapsed() > maxDur {
			err := &flowerrors.DurationBoundError{
				WorkflowID: def.ID, MaxDurationMS: def.EffectiveMaxDurationMS(),
				ElapsedMS: rc.Elapsed().Milliseconds(), StepsDone: tail(rc.Metadata.PreviousSteps, 5),
				CurrentStep: rc.Metadata.CurrentStep,
			}
			return e.finish(ctx, def, rc, trail, nil, err)
		}

		for _, g := range e.guards {
			if err := g.Check(rc); err != nil {
				return e.finish(ctx, def, rc, trail, nil, err)
			}
		}

		current := def.StepByID(rc.Metadata.CurrentStep)
		if current == nil {
			return e.finish(ctx, def, rc, trail, rc.Snapshot(), nil)
		}

		result, nextID, stepErr := e.runStep(ctx, def, current, rc)
		trail = append(trail, StepResult{StepID: current.ID, Kind: current.Kind, Value: result, Err: stepErr})

		if stepErr != nil {
			rc = rc.RecordError(current.ID, runctx.ErrorInfo{Message: stepErr.Error(), Kind: string(current.Kind)})
			e.cfg.UI.StepError(current.ID, stepErr)
			if current.OnError != "" {
				rc = rc.Advance(current.OnError)
				continue
			}
			return e.finish(ctx, def, rc, trail, nil, stepErr)
		}

		e.cfg.UI.StepComplete(current.ID, result)
		rc = rc.AddResult(current.ID, result)

		if nextID == "" {
			// terminal: no further routing from this step.
			return e.finish(ctx, def, rc, trail, result, nil)
		}
		rc = rc.Advance(nextID)
	}
}

// runStep dispatches one step, recovering a panic into an error so a
// single misbehaving executor never takes down the run, and resolves
// the next step id per the step's own routing fields.
func (e *Engine) runStep(ctx context.Context, def *workflowmodel.WorkflowDefinition, step *workflowmodel.Step, rc *runctx.Context) (result interface{}, nextID string, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.cfg.Logger.Error("step executor panicked", map[string]interface{}{
				"step_id": step.ID, "panic": fmt.Sprintf("%v", r), "stack": string(debug.Stack()),
			})
			err = &flowerrors.PreconditionError{StepID: step.ID, Message: fmt.Sprintf("panic: %v", r)}
		}
	}()

	if step.RequireApproval {
		approved := e.cfg.UI.ApprovalPrompt(
			fmt.Sprintf("step %q requires approval", step.ID),
			rc.Snapshot(),
			step.Timeout(e.cfg.DefaultStepTimeout),
		)
		if !approved {
			return nil, "", &flowerrors.GuardError{Guard: "approval", Message: "step was not approved", Context: map[string]interface{}{"step_id": step.ID, "reason": step.ApprovalReason}}
		}
	}

	e.cfg.UI.StepStart(step.ID, step.Kind)
	e.cfg.Metrics.RecordStepAttempt(ctx, step.ID, string(step.Kind))
	start := time.Now()
	defer func() { e.cfg.Metrics.RecordStepDuration(ctx, step.ID, string(step.Kind), start) }()

	executor, err := e.executors.For(step.Kind)
	if err != nil {
		return nil, "", err
	}

	scope := expression.Scope(rc.Snapshot())
	input := resolveInput(step, rc)

	value, err := executor.Execute(ctx, step, input, scope)
	if err != nil {
		return nil, "", err
	}

	if step.Kind == workflowmodel.KindCondition {
		branch := step.Else
		if b, ok := value.(bool); ok && b {
			branch = step.Then
		}
		return value, branch, nil
	}

	idx := def.IndexOf(step.ID)
	next := step.Next
	if next == "" {
		next = def.NextDeclaredStepID(idx)
	}
	return value, next, nil
}

func resolveInput(step *workflowmodel.Step, rc *runctx.Context) interface{} {
	if step.Input == "" {
		return rc.Input
	}
	if v, ok := rc.GetResult(step.Input); ok {
		return v
	}
	if v, ok := rc.GetByPath(step.Input); ok {
		return v
	}
	return rc.Input
}

func (e *Engine) finish(ctx context.Context, def *workflowmodel.WorkflowDefinition, rc *runctx.Context, trail []StepResult, output interface{}, err error) *WorkflowResult {
	res := &WorkflowResult{
		WorkflowID: def.ID,
		Completed:  err == nil,
		Output:     output,
		Steps:      trail,
		Err:        err,
		Iterations: rc.Metadata.IterationCount,
		Duration:   rc.Elapsed(),
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		e.cfg.UI.WorkflowError(def.ID, err)
	} else {
		e.cfg.UI.WorkflowComplete(res)
	}
	e.cfg.Metrics.RecordWorkflowResult(ctx, def.ID, outcome)
	return res
}

func tail(s []string, n int) []string {
	if len(s) <= n {
		out := make([]string, len(s))
		copy(out, s)
		return out
	}
	out := make([]string, n)
	copy(out, s[len(s)-n:])
	return out
}
