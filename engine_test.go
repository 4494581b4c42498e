package flowcore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomind-flow/flowcore/agentregistry"
	"github.com/gomind-flow/flowcore/flowerrors"
	"github.com/gomind-flow/flowcore/workflowmodel"
)

func TestExecuteRejectsInvalidWorkflow(t *testing.T) {
	sessions := newScriptedSessions()
	engine := newTestEngine(sessions)

	def := &workflowmodel.WorkflowDefinition{} // no id, no steps
	result := engine.Execute(context.Background(), def, nil)

	require.Error(t, result.Err)
	var verr *flowerrors.ValidationError
	assert.ErrorAs(t, result.Err, &verr)
	assert.Equal(t, 0, sessions.created)
}

func TestExecuteHitsIterationBound(t *testing.T) {
	sessions := newScriptedSessions()
	registry := agentregistry.NewStaticRegistry(nil, nil)
	engine := New(registry, sessions, WithMaxErrors(1000))

	// A loop: transform step "a" always routes back to itself via Next,
	// so the run never terminates on its own and is bounded only by
	// max_iterations.
	def := &workflowmodel.WorkflowDefinition{
		ID:            "loop",
		MaxIterations: 3,
		Steps: []workflowmodel.Step{
			{ID: "a", Kind: workflowmodel.KindTransform, Transform: "1", Next: "a"},
		},
	}

	result := engine.Execute(context.Background(), def, nil)
	require.Error(t, result.Err)
	var iterErr *flowerrors.IterationBoundError
	assert.ErrorAs(t, result.Err, &iterErr)
}

func TestExecuteRoutesToOnErrorHandler(t *testing.T) {
	sessions := newScriptedSessions()
	sessions.replies["recover"] = []string{`{"recovered":true}`}
	engine := newTestEngine(sessions, "recover")

	def := &workflowmodel.WorkflowDefinition{
		ID: "s",
		Steps: []workflowmodel.Step{
			{ID: "bad", Kind: workflowmodel.KindTransform, Transform: "1 / 0", OnError: "recover"},
			{ID: "recover", Kind: workflowmodel.KindAgent, Agent: "recover"},
		},
	}

	result := engine.Execute(context.Background(), def, nil)
	require.NoError(t, result.Err)
	require.Len(t, result.Steps, 2)
	assert.Equal(t, "bad", result.Steps[0].StepID)
	assert.Error(t, result.Steps[0].Err)
	assert.Equal(t, "recover", result.Steps[1].StepID)
}

func TestExecuteAbortsWhenNoOnErrorHandler(t *testing.T) {
	sessions := newScriptedSessions()
	engine := newTestEngine(sessions)

	def := &workflowmodel.WorkflowDefinition{
		ID:    "s",
		Steps: []workflowmodel.Step{{ID: "bad", Kind: workflowmodel.KindTransform, Transform: "1 / 0"}},
	}

	result := engine.Execute(context.Background(), def, nil)
	require.Error(t, result.Err)
	assert.False(t, result.Completed)
}

func TestApprovalPromptGatesStepExecution(t *testing.T) {
	sessions := newScriptedSessions()
	sessions.replies["plan"] = []string{`{"ok":true}`}

	registry := agentregistry.NewStaticRegistry(nil, agentregistry.StaticHostLister{{Name: "plan"}})
	ui := &denyingUI{}
	engine := New(registry, sessions, WithUIAdapter(ui))

	def := &workflowmodel.WorkflowDefinition{
		ID: "s",
		Steps: []workflowmodel.Step{
			{ID: "plan", Kind: workflowmodel.KindAgent, Agent: "plan", RequireApproval: true, ApprovalReason: "dangerous"},
		},
	}

	result := engine.Execute(context.Background(), def, nil)
	require.Error(t, result.Err)
	assert.Equal(t, 0, sessions.created)
}

type denyingUI struct{ NoOpUI }

func (denyingUI) ApprovalPrompt(string, map[string]interface{}, time.Duration) bool { return false }

func TestWithDefaultStepTimeoutOption(t *testing.T) {
	cfg := DefaultConfig()
	WithDefaultStepTimeout(5 * time.Second)(&cfg)
	assert.Equal(t, 5*time.Second, cfg.DefaultStepTimeout)
}
