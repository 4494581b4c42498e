// Package workflowmodel defines the typed workflow shape the engine drives
// and the two-layer validator (schema, then semantic) that must pass
// before an engine will execute a WorkflowDefinition.
package workflowmodel

import (
	"time"

	"gopkg.in/yaml.v3"
)

// StepKind discriminates the three step strategies the engine knows how
// to dispatch. The wire field is named "type" (matching the examples the
// engine was modeled on); "kind" is rejected by the schema validator.
type StepKind string

const (
	KindAgent     StepKind = "agent"
	KindTransform StepKind = "transform"
	KindCondition StepKind = "condition"
)

// Defaults for fields a step may omit. See DESIGN.md for why
// DefaultMaxRetries is 0 rather than the engine-level knob's default of 3:
// a step that doesn't ask for retries should not get any.
const (
	DefaultMaxRetries    = 0
	DefaultRetryDelayMS  = 1000
	DefaultMaxIterations = 100
	DefaultMaxDurationMS = 300000
)

// WorkflowDefinition is a labeled graph of steps driven to a terminal
// state by the engine. The first entry in Steps is the entry step.
type WorkflowDefinition struct {
	ID            string     `yaml:"id" json:"id"`
	MaxIterations int        `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`
	MaxDurationMS int64      `yaml:"max_duration_ms,omitempty" json:"max_duration_ms,omitempty"`
	Steps         []Step     `yaml:"steps" json:"steps"`
}

// EffectiveMaxIterations returns MaxIterations or its documented default.
func (w *WorkflowDefinition) EffectiveMaxIterations() int {
	if w.MaxIterations > 0 {
		return w.MaxIterations
	}
	return DefaultMaxIterations
}

// EffectiveMaxDurationMS returns MaxDurationMS or its documented default.
func (w *WorkflowDefinition) EffectiveMaxDurationMS() int64 {
	if w.MaxDurationMS > 0 {
		return w.MaxDurationMS
	}
	return DefaultMaxDurationMS
}

// EntryStepID returns the id of the first declared step.
func (w *WorkflowDefinition) EntryStepID() string {
	if len(w.Steps) == 0 {
		return ""
	}
	return w.Steps[0].ID
}

// StepByID returns the step with the given id, or nil.
func (w *WorkflowDefinition) StepByID(id string) *Step {
	for i := range w.Steps {
		if w.Steps[i].ID == id {
			return &w.Steps[i]
		}
	}
	return nil
}

// NextDeclaredStepID returns the id of the step declared immediately
// after the one at index i, or "" if i is the last step.
func (w *WorkflowDefinition) NextDeclaredStepID(i int) string {
	if i+1 < len(w.Steps) {
		return w.Steps[i+1].ID
	}
	return ""
}

// IndexOf returns the declaration index of a step id, or -1.
func (w *WorkflowDefinition) IndexOf(id string) int {
	for i := range w.Steps {
		if w.Steps[i].ID == id {
			return i
		}
	}
	return -1
}

// DumpYAML renders the definition for diagnostic logging. Never used on
// a hot path; the engine logs structured fields, not this blob, except
// at Debug level when a caller wants the whole shape.
func (w *WorkflowDefinition) DumpYAML() (string, error) {
	b, err := yaml.Marshal(w)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Step is a tagged union over Kind. Fields not relevant to a given Kind
// are ignored by the executors; the validator still checks the routing
// fields next, on_error and input on every step.
type Step struct {
	ID      string   `yaml:"id" json:"id"`
	Kind    StepKind `yaml:"type" json:"type"`
	Next    string   `yaml:"next,omitempty" json:"next,omitempty"`
	OnError string   `yaml:"on_error,omitempty" json:"on_error,omitempty"`

	TimeoutMS    int64 `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty"`
	MaxRetries   int   `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	RetryDelayMS int64 `yaml:"retry_delay_ms,omitempty" json:"retry_delay_ms,omitempty"`

	// Input names a prior step whose result should be threaded in as the
	// step's primary input instead of the workflow's raw input.
	Input string `yaml:"input,omitempty" json:"input,omitempty"`

	// agent
	Agent string `yaml:"agent,omitempty" json:"agent,omitempty"`

	// transform
	Transform string `yaml:"transform,omitempty" json:"transform,omitempty"`

	// condition
	Condition string `yaml:"condition,omitempty" json:"condition,omitempty"`
	Then      string `yaml:"then,omitempty" json:"then,omitempty"`
	Else      string `yaml:"else,omitempty" json:"else,omitempty"`

	// RequireApproval gates this step behind UIAdapter.ApprovalPrompt
	// before it dispatches. An optional enrichment beyond the base
	// protocol in spec.md.
	RequireApproval bool   `yaml:"require_approval,omitempty" json:"require_approval,omitempty"`
	ApprovalReason  string `yaml:"approval_reason,omitempty" json:"approval_reason,omitempty"`
}

// Timeout returns the configured per-step timeout, or the engine default
// if unset.
func (s *Step) Timeout(engineDefault time.Duration) time.Duration {
	if s.TimeoutMS > 0 {
		return time.Duration(s.TimeoutMS) * time.Millisecond
	}
	return engineDefault
}

// RetryDelay returns the configured base retry delay, or the documented
// default.
func (s *Step) RetryDelay() time.Duration {
	if s.RetryDelayMS > 0 {
		return time.Duration(s.RetryDelayMS) * time.Millisecond
	}
	return DefaultRetryDelayMS * time.Millisecond
}
