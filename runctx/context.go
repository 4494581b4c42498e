// Package runctx implements the engine's immutable per-run state. Every
// operation that changes state returns a new Context; the prior Context
// remains valid and unchanged, so callers may reason about it by identity.
package runctx

import (
	"strconv"
	"strings"
	"time"
)

// ErrorInfo records why a step failed, for Context.Metadata.Errors and
// for guard reporting.
type ErrorInfo struct {
	Message string
	Kind    string
}

// Metadata is the traversal bookkeeping carried alongside step results.
type Metadata struct {
	IterationCount int
	CurrentStep    string
	PreviousSteps  []string
	StartTime      time.Time
	Errors         map[string]ErrorInfo
}

// Context is the immutable record of one workflow run: the original
// input, every successful step result (insertion order preserved), and
// traversal metadata.
type Context struct {
	Input    interface{}
	Results  map[string]interface{}
	order    []string // insertion order of Results, mirrors PreviousSteps for successes
	Metadata Metadata
}

// New builds the initial Context for a run. currentStep is normally the
// workflow's entry step id.
func New(input interface{}, currentStep string) *Context {
	return &Context{
		Input:   input,
		Results: map[string]interface{}{},
		order:   nil,
		Metadata: Metadata{
			CurrentStep: currentStep,
			StartTime:   time.Now(),
			Errors:      map[string]ErrorInfo{},
		},
	}
}

func (c *Context) clone() *Context {
	results := make(map[string]interface{}, len(c.Results))
	for k, v := range c.Results {
		results[k] = v
	}
	order := make([]string, len(c.order))
	copy(order, c.order)
	prev := make([]string, len(c.Metadata.PreviousSteps))
	copy(prev, c.Metadata.PreviousSteps)
	errs := make(map[string]ErrorInfo, len(c.Metadata.Errors))
	for k, v := range c.Metadata.Errors {
		errs[k] = v
	}
	return &Context{
		Input:   c.Input,
		Results: results,
		order:   order,
		Metadata: Metadata{
			IterationCount: c.Metadata.IterationCount,
			CurrentStep:    c.Metadata.CurrentStep,
			PreviousSteps:  prev,
			StartTime:      c.Metadata.StartTime,
			Errors:         errs,
		},
	}
}

// AddResult returns a new Context with the step's result recorded and
// appended to PreviousSteps. A step id may be added at most once per run;
// callers (the engine) are responsible for not re-visiting a step, which
// is itself bounded by the iteration guard.
func (c *Context) AddResult(stepID string, value interface{}) *Context {
	next := c.clone()
	next.Results[stepID] = value
	next.order = append(next.order, stepID)
	next.Metadata.PreviousSteps = append(next.Metadata.PreviousSteps, stepID)
	return next
}

// RecordError returns a new Context with an error recorded against stepID.
func (c *Context) RecordError(stepID string, info ErrorInfo) *Context {
	next := c.clone()
	next.Metadata.Errors[stepID] = info
	return next
}

// Advance returns a new Context positioned at nextStepID with the
// iteration counter incremented.
func (c *Context) Advance(nextStepID string) *Context {
	next := c.clone()
	next.Metadata.CurrentStep = nextStepID
	next.Metadata.IterationCount++
	return next
}

// GetResult returns the recorded result for a step id, if any.
func (c *Context) GetResult(stepID string) (interface{}, bool) {
	v, ok := c.Results[stepID]
	return v, ok
}

// HasResult reports whether stepID has a recorded result.
func (c *Context) HasResult(stepID string) bool {
	_, ok := c.Results[stepID]
	return ok
}

// GetByPath resolves a dotted path ("stepId.field.0.child") against the
// context's input and results. Returns ok=false if any segment along
// the path is missing or not indexable.
func (c *Context) GetByPath(path string) (interface{}, bool) {
	if path == "" {
		return nil, false
	}
	segments := strings.Split(path, ".")
	root := segments[0]

	var cur interface{}
	switch root {
	case "input":
		cur = c.Input
	default:
		v, ok := c.Results[root]
		if !ok {
			return nil, false
		}
		cur = v
	}

	for _, seg := range segments[1:] {
		next, ok := index(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func index(v interface{}, seg string) (interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		r, ok := m[seg]
		return r, ok
	case []interface{}:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(m) {
			return nil, false
		}
		return m[i], true
	default:
		return nil, false
	}
}

// Snapshot returns a JSON-DOM-safe view of every completed step result
// plus the original input, suitable for building an expression scope or
// an agent-input payload. The returned map is a fresh copy.
func (c *Context) Snapshot() map[string]interface{} {
	snap := make(map[string]interface{}, len(c.Results)+1)
	snap["input"] = c.Input
	for k, v := range c.Results {
		snap[k] = v
	}
	return snap
}

// Elapsed returns wall time since the run started.
func (c *Context) Elapsed() time.Duration {
	return time.Since(c.Metadata.StartTime)
}
