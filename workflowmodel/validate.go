package workflowmodel

import (
	"fmt"
	"strings"
)

// Severity classifies a ValidationIssue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ValidationIssue is one problem found by Validate, tagged with the step
// (if any) it concerns.
type ValidationIssue struct {
	Severity Severity
	StepID   string
	Message  string
}

func (i ValidationIssue) String() string {
	if i.StepID != "" {
		return fmt.Sprintf("[%s] step %q: %s", i.Severity, i.StepID, i.Message)
	}
	return fmt.Sprintf("[%s] %s", i.Severity, i.Message)
}

// forbiddenTokens are rejected anywhere inside a transform/condition
// expression string, independent of what the expression evaluator itself
// refuses at evaluation time. Catching them at validation time means a
// workflow that fails this check never reaches the executor at all.
var forbiddenTokens = []string{"__proto__", "constructor", "prototype"}

// Validate runs schema validation followed by semantic validation and
// returns every issue found; it never stops at the first one. The engine
// must refuse to execute when any issue has Severity == SeverityError.
func Validate(def *WorkflowDefinition) []ValidationIssue {
	var issues []ValidationIssue
	issues = append(issues, schemaIssues(def)...)
	if HasErrors(issues) {
		// Semantic validation assumes a schema-valid shape (unique,
		// addressable step ids); running it over a malformed document
		// would just produce confusing secondary errors.
		return issues
	}
	issues = append(issues, semanticIssues(def)...)
	return issues
}

// HasErrors reports whether any issue in the list is an error (as opposed
// to a warning).
func HasErrors(issues []ValidationIssue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

func schemaIssues(def *WorkflowDefinition) []ValidationIssue {
	var issues []ValidationIssue

	if strings.TrimSpace(def.ID) == "" {
		issues = append(issues, ValidationIssue{Severity: SeverityError, Message: "workflow id must be a non-empty string"})
	}
	if len(def.Steps) == 0 {
		issues = append(issues, ValidationIssue{Severity: SeverityError, Message: "workflow must declare at least one step"})
		return issues
	}

	seen := make(map[string]bool, len(def.Steps))
	for _, s := range def.Steps {
		if strings.TrimSpace(s.ID) == "" {
			issues = append(issues, ValidationIssue{Severity: SeverityError, Message: "step id must be a non-empty string"})
			continue
		}
		if seen[s.ID] {
			issues = append(issues, ValidationIssue{Severity: SeverityError, StepID: s.ID, Message: "duplicate step id"})
		}
		seen[s.ID] = true

		switch s.Kind {
		case KindAgent:
			if strings.TrimSpace(s.Agent) == "" {
				issues = append(issues, ValidationIssue{Severity: SeverityError, StepID: s.ID, Message: "agent step requires \"agent\""})
			}
		case KindTransform:
			if strings.TrimSpace(s.Transform) == "" {
				issues = append(issues, ValidationIssue{Severity: SeverityError, StepID: s.ID, Message: "transform step requires \"transform\""})
			}
		case KindCondition:
			if strings.TrimSpace(s.Condition) == "" {
				issues = append(issues, ValidationIssue{Severity: SeverityError, StepID: s.ID, Message: "condition step requires \"condition\""})
			}
		case "":
			issues = append(issues, ValidationIssue{Severity: SeverityError, StepID: s.ID, Message: "step is missing \"type\""})
		case "kind":
			// A document authored with the field name "kind" instead of
			// "type" never reaches here with Kind == "kind" because the
			// loader maps the wire field "type"; this branch exists so a
			// caller that constructs a Step by hand with the wrong
			// constant gets a pointed error instead of falling into the
			// unknown-kind branch below.
			issues = append(issues, ValidationIssue{Severity: SeverityError, StepID: s.ID, Message: `step kind field must be "type", not "kind"`})
		default:
			issues = append(issues, ValidationIssue{Severity: SeverityError, StepID: s.ID, Message: fmt.Sprintf("unknown step kind %q", s.Kind)})
		}
	}
	return issues
}

func semanticIssues(def *WorkflowDefinition) []ValidationIssue {
	var issues []ValidationIssue

	ids := make(map[string]bool, len(def.Steps))
	for _, s := range def.Steps {
		ids[s.ID] = true
	}
	inbound := make(map[string]bool, len(def.Steps))

	checkRef := func(stepID, field, target string) {
		if target == "" {
			return
		}
		if !ids[target] {
			issues = append(issues, ValidationIssue{
				Severity: SeverityError, StepID: stepID,
				Message: fmt.Sprintf("field %q references unknown step %q", field, target),
			})
			return
		}
		inbound[target] = true
	}

	for i, s := range def.Steps {
		checkRef(s.ID, "next", s.Next)
		checkRef(s.ID, "on_error", s.OnError)
		checkRef(s.ID, "input", s.Input)
		if s.Kind == KindCondition {
			checkRef(s.ID, "then", s.Then)
			checkRef(s.ID, "else", s.Else)
		}
		// the implicit "next in declaration order" edge also counts as
		// inbound routing for reachability purposes.
		if s.Kind != KindCondition && s.Next == "" {
			if next := def.NextDeclaredStepID(i); next != "" {
				inbound[next] = true
			}
		}

		expr := s.Transform
		if s.Kind == KindCondition {
			expr = s.Condition
		}
		for _, tok := range forbiddenTokens {
			if strings.Contains(expr, tok) {
				issues = append(issues, ValidationIssue{
					Severity: SeverityError, StepID: s.ID,
					Message: fmt.Sprintf("expression references forbidden identifier %q", tok),
				})
			}
		}

		if s.MaxRetries < 0 {
			issues = append(issues, ValidationIssue{Severity: SeverityError, StepID: s.ID, Message: "max_retries must be >= 0"})
		}
		if s.TimeoutMS < 0 {
			issues = append(issues, ValidationIssue{Severity: SeverityError, StepID: s.ID, Message: "timeout_ms must be >= 0"})
		}

		if s.Kind == KindAgent && s.OnError == "" {
			issues = append(issues, ValidationIssue{Severity: SeverityWarning, StepID: s.ID, Message: "agent step has no on_error handler"})
		}
	}

	// unreachable steps: every step but the entry step needs an inbound
	// routing edge from somewhere.
	entry := def.EntryStepID()
	for _, s := range def.Steps {
		if s.ID == entry {
			continue
		}
		if !inbound[s.ID] {
			issues = append(issues, ValidationIssue{Severity: SeverityWarning, StepID: s.ID, Message: "step has no inbound routing edge and is unreachable from the entry step"})
		}
	}

	if len(def.Steps) > 50 {
		issues = append(issues, ValidationIssue{Severity: SeverityWarning, Message: fmt.Sprintf("workflow has %d steps (>50); consider splitting it", len(def.Steps))})
	}

	return issues
}
