// Package guard implements the engine's check-only safety nets: pure
// functions of the run state invoked every iteration, never mutating it.
// A guard either lets the iteration proceed or returns an error that
// aborts the run.
package guard

import (
	"fmt"
	"time"

	"github.com/gomind-flow/flowcore/flowerrors"
	"github.com/gomind-flow/flowcore/runctx"
)

// Guard is checked once per traversal iteration, before the step at
// ctx.Metadata.CurrentStep dispatches.
type Guard interface {
	Check(ctx *runctx.Context) error
	Name() string
}

// MaxErrorGuard aborts a run once more than Limit steps have recorded an
// error in Context.Metadata.Errors. Distinct from the iteration bound: a
// workflow can iterate many times while only a few of those iterations
// ever errored, and this guard looks only at the error count.
type MaxErrorGuard struct {
	Limit int
}

func (g MaxErrorGuard) Name() string { return "max_error_guard" }

func (g MaxErrorGuard) Check(ctx *runctx.Context) error {
	if g.Limit <= 0 {
		return nil
	}
	if len(ctx.Metadata.Errors) > g.Limit {
		return &flowerrors.GuardError{
			Guard:   g.Name(),
			Message: fmt.Sprintf("%d steps have recorded errors, limit is %d", len(ctx.Metadata.Errors), g.Limit),
			Context: map[string]interface{}{"error_count": len(ctx.Metadata.Errors), "limit": g.Limit},
		}
	}
	return nil
}

// CircularDependencyGuard aborts a run when the current step has already
// appeared in PreviousSteps more than MaxRevisits times, catching a
// workflow that oscillates between two steps without making progress,
// which the plain iteration bound would only catch much later.
type CircularDependencyGuard struct {
	MaxRevisits int
}

func (g CircularDependencyGuard) Name() string { return "circular_dependency_guard" }

func (g CircularDependencyGuard) Check(ctx *runctx.Context) error {
	limit := g.MaxRevisits
	if limit <= 0 {
		limit = 3
	}
	count := 0
	current := ctx.Metadata.CurrentStep
	for _, id := range ctx.Metadata.PreviousSteps {
		if id == current {
			count++
		}
	}
	if count > limit {
		return &flowerrors.GuardError{
			Guard:   g.Name(),
			Message: fmt.Sprintf("step %q visited %d times, limit is %d", current, count, limit),
			Context: map[string]interface{}{"step_id": current, "visits": count, "limit": limit},
		}
	}
	return nil
}

// DeadlineGuard aborts a run once elapsed wall time exceeds Max. The
// engine already enforces max_duration_ms directly; this guard exists so
// a caller composing a custom guard chain can apply a tighter bound
// without touching engine configuration.
type DeadlineGuard struct {
	Max time.Duration
}

func (g DeadlineGuard) Name() string { return "deadline_guard" }

func (g DeadlineGuard) Check(ctx *runctx.Context) error {
	if g.Max <= 0 {
		return nil
	}
	if elapsed := ctx.Elapsed(); elapsed > g.Max {
		return &flowerrors.GuardError{
			Guard:   g.Name(),
			Message: fmt.Sprintf("elapsed %s exceeds deadline %s", elapsed, g.Max),
			Context: map[string]interface{}{"elapsed_ms": elapsed.Milliseconds(), "max_ms": g.Max.Milliseconds()},
		}
	}
	return nil
}
