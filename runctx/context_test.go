package runctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddResultDoesNotMutateOriginal(t *testing.T) {
	c0 := New(map[string]interface{}{"x": 1}, "step-1")
	c1 := c0.AddResult("step-1", "done")

	assert.False(t, c0.HasResult("step-1"))
	assert.True(t, c1.HasResult("step-1"))
	assert.NotSame(t, c0, c1)
}

func TestAdvanceIncrementsIterationCount(t *testing.T) {
	c0 := New(nil, "step-1")
	c1 := c0.Advance("step-2")

	assert.Equal(t, 0, c0.Metadata.IterationCount)
	assert.Equal(t, 1, c1.Metadata.IterationCount)
	assert.Equal(t, "step-2", c1.Metadata.CurrentStep)
}

func TestIterationCountMatchesPreviousSteps(t *testing.T) {
	c := New(nil, "step-1")
	c = c.AddResult("step-1", 1).Advance("step-2")
	c = c.AddResult("step-2", 2).Advance("step-3")

	assert.Equal(t, len(c.Metadata.PreviousSteps), c.Metadata.IterationCount)
	assert.Equal(t, []string{"step-1", "step-2"}, c.Metadata.PreviousSteps)
}

func TestGetByPathTraversesNestedResults(t *testing.T) {
	c := New(map[string]interface{}{"name": "alice"}, "step-1")
	c = c.AddResult("step-1", map[string]interface{}{
		"items": []interface{}{
			map[string]interface{}{"id": "a"},
			map[string]interface{}{"id": "b"},
		},
	})

	v, ok := c.GetByPath("step-1.items.1.id")
	require.True(t, ok)
	assert.Equal(t, "b", v)

	v, ok = c.GetByPath("input.name")
	require.True(t, ok)
	assert.Equal(t, "alice", v)

	_, ok = c.GetByPath("step-1.items.9.id")
	assert.False(t, ok)

	_, ok = c.GetByPath("nope.x")
	assert.False(t, ok)
}

func TestSnapshotIncludesInputAndResults(t *testing.T) {
	c := New("hello", "step-1")
	c = c.AddResult("step-1", 42)

	snap := c.Snapshot()
	assert.Equal(t, "hello", snap["input"])
	assert.Equal(t, 42, snap["step-1"])
}

func TestRecordErrorDoesNotAffectResults(t *testing.T) {
	c0 := New(nil, "step-1")
	c1 := c0.RecordError("step-1", ErrorInfo{Message: "boom", Kind: "agent"})

	assert.Empty(t, c0.Metadata.Errors)
	require.Len(t, c1.Metadata.Errors, 1)
	assert.Equal(t, "boom", c1.Metadata.Errors["step-1"].Message)
	assert.False(t, c1.HasResult("step-1"))
}
