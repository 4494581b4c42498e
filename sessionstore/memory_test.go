package sessionstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryLifecycle(t *testing.T) {
	s := NewInMemory()
	s.Reply = `{"ok":true}`
	ctx := context.Background()

	id, err := s.CreateSession(ctx, "writer")
	require.NoError(t, err)
	assert.Equal(t, 1, s.ActiveCount())

	require.NoError(t, s.SendPrompt(ctx, id, "writer", "hello"))

	status, err := s.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "idle", string(status))

	msgs, err := s.Messages(ctx, id)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "assistant", msgs[1].Role)

	require.NoError(t, s.DeleteSession(ctx, id))
	assert.Equal(t, 0, s.ActiveCount())
}

func TestInMemoryIdleAfterDelaysStatus(t *testing.T) {
	s := NewInMemory()
	s.IdleAfter = 3
	ctx := context.Background()

	id, err := s.CreateSession(ctx, "writer")
	require.NoError(t, err)

	status, _ := s.Status(ctx, id)
	assert.Equal(t, "running", string(status))
	status, _ = s.Status(ctx, id)
	assert.Equal(t, "running", string(status))
	status, _ = s.Status(ctx, id)
	assert.Equal(t, "idle", string(status))
}

func TestInMemoryUnknownSessionErrors(t *testing.T) {
	s := NewInMemory()
	_, err := s.Status(context.Background(), "nope")
	assert.Error(t, err)
}
