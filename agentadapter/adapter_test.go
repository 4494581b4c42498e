package agentadapter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomind-flow/flowcore/agentregistry"
)

type fakeSessions struct {
	mu          sync.Mutex
	created     int
	deleted     int
	statusSeq   []SessionStatus
	reply       string
	failDelete  bool
	lastTitle   string
	lastAgent   string
}

func (f *fakeSessions) CreateSession(_ context.Context, title string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	f.lastTitle = title
	return "sess-1", nil
}

func (f *fakeSessions) SendPrompt(_ context.Context, _, agentName, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastAgent = agentName
	return nil
}

func (f *fakeSessions) Status(context.Context, string) (SessionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statusSeq) == 0 {
		return StatusIdle, nil
	}
	s := f.statusSeq[0]
	f.statusSeq = f.statusSeq[1:]
	return s, nil
}

func (f *fakeSessions) Messages(context.Context, string) ([]Message, error) {
	return []Message{
		{Role: "user", Parts: []MessagePart{{Kind: "text", Text: "task"}}},
		{Role: "assistant", Parts: []MessagePart{{Kind: "text", Text: f.reply}}},
	}, nil
}

func (f *fakeSessions) DeleteSession(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted++
	if f.failDelete {
		return assert.AnError
	}
	return nil
}

func registryWith(name string) *agentregistry.StaticRegistry {
	return agentregistry.NewStaticRegistry(nil, agentregistry.StaticHostLister{{Name: name}})
}

func TestRunParsesJSONReply(t *testing.T) {
	sessions := &fakeSessions{reply: `{"status":"ok"}`}
	a := New(registryWith("writer"), sessions, nil)

	result, err := a.Run(context.Background(), "writer", "do it", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"status": "ok"}, result.JSON)
	assert.Equal(t, 1, sessions.created)
	assert.Equal(t, 1, sessions.deleted)
}

func TestRunFallsBackToWrappedTextWhenNotJSON(t *testing.T) {
	sessions := &fakeSessions{reply: "plain text reply"}
	a := New(registryWith("writer"), sessions, nil)

	result, err := a.Run(context.Background(), "writer", "do it", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text reply", result.Text)
	assert.Equal(t, map[string]interface{}{"result": "plain text reply"}, result.JSON,
		"a non-JSON reply must still be addressable downstream as {result: text}")
}

func TestRunSendsAgentNameOnPromptNotCreate(t *testing.T) {
	sessions := &fakeSessions{reply: "{}"}
	a := New(registryWith("writer"), sessions, nil)

	_, err := a.Run(context.Background(), "writer", "do it", nil)
	require.NoError(t, err)
	assert.Equal(t, "writer", sessions.lastAgent, "agent name must be sent to SendPrompt")
}

func TestRunAlwaysDeletesSessionEvenOnPollFailure(t *testing.T) {
	sessions := &fakeSessions{reply: "{}"}
	a := New(registryWith("writer"), sessions, nil).WithPollInterval(1 * time.Millisecond)
	a.maxAttempts = 0 // force immediate timeout without a single poll

	_, err := a.Run(context.Background(), "writer", "do it", nil)
	assert.Error(t, err)
	assert.Equal(t, 1, sessions.deleted)
}

func TestRunUnknownAgentNeverCreatesSession(t *testing.T) {
	sessions := &fakeSessions{}
	a := New(registryWith("writer"), sessions, nil)

	_, err := a.Run(context.Background(), "nonexistent", "x", nil)
	require.Error(t, err)
	assert.Equal(t, 0, sessions.created)
}

func TestRunPollsUntilIdle(t *testing.T) {
	sessions := &fakeSessions{
		reply:     "{}",
		statusSeq: []SessionStatus{StatusRunning, StatusRunning, StatusIdle},
	}
	a := New(registryWith("writer"), sessions, nil).WithPollInterval(1 * time.Millisecond)

	_, err := a.Run(context.Background(), "writer", "x", nil)
	require.NoError(t, err)
}
