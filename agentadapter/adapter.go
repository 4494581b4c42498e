// Package agentadapter implements the protocol an agent step follows to
// delegate work to the host: resolve the agent, open a session, send a
// prompt built from the step's input and prior context, poll until the
// session goes idle, collect the assistant's reply, and always close the
// session it opened.
package agentadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gomind-flow/flowcore/agentregistry"
	"github.com/gomind-flow/flowcore/flowerrors"
	"github.com/gomind-flow/flowcore/logger"
)

// Tunables matching the host contract this adapter was built against.
const (
	PollIntervalMS        = 500
	MaxPollAttempts       = 600
	MaxPollDurationMS     = 300000
	SessionCleanupRetries = 3
	SessionCleanupDelayMS = 1000
)

// SessionStatus is the lifecycle state the host reports for a session.
type SessionStatus string

const (
	StatusRunning SessionStatus = "running"
	StatusIdle    SessionStatus = "idle"
	StatusFailed  SessionStatus = "failed"
)

// MessagePart is one piece of a session message. Kind is typically
// "text"; non-text parts are ignored when an executor collects a reply.
type MessagePart struct {
	Kind string
	Text string
}

// Message is one turn in a session's transcript.
type Message struct {
	Role  string // "user" or "assistant"
	Parts []MessagePart
}

// SessionAPI is the host contract this adapter drives. It is implemented
// by the host runtime in production and by sessionstore implementations
// in tests. session.create takes only a title (Run uses the resolved
// agent's name as that title); the agent itself is selected only through
// SendPrompt, matching the host's calling convention.
type SessionAPI interface {
	CreateSession(ctx context.Context, title string) (sessionID string, err error)
	SendPrompt(ctx context.Context, sessionID, agentName, prompt string) error
	Status(ctx context.Context, sessionID string) (SessionStatus, error)
	Messages(ctx context.Context, sessionID string) ([]Message, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// Result is what an agent step produces: Text is the raw assistant reply;
// JSON is the value folded into Context.Results — the reply parsed as JSON
// when it parses cleanly, or {"result": Text} otherwise, per spec.md §4.5
// step 6.
type Result struct {
	Text string
	JSON interface{}
}

// Adapter runs the resolve/create/prompt/poll/collect/delete protocol.
type Adapter struct {
	Registry agentregistry.AgentRegistry
	Sessions SessionAPI
	Log      logger.Logger

	pollInterval  time.Duration
	maxAttempts   int
	cleanupDelay  time.Duration
	cleanupTries  int
}

// New builds an Adapter with the documented default poll tunables.
func New(registry agentregistry.AgentRegistry, sessions SessionAPI, log logger.Logger) *Adapter {
	if log == nil {
		log = logger.NoOp{}
	}
	return &Adapter{
		Registry:     registry,
		Sessions:     sessions,
		Log:          log,
		pollInterval: PollIntervalMS * time.Millisecond,
		maxAttempts:  MaxPollAttempts,
		cleanupDelay: SessionCleanupDelayMS * time.Millisecond,
		cleanupTries: SessionCleanupRetries,
	}
}

// WithPollInterval overrides the default poll interval between Status
// calls, independent of the session cleanup retry delay.
func (a *Adapter) WithPollInterval(d time.Duration) *Adapter {
	if d > 0 {
		a.pollInterval = d
	}
	return a
}

// WithCleanupRetryDelay overrides the delay between best-effort session
// deletion retries, independent of the poll interval.
func (a *Adapter) WithCleanupRetryDelay(d time.Duration) *Adapter {
	if d > 0 {
		a.cleanupDelay = d
	}
	return a
}

// Run executes one agent step: agentName names the registry entry, task
// is the step's own input, and priorContext is a rendering of completed
// step results the prompt should carry forward.
func (a *Adapter) Run(ctx context.Context, agentName string, task interface{}, priorContext map[string]interface{}) (Result, error) {
	resolved, err := a.Registry.Resolve(agentName)
	if err != nil {
		return Result{}, err
	}

	sessionID, err := a.Sessions.CreateSession(ctx, resolved.Name)
	if err != nil {
		return Result{}, &flowerrors.SessionError{Op: "create", Cause: err}
	}
	defer a.cleanup(sessionID)

	prompt := buildPrompt(resolved.SystemPrompt, task, priorContext)
	if err := a.Sessions.SendPrompt(ctx, sessionID, resolved.Name, prompt); err != nil {
		return Result{}, &flowerrors.SessionError{Op: "prompt", SessionID: sessionID, Cause: err}
	}

	if err := a.pollUntilIdle(ctx, sessionID); err != nil {
		return Result{}, err
	}

	msgs, err := a.Sessions.Messages(ctx, sessionID)
	if err != nil {
		return Result{}, &flowerrors.SessionError{Op: "messages", SessionID: sessionID, Cause: err}
	}

	text := lastAssistantText(msgs)
	result := Result{Text: text}
	var parsed interface{}
	if json.Unmarshal([]byte(strings.TrimSpace(text)), &parsed) == nil {
		result.JSON = parsed
	} else {
		result.JSON = map[string]interface{}{"result": text}
	}
	return result, nil
}

func (a *Adapter) pollUntilIdle(ctx context.Context, sessionID string) error {
	start := time.Now()
	deadline := start.Add(MaxPollDurationMS * time.Millisecond)
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		status, err := a.Sessions.Status(ctx, sessionID)
		if err != nil {
			return &flowerrors.SessionError{Op: "status", SessionID: sessionID, Cause: err}
		}
		switch status {
		case StatusIdle:
			return nil
		case StatusFailed:
			return &flowerrors.SessionError{Op: "status", SessionID: sessionID, Cause: fmt.Errorf("session reported failed status")}
		}
		if time.Now().After(deadline) {
			return &flowerrors.TimeoutError{Scope: "step", Bound: fmt.Sprintf("%dms", MaxPollDurationMS), Observed: time.Since(start).String()}
		}
		select {
		case <-ctx.Done():
			return &flowerrors.SessionError{Op: "status", SessionID: sessionID, Cause: ctx.Err()}
		case <-time.After(a.pollInterval):
		}
	}
	return &flowerrors.TimeoutError{Scope: "step", Bound: fmt.Sprintf("%d polls", a.maxAttempts), Observed: time.Since(start).String()}
}

// cleanup always deletes the session this run created, best-effort and
// retried, and never masks the primary error or result the caller
// already has in hand.
func (a *Adapter) cleanup(sessionID string) {
	ctx := context.Background()
	for attempt := 0; attempt < a.cleanupTries; attempt++ {
		if err := a.Sessions.DeleteSession(ctx, sessionID); err == nil {
			return
		}
		time.Sleep(a.cleanupDelay)
	}
	a.Log.Warn("failed to delete session after retries", map[string]interface{}{
		"session_id": sessionID, "attempts": a.cleanupTries,
	})
}

func buildPrompt(systemPrompt string, task interface{}, priorContext map[string]interface{}) string {
	var b strings.Builder
	if systemPrompt != "" {
		b.WriteString(systemPrompt)
		b.WriteString("\n\n")
	}
	switch t := task.(type) {
	case string:
		b.WriteString(t)
	default:
		if enc, err := json.Marshal(task); err == nil {
			b.Write(enc)
		} else {
			fmt.Fprintf(&b, "%v", task)
		}
	}
	if len(priorContext) > 0 {
		b.WriteString("\n\nContext from previous steps:\n")
		if enc, err := json.MarshalIndent(priorContext, "", "  "); err == nil {
			b.Write(enc)
		}
	}
	return b.String()
}

func lastAssistantText(msgs []Message) string {
	var b strings.Builder
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != "assistant" {
			continue
		}
		for _, p := range msgs[i].Parts {
			if p.Kind == "" || p.Kind == "text" {
				b.WriteString(p.Text)
			}
		}
		break
	}
	return b.String()
}
