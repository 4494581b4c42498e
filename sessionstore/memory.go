// Package sessionstore provides reference implementations of the host
// session contract (agentadapter.SessionAPI): an in-process store for
// tests and a Redis-backed store for evaluation harnesses that want
// distributed session state. Neither is "the host" in production; a real
// deployment wires the engine to whatever session API the host runtime
// actually exposes.
package sessionstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/gomind-flow/flowcore/agentadapter"
)

type memSession struct {
	title    string
	status   agentadapter.SessionStatus
	messages []agentadapter.Message
}

// InMemory is a single-process SessionAPI backed by a map, transitioning
// every created session straight to idle with a canned assistant reply.
// Tests that need multi-poll behavior can set IdleAfter to delay.
type InMemory struct {
	mu       sync.Mutex
	sessions map[string]*memSession

	// Reply, if set, is returned as the assistant's message text for
	// every session. Defaults to echoing back an empty JSON object.
	Reply string

	// IdleAfter delays how many Status calls a session takes to report
	// idle, simulating a host session still running. Zero means idle
	// immediately.
	IdleAfter int
	polls     map[string]int
}

func NewInMemory() *InMemory {
	return &InMemory{
		sessions: make(map[string]*memSession),
		polls:    make(map[string]int),
		Reply:    "{}",
	}
}

func (s *InMemory) CreateSession(_ context.Context, title string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New().String()
	s.sessions[id] = &memSession{title: title, status: agentadapter.StatusRunning}
	return id, nil
}

func (s *InMemory) SendPrompt(_ context.Context, sessionID, _, prompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("unknown session %s", sessionID)
	}
	sess.messages = append(sess.messages, agentadapter.Message{
		Role:  "user",
		Parts: []agentadapter.MessagePart{{Kind: "text", Text: prompt}},
	})
	sess.messages = append(sess.messages, agentadapter.Message{
		Role:  "assistant",
		Parts: []agentadapter.MessagePart{{Kind: "text", Text: s.Reply}},
	})
	return nil
}

func (s *InMemory) Status(_ context.Context, sessionID string) (agentadapter.SessionStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return "", fmt.Errorf("unknown session %s", sessionID)
	}
	if s.IdleAfter > 0 {
		s.polls[sessionID]++
		if s.polls[sessionID] < s.IdleAfter {
			return agentadapter.StatusRunning, nil
		}
	}
	sess.status = agentadapter.StatusIdle
	return sess.status, nil
}

func (s *InMemory) Messages(_ context.Context, sessionID string) ([]agentadapter.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("unknown session %s", sessionID)
	}
	out := make([]agentadapter.Message, len(sess.messages))
	copy(out, sess.messages)
	return out, nil
}

func (s *InMemory) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return fmt.Errorf("unknown session %s", sessionID)
	}
	delete(s.sessions, sessionID)
	delete(s.polls, sessionID)
	return nil
}

// ActiveCount returns how many sessions remain un-deleted, used by tests
// to assert the adapter always cleans up after itself.
func (s *InMemory) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
