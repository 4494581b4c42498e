package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gomind-flow/flowcore/agentadapter"
)

// Redis is a distributed SessionAPI, grounded on the same Create/Get/
// Update/Delete shape the host's own session manager exposes, but backed
// by go-redis so an evaluation harness can run against a real Redis
// instance instead of an in-process map.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

type redisSessionRecord struct {
	Title    string                     `json:"title"`
	Status   agentadapter.SessionStatus `json:"status"`
	Messages []agentadapter.Message     `json:"messages"`
}

// NewRedis connects to redisURL and verifies the connection with Ping.
func NewRedis(redisURL string, ttl time.Duration) (*Redis, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Redis{client: client, ttl: ttl}, nil
}

func (r *Redis) key(sessionID string) string {
	return "flowcore:session:" + sessionID
}

func (r *Redis) CreateSession(ctx context.Context, title string) (string, error) {
	id := uuid.New().String()
	rec := redisSessionRecord{Title: title, Status: agentadapter.StatusRunning}
	if err := r.save(ctx, id, rec); err != nil {
		return "", err
	}
	return id, nil
}

func (r *Redis) SendPrompt(ctx context.Context, sessionID, _, prompt string) error {
	rec, err := r.load(ctx, sessionID)
	if err != nil {
		return err
	}
	rec.Messages = append(rec.Messages, agentadapter.Message{
		Role:  "user",
		Parts: []agentadapter.MessagePart{{Kind: "text", Text: prompt}},
	})
	rec.Status = agentadapter.StatusIdle
	rec.Messages = append(rec.Messages, agentadapter.Message{
		Role:  "assistant",
		Parts: []agentadapter.MessagePart{{Kind: "text", Text: "{}"}},
	})
	return r.save(ctx, sessionID, rec)
}

func (r *Redis) Status(ctx context.Context, sessionID string) (agentadapter.SessionStatus, error) {
	rec, err := r.load(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return rec.Status, nil
}

func (r *Redis) Messages(ctx context.Context, sessionID string) ([]agentadapter.Message, error) {
	rec, err := r.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return rec.Messages, nil
}

func (r *Redis) DeleteSession(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, r.key(sessionID)).Err()
}

func (r *Redis) save(ctx context.Context, sessionID string, rec redisSessionRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(sessionID), b, r.ttl).Err()
}

func (r *Redis) load(ctx context.Context, sessionID string) (redisSessionRecord, error) {
	var rec redisSessionRecord
	b, err := r.client.Get(ctx, r.key(sessionID)).Bytes()
	if err != nil {
		return rec, fmt.Errorf("session %s: %w", sessionID, err)
	}
	if err := json.Unmarshal(b, &rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// Close releases the underlying Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}
