package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	TaskReading    = "reading"
	TaskStaleSweep = "stale_sweep"
)

// Task is one entry of the event stream. Payload is task-specific JSON.
type Task struct {
	Type     string
	WorkerID string
	Payload  json.RawMessage
}

func (t Task) values() map[string]any {
	values := map[string]any{"type": t.Type}
	if t.WorkerID != "" {
		values["worker_id"] = t.WorkerID
	}
	if len(t.Payload) > 0 {
		values["payload"] = string(t.Payload)
	}
	return values
}

func DecodeTask(values map[string]any) (Task, error) {
	typ, _ := values["type"].(string)
	if typ == "" {
		return Task{}, fmt.Errorf("task without type")
	}
	task := Task{Type: typ}
	task.WorkerID, _ = values["worker_id"].(string)
	if payload, ok := values["payload"].(string); ok && payload != "" {
		if !json.Valid([]byte(payload)) {
			return Task{}, fmt.Errorf("task %s: payload is not json", typ)
		}
		task.Payload = json.RawMessage(payload)
	}
	return task, nil
}

type Producer struct {
	client *redis.Client
	stream string
}

func NewProducer(client *redis.Client, stream string) *Producer {
	return &Producer{client: client, stream: stream}
}

// Enqueue appends task to the stream and returns the entry id.
func (p *Producer) Enqueue(ctx context.Context, task Task) (string, error) {
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: task.values(),
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", task.Type, err)
	}
	return id, nil
}
