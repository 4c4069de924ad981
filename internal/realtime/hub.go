package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"safetywatch/internal/models"
)

type EventType string

const (
	EventReady       EventType = "ready"
	EventReading     EventType = "reading"
	EventAlert       EventType = "alert"
	EventDeviceStale EventType = "device_stale"
)

type Alert struct {
	Severity models.HealthStatus `json:"severity"`
	Reasons  []string            `json:"reasons"`
}

// Event is pushed to subscribers of a single worker's topic.
type Event struct {
	Type     EventType             `json:"type"`
	WorkerID string                `json:"worker_id"`
	Reading  *models.SensorReading `json:"reading,omitempty"`
	Alert    *Alert                `json:"alert,omitempty"`
	At       time.Time             `json:"at"`
}

// Hub fans events out over redis pub/sub with one channel per worker, so a
// subscriber only ever receives its own worker's events.
type Hub struct {
	client *redis.Client
	prefix string
	log    zerolog.Logger
}

func NewHub(client *redis.Client, prefix string, log zerolog.Logger) *Hub {
	return &Hub{client: client, prefix: prefix, log: log}
}

func (h *Hub) Topic(workerID string) string {
	return h.prefix + workerID
}

func (h *Hub) Publish(ctx context.Context, ev Event) error {
	if ev.WorkerID == "" {
		return fmt.Errorf("publish %s: missing worker id", ev.Type)
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := h.client.Publish(ctx, h.Topic(ev.WorkerID), body).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

type Subscription struct {
	pubsub *redis.PubSub
	events chan Event
}

// Events is closed when the subscription ends.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

func (s *Subscription) Close() error {
	return s.pubsub.Close()
}

// Subscribe returns once redis has confirmed the subscription, so events
// published afterwards are not missed.
func (h *Hub) Subscribe(ctx context.Context, workerID string) (*Subscription, error) {
	pubsub := h.client.Subscribe(ctx, h.Topic(workerID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", workerID, err)
	}

	sub := &Subscription{pubsub: pubsub, events: make(chan Event, 16)}
	go func() {
		defer close(sub.events)
		for msg := range pubsub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				h.log.Warn().Err(err).Str("channel", msg.Channel).Msg("drop malformed realtime event")
				continue
			}
			select {
			case sub.events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return sub, nil
}
