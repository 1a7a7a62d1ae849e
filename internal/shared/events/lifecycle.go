// Package events holds the service lifecycle messages announced on the shared service topic.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/k1networth/users-bus/internal/shared/broker"
)

const (
	TypeStarted = "service.started"
	TypeStopped = "service.stopped"
)

type Lifecycle struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Service    string    `json:"service"`
	Instance   string    `json:"instance"`
	Message    string    `json:"message"`
	Listening  []string  `json:"listening,omitempty"`
}

func NewLifecycle(eventType, service, message string, listening []string) Lifecycle {
	host, _ := os.Hostname()
	return Lifecycle{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		Service:    service,
		Instance:   host,
		Message:    message,
		Listening:  listening,
	}
}

// Announce publishes ev on topic keyed by the service name.
func Announce(ctx context.Context, pub broker.Publisher, topic string, ev Lifecycle) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ev.EventType, err)
	}
	if err := pub.Publish(ctx, topic, []byte(ev.Service), body); err != nil {
		return fmt.Errorf("announce %s: %w", ev.EventType, err)
	}
	return nil
}
