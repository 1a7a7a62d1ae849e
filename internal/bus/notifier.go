package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/k1networth/users-bus/internal/shared/broker"
	"github.com/k1networth/users-bus/internal/shared/errs"
	"github.com/k1networth/users-bus/internal/user"
)

// EventMessage is the wire form of a domain event. EventID lets subscribers drop redeliveries.
type EventMessage struct {
	EventID   string      `json:"eventId"`
	ID        int64       `json:"id"`
	Username  string      `json:"username,omitempty"`
	Email     string      `json:"email"`
	Action    user.Action `json:"action"`
	Timestamp time.Time   `json:"timestamp"`
}

// Notifier publishes domain events to the topic of their action. It implements user.EventPublisher.
type Notifier struct {
	pub     broker.Publisher
	topics  Topics
	log     *slog.Logger
	metrics *Metrics
}

func NewNotifier(pub broker.Publisher, topics Topics, log *slog.Logger, metrics *Metrics) *Notifier {
	return &Notifier{pub: pub, topics: topics, log: log, metrics: metrics}
}

func (n *Notifier) Publish(ctx context.Context, ev user.Event) error {
	topic := n.topics.Event(ev.Action)
	if topic == "" {
		return errs.New(errs.ErrPublish, "no topic for action %q", ev.Action)
	}

	body, err := json.Marshal(EventMessage{
		EventID:   uuid.NewString(),
		ID:        ev.UserID,
		Username:  ev.Username,
		Email:     ev.Email,
		Action:    ev.Action,
		Timestamp: ev.Timestamp,
	})
	if err != nil {
		return n.failed(ev, topic, err)
	}

	if err := n.pub.Publish(ctx, topic, []byte(strconv.FormatInt(ev.UserID, 10)), body); err != nil {
		return n.failed(ev, topic, err)
	}

	n.metrics.eventPublished(string(ev.Action), "ok")
	return nil
}

func (n *Notifier) failed(ev user.Event, topic string, err error) error {
	n.log.Error("event_publish_failed",
		slog.String("topic", topic),
		slog.String("action", string(ev.Action)),
		slog.Int64("user_id", ev.UserID),
		slog.String("err", err.Error()),
	)
	n.metrics.eventPublished(string(ev.Action), "error")
	n.metrics.publishFailed("event")
	return errs.Wrap(errs.ErrPublish, err, "Error sending event to %s: %s", topic, err.Error())
}
