// Package client turns the request and response topics back into a call: it publishes a
// request under a fresh correlation id and waits for the reply carrying the same id.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/k1networth/users-bus/internal/bus"
	"github.com/k1networth/users-bus/internal/shared/broker"
)

var ErrClosed = errors.New("client: response listener stopped")

type Requester struct {
	pub    broker.Publisher
	topics bus.Topics
	log    *slog.Logger

	mu      sync.Mutex
	pending map[string]chan bus.Response
	closed  bool
}

func NewRequester(pub broker.Publisher, topics bus.Topics, log *slog.Logger) *Requester {
	return &Requester{
		pub:     pub,
		topics:  topics,
		log:     log,
		pending: make(map[string]chan bus.Response),
	}
}

// Listen reads the response topic and hands each reply to the call waiting for it.
// Replies nobody waits for are committed and dropped. It returns when ctx is done or the
// subscriber fails, after which pending and future calls fail with ErrClosed.
func (r *Requester) Listen(ctx context.Context, sub broker.Subscriber) error {
	defer r.shutdown()

	for {
		msg, err := sub.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch response: %w", err)
		}

		var resp bus.Response
		if err := json.Unmarshal(msg.Value, &resp); err != nil {
			r.log.Warn("response_malformed", slog.String("err", err.Error()))
		} else {
			r.deliver(resp)
		}

		if err := sub.Commit(ctx, msg); err != nil && ctx.Err() == nil {
			r.log.Warn("response_commit_failed", slog.String("err", err.Error()))
		}
	}
}

// Call publishes fields on the request topic of op and blocks until the reply arrives or
// ctx is done. A correlationId in fields is overwritten.
func (r *Requester) Call(ctx context.Context, op bus.Operation, fields bus.Fields) (bus.Response, error) {
	topic := r.topics.Request(op)
	if topic == "" {
		return bus.Response{}, fmt.Errorf("client: no topic for %s", op)
	}

	id := uuid.NewString()
	payload := make(bus.Fields, len(fields)+1)
	for k, v := range fields {
		payload[k] = v
	}
	payload["correlationId"] = id

	body, err := json.Marshal(payload)
	if err != nil {
		return bus.Response{}, fmt.Errorf("marshal request: %w", err)
	}

	ch, err := r.register(id)
	if err != nil {
		return bus.Response{}, err
	}
	defer r.unregister(id)

	if err := r.pub.Publish(ctx, topic, []byte(id), body); err != nil {
		return bus.Response{}, fmt.Errorf("publish %s request: %w", op, err)
	}
	r.log.Debug("request_sent", slog.String("topic", topic), slog.String("correlation_id", id))

	select {
	case <-ctx.Done():
		return bus.Response{}, ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return bus.Response{}, ErrClosed
		}
		return resp, nil
	}
}

func (r *Requester) register(id string) (chan bus.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	ch := make(chan bus.Response, 1)
	r.pending[id] = ch
	return ch, nil
}

func (r *Requester) unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, id)
}

func (r *Requester) deliver(resp bus.Response) {
	r.mu.Lock()
	ch, ok := r.pending[resp.CorrelationID]
	if ok {
		delete(r.pending, resp.CorrelationID)
	}
	r.mu.Unlock()

	if !ok {
		r.log.Debug("response_unmatched", slog.String("correlation_id", resp.CorrelationID))
		return
	}
	ch <- resp
}

func (r *Requester) shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for id, ch := range r.pending {
		close(ch)
		delete(r.pending, id)
	}
}
