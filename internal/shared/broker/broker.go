// Package broker defines the transport-neutral message contract the bus layer is written against.
// kafkax and amqpx provide the implementations.
package broker

import (
	"context"
	"sync"
)

type Message struct {
	Topic string
	Key   []byte
	Value []byte

	// Raw is the driver's own message, used by Commit.
	Raw any
}

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Subscriber delivers messages one at a time. Every fetched message must end in exactly one
// Commit or Release before the next Fetch can be relied on to make progress.
type Subscriber interface {
	Fetch(ctx context.Context) (Message, error)
	Commit(ctx context.Context, msg Message) error
	// Release gives msg back to the broker uncommitted so it is delivered again.
	Release(ctx context.Context, msg Message) error
	Close() error
}

// Recorder is an in-process Publisher that keeps every message. Used by tests and dry runs.
type Recorder struct {
	mu   sync.Mutex
	msgs []Message
	Err  func(topic string) error
}

func (r *Recorder) Publish(ctx context.Context, topic string, key, value []byte) error {
	if r.Err != nil {
		if err := r.Err(topic); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, Message{
		Topic: topic,
		Key:   append([]byte(nil), key...),
		Value: append([]byte(nil), value...),
	})
	return nil
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}

func (r *Recorder) On(topic string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.msgs {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}
