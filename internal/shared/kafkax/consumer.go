package kafkax

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/k1networth/users-bus/internal/shared/broker"
)

type Consumer struct {
	mu  sync.Mutex
	r   *kafka.Reader
	cfg ConsumerConfig
}

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string

	// StartOffset controls where a NEW consumer group starts reading when it has no committed offsets.
	// Supported values: "first" | "last". Default: "last".
	StartOffset string

	MinBytes int
	MaxBytes int
}

func NewConsumer(cfg ConsumerConfig) *Consumer {
	c := &Consumer{cfg: cfg}
	c.r = newReader(cfg)
	return c
}

func newReader(cfg ConsumerConfig) *kafka.Reader {
	minB := cfg.MinBytes
	maxB := cfg.MaxBytes
	if minB == 0 {
		minB = 1
	}
	if maxB == 0 {
		maxB = 10e6
	}

	start := kafka.LastOffset
	if strings.EqualFold(cfg.StartOffset, "first") {
		start = kafka.FirstOffset
	}

	// MaxWait and backoffs keep FetchMessage from hanging on transient broker/metadata issues.
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		StartOffset:    start,
		MinBytes:       minB,
		MaxBytes:       maxB,
		MaxWait:        500 * time.Millisecond,
		ReadBackoffMin: 100 * time.Millisecond,
		ReadBackoffMax: 1 * time.Second,
	})
}

func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.r == nil {
		return nil
	}
	err := c.r.Close()
	c.r = nil
	return err
}

func (c *Consumer) Fetch(ctx context.Context) (broker.Message, error) {
	c.mu.Lock()
	r := c.r
	c.mu.Unlock()
	if r == nil {
		return broker.Message{}, context.Canceled
	}

	m, err := r.FetchMessage(ctx)
	if err != nil {
		return broker.Message{}, err
	}
	return broker.Message{Topic: m.Topic, Key: m.Key, Value: m.Value, Raw: m}, nil
}

func (c *Consumer) Commit(ctx context.Context, msg broker.Message) error {
	m, ok := msg.Raw.(kafka.Message)
	if !ok {
		return fmt.Errorf("kafkax: commit of foreign message on topic %q", msg.Topic)
	}

	c.mu.Lock()
	r := c.r
	c.mu.Unlock()
	if r == nil {
		return context.Canceled
	}
	return r.CommitMessages(ctx, m)
}

// Release rewinds to the last committed offset. A group reader keeps advancing past
// uncommitted messages, and a later commit would cover msg, so the reader is rebuilt and
// resumes from the group's committed position, which is msg itself.
func (c *Consumer) Release(ctx context.Context, msg broker.Message) error {
	_ = ctx
	if _, ok := msg.Raw.(kafka.Message); !ok {
		return fmt.Errorf("kafkax: release of foreign message on topic %q", msg.Topic)
	}
	c.Reopen()
	return nil
}

// Reopen closes the underlying reader and recreates it using the original config.
// Useful when broker metadata becomes stale or on transient network errors.
func (c *Consumer) Reopen() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.r != nil {
		_ = c.r.Close()
	}
	c.r = newReader(c.cfg)
}
