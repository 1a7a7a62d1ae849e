// Package amqpx carries bus topics over a RabbitMQ topic exchange: the topic name is the routing key
// and every subscribed topic gets a durable queue of the same name.
package amqpx

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/k1networth/users-bus/internal/shared/broker"
)

const DefaultExchange = "users.bus"

type Connection struct {
	URL      string
	Exchange string
	Conn     *amqp.Connection
}

// Connect dials RabbitMQ, retrying until attempts run out or ctx is done.
func Connect(ctx context.Context, log *slog.Logger, url, exchange string, attempts int) (*Connection, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		var conn *amqp.Connection
		conn, err = amqp.Dial(url)
		if err == nil {
			log.Info("amqp_connected", slog.String("exchange", exchange))
			return &Connection{URL: url, Exchange: exchange, Conn: conn}, nil
		}
		log.Warn("amqp_connect_failed", slog.Int("attempt", i+1), slog.String("err", err.Error()))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return nil, fmt.Errorf("amqp: could not connect after %d attempts: %w", attempts, err)
}

func (c *Connection) channel() (*amqp.Channel, error) {
	ch, err := c.Conn.Channel()
	if err != nil {
		return nil, err
	}
	err = ch.ExchangeDeclare(
		c.Exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	return ch, nil
}

func (c *Connection) Close() error {
	if c.Conn != nil {
		return c.Conn.Close()
	}
	return nil
}

type Publisher struct {
	mu       sync.Mutex
	ch       *amqp.Channel
	exchange string
}

func NewPublisher(conn *Connection) (*Publisher, error) {
	ch, err := conn.channel()
	if err != nil {
		return nil, err
	}
	return &Publisher{ch: ch, exchange: conn.Exchange}, nil
}

func (p *Publisher) Publish(ctx context.Context, topic string, key, value []byte) error {
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// amqp channels are not safe for concurrent publishing.
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.ch.PublishWithContext(
		cctx,
		p.exchange,
		topic,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			CorrelationId: string(key),
			Body:          value,
			DeliveryMode:  amqp.Persistent,
			Timestamp:     time.Now(),
		},
	)
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		return p.ch.Close()
	}
	return nil
}

type SubscriberConfig struct {
	Topic        string
	ConsumerName string

	// Exclusive declares a server-named, auto-deleted queue that only this subscriber sees.
	// Used by clients that each need every response.
	Exclusive bool
}

type Subscriber struct {
	ch    *amqp.Channel
	msgs  <-chan amqp.Delivery
	topic string
}

func NewSubscriber(conn *Connection, cfg SubscriberConfig) (*Subscriber, error) {
	ch, err := conn.channel()
	if err != nil {
		return nil, err
	}

	name := cfg.Topic
	durable, autoDelete := true, false
	if cfg.Exclusive {
		name, durable, autoDelete = "", false, true
	}

	q, err := ch.QueueDeclare(name, durable, autoDelete, cfg.Exclusive, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	if err := ch.QueueBind(q.Name, cfg.Topic, conn.Exchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		return nil, err
	}

	msgs, err := ch.Consume(
		q.Name,
		cfg.ConsumerName,
		false, // manual ack
		cfg.Exclusive,
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}

	return &Subscriber{ch: ch, msgs: msgs, topic: cfg.Topic}, nil
}

func (s *Subscriber) Fetch(ctx context.Context) (broker.Message, error) {
	select {
	case <-ctx.Done():
		return broker.Message{}, ctx.Err()
	case d, ok := <-s.msgs:
		if !ok {
			return broker.Message{}, fmt.Errorf("amqp: delivery channel for %q closed", s.topic)
		}
		return broker.Message{
			Topic: d.RoutingKey,
			Key:   []byte(d.CorrelationId),
			Value: d.Body,
			Raw:   d,
		}, nil
	}
}

func (s *Subscriber) Commit(ctx context.Context, msg broker.Message) error {
	_ = ctx
	d, ok := msg.Raw.(amqp.Delivery)
	if !ok {
		return fmt.Errorf("amqpx: commit of foreign message on topic %q", msg.Topic)
	}
	return d.Ack(false)
}

// Release nacks the delivery with requeue. With a prefetch of one, nothing else arrives on
// this channel until the delivery is acked or nacked.
func (s *Subscriber) Release(ctx context.Context, msg broker.Message) error {
	_ = ctx
	d, ok := msg.Raw.(amqp.Delivery)
	if !ok {
		return fmt.Errorf("amqpx: release of foreign message on topic %q", msg.Topic)
	}
	return d.Nack(false, true)
}

func (s *Subscriber) Close() error {
	return s.ch.Close()
}
