package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/k1networth/users-bus/internal/shared/amqpx"
	"github.com/k1networth/users-bus/internal/shared/broker"
	"github.com/k1networth/users-bus/internal/shared/config"
	"github.com/k1networth/users-bus/internal/shared/kafkax"
)

// transport builds the publisher and per-topic subscribers for the configured driver.
type transport struct {
	pub       broker.Publisher
	subscribe func(topic string) (broker.Subscriber, error)
	close     func() error
}

func openTransport(ctx context.Context, log *slog.Logger, cfg config.Config) (*transport, error) {
	switch cfg.BusDriver {
	case config.DriverKafka:
		producer := kafkax.NewProducer(kafkax.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			ClientID:     appName,
			WriteTimeout: cfg.WriteTimeout,
		})
		return &transport{
			pub: producer,
			subscribe: func(topic string) (broker.Subscriber, error) {
				return kafkax.NewConsumer(kafkax.ConsumerConfig{
					Brokers:     cfg.KafkaBrokers,
					Topic:       topic,
					GroupID:     cfg.KafkaGroupID,
					StartOffset: cfg.KafkaStartOffset,
				}), nil
			},
			close: producer.Close,
		}, nil

	case config.DriverAMQP:
		conn, err := amqpx.Connect(ctx, log, cfg.AMQPURL, cfg.AMQPExchange, 15)
		if err != nil {
			return nil, err
		}
		pub, err := amqpx.NewPublisher(conn)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		return &transport{
			pub: pub,
			subscribe: func(topic string) (broker.Subscriber, error) {
				return amqpx.NewSubscriber(conn, amqpx.SubscriberConfig{Topic: topic, ConsumerName: appName})
			},
			close: func() error {
				_ = pub.Close()
				return conn.Close()
			},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported bus driver %q", cfg.BusDriver)
	}
}
