package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"

	"github.com/k1networth/users-bus/internal/bus"
	"github.com/k1networth/users-bus/internal/client"
	"github.com/k1networth/users-bus/internal/shared/amqpx"
	"github.com/k1networth/users-bus/internal/shared/broker"
	"github.com/k1networth/users-bus/internal/shared/config"
	"github.com/k1networth/users-bus/internal/shared/kafkax"
	"github.com/k1networth/users-bus/internal/shared/logger"
)

const appName = "user-cli"

var operations = map[string]bus.Operation{
	"create":          bus.OpCreate,
	"get":             bus.OpGetOne,
	"get-by-username": bus.OpGetByUsername,
	"update":          bus.OpUpdate,
	"delete":          bus.OpDelete,
}

func main() {
	op := flag.String("op", "get", "operation: create, get, get-by-username, update, delete")
	id := flag.Int64("id", 0, "user id (update, delete)")
	name := flag.String("name", "", "display name (create, update)")
	email := flag.String("email", "", "email (create, get, update)")
	username := flag.String("username", "", "login name, an email (get-by-username)")
	password := flag.String("password", "", "password (create, update)")
	timeout := flag.Duration("timeout", 15*time.Second, "how long to wait for the reply")
	warmup := flag.Duration("warmup", 3*time.Second, "kafka only: time for the reply consumer to join before sending")
	verbose := flag.Bool("v", false, "log bus activity")
	flag.Parse()

	kind, ok := operations[*op]
	if !ok {
		fail("unknown operation %q", *op)
	}

	cfg, err := config.Load()
	if err != nil {
		fail("config: %v", err)
	}
	level := "error"
	if *verbose {
		level = "debug"
	}
	log := logger.New(appName, cfg.AppEnv, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pub, sub, closeAll, err := dial(ctx, log, cfg)
	if err != nil {
		fail("connect: %v", err)
	}
	defer closeAll()

	topics := cfg.Topics.Bus()
	req := client.NewRequester(pub, topics, log)

	listenCtx, stopListen := context.WithCancel(ctx)
	defer stopListen()
	go func() {
		if err := req.Listen(listenCtx, sub); err != nil {
			log.Error("listen_failed", slog.String("err", err.Error()))
		}
	}()

	if cfg.BusDriver == config.DriverKafka && *warmup > 0 {
		time.Sleep(*warmup)
	}

	fields := bus.Fields{}
	switch kind {
	case bus.OpCreate:
		fields["name"], fields["email"], fields["password"] = *name, *email, *password
	case bus.OpGetOne:
		fields["email"] = *email
	case bus.OpGetByUsername:
		fields["username"] = *username
	case bus.OpUpdate:
		fields["id"], fields["username"], fields["email"], fields["password"] = *id, *name, *email, *password
	case bus.OpDelete:
		fields["id"] = *id
	}

	callCtx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	resp, err := req.Call(callCtx, kind, fields)
	if err != nil {
		fail("%s: %v", kind, err)
	}
	render(os.Stdout, kind, resp)
	if !resp.Success {
		os.Exit(1)
	}
}

// dial opens a publisher and a private subscriber on the response topic.
func dial(ctx context.Context, log *slog.Logger, cfg config.Config) (broker.Publisher, broker.Subscriber, func(), error) {
	switch cfg.BusDriver {
	case config.DriverAMQP:
		conn, err := amqpx.Connect(ctx, log, cfg.AMQPURL, cfg.AMQPExchange, 3)
		if err != nil {
			return nil, nil, nil, err
		}
		pub, err := amqpx.NewPublisher(conn)
		if err != nil {
			_ = conn.Close()
			return nil, nil, nil, err
		}
		sub, err := amqpx.NewSubscriber(conn, amqpx.SubscriberConfig{
			Topic:        cfg.Topics.Response,
			ConsumerName: appName,
			Exclusive:    true,
		})
		if err != nil {
			_ = pub.Close()
			_ = conn.Close()
			return nil, nil, nil, err
		}
		return pub, sub, func() {
			_ = sub.Close()
			_ = pub.Close()
			_ = conn.Close()
		}, nil

	default:
		producer := kafkax.NewProducer(kafkax.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			ClientID:     appName,
			WriteTimeout: cfg.WriteTimeout,
		})
		// Every invocation needs every reply, so it gets a throwaway group reading new messages only.
		consumer := kafkax.NewConsumer(kafkax.ConsumerConfig{
			Brokers:     cfg.KafkaBrokers,
			Topic:       cfg.Topics.Response,
			GroupID:     appName + "-" + uuid.NewString(),
			StartOffset: "last",
		})
		return producer, consumer, func() {
			_ = consumer.Close()
			_ = producer.Close()
		}, nil
	}
}

func render(w io.Writer, op bus.Operation, resp bus.Response) {
	if !resp.Success {
		fmt.Fprintln(w, color.Red.Sprintf("%s failed: %s", op, resp.Error))
		return
	}
	fmt.Fprintln(w, color.Green.Sprintf("%s ok", op))

	keys := make([]string, 0, len(resp.Data))
	for k := range resp.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Field", "Value"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, k := range keys {
		table.Append([]string{k, fmt.Sprint(resp.Data[k])})
	}
	table.Render()
}

func fail(format string, args ...any) {
	fmt.Fprintln(os.Stderr, color.Red.Sprintf(format, args...))
	os.Exit(2)
}
