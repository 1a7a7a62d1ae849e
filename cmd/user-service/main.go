package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/k1networth/users-bus/internal/bus"
	"github.com/k1networth/users-bus/internal/shared/broker"
	"github.com/k1networth/users-bus/internal/shared/config"
	"github.com/k1networth/users-bus/internal/shared/db"
	"github.com/k1networth/users-bus/internal/shared/events"
	"github.com/k1networth/users-bus/internal/shared/httpx"
	"github.com/k1networth/users-bus/internal/shared/logger"
	"github.com/k1networth/users-bus/internal/user"
)

const appName = "user-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(appName, "unknown", "info").Error("config_error", slog.String("err", err.Error()))
		os.Exit(2)
	}
	log := logger.New(appName, cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log, cfg); err != nil {
		log.Error("service_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger, cfg config.Config) error {
	topics := cfg.Topics.Bus()
	if err := topics.Validate(); err != nil {
		return err
	}

	store, ready, closeStore, err := openStore(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	tr, err := openTransport(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := tr.close(); err != nil {
			log.Error("transport_close_failed", slog.String("err", err.Error()))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := bus.NewMetrics(reg)

	notifier := bus.NewNotifier(tr.pub, topics, log, metrics)
	svc := user.NewService(store, notifier, log)
	responder := bus.NewResponder(tr.pub, topics.Response, log, metrics)
	dispatcher := bus.NewDispatcher(svc, responder, topics, log, metrics)

	subs := make(map[bus.Operation]broker.Subscriber, len(bus.Operations))
	defer func() {
		for _, sub := range subs {
			_ = sub.Close()
		}
	}()
	for _, op := range bus.Operations {
		sub, err := tr.subscribe(topics.Request(op))
		if err != nil {
			return err
		}
		subs[op] = sub
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, op := range bus.Operations {
		sub := subs[op]
		opLog := log.With(slog.String("topic", topics.Request(op)), slog.String("operation", op.String()))
		g.Go(func() error {
			opLog.Info("consumer_start")
			return bus.Consume(gctx, opLog, sub, dispatcher.Handle)
		})
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpx.NewRouter(log, ready, reg),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	g.Go(func() error {
		return httpx.Serve(gctx, log, srv, 10*time.Second)
	})

	announce(ctx, log, tr, cfg.Topics.Announce, events.NewLifecycle(
		events.TypeStarted, appName, "users microservice started", topics.RequestTopics(),
	))

	err = g.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.WriteTimeout)
	defer cancel()
	announce(stopCtx, log, tr, cfg.Topics.Announce, events.NewLifecycle(
		events.TypeStopped, appName, "users microservice stopped", nil,
	))

	return err
}

func announce(ctx context.Context, log *slog.Logger, tr *transport, topic string, ev events.Lifecycle) {
	if err := events.Announce(ctx, tr.pub, topic, ev); err != nil {
		log.Warn("announce_failed", slog.String("event_type", ev.EventType), slog.String("err", err.Error()))
		return
	}
	log.Info("announced", slog.String("event_type", ev.EventType), slog.String("topic", topic))
}

// openStore picks Postgres when DATABASE_URL is set, else memory, and fronts it with Redis
// when REDIS_ADDR is set.
func openStore(ctx context.Context, log *slog.Logger, cfg config.Config) (user.Store, httpx.ReadyFunc, func(), error) {
	var (
		store   user.Store
		ready   httpx.ReadyFunc
		closers []func()
	)

	if cfg.DatabaseURL == "" {
		log.Warn("store_in_memory", slog.String("reason", "DATABASE_URL is empty"))
		store = user.NewInMemoryStore()
	} else {
		pg, err := db.OpenPostgres(ctx, log, db.PostgresConfig{DatabaseURL: cfg.DatabaseURL, PingAttempts: 10})
		if err != nil {
			return nil, nil, nil, err
		}
		closers = append(closers, closeDB(log, pg))
		if err := user.EnsureSchema(ctx, pg); err != nil {
			_ = pg.Close()
			return nil, nil, nil, err
		}
		pgStore := user.NewPostgresStore(pg)
		store = pgStore
		ready = pgStore.Ping
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("cache_unavailable", slog.String("addr", cfg.RedisAddr), slog.String("err", err.Error()))
		}
		closers = append(closers, func() { _ = rdb.Close() })
		store = user.NewCachedStore(store, rdb, cfg.CacheTTL, log)
	}

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return store, ready, closeAll, nil
}

func closeDB(log *slog.Logger, pg *sql.DB) func() {
	return func() {
		if err := pg.Close(); err != nil {
			log.Error("db_close_failed", slog.String("err", err.Error()))
		}
	}
}
