package bus

import (
	"context"
	"log/slog"
	"time"

	"github.com/k1networth/users-bus/internal/shared/broker"
)

const (
	fetchBackoff       = 300 * time.Millisecond
	reopenAfterFailure = 5

	retryBackoffMin = 200 * time.Millisecond
	retryBackoffMax = 5 * time.Second
)

// reopener is implemented by subscribers that can rebuild their connection.
type reopener interface {
	Reopen()
}

// HandleFunc processes one message. A non-nil error releases the message for redelivery.
type HandleFunc func(ctx context.Context, msg broker.Message) error

// Consume runs a sequential fetch, handle and commit loop until ctx is done.
// A message whose handler fails is released back to the subscriber and retried after a
// growing pause, so it is neither skipped nor left blocking the subscription.
func Consume(ctx context.Context, log *slog.Logger, sub broker.Subscriber, handle HandleFunc) error {
	failures := 0
	retry := retryBackoffMin
	for {
		if ctx.Err() != nil {
			log.Info("consumer_shutdown")
			return nil
		}

		msg, err := sub.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			failures++
			log.Error("fetch_failed", slog.String("err", err.Error()), slog.Int("failures", failures))
			if r, ok := sub.(reopener); ok && failures >= reopenAfterFailure {
				log.Warn("subscriber_reopen")
				r.Reopen()
				failures = 0
			}
			sleep(ctx, fetchBackoff)
			continue
		}
		failures = 0

		if err := handle(ctx, msg); err != nil {
			log.Error("message_handle_failed",
				slog.String("topic", msg.Topic),
				slog.String("err", err.Error()),
				slog.Duration("retry_in", retry),
			)
			if err := sub.Release(ctx, msg); err != nil && ctx.Err() == nil {
				log.Error("release_failed", slog.String("topic", msg.Topic), slog.String("err", err.Error()))
			}
			sleep(ctx, retry)
			retry = min(retry*2, retryBackoffMax)
			continue
		}
		retry = retryBackoffMin
		if err := sub.Commit(ctx, msg); err != nil {
			log.Error("commit_failed", slog.String("topic", msg.Topic), slog.String("err", err.Error()))
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
