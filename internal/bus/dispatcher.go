package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/k1networth/users-bus/internal/shared/broker"
	"github.com/k1networth/users-bus/internal/shared/correlation"
	"github.com/k1networth/users-bus/internal/shared/errs"
	"github.com/k1networth/users-bus/internal/user"
)

// Dispatcher answers request messages. Every call to Dispatch publishes exactly one response,
// and the only error it returns is a failure to publish that response.
type Dispatcher struct {
	svc     *user.Service
	resp    *Responder
	byTopic map[string]Operation
	log     *slog.Logger
	metrics *Metrics
}

func NewDispatcher(svc *user.Service, resp *Responder, topics Topics, log *slog.Logger, metrics *Metrics) *Dispatcher {
	byTopic := make(map[string]Operation, len(Operations))
	for _, op := range Operations {
		byTopic[topics.Request(op)] = op
	}
	return &Dispatcher{
		svc:     svc,
		resp:    resp,
		byTopic: byTopic,
		log:     log,
		metrics: metrics,
	}
}

// Handle routes a consumed message by its topic.
func (d *Dispatcher) Handle(ctx context.Context, msg broker.Message) error {
	op, ok := d.byTopic[msg.Topic]
	if !ok {
		id := ExtractCorrelationID(msg.Value)
		d.log.Warn("request_unsupported_topic",
			slog.String("topic", msg.Topic),
			slog.String("correlation_id", id),
		)
		return d.resp.SendError(ctx, id, fmt.Sprintf("Unsupported request topic: %s", msg.Topic))
	}
	return d.Dispatch(ctx, op, msg.Value)
}

func (d *Dispatcher) Dispatch(ctx context.Context, op Operation, raw []byte) (err error) {
	start := time.Now()
	id := correlation.Unknown
	replied := false

	defer func() {
		if r := recover(); r != nil {
			d.log.Error("request_panic",
				slog.String("operation", op.String()),
				slog.String("correlation_id", id),
				slog.Any("panic", r),
			)
			d.metrics.observeRequest(op, outcomeFailed, start)
			if !replied {
				err = d.resp.SendError(ctx, id, fmt.Sprintf("Failed to process %s: internal error", op))
			}
		}
	}()

	fields, decErr := Decode(raw)
	if decErr != nil {
		id = ExtractCorrelationID(raw)
		d.log.Warn("request_malformed",
			slog.String("operation", op.String()),
			slog.String("correlation_id", id),
			slog.String("err", decErr.Error()),
		)
		d.metrics.observeRequest(op, outcomeRejected, start)
		replied = true
		return d.resp.SendError(ctx, id, decErr.Error())
	}

	cid, cidErr := RequireString(fields, fieldCorrelationID)
	if cidErr != nil {
		d.log.Warn("request_rejected",
			slog.String("operation", op.String()),
			slog.String("correlation_id", id),
			slog.String("err", cidErr.Error()),
		)
		d.metrics.observeRequest(op, outcomeRejected, start)
		replied = true
		return d.resp.SendError(ctx, id, cidErr.Error())
	}
	id = cid
	ctx = correlation.With(ctx, id)

	handle, ok := handlers[op]
	if !ok {
		d.metrics.observeRequest(op, outcomeFailed, start)
		replied = true
		return d.resp.SendError(ctx, id, fmt.Sprintf("Failed to process %s: unsupported operation", op))
	}

	data, opErr := handle(ctx, d.svc, fields)
	switch {
	case opErr == nil:
		d.log.Info("request_handled",
			slog.String("operation", op.String()),
			correlation.Attr(ctx),
		)
		d.metrics.observeRequest(op, outcomeOK, start)
		replied = true
		return d.resp.SendSuccess(ctx, id, data)

	case errs.IsClientError(opErr) || errors.Is(opErr, errs.ErrMalformedPayload):
		d.log.Info("request_rejected",
			slog.String("operation", op.String()),
			correlation.Attr(ctx),
			slog.String("err", opErr.Error()),
		)
		d.metrics.observeRequest(op, outcomeRejected, start)
		replied = true
		return d.resp.SendError(ctx, id, opErr.Error())

	default:
		d.log.Error("request_failed",
			slog.String("operation", op.String()),
			correlation.Attr(ctx),
			slog.String("err", opErr.Error()),
		)
		d.metrics.observeRequest(op, outcomeFailed, start)
		replied = true
		return d.resp.SendError(ctx, id, fmt.Sprintf("Failed to process %s: %s", op, opErr.Error()))
	}
}
