package bus

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/k1networth/users-bus/internal/shared/broker"
	"github.com/k1networth/users-bus/internal/shared/correlation"
	"github.com/k1networth/users-bus/internal/shared/errs"
)

// Data is the operation result carried by a success response.
type Data map[string]any

// Response is the envelope published on the shared response topic.
// Exactly one of Data and Error is set.
type Response struct {
	CorrelationID string `json:"correlationId"`
	Success       bool   `json:"success"`
	Data          Data   `json:"data,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Responder publishes replies, keyed by correlation id, on one response topic.
type Responder struct {
	pub     broker.Publisher
	topic   string
	log     *slog.Logger
	metrics *Metrics
}

func NewResponder(pub broker.Publisher, topic string, log *slog.Logger, metrics *Metrics) *Responder {
	return &Responder{pub: pub, topic: topic, log: log, metrics: metrics}
}

func (r *Responder) SendSuccess(ctx context.Context, correlationID string, data Data) error {
	if data == nil {
		data = Data{}
	}
	return r.send(ctx, Response{CorrelationID: correlationID, Success: true, Data: data})
}

func (r *Responder) SendError(ctx context.Context, correlationID, message string) error {
	return r.send(ctx, Response{CorrelationID: correlationID, Success: false, Error: message})
}

// send returns every failure as ErrPublish; the consumer loop then releases the request for redelivery.
func (r *Responder) send(ctx context.Context, resp Response) error {
	if resp.CorrelationID == "" {
		resp.CorrelationID = correlation.Unknown
	}

	body, err := json.Marshal(resp)
	if err != nil {
		r.log.Error("response_marshal_failed",
			slog.String("correlation_id", resp.CorrelationID),
			slog.String("err", err.Error()),
		)
		r.metrics.publishFailed("response")
		return errs.Wrap(errs.ErrPublish, err, "Error sending response: %s", err.Error())
	}

	if err := r.pub.Publish(ctx, r.topic, []byte(resp.CorrelationID), body); err != nil {
		r.log.Error("response_publish_failed",
			slog.String("topic", r.topic),
			slog.String("correlation_id", resp.CorrelationID),
			slog.String("err", err.Error()),
		)
		r.metrics.publishFailed("response")
		return errs.Wrap(errs.ErrPublish, err, "Error sending response: %s", err.Error())
	}

	r.metrics.responsePublished(resp.Success)
	r.log.Debug("response_sent",
		slog.String("topic", r.topic),
		slog.String("correlation_id", resp.CorrelationID),
		slog.Bool("success", resp.Success),
	)
	return nil
}
