package bus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeOK       = "ok"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
)

type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ResponsesTotal  *prometheus.CounterVec
	PublishFailures *prometheus.CounterVec
	EventsTotal     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "bus_requests_total", Help: "Handled request messages."},
			[]string{"operation", "outcome"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bus_request_duration_seconds",
				Help:    "Time from decode to reply publication.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		ResponsesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "bus_responses_published_total", Help: "Published response envelopes."},
			[]string{"success"},
		),
		PublishFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "bus_publish_failures_total", Help: "Failed publications by channel kind."},
			[]string{"kind"},
		),
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "user_events_published_total", Help: "Domain event publications."},
			[]string{"action", "status"},
		),
	}
	reg.MustRegister(m.RequestsTotal, m.RequestDuration, m.ResponsesTotal, m.PublishFailures, m.EventsTotal)
	return m
}

// The helpers below accept a nil receiver so components work without metrics.

func (m *Metrics) observeRequest(op Operation, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(op.Label(), outcome).Inc()
	m.RequestDuration.WithLabelValues(op.Label()).Observe(time.Since(start).Seconds())
}

func (m *Metrics) responsePublished(success bool) {
	if m == nil {
		return
	}
	m.ResponsesTotal.WithLabelValues(strconv.FormatBool(success)).Inc()
}

func (m *Metrics) publishFailed(kind string) {
	if m == nil {
		return
	}
	m.PublishFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) eventPublished(action, status string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(action, status).Inc()
}
