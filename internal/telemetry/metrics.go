package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels of a dispatch.
const (
	OutcomeSent      = "sent"
	OutcomeRetryable = "retryable"
	OutcomeFatal     = "fatal"
)

// Metrics holds all Prometheus metrics for the service. A nil *Metrics
// records nothing.
type Metrics struct {
	DispatchTotal      *prometheus.CounterVec
	DispatchDuration   *prometheus.HistogramVec
	CarrierErrors      *prometheus.CounterVec
	Selections         *prometheus.CounterVec
	MilestonesIngested *prometheus.CounterVec
	EventsDropped      *prometheus.CounterVec
	NumbersRemaining   *prometheus.GaugeVec
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DispatchTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_dispatch_total",
				Help: "Shipment sends by operation, carrier and outcome",
			},
			[]string{"operation", "carrier", "outcome"},
		),
		DispatchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fulfillment_dispatch_duration_seconds",
				Help:    "Carrier send duration in seconds by operation and carrier",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "carrier"},
		),
		CarrierErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_carrier_errors_total",
				Help: "Carrier errors by carrier and error code",
			},
			[]string{"carrier", "error_type"},
		),
		Selections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_carrier_selections_total",
				Help: "Carriers picked by the selector",
			},
			[]string{"carrier"},
		),
		MilestonesIngested: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_milestones_ingested_total",
				Help: "Milestones appended to shipment timelines",
			},
			[]string{"carrier"},
		),
		EventsDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_tracking_events_dropped_total",
				Help: "Tracking events discarded before ingestion by reason",
			},
			[]string{"carrier", "reason"},
		),
		NumbersRemaining: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fulfillment_tracking_numbers_remaining",
				Help: "Unused pre-allocated tracking numbers per carrier and group",
			},
			[]string{"carrier", "group"},
		),
	}
}

// RecordDispatch records one send or resend.
func (m *Metrics) RecordDispatch(operation, carrier, outcome string, duration float64) {
	if m == nil {
		return
	}
	m.DispatchTotal.WithLabelValues(operation, carrier, outcome).Inc()
	m.DispatchDuration.WithLabelValues(operation, carrier).Observe(duration)
}

// RecordError records a carrier error metric.
func (m *Metrics) RecordError(carrier, errorType string) {
	if m == nil {
		return
	}
	m.CarrierErrors.WithLabelValues(carrier, errorType).Inc()
}

// RecordSelection counts the carrier a selection put first.
func (m *Metrics) RecordSelection(carrier string) {
	if m == nil {
		return
	}
	m.Selections.WithLabelValues(carrier).Inc()
}

// AddMilestones counts milestones written for a carrier.
func (m *Metrics) AddMilestones(carrier string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.MilestonesIngested.WithLabelValues(carrier).Add(float64(n))
}

// DropEvents counts tracking events discarded for reason.
func (m *Metrics) DropEvents(carrier, reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.EventsDropped.WithLabelValues(carrier, reason).Add(float64(n))
}

// SetNumbersRemaining updates the pool gauge.
func (m *Metrics) SetNumbersRemaining(carrier, group string, n int) {
	if m == nil {
		return
	}
	m.NumbersRemaining.WithLabelValues(carrier, group).Set(float64(n))
}
