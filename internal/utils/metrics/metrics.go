package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/quizforge/server/internal/infra/events"
	"github.com/quizforge/server/internal/port/outbound"
)

// Metrics holds all application metrics.
type Metrics struct {
	// HTTP
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Ledger
	AuthorizationsTotal *prometheus.CounterVec
	SettlementsTotal    *prometheus.CounterVec
	DeficitCredits      prometheus.Counter
	GrantsTotal         *prometheus.CounterVec
	CreditsIssued       prometheus.Counter
	ReservationsExpired prometheus.Counter
	AmbiguousOutcomes   prometheus.Counter

	// Gateway
	GatewayCallsTotal   *prometheus.CounterVec
	GatewayCallDuration *prometheus.HistogramVec
	GatewayTokensTotal  *prometheus.CounterVec
}

// New registers all metrics with reg. A nil reg uses the default registerer.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "quizforge"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		AuthorizationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "authorizations_total",
				Help:      "Authorization attempts by result",
			},
			[]string{"result"}, // approved, insufficient, not_found, invalid, error
		),
		SettlementsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "settlements_total",
				Help:      "Settlements by result",
			},
			[]string{"result"}, // settled, deficit, duplicate, closed, error
		),
		DeficitCredits: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "deficit_credits_total",
				Help:      "Credits consumed but not covered by the balance",
			},
		),
		GrantsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "grants_total",
				Help:      "Credit grants by status",
			},
			[]string{"status"},
		),
		CreditsIssued: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "credits_issued_total",
				Help:      "Credits added by applied grants",
			},
		),
		ReservationsExpired: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "reservations_expired_total",
				Help:      "Pending reservations moved to expired by the sweeper",
			},
		),
		AmbiguousOutcomes: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "ambiguous_outcomes_total",
				Help:      "Gateway calls queued for reconciliation",
			},
		),

		GatewayCallsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "calls_total",
				Help:      "Metered gateway calls by outcome",
			},
			[]string{"provider", "model", "status"},
		),
		GatewayCallDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "call_duration_seconds",
				Help:      "Gateway call duration in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"provider", "status"},
		),
		GatewayTokensTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "tokens_total",
				Help:      "Tokens billed from gateway calls",
			},
			[]string{"provider", "model"},
		),
	}
}

var _ outbound.MetricsPort = (*Metrics)(nil)

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusCodeToString(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordAuthorization records an authorization attempt.
func (m *Metrics) RecordAuthorization(result string) {
	m.AuthorizationsTotal.WithLabelValues(result).Inc()
}

// RecordSettlement records a settlement and any shortfall.
func (m *Metrics) RecordSettlement(result string, deficit int64) {
	m.SettlementsTotal.WithLabelValues(result).Inc()
	if deficit > 0 {
		m.DeficitCredits.Add(float64(deficit))
	}
}

// RecordGrant records a grant outcome.
func (m *Metrics) RecordGrant(status string, credits int64) {
	m.GrantsTotal.WithLabelValues(status).Inc()
	if credits > 0 {
		m.CreditsIssued.Add(float64(credits))
	}
}

// RecordGatewayCall records one metered call.
func (m *Metrics) RecordGatewayCall(provider, model, status string, tokens int64, duration time.Duration) {
	m.GatewayCallsTotal.WithLabelValues(provider, model, status).Inc()
	m.GatewayCallDuration.WithLabelValues(provider, status).Observe(duration.Seconds())
	if tokens > 0 {
		m.GatewayTokensTotal.WithLabelValues(provider, model).Add(float64(tokens))
	}
}

// Handles lists the ledger events counted from the bus.
func (m *Metrics) Handles() []string {
	return []string{events.ReservationExpiredType, events.AmbiguousQueuedType}
}

// Handle counts sweeper expirations and queued ambiguous outcomes.
func (m *Metrics) Handle(_ context.Context, event events.Event) error {
	switch e := event.(type) {
	case *events.ReservationsExpiredEvent:
		m.ReservationsExpired.Add(float64(e.Count))
	case *events.AmbiguousQueuedEvent:
		m.AmbiguousOutcomes.Inc()
	}
	return nil
}

var _ events.Handler = (*Metrics)(nil)

func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return strconv.Itoa(code)
	}
}
