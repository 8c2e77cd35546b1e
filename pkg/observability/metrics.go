package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the authentication layer
type Metrics struct {
	// Login flow metrics
	LoginAttemptsTotal *prometheus.CounterVec
	CallbacksTotal     *prometheus.CounterVec
	StateConsumedTotal *prometheus.CounterVec

	// Token metrics
	TokenValidationsTotal *prometheus.CounterVec
	TokenExchangeDuration *prometheus.HistogramVec

	// Key set cache metrics
	KeySetRefreshTotal *prometheus.CounterVec
	KeySetDegraded     prometheus.Gauge
	KeySetKeys         prometheus.Gauge

	// Session metrics
	SessionsIssuedTotal  prometheus.Counter
	SessionsRevokedTotal prometheus.Counter
	SessionsSweptTotal   prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		LoginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_login_attempts_total",
				Help: "Total number of initiated login attempts",
			},
			[]string{"status"},
		),
		CallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_callbacks_total",
				Help: "Total number of authorization callbacks by outcome",
			},
			[]string{"outcome"},
		),
		StateConsumedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_state_consumed_total",
				Help: "Total number of state consumption attempts",
			},
			[]string{"result"},
		),
		TokenValidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_token_validations_total",
				Help: "Total number of ID token validations by result",
			},
			[]string{"result"},
		),
		TokenExchangeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatehouse_token_exchange_duration_seconds",
				Help:    "Authorization code exchange duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		KeySetRefreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_keyset_refresh_total",
				Help: "Total number of JWKS refresh attempts",
			},
			[]string{"status"},
		),
		KeySetDegraded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gatehouse_keyset_degraded",
				Help: "1 when the key set cache is serving a stale snapshot",
			},
		),
		KeySetKeys: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gatehouse_keyset_keys",
				Help: "Number of signing keys in the current snapshot",
			},
		),
		SessionsIssuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatehouse_sessions_issued_total",
				Help: "Total number of sessions issued",
			},
		),
		SessionsRevokedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatehouse_sessions_revoked_total",
				Help: "Total number of sessions revoked",
			},
		),
		SessionsSweptTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatehouse_sessions_swept_total",
				Help: "Total number of expired sessions removed by the sweeper",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.LoginAttemptsTotal,
		m.CallbacksTotal,
		m.StateConsumedTotal,
		m.TokenValidationsTotal,
		m.TokenExchangeDuration,
		m.KeySetRefreshTotal,
		m.KeySetDegraded,
		m.KeySetKeys,
		m.SessionsIssuedTotal,
		m.SessionsRevokedTotal,
		m.SessionsSweptTotal,
	)

	return m
}

// Handler returns an HTTP handler exposing the metrics registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
