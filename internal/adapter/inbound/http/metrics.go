package http

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the portal.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	ConnectsTotal      *prometheus.CounterVec
	GatewayTokensTotal *prometheus.CounterVec
	ProbesTotal        *prometheus.CounterVec
	DisconnectsTotal   prometheus.Counter
	RateLimitedTotal   *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rdportal",
				Name:      "requests_total",
				Help:      "Total number of API requests processed",
			},
			[]string{"method", "route", "status"}, // status=ok/client_error/server_error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "rdportal",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		ConnectsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rdportal",
				Name:      "connects_total",
				Help:      "Connect requests by mode and result",
			},
			[]string{"mode", "result"}, // mode=gateway/direct, result=ok/invalid/denied/error
		),
		GatewayTokensTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rdportal",
				Name:      "gateway_tokens_total",
				Help:      "Gateway URLs handed out, by whether a token was embedded",
			},
			[]string{"outcome"}, // outcome=issued/fallback
		),
		ProbesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rdportal",
				Name:      "probes_total",
				Help:      "Reachability probes by result",
			},
			[]string{"result"}, // result=reachable/unreachable
		),
		DisconnectsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "rdportal",
				Name:      "disconnects_total",
				Help:      "Sessions removed through the API",
			},
		),
		RateLimitedTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rdportal",
				Name:      "rate_limited_total",
				Help:      "Requests rejected with 429, by route",
			},
			[]string{"route"},
		),
	}
}

// SessionCounter reports how many sessions are stored.
type SessionCounter interface {
	SessionCount(ctx context.Context) (int, error)
}

// RegisterSessionGauge exposes the stored session count as
// rdportal_stored_sessions, read at scrape time.
func RegisterSessionGauge(reg prometheus.Registerer, counter SessionCounter) {
	promauto.With(reg).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "rdportal",
			Name:      "stored_sessions",
			Help:      "Number of sessions in the registry, including aged-out ones",
		},
		func() float64 {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			n, err := counter.SessionCount(ctx)
			if err != nil {
				return -1
			}
			return float64(n)
		},
	)
}
