package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors for the gateway. Registered once on the default
// registry; /metrics serves them through promhttp.

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aigateway",
		Name:      "requests_total",
		Help:      "Client requests by route and status code.",
	}, []string{"route", "status"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "aigateway",
		Name:      "request_duration_seconds",
		Help:      "Client request latency by route.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"route"})

	UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "aigateway",
		Name:      "upstream_duration_seconds",
		Help:      "Upstream call latency by provider type.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"provider"})

	UpstreamFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aigateway",
		Name:      "upstream_failures_total",
		Help:      "Upstream failures by provider type and error kind.",
	}, []string{"provider", "kind"})

	TokensRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aigateway",
		Name:      "tokens_relayed_total",
		Help:      "Tokens relayed by provider type and direction.",
	}, []string{"provider", "direction"})

	RateLimitDelays = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "aigateway",
		Name:      "rate_limit_delay_seconds",
		Help:      "Delay the outbound rate limiter imposed per request.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 15, 60},
	})

	AccountsAvailable = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "aigateway",
		Name:      "accounts_available",
		Help:      "Accounts per provider the health monitor still allows.",
	}, []string{"provider"})

	StreamsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "aigateway",
		Name:      "streams_active",
		Help:      "Relay streams currently in flight.",
	})
)

// ObserveRelay records the usage side of one finished relay.
func ObserveRelay(provider string, inputTokens, outputTokens int64) {
	TokensRelayed.WithLabelValues(provider, "input").Add(float64(inputTokens))
	TokensRelayed.WithLabelValues(provider, "output").Add(float64(outputTokens))
}
