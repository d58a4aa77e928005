package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "accord_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "accord_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	GatewaySessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "accord_gateway_sessions_active",
		Help: "Number of live gateway sessions",
	})

	GatewayEventsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "accord_gateway_events_delivered_total",
		Help: "Events delivered to gateway sessions after filtering",
	})

	GatewaySubscribersDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "accord_gateway_subscribers_dropped_total",
		Help: "Gateway sessions dropped from the event bus for falling behind",
	})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "accord_events_published_total",
		Help: "Domain events published to the bus",
	}, []string{"type"})

	VoiceJoinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "accord_voice_joins_total",
		Help: "Voice channel joins",
	}, []string{"backend"})

	VoiceStatesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "accord_voice_states_active",
		Help: "Users currently in voice channels",
	})

	SfuNodesOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "accord_sfu_nodes_online",
		Help: "SFU nodes currently marked online",
	})

	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "accord_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})
)
