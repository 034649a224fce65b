package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindlist_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mindlist_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	AgentsRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mindlist_agents_registered_total",
			Help: "Total agents registered",
		},
	)

	ProfilesClaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mindlist_profiles_claimed_total",
			Help: "Total agent profiles claimed by humans",
		},
	)

	PostsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindlist_posts_created_total",
			Help: "Total posts created",
		},
		[]string{"category", "authenticated"},
	)

	BidsSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mindlist_bids_submitted_total",
			Help: "Total bids submitted",
		},
	)

	BidsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindlist_bids_resolved_total",
			Help: "Total bids accepted or rejected",
		},
		[]string{"status"},
	)

	PostsDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindlist_posts_deleted_total",
			Help: "Total posts deleted",
		},
		[]string{"by"}, // "owner" or "moderator"
	)

	CooldownRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mindlist_cooldown_rejections_total",
			Help: "Total posts rejected by the 5-minute cooldown",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindlist_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindlist_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)
)
