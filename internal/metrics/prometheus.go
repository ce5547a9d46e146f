package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	AdsFetched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ads_fetched_total",
			Help: "Total number of ads fetched from the backend",
		},
	)

	StaleResultsDiscarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stale_results_discarded_total",
			Help: "Total number of async completions discarded because the session moved on",
		},
	)

	VotesSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedback_votes_submitted_total",
			Help: "Total number of feedback votes sent to the backend",
		},
		[]string{"vote"},
	)

	DuplicateVotes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "feedback_duplicate_votes_total",
			Help: "Total number of votes rejected by the backend as duplicates",
		},
	)

	Rotations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ad_rotations_total",
			Help: "Total number of timed rotations to a new ad",
		},
	)

	AdsBlocked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ads_blocked_total",
			Help: "Total number of ads added to the global block list",
		},
	)

	FeedbackEventsPublished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "feedback_events_published_total",
			Help: "Total number of feedback events published to Kafka",
		},
	)

	FeedbackEventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "feedback_events_dropped_total",
			Help: "Total number of feedback events dropped because the queue was full",
		},
	)

	ResponseTime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status_code"},
	)
)

func init() {
	prometheus.MustRegister(AdsFetched)
	prometheus.MustRegister(StaleResultsDiscarded)
	prometheus.MustRegister(VotesSubmitted)
	prometheus.MustRegister(DuplicateVotes)
	prometheus.MustRegister(Rotations)
	prometheus.MustRegister(AdsBlocked)
	prometheus.MustRegister(FeedbackEventsPublished)
	prometheus.MustRegister(FeedbackEventsDropped)
	prometheus.MustRegister(ResponseTime)
}
