// Package metrics provides Prometheus instrumentation for the GlobeTalk
// matchmaking service: match outcomes and latency, penpal ledger activity and
// rate limiter rejections.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MatchAttempts counts match requests, labeled by outcome:
	// "matched", "no_candidates", "conflict" or "error".
	MatchAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globetalk_match_attempts_total",
		Help: "Total number of random match attempts",
	}, []string{"outcome"})

	// MatchCandidates records how many eligible candidates a request saw.
	MatchCandidates = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "globetalk_match_candidates",
		Help:    "Number of eligible candidates per match request",
		Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
	})

	// MatchDuration records the time to find and commit a match.
	MatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "globetalk_match_duration_seconds",
		Help:    "Time from match request to committed match",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})

	// PenpalRequests counts ledger operations by action
	// ("send", "accept", "decline") and result ("ok" or an error class).
	PenpalRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globetalk_penpal_requests_total",
		Help: "Total number of penpal ledger operations",
	}, []string{"action", "result"})

	// RateLimited counts requests rejected by a rate limit rule.
	RateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globetalk_rate_limited_total",
		Help: "Total number of requests rejected by rate limiting",
	}, []string{"rule"})
)

func init() {
	prometheus.MustRegister(
		MatchAttempts,
		MatchCandidates,
		MatchDuration,
		PenpalRequests,
		RateLimited,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
