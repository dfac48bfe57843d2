package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "challenge_submissions_total",
		Help: "Submission attempts by outcome.",
	}, []string{"result"})

	Finalizations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "challenge_finalizations_total",
		Help: "Finalization attempts by outcome.",
	}, []string{"result"})

	RewardCredits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "challenge_reward_credits_total",
		Help: "Ledger credit requests by tier and outcome.",
	}, []string{"tier", "result"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "challenge_cache_lookups_total",
		Help: "Read-through cache lookups by cache and result.",
	}, []string{"cache", "result"})
)

const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
	ResultNoop     = "noop"
	ResultHit      = "hit"
	ResultMiss     = "miss"
)

func Handler() http.Handler {
	return promhttp.Handler()
}
