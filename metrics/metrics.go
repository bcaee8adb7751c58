package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Счётчики движка. Регистрируются в default-реестре при импорте пакета.
var (
	MatchesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tournament_matches_completed_total",
		Help: "Number of matches driven to a completed state.",
	})

	BracketsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tournament_brackets_generated_total",
		Help: "Number of bracket generations.",
	})

	PrizesDistributed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tournament_prizes_distributed_total",
		Help: "Number of successful prize distributions.",
	})

	PrizesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tournament_prizes_failed_total",
		Help: "Number of failed prize distribution attempts.",
	})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tournament_leaderboard_cache_hits_total",
		Help: "Leaderboard cache hits.",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tournament_leaderboard_cache_misses_total",
		Help: "Leaderboard cache misses.",
	})
)

// Handler отдаёт /metrics в формате Prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}
