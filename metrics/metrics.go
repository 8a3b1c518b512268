package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SongPlays counts play events logged through the ranking engine.
	SongPlays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "noddymix_song_plays_total",
		Help: "Total number of song play events logged.",
	})

	// ActivitiesRecorded counts activities appended to the stream.
	ActivitiesRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "noddymix_activities_recorded_total",
		Help: "Total number of activities recorded.",
	})

	// ActivityPublishFailures counts best-effort fanout publishes that
	// failed. The activities themselves are still stored.
	ActivityPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "noddymix_activity_publish_failures_total",
		Help: "Total number of failed realtime activity publishes.",
	})

	// Follows counts follow edges created.
	Follows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "noddymix_follows_total",
		Help: "Total number of follow relationships created.",
	})

	// RankRebuilds counts full rebuilds of the song rank cache.
	RankRebuilds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "noddymix_rank_rebuilds_total",
		Help: "Total number of song rank cache rebuilds.",
	})
)

// Handler returns the HTTP handler exposing the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
