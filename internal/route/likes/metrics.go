package likes

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	likeAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "route_like_attempts_total",
		Help: "Like actions grouped by outcome.",
	}, []string{"result"})

	remoteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "route_like_remote_failures_total",
		Help: "Failed calls to the remote like store grouped by operation.",
	}, []string{"op"})

	syncedRoutes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "route_like_synced_routes",
		Help: "Routes whose count was refreshed by the last successful remote sync.",
	})
)
