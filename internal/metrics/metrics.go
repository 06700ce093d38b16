// Package metrics exposes the server's Prometheus instruments on a
// dedicated listener so operational scrapes stay off the player-facing
// port.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gomoku-server/internal/obslog"
)

var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gomoku_active_connections",
		Help: "Websocket connections currently open.",
	})
	TotalConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gomoku_connections_total",
		Help: "Websocket connections accepted since start.",
	})
	ActiveGames = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gomoku_active_games",
		Help: "Games currently in progress.",
	})
	MovesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gomoku_moves_total",
		Help: "Stones placed across all games.",
	})
	ForfeitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gomoku_forfeits_total",
		Help: "Games decided by forfeit.",
	})
	GamesFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gomoku_games_finished_total",
		Help: "Finished games by result.",
	}, []string{"result"})
	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gomoku_auth_failures_total",
		Help: "Rejected credentials by surface.",
	}, []string{"surface"})
)

// StartServer serves the metrics endpoint on addr in a background
// goroutine. Failure to listen is logged, not fatal.
func StartServer(addr, path string) {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			obslog.L().Error("metrics_server_failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
}
