package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hayaoshi/internal/security"
)

// RegisterRoutes wires every endpoint onto mux. Player endpoints resolve the
// player first; answers are rate limited per client.
func RegisterRoutes(mux *http.ServeMux, mw *Middleware, game *GameHandler, stats *StatsHandler, limiter *security.RateLimiter) {
	player := func(h http.HandlerFunc) http.Handler {
		return mw.ResolvePlayer(h)
	}

	mux.HandleFunc("GET /healthz", Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("GET /api/me", player(stats.GetMe))
	mux.Handle("GET /api/rewards", http.HandlerFunc(stats.GetRewards))

	mux.Handle("POST /api/game/start", player(game.StartGame))
	mux.Handle("GET /api/game", player(game.GetGame))
	mux.Handle("POST /api/game/answer", limiter.Limit(player(game.SubmitAnswer)))
	mux.Handle("POST /api/game/advance", player(game.AdvanceGame))

	mux.Handle("GET /api/history", player(stats.GetHistory))
	mux.Handle("GET /api/stats", player(stats.GetStats))
	mux.Handle("GET /api/word-stats", player(stats.GetWordStats))
}
