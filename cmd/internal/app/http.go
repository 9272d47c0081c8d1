package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"nestwatch/cmd/internal/api"
	"nestwatch/cmd/internal/realtime"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerHTTP mounts all routes: liveness, readiness, metrics, the REST
// surface, and the websocket notification endpoint.
func registerHTTP(mux *http.ServeMux, log *slog.Logger, cfg Config, pool *pgxpool.Pool, ws *realtime.WSGateway, h *api.Handler) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.ReadinessRequireStore && pool != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := PingSnapshotDB(ctx, pool, 2*time.Second); err != nil {
				log.Warn("readyz.store.fail", "err", err)
				http.Error(w, "store unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	mux.Handle("GET /metrics", promhttp.Handler())

	h.Register(mux)

	mux.HandleFunc("GET /ws", ws.HandleWS)
}
