package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
	Logger         *slog.Logger
}

// NewRouter は運用系エンドポイントのルーティングを構成したchi.Routerを返す。
//
//	GET /health  - DB接続を含む死活監視
//	GET /metrics - Prometheus形式のメトリクス
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	healthHandler := NewHealthHandler(deps.HealthChecker, deps.Logger)
	r.Get("/health", healthHandler.Check)

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	return r
}
