// Package handler は運用系HTTPエンドポイントを提供する。
// スケジューラプロセスの死活監視とメトリクス公開のみを担い、
// イベントのCRUDは外部のカレンダー連携サービス側が持つ。
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// HealthChecker はヘルスチェックの依存先を抽象化するインターフェース。
// *sql.DB を受け付けることができる。
type HealthChecker interface {
	Ping() error
}

// HealthHandler はヘルスチェックエンドポイントのハンドラー。
type HealthHandler struct {
	checker HealthChecker
	logger  *slog.Logger
}

// NewHealthHandler はHealthHandler の新しいインスタンスを生成する。
func NewHealthHandler(checker HealthChecker, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{
		checker: checker,
		logger:  logger,
	}
}

// healthResponse はヘルスチェックのレスポンスボディ。
type healthResponse struct {
	Status string `json:"status"`
}

// Check はDB接続を検査し、正常なら200、異常なら503を返す。
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if err := h.checker.Ping(); err != nil {
		h.logger.Error("ヘルスチェックに失敗しました",
			slog.String("error", err.Error()),
		)
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(healthResponse{Status: "unavailable"})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(healthResponse{Status: "ok"})
}
