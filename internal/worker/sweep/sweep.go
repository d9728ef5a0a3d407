// Package sweep はクレーム済みのまま放置されたイベントの掃除ジョブを提供する。
// ワーカープロセスのクラッシュ等で終端状態に到達しなかったイベントを
// 定期バッチでfailedへ遷移させ、イベントが宙吊りのまま残ることを防ぐ。
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/meetbot/internal/metrics"
	"github.com/hitoshi/meetbot/internal/repository"
)

// SweepJob はクレームから一定時間を超えて終端に到達していない
// イベントをfailedへ遷移させるジョブ。冪等な条件付きUPDATEのため
// 何度実行しても安全。
type SweepJob struct {
	eventRepo  repository.EventRepository
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
	StaleAfter time.Duration // クレームの放置とみなす経過時間（デフォルト: 4時間）
}

// NewSweepJob は新しいSweepJobを生成する。
func NewSweepJob(eventRepo repository.EventRepository, logger *slog.Logger, collector metrics.MetricsCollector) *SweepJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SweepJob{
		eventRepo:  eventRepo,
		logger:     logger,
		metrics:    collector,
		StaleAfter: 4 * time.Hour,
	}
}

// Run は放置されたクレームをfailedへ遷移させる。
// 対象がない場合でもエラーにならない。
func (j *SweepJob) Run(ctx context.Context) error {
	start := time.Now()

	count, err := j.eventRepo.ResetStaleClaims(ctx, j.StaleAfter)
	if err != nil {
		j.logger.Error("放置クレーム掃除ジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Float64("stale_after_hours", j.StaleAfter.Hours()),
		)
		return fmt.Errorf("放置クレーム掃除の実行に失敗: %w", err)
	}

	if j.metrics != nil && count > 0 {
		j.metrics.RecordStaleClaimsReset(count)
	}

	duration := time.Since(start)
	j.logger.Info("放置クレーム掃除ジョブが完了しました",
		slog.Int64("reset_count", count),
		slog.Float64("stale_after_hours", j.StaleAfter.Hours()),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return nil
}

// Start は指定間隔で掃除ジョブを繰り返し実行する。
// 起動直後に1回実行し、以降はintervalごとに実行する。
// ctxのキャンセルで停止する。
func (j *SweepJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	j.logger.Info("放置クレーム掃除ジョブを開始します",
		slog.Float64("interval_minutes", interval.Minutes()),
	)

	if err := j.Run(ctx); err != nil {
		j.logger.Error("掃除ジョブの初回実行に失敗しました", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("放置クレーム掃除ジョブを停止します")
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("掃除ジョブの実行に失敗しました", slog.String("error", err.Error()))
			}
		}
	}
}
