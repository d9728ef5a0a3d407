package meeting

import (
	"context"
	"log/slog"

	"github.com/hitoshi/meetbot/internal/model"
	"github.com/hitoshi/meetbot/internal/repository"
)

// StatusReporter は会議イベントのステータスを共有ストアへ報告する。
// 報告は冪等でなければならない（同じ値の再報告は安全）。
type StatusReporter interface {
	Report(ctx context.Context, eventID string, status model.EventStatus) error
}

// RepoStatusReporter はEventRepositoryに基づくStatusReporter実装。
type RepoStatusReporter struct {
	eventRepo repository.EventRepository
	logger    *slog.Logger
}

// NewRepoStatusReporter はRepoStatusReporter の新しいインスタンスを生成する。
func NewRepoStatusReporter(eventRepo repository.EventRepository, logger *slog.Logger) *RepoStatusReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RepoStatusReporter{
		eventRepo: eventRepo,
		logger:    logger,
	}
}

// Report はイベントのステータスを設定する。
// 対象イベントが存在しない場合や、すでに終端状態のため更新が
// 拒否された場合は警告ログのみでエラーにしない
// （掃除ジョブとの競合やイベント削除後の報告を許容する）。
func (r *RepoStatusReporter) Report(ctx context.Context, eventID string, status model.EventStatus) error {
	updated, err := r.eventRepo.SetEventStatus(ctx, eventID, status)
	if err != nil {
		return model.NewStatusWriteFailedError(err.Error())
	}
	if !updated {
		r.logger.Warn("報告先のイベントが存在しないか、すでに終端状態です",
			slog.String("event_id", eventID),
			slog.String("status", string(status)),
		)
		return nil
	}
	r.logger.Info("イベントステータスを報告しました",
		slog.String("event_id", eventID),
		slog.String("status", string(status)),
	)
	return nil
}

// NopStatusReporter はスタンドアロンモード用の何もしないStatusReporter。
type NopStatusReporter struct{}

// Report は何もせずnilを返す。
func (NopStatusReporter) Report(ctx context.Context, eventID string, status model.EventStatus) error {
	return nil
}
