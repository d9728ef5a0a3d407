package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/meetbot/internal/metrics"
	"github.com/hitoshi/meetbot/internal/model"
	"github.com/hitoshi/meetbot/internal/repository"
	"github.com/hitoshi/meetbot/internal/security"
)

// WorkerLauncher はワーカープロセス起動の実行インターフェース。
type WorkerLauncher interface {
	// Launch は指定ジョブのワーカープロセスを起動する。
	// プロセスの起動確認までを責務とし、会議の終了は待たない。
	Launch(ctx context.Context, job *model.MeetingJob) error
}

// Scheduler は参加予定イベントのポーリングと起動制御を行う。
// 30秒間隔のティッカーでクレーム候補イベントを取得し、
// クレーム成功したイベントのみsemaphoreパターンで並列数を制御しながら
// ワーカープロセスを起動する。
type Scheduler struct {
	eventRepo      repository.EventRepository
	launcher       WorkerLauncher
	logger         *slog.Logger
	metrics        metrics.MetricsCollector
	linkGuard      security.LinkGuardService
	window         time.Duration
	loc            *time.Location
	displayName    string
	maxConcurrency int

	now func() time.Time // テスト用に差し替え可能

	// 起動ゴルーチンの並列数を全ティック横断で制御するsemaphore。
	// ティックごとに作り直すと前のティックの起動中ゴルーチンが
	// 数に入らず、上限を超えて並行起動してしまう。
	sem chan struct{}

	// 日時フォーマット不正でスキップ済みのイベントID。
	// 同一イベントの警告ログを1回に抑えるための記録で、再試行はしない。
	skippedMalformed map[string]struct{}

	launches sync.WaitGroup
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// windowが0以下の場合はデフォルト値2分、
// maxConcurrencyが0以下の場合はデフォルト値10を使用する。
func NewScheduler(
	eventRepo repository.EventRepository,
	launcher WorkerLauncher,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
	window time.Duration,
	displayName string,
	maxConcurrency int,
) *Scheduler {
	if window <= 0 {
		window = 2 * time.Minute
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	if displayName == "" {
		displayName = model.DefaultDisplayName
	}
	return &Scheduler{
		eventRepo:        eventRepo,
		launcher:         launcher,
		logger:           logger,
		metrics:          collector,
		linkGuard:        security.NewLinkGuard(),
		window:           window,
		loc:              time.Local,
		displayName:      displayName,
		maxConcurrency:   maxConcurrency,
		sem:              make(chan struct{}, maxConcurrency),
		now:              time.Now,
		skippedMalformed: make(map[string]struct{}),
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
// キャンセル時は実行中のサイクルと起動処理の完了を待ってから戻る。
// 起動済みのワーカープロセスは停止しない（協調的シャットダウン）。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("会議スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("trigger_window", s.window),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("ポーリングサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.launches.Wait()
			s.logger.Info("会議スケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("ポーリングサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce はクレーム候補イベントを1回取得し、起動対象をクレームして
// ワーカープロセスを起動する。1イベントの処理失敗が他イベントの処理を
// 妨げないよう、イベントごとに隔離して処理する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	events, err := s.eventRepo.ListScheduled(ctx)
	if err != nil {
		return err
	}

	if len(events) == 0 {
		return nil
	}

	now := s.now()
	launched := 0

	for _, event := range events {
		if s.processEvent(ctx, event, now) {
			launched++
		}
	}

	if launched > 0 {
		duration := time.Since(start)
		s.logger.Info("ポーリングサイクルが完了しました",
			slog.Int("candidate_count", len(events)),
			slog.Int("launched_count", launched),
			slog.Float64("duration_ms", float64(duration.Milliseconds())),
		)
	}

	return nil
}

// processEvent は1イベントを判定・クレーム・起動する。起動に進んだ場合trueを返す。
// パニックを含むあらゆる失敗をイベント単位で隔離する。
func (s *Scheduler) processEvent(ctx context.Context, event *model.Event, now time.Time) (launchedOut bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("イベント処理中にパニックが発生しました",
				slog.String("event_id", event.ID),
				slog.Any("panic", r),
			)
			launchedOut = false
		}
	}()

	due, err := IsDue(event, now, s.window, s.loc)
	if err != nil {
		// 日時フォーマット不正は恒久スキップ。警告ログは1回だけ出す。
		if _, seen := s.skippedMalformed[event.ID]; !seen {
			s.skippedMalformed[event.ID] = struct{}{}
			if s.metrics != nil {
				s.metrics.RecordMalformedSkip()
			}
			s.logger.Warn("日時フォーマットが不正なイベントをスキップします",
				slog.String("event_id", event.ID),
				slog.String("user_email", event.UserEmail),
				slog.String("date", event.Date),
				slog.String("time", event.Time),
			)
		}
		return false
	}
	if !due {
		return false
	}

	// 会議リンクは外部サービスが書き込む信頼できない入力のため、
	// ブラウザに渡す前に検証する。不正リンクは恒久スキップ。
	if err := s.linkGuard.ValidateMeetingLink(event.MeetingLink); err != nil {
		if _, seen := s.skippedMalformed[event.ID]; !seen {
			s.skippedMalformed[event.ID] = struct{}{}
			if s.metrics != nil {
				s.metrics.RecordMalformedSkip()
			}
			s.logger.Warn("会議リンクが不正なイベントをスキップします",
				slog.String("event_id", event.ID),
				slog.String("meeting_link", event.MeetingLink),
				slog.String("error", err.Error()),
			)
		}
		return false
	}

	// クレームしてから起動する。クレームに失敗した場合
	// （前のティックや並行スケジューラが先行）は何もしない。
	claimed, err := s.eventRepo.ClaimEvent(ctx, event.ID)
	if err != nil {
		s.logger.Error("イベントのクレームに失敗しました",
			slog.String("event_id", event.ID),
			slog.String("error", err.Error()),
		)
		return false
	}
	if !claimed {
		if s.metrics != nil {
			s.metrics.RecordClaimConflict()
		}
		s.logger.Info("イベントは既にクレーム済みのためスキップします",
			slog.String("event_id", event.ID),
		)
		return false
	}

	if s.metrics != nil {
		s.metrics.RecordClaim()
	}
	s.logger.Info("イベントをクレームしました",
		slog.String("event_id", event.ID),
		slog.String("user_email", event.UserEmail),
		slog.String("title", event.Title),
		slog.String("meeting_link", event.MeetingLink),
	)

	job, err := model.NewMeetingJob(event.ID, event.UserEmail, event.MeetingLink, s.displayName)
	if err != nil {
		// クレーム済みだが起動できない。scheduledに戻して次のティックに委ねる。
		s.release(ctx, event.ID)
		s.logger.Error("ジョブの構築に失敗しました",
			slog.String("event_id", event.ID),
			slog.String("error", err.Error()),
		)
		return false
	}

	s.launches.Add(1)
	s.sem <- struct{}{} // semaphore取得（空きが出るまでブロック）

	go func() {
		defer s.launches.Done()
		defer func() { <-s.sem }() // semaphore解放

		launchStart := time.Now()
		if err := s.launcher.Launch(ctx, job); err != nil {
			if s.metrics != nil {
				s.metrics.RecordLaunchFailure()
			}
			s.logger.Error("ワーカープロセスの起動に失敗しました",
				slog.String("event_id", event.ID),
				slog.String("meeting_link", event.MeetingLink),
				slog.String("error", err.Error()),
			)
			// 起動失敗はscheduledに戻し、後続のティックで再試行させる。
			s.release(ctx, event.ID)
			return
		}
		if s.metrics != nil {
			s.metrics.RecordLaunch()
			s.metrics.RecordLaunchLatency(time.Since(launchStart))
		}
		s.logger.Info("ワーカープロセスを起動しました",
			slog.String("event_id", event.ID),
			slog.String("meeting_link", event.MeetingLink),
		)
	}()

	return true
}

// release はクレームをscheduledに戻す。失敗はログに残すだけで伝播しない。
func (s *Scheduler) release(ctx context.Context, eventID string) {
	if err := s.eventRepo.ReleaseEvent(ctx, eventID); err != nil {
		s.logger.Error("イベントの解放に失敗しました",
			slog.String("event_id", eventID),
			slog.String("error", err.Error()),
		)
	}
}
