package meeting

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/hitoshi/meetbot/internal/browser"
	"github.com/hitoshi/meetbot/internal/capture"
	"github.com/hitoshi/meetbot/internal/model"
	"github.com/hitoshi/meetbot/internal/transcribe"
)

// プレビュー画面・参加画面のUIテキスト。
// Google Meetの英語UIに依存する。UI変更時はここを更新する。
const (
	dismissMediaButtonText = "Continue without microphone and camera"
	nameFieldPlaceholder   = "Your name"
	joinButtonText         = "Join now"
	askToJoinButtonText    = "Ask to join"
)

// RunnerConfig はRunnerの動作設定。
type RunnerConfig struct {
	PreviewTimeout      time.Duration // プレビュー画面操作の上限
	JoinTimeout         time.Duration // 参加操作の上限
	MeetingPollInterval time.Duration // 在席監視の間隔
	MeetingMaxDuration  time.Duration // 会議在席時間の上限
	RecordingsDir       string        // 録音ファイルの出力先
}

// Runner は1つの会議参加ジョブを最初から最後まで進行させる。
// 1プロセスにつき1インスタンス。エラーはすべてfailed終端へ収束させ、
// ステータス報告を経てから呼び出し元へ返す。
type Runner struct {
	browser  browser.Capability
	capture  capture.Capability // nilの場合は録音なしで進行する
	pipeline *transcribe.Pipeline
	reporter StatusReporter
	logger   *slog.Logger
	config   RunnerConfig

	stage Stage
	now   func() time.Time
}

// NewRunner はRunner の新しいインスタンスを生成する。
func NewRunner(
	browserCap browser.Capability,
	captureCap capture.Capability,
	pipeline *transcribe.Pipeline,
	reporter StatusReporter,
	logger *slog.Logger,
	config RunnerConfig,
) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if reporter == nil {
		reporter = NopStatusReporter{}
	}
	if config.PreviewTimeout <= 0 {
		config.PreviewTimeout = 3 * time.Minute
	}
	if config.JoinTimeout <= 0 {
		config.JoinTimeout = 5 * time.Minute
	}
	if config.MeetingPollInterval <= 0 {
		config.MeetingPollInterval = time.Minute
	}
	if config.MeetingMaxDuration <= 0 {
		config.MeetingMaxDuration = 2 * time.Hour
	}
	if config.RecordingsDir == "" {
		config.RecordingsDir = "recordings"
	}
	return &Runner{
		browser:  browserCap,
		capture:  captureCap,
		pipeline: pipeline,
		reporter: reporter,
		logger:   logger,
		config:   config,
		stage:    StageInit,
		now:      time.Now,
	}
}

// Stage は現在の段階を返す。
func (r *Runner) Stage() Stage {
	return r.stage
}

// advance は段階を遷移させる。不正な遷移はプログラミングエラー。
func (r *Runner) advance(to Stage) error {
	if err := ValidateTransition(r.stage, to); err != nil {
		return err
	}
	r.logger.Info("段階を遷移しました",
		slog.String("from", string(r.stage)),
		slog.String("stage", string(to)),
	)
	r.stage = to
	return nil
}

// fail はfailed終端へ遷移しステータスを報告する。
// 報告の失敗はログに残すのみで元のエラーを優先して返す。
func (r *Runner) fail(ctx context.Context, job *model.MeetingJob, cause error) error {
	r.logger.Error("会議参加ジョブが失敗しました",
		slog.String("event_id", job.EventID),
		slog.String("stage", string(r.stage)),
		slog.String("error", cause.Error()),
	)
	r.stage = StageFailed
	if !job.Standalone() {
		if err := r.reporter.Report(ctx, job.EventID, model.StatusFailed); err != nil {
			r.logger.Error("失敗ステータスの報告に失敗しました",
				slog.String("event_id", job.EventID),
				slog.String("error", err.Error()),
			)
		}
	}
	return cause
}

// Run はジョブを最後まで進行させる。
// 終了時の段階は必ずcompletedまたはfailedのいずれかになる。
func (r *Runner) Run(ctx context.Context, job *model.MeetingJob) error {
	r.logger.Info("会議参加ジョブを開始します",
		slog.String("event_id", job.EventID),
		slog.String("meeting_link", job.MeetingLink),
		slog.String("display_name", job.DisplayName),
	)

	// 必須ケイパビリティの前段検査。会議途中での欠落発覚を防ぐ。
	if err := r.browser.Available(); err != nil {
		return r.fail(ctx, job, err)
	}

	if err := r.advance(StageConnecting); err != nil {
		return r.fail(ctx, job, err)
	}
	session, err := r.browser.Connect(ctx, job.MeetingLink)
	if err != nil {
		return r.fail(ctx, job, err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			r.logger.Warn("ブラウザセッションの終了に失敗しました", slog.String("error", err.Error()))
		}
	}()

	if err := r.advance(StagePreviewing); err != nil {
		return r.fail(ctx, job, err)
	}
	if err := r.runPreview(ctx, session, job.DisplayName); err != nil {
		return r.fail(ctx, job, err)
	}

	if err := r.advance(StageJoining); err != nil {
		return r.fail(ctx, job, err)
	}
	if err := r.runJoin(ctx, session); err != nil {
		return r.fail(ctx, job, err)
	}

	if err := r.advance(StageInMeeting); err != nil {
		return r.fail(ctx, job, err)
	}
	// 参加成立の再表明。スケジューラのクレームと同値のため冪等。
	if !job.Standalone() {
		if err := r.reporter.Report(ctx, job.EventID, model.StatusJoined); err != nil {
			return r.fail(ctx, job, err)
		}
	}

	rec := r.startRecording(ctx, job)
	r.monitorMeeting(ctx, session, job)

	if err := r.advance(StagePostProcessing); err != nil {
		return r.fail(ctx, job, err)
	}
	r.postProcess(ctx, rec)

	if err := r.advance(StageCompleted); err != nil {
		return r.fail(ctx, job, err)
	}
	if !job.Standalone() {
		if err := r.reporter.Report(ctx, job.EventID, model.StatusCompleted); err != nil {
			r.logger.Error("完了ステータスの報告に失敗しました",
				slog.String("event_id", job.EventID),
				slog.String("error", err.Error()),
			)
			return err
		}
	}

	r.logger.Info("会議参加ジョブが完了しました",
		slog.String("event_id", job.EventID),
		slog.Float64("duration_minutes", r.now().Sub(job.StartedAt).Minutes()),
	)
	return nil
}

// runPreview はプレビュー画面を操作する。
// マイク・カメラなし続行ボタンは表示されない構成もあるため任意、
// 表示名の入力は必須とする。
func (r *Runner) runPreview(ctx context.Context, session browser.Session, displayName string) error {
	var mediaDismissed bool
	err := browser.PollUntil(ctx, r.config.PreviewTimeout, browser.DefaultPollInterval, func(ctx context.Context) (bool, error) {
		if !mediaDismissed {
			clicked, err := session.ClickButtonByText(ctx, dismissMediaButtonText)
			if err != nil {
				return false, err
			}
			mediaDismissed = clicked
		}
		typed, err := session.TypeIntoPlaceholder(ctx, nameFieldPlaceholder, displayName)
		if err != nil {
			return false, err
		}
		return typed, nil
	})
	if err != nil {
		if err == browser.ErrPollTimeout {
			return model.NewPreviewTimeoutError()
		}
		return fmt.Errorf("プレビュー画面の操作に失敗しました: %w", err)
	}
	return nil
}

// runJoin は参加ボタンを押下する。
// 主催者の許可が必要な会議は「Ask to join」の押下までを参加成立とみなす。
func (r *Runner) runJoin(ctx context.Context, session browser.Session) error {
	err := browser.PollUntil(ctx, r.config.JoinTimeout, browser.DefaultPollInterval, func(ctx context.Context) (bool, error) {
		clicked, err := session.ClickButtonByText(ctx, joinButtonText)
		if err != nil {
			return false, err
		}
		if clicked {
			return true, nil
		}
		return session.ClickButtonByText(ctx, askToJoinButtonText)
	})
	if err != nil {
		if err == browser.ErrPollTimeout {
			return model.NewJoinTimeoutError()
		}
		return fmt.Errorf("参加操作に失敗しました: %w", err)
	}
	return nil
}

// startRecording は録音を開始する。録音ケイパビリティの欠如や
// 開始失敗は縮退運転としてnilを返し、会議参加自体は継続する。
func (r *Runner) startRecording(ctx context.Context, job *model.MeetingJob) capture.Recording {
	if r.capture == nil {
		return nil
	}
	if err := r.capture.Available(); err != nil {
		r.logger.Warn("録音ケイパビリティが利用できないため録音なしで継続します",
			slog.String("error", err.Error()),
		)
		return nil
	}

	name := job.EventID
	if name == "" {
		name = r.now().Format("20060102-150405")
	}
	outPath := filepath.Join(r.config.RecordingsDir, name+".wav")

	rec, err := r.capture.Start(ctx, outPath)
	if err != nil {
		r.logger.Warn("録音の開始に失敗したため録音なしで継続します",
			slog.String("error", err.Error()),
		)
		return nil
	}
	return rec
}

// monitorMeeting は会議終了を検知するまで在席監視を続ける。
// 終了条件: 会議URLからの離脱、在席時間の上限到達、ctxのキャンセル。
// 監視中の一時的なURL取得失敗は次の周期で再試行する。
func (r *Runner) monitorMeeting(ctx context.Context, session browser.Session, job *model.MeetingJob) {
	deadline := r.now().Add(r.config.MeetingMaxDuration)
	ticker := time.NewTicker(r.config.MeetingPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("シャットダウン要求により会議を退出します",
				slog.String("event_id", job.EventID),
			)
			return
		case <-ticker.C:
		}

		if r.now().After(deadline) {
			r.logger.Warn("在席時間が上限に達したため会議を退出します",
				slog.String("event_id", job.EventID),
				slog.Float64("duration_minutes", r.config.MeetingMaxDuration.Minutes()),
			)
			return
		}

		href, err := session.CurrentLocation(ctx)
		if err != nil {
			r.logger.Warn("現在URLの取得に失敗しました。次の周期で再試行します",
				slog.String("error", err.Error()),
			)
			continue
		}
		if meetingEnded(href, job.MeetingLink) {
			r.logger.Info("会議の終了を検知しました",
				slog.String("event_id", job.EventID),
				slog.String("current_url", href),
			)
			return
		}
	}
}

// postProcess は録音を停止し文字起こし・要約を実行する。
// 会議参加自体は成立しているため、ここでの失敗は
// 警告ログに留めcompletedへの到達を妨げない。
func (r *Runner) postProcess(ctx context.Context, rec capture.Recording) {
	if rec == nil {
		return
	}
	audioPath, err := rec.Stop()
	if err != nil {
		r.logger.Warn("録音の停止に失敗しました", slog.String("error", err.Error()))
		return
	}
	if r.pipeline == nil {
		r.logger.Info("後処理パイプラインが未設定のため録音のみ保存します",
			slog.String("audio_path", audioPath),
		)
		return
	}
	if _, err := r.pipeline.Process(ctx, audioPath); err != nil {
		r.logger.Warn("後処理に失敗しました。録音ファイルは保持されます",
			slog.String("audio_path", audioPath),
			slog.String("error", err.Error()),
		)
	}
}

// meetingCode は会議リンクから会議識別子（パス末尾）を取り出す。
func meetingCode(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return link
	}
	segments := strings.Split(path, "/")
	return segments[len(segments)-1]
}

// meetingEnded は現在URLが会議からの離脱を示しているか判定する。
func meetingEnded(currentURL, meetingLink string) bool {
	return !strings.Contains(currentURL, meetingCode(meetingLink))
}
