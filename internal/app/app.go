package app

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/meetbot/internal/browser"
	"github.com/hitoshi/meetbot/internal/capture"
	"github.com/hitoshi/meetbot/internal/config"
	"github.com/hitoshi/meetbot/internal/database"
	"github.com/hitoshi/meetbot/internal/handler"
	"github.com/hitoshi/meetbot/internal/logger"
	"github.com/hitoshi/meetbot/internal/meeting"
	"github.com/hitoshi/meetbot/internal/metrics"
	"github.com/hitoshi/meetbot/internal/model"
	"github.com/hitoshi/meetbot/internal/repository"
	"github.com/hitoshi/meetbot/internal/scheduler"
	"github.com/hitoshi/meetbot/internal/security"
	"github.com/hitoshi/meetbot/internal/supervisor"
	"github.com/hitoshi/meetbot/internal/transcribe"
	"github.com/hitoshi/meetbot/internal/worker/cleanup"
	"github.com/hitoshi/meetbot/internal/worker/sweep"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandScheduler:
		return runScheduler(cfg)
	case CommandJoin:
		return runJoin(cfg, args[1:])
	case CommandSweep:
		return runSweep(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runScheduler(cfg)
	}
}

// runScheduler はスケジューラモードで起動する。
// DB接続を開き、実行予定イベントのポーリングとワーカープロセスの起動、
// 放置クレームの掃除、運用系HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
// 起動済みのワーカープロセスはシャットダウン後も会議を継続する。
func runScheduler(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	eventRepo := repository.NewPostgresEventRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. ワーカープロセス起動機の初期化
	launcher, err := supervisor.NewLauncher(cfg.WorkerBin, "", cfg.LaunchGrace, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create worker launcher: %w", err)
	}

	// 5. スケジューラの初期化
	sched := scheduler.NewScheduler(
		eventRepo, launcher, slog.Default(), collector,
		cfg.TriggerWindow, cfg.BotName, cfg.MaxConcurrentMeetings,
	)

	// 6. 掃除ジョブの初期化
	sweepJob := sweep.NewSweepJob(eventRepo, slog.Default(), collector)
	sweepJob.StaleAfter = cfg.ClaimStaleAfter

	// 7. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(db, slog.Default())

	// 8. 運用系HTTPサーバーの構築
	router := handler.NewRouter(&handler.RouterDeps{
		HealthChecker:  db,
		MetricsHandler: metrics.Handler(registry),
		Logger:         slog.Default(),
	})
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down scheduler...")
		cancel()
	}()

	go func() {
		slog.Info("ops server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	// 掃除ジョブをバックグラウンドで起動
	go sweepJob.Start(ctx, cfg.SweepInterval)

	// クリーンアップジョブを日次でバックグラウンド実行
	go func() {
		// 起動直後に1回実行
		if err := cleanupJob.Run(ctx); err != nil {
			slog.Error("cleanup job failed", slog.String("error", err.Error()))
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := cleanupJob.Run(ctx); err != nil {
					slog.Error("cleanup job failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	slog.Info("scheduler starting",
		slog.Duration("poll_interval", cfg.PollInterval),
		slog.Duration("trigger_window", cfg.TriggerWindow),
		slog.Int("max_concurrent", cfg.MaxConcurrentMeetings),
	)

	// スケジューラをメインgoroutineで実行（ブロッキング）
	sched.Start(ctx, cfg.PollInterval)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("scheduler stopped gracefully")
	return nil
}

// joinFlags はjoinサブコマンドのフラグ。
type joinFlags struct {
	link    string
	name    string
	email   string
	eventID string
}

// parseJoinFlags はjoinサブコマンドの引数を解析する。
func parseJoinFlags(args []string) (*joinFlags, error) {
	fs := flag.NewFlagSet("join", flag.ContinueOnError)
	f := &joinFlags{}
	fs.StringVar(&f.link, "link", "", "会議リンク（必須）")
	fs.StringVar(&f.name, "name", "", "会議に表示するボット名")
	fs.StringVar(&f.email, "email", "", "イベント所有者のメールアドレス")
	fs.StringVar(&f.eventID, "event-id", "", "ステータス報告先のイベントID")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if f.link == "" {
		return nil, fmt.Errorf("-link は必須です")
	}
	return f, nil
}

// runJoin は会議参加ワーカーモードで起動する。
// 1つの会議に参加し、終了とともにプロセスも終了する。
// -event-id が指定された場合はDBへステータスを報告し、
// 未指定の場合はスタンドアロンモードで動作する。
// シグナル受信時は会議を退出して後処理へ進む。
func runJoin(cfg *config.Config, args []string) error {
	flags, err := parseJoinFlags(args)
	if err != nil {
		return err
	}

	if err := security.NewLinkGuard().ValidateMeetingLink(flags.link); err != nil {
		return fmt.Errorf("invalid meeting link: %w", err)
	}

	job, err := model.NewMeetingJob(flags.eventID, flags.email, flags.link, flags.name)
	if err != nil {
		return fmt.Errorf("invalid join arguments: %w", err)
	}
	if job.DisplayName == model.DefaultDisplayName && cfg.BotName != "" {
		job.DisplayName = cfg.BotName
	}

	// ステータス報告先の構築。スタンドアロンモードではDBに接続しない。
	var reporter meeting.StatusReporter = meeting.NopStatusReporter{}
	if !job.Standalone() {
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		if err := db.Ping(); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		eventRepo := repository.NewPostgresEventRepo(db)

		// 報告先イベントの存在確認。参加前に検出できる設定ミスは
		// 会議に参加してから気づくより起動時に失敗させる。
		event, err := eventRepo.FindByID(context.Background(), job.EventID)
		if err != nil {
			return fmt.Errorf("failed to look up event: %w", err)
		}
		if event == nil {
			return model.NewEventNotFoundError(job.EventID)
		}

		reporter = meeting.NewRepoStatusReporter(eventRepo, slog.Default())

		// イベント所有者の存在確認。見つからなくても参加は継続する。
		if job.UserEmail != "" {
			owner, err := repository.NewPostgresUserRepo(db).FindByEmail(context.Background(), job.UserEmail)
			if err != nil {
				slog.Warn("event owner lookup failed", slog.String("error", err.Error()))
			} else if owner == nil {
				slog.Warn("event owner not found", slog.String("user_email", job.UserEmail))
			} else {
				slog.Info("joining on behalf of user",
					slog.String("user_email", owner.Email),
					slog.String("user_name", owner.Name),
				)
			}
		}
	}

	// ケイパビリティの構築
	browserCap := browser.NewChromeCapability(
		cfg.ChromePath, cfg.BrowserProfileDir, slog.Default(),
	)
	captureCap := capture.NewFFmpegCapability("", "", slog.Default())

	var pipeline *transcribe.Pipeline
	if cfg.STTAPIURL != "" {
		httpClient := &http.Client{Timeout: 5 * time.Minute}
		pipeline = transcribe.NewPipeline(
			transcribe.NewSTTClient(httpClient, slog.Default(), cfg.STTAPIURL),
			transcribe.NewSummarizeClient(httpClient, slog.Default(), cfg.SummarizeAPIURL),
			slog.Default(),
		)
	}

	runner := meeting.NewRunner(
		browserCap, captureCap, pipeline, reporter, slog.Default(),
		meeting.RunnerConfig{
			PreviewTimeout:      cfg.PreviewTimeout,
			JoinTimeout:         cfg.JoinTimeout,
			MeetingPollInterval: cfg.MeetingPollInterval,
			MeetingMaxDuration:  cfg.MeetingMaxDuration,
			RecordingsDir:       cfg.RecordingsDir,
		},
	)

	// シグナル受信で会議を退出し後処理へ進む
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("join worker starting",
		slog.String("event_id", job.EventID),
		slog.String("meeting_link", job.MeetingLink),
	)

	if err := runner.Run(ctx, job); err != nil {
		return fmt.Errorf("join worker failed: %w", err)
	}

	slog.Info("join worker finished")
	return nil
}

// runSweep は放置クレームの掃除を1回だけ実行する。
// cronからの定期実行を想定した単発バッチモード。
func runSweep(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sweepJob := sweep.NewSweepJob(repository.NewPostgresEventRepo(db), slog.Default(), nil)
	sweepJob.StaleAfter = cfg.ClaimStaleAfter

	if err := sweepJob.Run(context.Background()); err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, err := database.SchemaVersion(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
