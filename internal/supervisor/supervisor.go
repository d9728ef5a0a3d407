// Package supervisor はワーカープロセスの起動と生存確認を提供する。
// UI自動化のクラッシュがスケジューラ本体に波及しないよう、
// 会議1件ごとに完全に分離されたOSプロセスを起動する。
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/meetbot/internal/model"
)

// launchResult は起動したワーカープロセスの診断情報を保持する。
type launchResult struct {
	PID     int
	LogPath string
}

// Launcher はワーカープロセスを起動するプロセススーパーバイザー。
// 起動後の生存確認までを責務とし、定常運用では会議の終了を待たない
// （fire-and-forget）。終端ステータスの書き込みはワーカー自身が行う。
type Launcher struct {
	workerBin string
	logDir    string
	grace     time.Duration
	logger    *slog.Logger

	// Wait をtrueにすると診断モードとなり、ワーカープロセスの
	// 終了まで待機して終了コードを検査する。
	Wait bool
}

// NewLauncher はLauncherを生成する。
// workerBinが空の場合は実行中のバイナリ自身を使用する。
// graceが0以下の場合はデフォルト値2秒を使用する。
func NewLauncher(workerBin, logDir string, grace time.Duration, logger *slog.Logger) (*Launcher, error) {
	if workerBin == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("実行バイナリのパス取得に失敗しました: %w", err)
		}
		workerBin = self
	}
	if logDir == "" {
		logDir = os.TempDir()
	}
	if grace <= 0 {
		grace = 2 * time.Second
	}
	return &Launcher{
		workerBin: workerBin,
		logDir:    logDir,
		grace:     grace,
		logger:    logger,
	}, nil
}

// Launch は指定ジョブのワーカープロセスを起動する。
// 起動後、猶予時間内にプロセスが終了した場合は起動失敗として扱い、
// キャプチャした出力の末尾を含むエラーを返す。
func (l *Launcher) Launch(ctx context.Context, job *model.MeetingJob) error {
	args := []string{"join", "-link", job.MeetingLink, "-name", job.DisplayName}
	if job.UserEmail != "" {
		args = append(args, "-email", job.UserEmail)
	}
	if job.EventID != "" {
		args = append(args, "-event-id", job.EventID)
	}

	logName := job.EventID
	if logName == "" {
		logName = uuid.NewString()
	}
	if err := os.MkdirAll(l.logDir, 0o755); err != nil {
		return fmt.Errorf("ワーカーログディレクトリの作成に失敗しました: %w", err)
	}
	logPath := filepath.Join(l.logDir, "meetbot-worker-"+logName+".log")

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("ワーカーログファイルの作成に失敗しました: %w", err)
	}

	// スケジューラのコンテキストには紐付けない。スケジューラの
	// シャットダウンで進行中の会議を道連れにしないため。
	cmd := exec.Command(l.workerBin, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	configureWorkerProcess(cmd)

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return model.NewLaunchFailedError(err.Error())
	}

	result := launchResult{PID: cmd.Process.Pid, LogPath: logPath}

	// プロセスの回収はここで行う（ゾンビ化防止）。ログファイルも
	// プロセス終了時に閉じる。
	waitCh := make(chan error, 1)
	go func() {
		waitCh <- cmd.Wait()
		_ = logFile.Close()
	}()

	if l.Wait {
		// 診断モード: 会議の終了まで待つ
		err := <-waitCh
		if err != nil {
			return fmt.Errorf("ワーカープロセスが異常終了しました (pid=%d): %w\n%s",
				result.PID, err, tailFile(logPath, 2048))
		}
		l.logger.Info("ワーカープロセスが正常終了しました",
			slog.Int("pid", result.PID),
			slog.String("event_id", job.EventID),
		)
		return nil
	}

	// 生存確認: 猶予時間内に終了したプロセスは起動失敗として扱う
	select {
	case err := <-waitCh:
		return model.NewLaunchFailedError(fmt.Sprintf("起動直後に終了しました (pid=%d, err=%v): %s",
			result.PID, err, tailFile(logPath, 2048)))
	case <-time.After(l.grace):
	}

	l.logger.Info("ワーカープロセスの起動を確認しました",
		slog.Int("pid", result.PID),
		slog.String("event_id", job.EventID),
		slog.String("meeting_link", job.MeetingLink),
		slog.String("log_path", result.LogPath),
	)
	return nil
}

// tailFile はファイル末尾の最大maxBytesバイトを返す。診断出力用。
func tailFile(path string, maxBytes int64) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	if int64(len(data)) > maxBytes {
		data = data[int64(len(data))-maxBytes:]
	}
	return string(data)
}
