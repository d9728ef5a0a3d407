// Package capture は会議音声のループバック録音ケイパビリティを提供する。
// ffmpegを子プロセスとして起動し、システム音声をwavファイルへ記録する。
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/hitoshi/meetbot/internal/model"
)

// Capability は音声録音ケイパビリティ。
// 利用不可の場合でも会議参加自体は継続する（録音なしの縮退運転）。
type Capability interface {
	// Available はケイパビリティが利用可能か検査する。
	Available() error
	// Start は録音を開始しRecordingを返す。
	Start(ctx context.Context, outPath string) (Recording, error)
}

// Recording は進行中の録音。
type Recording interface {
	// Stop は録音を停止し、書き出されたファイルのパスを返す。
	Stop() (string, error)
}

// stopGrace はffmpegへの停止要求後、正常終了を待つ上限。
const stopGrace = 10 * time.Second

// FFmpegCapability はffmpegによるCapability実装。
type FFmpegCapability struct {
	ffmpegPath string
	device     string
	logger     *slog.Logger
}

// NewFFmpegCapability はFFmpegCapabilityを生成する。
// deviceが空の場合はOSごとの既定ループバックデバイスを使用する。
func NewFFmpegCapability(ffmpegPath, device string, logger *slog.Logger) *FFmpegCapability {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpegCapability{
		ffmpegPath: ffmpegPath,
		device:     device,
		logger:     logger,
	}
}

// Available はffmpeg実行ファイルの存在を検査する。
func (c *FFmpegCapability) Available() error {
	if _, err := exec.LookPath(c.ffmpegPath); err != nil {
		return model.NewCapabilityUnavailableError("音声録音", "ffmpegが見つかりません")
	}
	return nil
}

// inputArgs はOSごとのループバック入力指定を組み立てる。
func (c *FFmpegCapability) inputArgs() []string {
	device := c.device
	switch runtime.GOOS {
	case "darwin":
		if device == "" {
			device = ":0"
		}
		return []string{"-f", "avfoundation", "-i", device}
	case "windows":
		if device == "" {
			device = "audio=Stereo Mix"
		}
		return []string{"-f", "dshow", "-i", device}
	default:
		if device == "" {
			device = "default"
		}
		return []string{"-f", "pulse", "-i", device}
	}
}

// Start はffmpegを起動しoutPathへの録音を開始する。
// 出力ディレクトリは存在しなければ作成する。
func (c *FFmpegCapability) Start(ctx context.Context, outPath string) (Recording, error) {
	if err := c.Available(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, fmt.Errorf("録音ディレクトリの作成に失敗しました: %w", err)
	}

	args := append([]string{"-y", "-loglevel", "error"}, c.inputArgs()...)
	args = append(args, "-ac", "2", "-ar", "44100", outPath)

	// 会議終了までプロセスが生き続けるため、ctxには紐付けない。
	// 停止はRecording.Stopの明示的なシグナル送信で行う。
	cmd := exec.Command(c.ffmpegPath, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("録音プロセスの起動に失敗しました: %w", err)
	}

	c.logger.Info("録音を開始しました",
		slog.String("out_path", outPath),
		slog.Int("pid", cmd.Process.Pid),
	)

	rec := &ffmpegRecording{
		cmd:     cmd,
		outPath: outPath,
		logger:  c.logger,
		done:    make(chan error, 1),
	}
	go func() { rec.done <- cmd.Wait() }()
	return rec, nil
}

// ffmpegRecording は進行中のffmpeg録音。
type ffmpegRecording struct {
	cmd     *exec.Cmd
	outPath string
	logger  *slog.Logger
	done    chan error
}

// Stop はffmpegへ割り込みを送り正常終了を待つ。
// 正常終了しない場合は強制停止する（wavヘッダが壊れる可能性があるため
// あくまで最終手段）。ファイルが書き出されていればパスを返す。
func (r *ffmpegRecording) Stop() (string, error) {
	if err := interruptProcess(r.cmd); err != nil {
		r.logger.Warn("録音プロセスへの停止要求に失敗しました", slog.String("error", err.Error()))
	}

	select {
	case <-r.done:
	case <-time.After(stopGrace):
		r.logger.Warn("録音プロセスが停止しないため強制終了します", slog.Int("pid", r.cmd.Process.Pid))
		_ = r.cmd.Process.Kill()
		<-r.done
	}

	info, err := os.Stat(r.outPath)
	if err != nil {
		return "", fmt.Errorf("録音ファイルが見つかりません: %w", err)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("録音ファイルが空です: %s", r.outPath)
	}

	r.logger.Info("録音を停止しました",
		slog.String("out_path", r.outPath),
		slog.Int64("size_bytes", info.Size()),
	)
	return r.outPath, nil
}
