package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Pipeline は録音後処理のパイプライン。
// 文字起こし・要約・結果ファイルの書き出しを順に実行する。
// 要約APIが使えない場合は文字起こし結果をそのまま保存する（縮退運転）。
type Pipeline struct {
	stt       *STTClient
	summarize *SummarizeClient
	logger    *slog.Logger
}

// NewPipeline はPipeline の新しいインスタンスを生成する。
func NewPipeline(stt *STTClient, summarize *SummarizeClient, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		stt:       stt,
		summarize: summarize,
		logger:    logger,
	}
}

// SummaryPath は音声ファイルに対する要約ファイルのパスを返す。
// 録音ファイルと同じディレクトリに <音声ファイル名>_summary.txt として配置する。
func SummaryPath(audioPath string) string {
	base := strings.TrimSuffix(audioPath, ".wav")
	return base + "_summary.txt"
}

// Process は音声ファイルを文字起こし・要約し、結果ファイルのパスを返す。
// 要約の失敗は文字起こし結果の保存で代替し、エラーにしない。
// 文字起こし自体の失敗はエラーとして返す。
func (p *Pipeline) Process(ctx context.Context, audioPath string) (string, error) {
	if p.stt == nil || !p.stt.Available() {
		return "", fmt.Errorf("音声認識ケイパビリティが利用できないため後処理をスキップします")
	}

	transcript, err := p.stt.Transcribe(ctx, audioPath)
	if err != nil {
		return "", fmt.Errorf("文字起こしに失敗しました: %w", err)
	}
	p.logger.Info("文字起こしが完了しました",
		slog.String("audio_path", audioPath),
		slog.Int("transcript_chars", len(transcript)),
	)

	text := transcript
	if p.summarize != nil && p.summarize.Available() {
		summary, err := p.summarize.Summarize(ctx, transcript)
		if err != nil {
			// 要約失敗時は文字起こし結果を残す
			p.logger.Warn("要約に失敗したため文字起こし結果を保存します",
				slog.String("error", err.Error()),
			)
		} else {
			text = summary
		}
	} else {
		p.logger.Info("要約APIが未設定のため文字起こし結果を保存します")
	}

	outPath := SummaryPath(audioPath)
	if err := os.WriteFile(outPath, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("要約ファイルの書き出しに失敗しました: %w", err)
	}

	p.logger.Info("後処理が完了しました",
		slog.String("summary_path", outPath),
	)
	return outPath, nil
}
