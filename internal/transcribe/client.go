// Package transcribe は録音音声の文字起こしと要約を提供する。
// 外部の音声認識APIと要約APIを呼び出し、要約テキストを
// 録音ファイルの隣へ書き出すパイプラインを含む。
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
)

// STTClient は音声認識APIのクライアント。
// 音声ファイルをmultipartでアップロードし、文字起こし結果を受け取る。
type STTClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string
}

// NewSTTClient はSTTClient の新しいインスタンスを生成する。
// endpointが空の場合はケイパビリティ未設定として扱う。
func NewSTTClient(httpClient *http.Client, logger *slog.Logger, endpoint string) *STTClient {
	return &STTClient{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   endpoint,
	}
}

// Available は音声認識ケイパビリティの設定有無を検査する。
func (c *STTClient) Available() bool {
	return c.endpoint != ""
}

// sttResponse は音声認識APIのレスポンス。
type sttResponse struct {
	Text string `json:"text"`
}

// Transcribe は音声ファイルをアップロードし文字起こしテキストを返す。
func (c *STTClient) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if !c.Available() {
		return "", fmt.Errorf("音声認識APIのエンドポイントが設定されていません")
	}

	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("音声ファイルのオープンに失敗しました: %w", err)
	}
	defer f.Close()

	// multipartボディ構築
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return "", fmt.Errorf("multipartフォームの作成に失敗しました: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("音声ファイルの読み込みに失敗しました: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("multipartボディの確定に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("音声認識APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("audio_path", audioPath),
		)
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("音声認識APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("audio_path", audioPath),
		)
		return "", fmt.Errorf("音声認識APIがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var result sttResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	if result.Text == "" {
		return "", fmt.Errorf("音声認識結果が空です")
	}
	return result.Text, nil
}

// SummarizeClient は要約APIのクライアント。
type SummarizeClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string
}

// NewSummarizeClient はSummarizeClient の新しいインスタンスを生成する。
func NewSummarizeClient(httpClient *http.Client, logger *slog.Logger, endpoint string) *SummarizeClient {
	return &SummarizeClient{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   endpoint,
	}
}

// Available は要約ケイパビリティの設定有無を検査する。
func (c *SummarizeClient) Available() bool {
	return c.endpoint != ""
}

// summarizeRequest は要約APIへのリクエストボディ。
type summarizeRequest struct {
	Text string `json:"text"`
}

// summarizeResponse は要約APIのレスポンス。
type summarizeResponse struct {
	Summary string `json:"summary"`
}

// Summarize は文字起こしテキストの要約を取得する。
func (c *SummarizeClient) Summarize(ctx context.Context, transcript string) (string, error) {
	if !c.Available() {
		return "", fmt.Errorf("要約APIのエンドポイントが設定されていません")
	}

	payload, err := json.Marshal(summarizeRequest{Text: transcript})
	if err != nil {
		return "", fmt.Errorf("リクエストJSONの生成に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("要約APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("要約APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return "", fmt.Errorf("要約APIがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var result summarizeResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	if result.Summary == "" {
		return "", fmt.Errorf("要約結果が空です")
	}
	return result.Summary, nil
}
