// Package model はドメインモデルを定義する。
package model

import "fmt"

// OrchestrationError はオーケストレーション処理の統一エラーフォーマットを表す。
// 失敗した段階と原因カテゴリを含み、ログからの事後追跡に使用する。
type OrchestrationError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: capability, ui, store, launch, system
}

// Error はerrorインターフェースを実装する。
func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeCapabilityUnavailable = "CAPABILITY_UNAVAILABLE"
	ErrCodeConnectFailed         = "MEETING_CONNECT_FAILED"
	ErrCodePreviewTimeout        = "PREVIEW_TIMEOUT"
	ErrCodeJoinTimeout           = "JOIN_TIMEOUT"
	ErrCodeLaunchFailed          = "WORKER_LAUNCH_FAILED"
	ErrCodeStatusWriteFailed     = "STATUS_WRITE_FAILED"
	ErrCodeEventNotFound         = "EVENT_NOT_FOUND"
)

// NewCapabilityUnavailableError は必須ケイパビリティ欠如エラーを生成する。
func NewCapabilityUnavailableError(name, reason string) *OrchestrationError {
	return &OrchestrationError{
		Code:     ErrCodeCapabilityUnavailable,
		Message:  fmt.Sprintf("ケイパビリティ %s が利用できません: %s", name, reason),
		Category: "capability",
	}
}

// NewConnectFailedError はブラウザセッション確立失敗エラーを生成する。
func NewConnectFailedError(reason string) *OrchestrationError {
	return &OrchestrationError{
		Code:     ErrCodeConnectFailed,
		Message:  fmt.Sprintf("会議への接続に失敗しました: %s", reason),
		Category: "ui",
	}
}

// NewPreviewTimeoutError はプレビュー画面の操作タイムアウトエラーを生成する。
func NewPreviewTimeoutError() *OrchestrationError {
	return &OrchestrationError{
		Code:     ErrCodePreviewTimeout,
		Message:  "プレビュー画面の操作がタイムアウトしました。",
		Category: "ui",
	}
}

// NewJoinTimeoutError は参加ボタン操作のタイムアウトエラーを生成する。
func NewJoinTimeoutError() *OrchestrationError {
	return &OrchestrationError{
		Code:     ErrCodeJoinTimeout,
		Message:  "参加操作がタイムアウトしました。",
		Category: "ui",
	}
}

// NewLaunchFailedError はワーカープロセス起動失敗エラーを生成する。
func NewLaunchFailedError(reason string) *OrchestrationError {
	return &OrchestrationError{
		Code:     ErrCodeLaunchFailed,
		Message:  fmt.Sprintf("ワーカープロセスの起動に失敗しました: %s", reason),
		Category: "launch",
	}
}

// NewStatusWriteFailedError はステータス書き込み失敗エラーを生成する。
func NewStatusWriteFailedError(reason string) *OrchestrationError {
	return &OrchestrationError{
		Code:     ErrCodeStatusWriteFailed,
		Message:  fmt.Sprintf("ステータスの書き込みに失敗しました: %s", reason),
		Category: "store",
	}
}

// NewEventNotFoundError はイベント未検出エラーを生成する。
func NewEventNotFoundError(eventID string) *OrchestrationError {
	return &OrchestrationError{
		Code:     ErrCodeEventNotFound,
		Message:  fmt.Sprintf("指定されたイベントが見つかりません: %s", eventID),
		Category: "store",
	}
}
