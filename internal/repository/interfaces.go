// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/meetbot/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
// ユーザーの作成・削除はCRUD API側が行うため、ここでは参照のみを提供する。
type UserRepository interface {
	// FindByEmail は指定メールアドレスのユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)
}

// EventRepository はイベントデータの永続化インターフェース。
// ステータス遷移はすべて単一行・単一フィールドの条件付きUPDATEで行い、
// read-modify-writeによる競合を避ける。
type EventRepository interface {
	// FindByID は指定IDのイベントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Event, error)

	// Create はイベントを作成する。CRUD API側が主な作成者だが、
	// スタンドアロン運用とテストのためにここでも提供する。
	Create(ctx context.Context, event *model.Event) error

	// ListScheduled はstatus='scheduled'かつ日付・時刻・リンクが
	// すべて設定されたイベントを取得する。必須フィールドが欠落した
	// イベントは恒久的に対象外（SQLレベルで除外）。
	ListScheduled(ctx context.Context) ([]*model.Event, error)

	// ClaimEvent はイベントを排他的にクレームする。
	// status='scheduled'の場合のみ成功する条件付きUPDATEで、
	// 成功時はtrueを返す。並行呼び出しでちょうど1つだけが成功する。
	ClaimEvent(ctx context.Context, id string) (bool, error)

	// ReleaseEvent はクレーム済みイベントをscheduledに戻す。
	// ワーカープロセスの起動失敗時に次のティックでの再試行を許可する。
	ReleaseEvent(ctx context.Context, id string) error

	// SetEventStatus はイベントのステータスを冪等に設定する。
	// 同じ値での複数回呼び出しは安全。終端状態（completed/failed）から
	// 別の状態への変更は拒否される。対象行が存在しない場合や
	// 変更が拒否された場合はfalseを返す（エラーにはしない）。
	SetEventStatus(ctx context.Context, id string, status model.EventStatus) (bool, error)

	// ResetStaleClaims はクレームから指定時間を超えて終端状態に
	// 到達していないイベントをfailedに遷移させ、件数を返す。
	ResetStaleClaims(ctx context.Context, olderThan time.Duration) (int64, error)
}
