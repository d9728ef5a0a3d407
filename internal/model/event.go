// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"time"
)

const (
	// DateLayout はイベント日付の入力フォーマット。
	DateLayout = "2006-01-02"
	// TimeLayout はイベント開始時刻の入力フォーマット。
	TimeLayout = "15:04"
)

// EventStatus はイベントのライフサイクル状態を表す。
type EventStatus string

const (
	// StatusScheduled は参加待ちの初期状態。
	StatusScheduled EventStatus = "scheduled"
	// StatusJoined はクレーム済みまたは会議参加中の状態。
	StatusJoined EventStatus = "joined"
	// StatusCompleted は会議が正常終了した終端状態。
	StatusCompleted EventStatus = "completed"
	// StatusFailed はいずれかの段階で失敗した終端状態。
	StatusFailed EventStatus = "failed"
)

// IsTerminal は終端状態（completed/failed）かどうかを返す。
func (s EventStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseEventStatus は文字列をEventStatusに変換する。
// 未知の値の場合はエラーを返す。
func ParseEventStatus(s string) (EventStatus, error) {
	switch EventStatus(s) {
	case StatusScheduled, StatusJoined, StatusCompleted, StatusFailed:
		return EventStatus(s), nil
	default:
		return "", fmt.Errorf("未知のイベントステータスです: %q", s)
	}
}

// Event は予定された1件の会議を表す。
// IDはUUIDで採番され、クレーム・ステータス更新の永続キーとして使用する。
// 配列上の位置をキーとして扱ってはならない。
type Event struct {
	ID          string
	UserEmail   string
	Title       string
	Date        string // "2006-01-02" 形式。CRUD API側で入力されるため文字列のまま保持する
	Time        string // "15:04" 形式
	MeetingLink string
	Status      EventStatus
	ClaimedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasRequiredFields は参加に必要なフィールド（日付・時刻・リンク）が
// すべて設定されているかを返す。欠落イベントは恒久的にスキップ対象となる。
func (e *Event) HasRequiredFields() bool {
	return e.Date != "" && e.Time != "" && e.MeetingLink != ""
}

// StartAt は日付と時刻の文字列をパースして開始時刻を返す。
// フォーマット不正の場合はエラーを返す。
func (e *Event) StartAt(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, e.Date+" "+e.Time, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("イベント開始時刻のパースに失敗しました: %w", err)
	}
	return t, nil
}

// User はサービス利用ユーザーを表す。
// イベントの所有者。作成・削除はCRUD API側（スコープ外）が行う。
type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
