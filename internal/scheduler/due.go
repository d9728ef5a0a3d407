// Package scheduler は参加予定イベントのポーリングスケジューラを提供する。
// 一定間隔でイベントストアを走査し、開始時刻を迎えたイベントを
// ちょうど1回だけクレームしてワーカープロセスを起動する。
package scheduler

import (
	"errors"
	"time"

	"github.com/hitoshi/meetbot/internal/model"
)

// ErrMalformedSchedule は日付・時刻フォーマットが不正で
// 開始時刻を判定できないことを表す。該当イベントは恒久的にスキップされる。
var ErrMalformedSchedule = errors.New("イベントの日時フォーマットが不正です")

// IsDue はイベントが起動対象かどうかを判定する。
// 開始時刻までの残り時間が 0 以上 window 以下（両端含む）のとき起動対象。
// 過去のイベント（残り時間が負）は対象外。
// 日時がパースできない場合はErrMalformedScheduleを返す。
func IsDue(event *model.Event, now time.Time, window time.Duration, loc *time.Location) (bool, error) {
	start, err := event.StartAt(loc)
	if err != nil {
		return false, ErrMalformedSchedule
	}

	until := start.Sub(now)
	return until >= 0 && until <= window, nil
}
