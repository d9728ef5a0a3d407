// Package browser は会議UIを操作するブラウザ自動化ケイパビリティを提供する。
// Chrome DevTools Protocol経由で制御可能なセッションを確立し、
// プレビュー画面の操作・参加ボタンの押下・会議終了の検知を行う。
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// ErrPollTimeout は制限時間内に目的のUI状態へ到達しなかったことを表す。
var ErrPollTimeout = errors.New("UI操作の待機がタイムアウトしました")

// DefaultPollInterval はUI操作リトライの既定間隔。
const DefaultPollInterval = 500 * time.Millisecond

// PollUntil はfnがtrueを返すまで一定間隔で再試行する。
// まだ描画されていないコントロールの待機に使用する。
// timeoutを超えた場合はErrPollTimeoutを返す。無期限のループは許可しない。
// fnがエラーを返した場合は致命的エラーとして即座に中断する
// （一時的な未描画状態はfalseで表現すること）。
func PollUntil(ctx context.Context, timeout, interval time.Duration, fn func(context.Context) (bool, error)) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		return fmt.Errorf("待機タイムアウトは正の値が必要です: %v", timeout)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(interval), 1)

	for {
		// limiterは次の待機が期限を超える場合も独自エラーを返すため、
		// キャンセル以外はすべてタイムアウトへ畳み込む。
		if err := limiter.Wait(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			return ErrPollTimeout
		}

		done, err := fn(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}
