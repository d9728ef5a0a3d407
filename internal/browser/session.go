package browser

import (
	"context"
	"fmt"
	"strconv"
)

// Session は会議ページに対する操作。
// 各操作の第一戻り値は「対象コントロールが見つかり操作できたか」を表し、
// 未描画はエラーではなくfalseとして返す。
type Session interface {
	// ClickButtonByText は表示テキストが一致するボタンを押下する。
	ClickButtonByText(ctx context.Context, text string) (bool, error)
	// TypeIntoPlaceholder はプレースホルダが一致する入力欄へ文字列を入力する。
	TypeIntoPlaceholder(ctx context.Context, placeholder, text string) (bool, error)
	// CurrentLocation は現在のページURLを返す。
	CurrentLocation(ctx context.Context) (string, error)
	// Close はブラウザとの接続を閉じ、起動したプロセスを終了させる。
	Close() error
}

// clickButtonExpr はボタン・リンク系要素をテキスト一致で探索し押下する式を組み立てる。
// aria-label一致も許容する（Meetのアイコンボタン対策）。
func clickButtonExpr(text string) string {
	q := strconv.Quote(text)
	return fmt.Sprintf(`(() => {
  const want = %s;
  const nodes = document.querySelectorAll('button, [role="button"]');
  for (const n of nodes) {
    const label = (n.innerText || n.textContent || '').trim();
    const aria = (n.getAttribute('aria-label') || '').trim();
    if (label === want || aria === want) { n.click(); return true; }
  }
  return false;
})()`, q)
}

// typeIntoPlaceholderExpr は入力欄へ値を設定しinputイベントを発火させる式を組み立てる。
// Reactの制御コンポーネントはvalue代入だけでは反映されないため
// ネイティブセッター経由で書き込む。
func typeIntoPlaceholderExpr(placeholder, text string) string {
	p := strconv.Quote(placeholder)
	v := strconv.Quote(text)
	return fmt.Sprintf(`(() => {
  const want = %s;
  const nodes = document.querySelectorAll('input, textarea');
  for (const n of nodes) {
    const ph = (n.getAttribute('placeholder') || '').trim();
    const aria = (n.getAttribute('aria-label') || '').trim();
    if (ph !== want && aria !== want) continue;
    const proto = n.tagName === 'TEXTAREA' ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
    const setter = Object.getOwnPropertyDescriptor(proto, 'value').set;
    setter.call(n, %s);
    n.dispatchEvent(new Event('input', { bubbles: true }));
    return true;
  }
  return false;
})()`, p, v)
}

const currentLocationExpr = `window.location.href`

// chromeSession はDevTools Protocol接続に基づくSession実装。
type chromeSession struct {
	cdp  *cdpClient
	stop func() error
}

func (s *chromeSession) ClickButtonByText(ctx context.Context, text string) (bool, error) {
	var clicked bool
	if err := s.cdp.evaluate(ctx, clickButtonExpr(text), &clicked); err != nil {
		return false, fmt.Errorf("ボタン押下の評価に失敗しました: %w", err)
	}
	return clicked, nil
}

func (s *chromeSession) TypeIntoPlaceholder(ctx context.Context, placeholder, text string) (bool, error) {
	var typed bool
	if err := s.cdp.evaluate(ctx, typeIntoPlaceholderExpr(placeholder, text), &typed); err != nil {
		return false, fmt.Errorf("文字列入力の評価に失敗しました: %w", err)
	}
	return typed, nil
}

func (s *chromeSession) CurrentLocation(ctx context.Context) (string, error) {
	var href string
	if err := s.cdp.evaluate(ctx, currentLocationExpr, &href); err != nil {
		return "", fmt.Errorf("現在URLの取得に失敗しました: %w", err)
	}
	return href, nil
}

func (s *chromeSession) Close() error {
	// ブラウザ側の終了を先に試み、失敗してもプロセス停止は実行する。
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	_, _ = s.cdp.call(ctx, "Browser.close", nil)
	_ = s.cdp.close()
	if s.stop != nil {
		return s.stop()
	}
	return nil
}
