package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/net/websocket"
)

// cdpRequest はDevTools ProtocolのJSON-RPCリクエスト。
type cdpRequest struct {
	ID     int64          `json:"id"`
	Method string         `json:"method"`
	Params map[string]any `json:"params,omitempty"`
}

// cdpResponse はDevTools ProtocolのJSON-RPCレスポンス。
// イベント通知（idなし）は読み捨てる。
type cdpResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *cdpError       `json:"error"`
}

type cdpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *cdpError) Error() string {
	return fmt.Sprintf("DevToolsエラー(code=%d): %s", e.Code, e.Message)
}

// cdpClient はwebsocket上のDevTools Protocolクライアント。
// 単一の読み取りゴルーチンがレスポンスをidで振り分ける。
type cdpClient struct {
	ws      *websocket.Conn
	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan cdpResponse
	done    chan struct{}
	readErr error
}

func newCDPClient(ws *websocket.Conn) *cdpClient {
	c := &cdpClient{
		ws:      ws,
		pending: make(map[int64]chan cdpResponse),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *cdpClient) readLoop() {
	defer close(c.done)
	for {
		var resp cdpResponse
		if err := websocket.JSON.Receive(c.ws, &resp); err != nil {
			c.mu.Lock()
			c.readErr = err
			for id, ch := range c.pending {
				close(ch)
				delete(c.pending, id)
			}
			c.mu.Unlock()
			return
		}
		if resp.ID == 0 {
			// Page.loadEventFired等のイベント通知。本クライアントでは不要。
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- resp
			close(ch)
		}
	}
}

// call はメソッドを呼び出しレスポンスのresultを返す。
// ctxがキャンセルされた場合は待機を打ち切る。
func (c *cdpClient) call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.readErr != nil {
		err := c.readErr
		c.mu.Unlock()
		return nil, fmt.Errorf("DevTools接続が切断されています: %w", err)
	}
	c.nextID++
	id := c.nextID
	ch := make(chan cdpResponse, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	req := cdpRequest{ID: id, Method: method, Params: params}
	if err := websocket.JSON.Send(c.ws, req); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("DevToolsリクエストの送信に失敗しました: %w", err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			c.mu.Lock()
			err := c.readErr
			c.mu.Unlock()
			return nil, fmt.Errorf("DevToolsレスポンスの受信に失敗しました: %w", err)
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// evaluateResult はRuntime.evaluateの戻り値構造。
type evaluateResult struct {
	Result struct {
		Type  string          `json:"type"`
		Value json.RawMessage `json:"value"`
	} `json:"result"`
	ExceptionDetails *struct {
		Text string `json:"text"`
	} `json:"exceptionDetails"`
}

// evaluate はページ上でJavaScript式を評価し、結果の値をoutへデコードする。
func (c *cdpClient) evaluate(ctx context.Context, expr string, out any) error {
	raw, err := c.call(ctx, "Runtime.evaluate", map[string]any{
		"expression":    expr,
		"returnByValue": true,
	})
	if err != nil {
		return err
	}

	var res evaluateResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return fmt.Errorf("評価結果の解析に失敗しました: %w", err)
	}
	if res.ExceptionDetails != nil {
		return fmt.Errorf("ページ内スクリプトが例外を送出しました: %s", res.ExceptionDetails.Text)
	}
	if out == nil || res.Result.Value == nil {
		return nil
	}
	if err := json.Unmarshal(res.Result.Value, out); err != nil {
		return fmt.Errorf("評価結果の値のデコードに失敗しました: %w", err)
	}
	return nil
}

// navigate はページを指定URLへ遷移させる。
func (c *cdpClient) navigate(ctx context.Context, url string) error {
	_, err := c.call(ctx, "Page.navigate", map[string]any{"url": url})
	if err != nil {
		return fmt.Errorf("ページ遷移に失敗しました: %w", err)
	}
	return nil
}

func (c *cdpClient) close() error {
	return c.ws.Close()
}
