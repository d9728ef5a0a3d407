package browser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/net/websocket"
)

func TestClickButtonExpr_EscapesText(t *testing.T) {
	expr := clickButtonExpr(`Join "now"`)
	if !strings.Contains(expr, `"Join \"now\""`) {
		t.Errorf("ボタンテキストがエスケープされるべき: %s", expr)
	}
	if !strings.Contains(expr, "n.click()") {
		t.Errorf("click呼び出しが含まれるべき: %s", expr)
	}
}

func TestTypeIntoPlaceholderExpr_ContainsInputEvent(t *testing.T) {
	expr := typeIntoPlaceholderExpr("Your name", "Dialogon Assistant")
	if !strings.Contains(expr, `"Your name"`) {
		t.Errorf("プレースホルダが含まれるべき: %s", expr)
	}
	if !strings.Contains(expr, `"Dialogon Assistant"`) {
		t.Errorf("入力値が含まれるべき: %s", expr)
	}
	if !strings.Contains(expr, "new Event('input'") {
		t.Errorf("inputイベントの発火が含まれるべき: %s", expr)
	}
}

// fakeCDPServer はRuntime.evaluateへ固定値を返すDevToolsサーバーの代替。
// 式の内容に応じたレスポンスをhandlerで決める。
func fakeCDPServer(t *testing.T, handler func(expr string) any) *httptest.Server {
	t.Helper()
	wsHandler := websocket.Handler(func(ws *websocket.Conn) {
		for {
			var req cdpRequest
			if err := websocket.JSON.Receive(ws, &req); err != nil {
				return
			}
			var value any
			if req.Method == "Runtime.evaluate" {
				expr, _ := req.Params["expression"].(string)
				value = handler(expr)
			}
			raw, _ := json.Marshal(map[string]any{
				"id": req.ID,
				"result": map[string]any{
					"result": map[string]any{"value": value},
				},
			})
			if _, err := ws.Write(raw); err != nil {
				return
			}
		}
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wsHandler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dialFakeCDP(t *testing.T, srv *httptest.Server) *chromeSession {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, err := websocket.Dial(wsURL, "", srv.URL)
	if err != nil {
		t.Fatalf("テスト用websocketの接続に失敗: %v", err)
	}
	return &chromeSession{cdp: newCDPClient(conn)}
}

func TestChromeSession_ClickButtonByText(t *testing.T) {
	srv := fakeCDPServer(t, func(expr string) any {
		return strings.Contains(expr, `"Join now"`)
	})
	session := dialFakeCDP(t, srv)
	defer session.cdp.close()

	clicked, err := session.ClickButtonByText(context.Background(), "Join now")
	if err != nil {
		t.Fatalf("エラーは発生しないはず: %v", err)
	}
	if !clicked {
		t.Error("ボタンが押下されたと報告されるべき")
	}

	clicked, err = session.ClickButtonByText(context.Background(), "Leave call")
	if err != nil {
		t.Fatalf("エラーは発生しないはず: %v", err)
	}
	if clicked {
		t.Error("存在しないボタンはfalseが返るべき")
	}
}

func TestChromeSession_CurrentLocation(t *testing.T) {
	srv := fakeCDPServer(t, func(expr string) any {
		if expr == currentLocationExpr {
			return "https://meet.google.com/abc-defg-hij"
		}
		return nil
	})
	session := dialFakeCDP(t, srv)
	defer session.cdp.close()

	href, err := session.CurrentLocation(context.Background())
	if err != nil {
		t.Fatalf("エラーは発生しないはず: %v", err)
	}
	if href != "https://meet.google.com/abc-defg-hij" {
		t.Errorf("現在URLが一致しません: got %s", href)
	}
}

func TestCDPClient_ContextCancelUnblocksCall(t *testing.T) {
	// レスポンスを一切返さないサーバー。
	wsHandler := websocket.Handler(func(ws *websocket.Conn) {
		var buf [1024]byte
		for {
			if _, err := ws.Read(buf[:]); err != nil {
				return
			}
		}
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wsHandler.ServeHTTP(w, r)
	}))
	defer srv.Close()

	session := dialFakeCDP(t, srv)
	defer session.cdp.close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := session.cdp.call(ctx, "Runtime.evaluate", map[string]any{"expression": "1"})
	if err == nil {
		t.Error("キャンセル済みcontextではエラーが返るべき")
	}
}
