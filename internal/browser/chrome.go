package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/hitoshi/meetbot/internal/model"
)

// Capability はブラウザ自動化ケイパビリティ。
// Available()で利用可否を前段検査し、不可の場合はワーカーを
// 起動時に即failさせる（会議途中での欠落発覚を防ぐ）。
type Capability interface {
	// Available はケイパビリティが利用可能か検査する。
	Available() error
	// Connect はブラウザを起動し指定URLを開いたセッションを返す。
	Connect(ctx context.Context, url string) (Session, error)
}

// chromeCandidates はchromePath未指定時に探索する実行ファイル名。
var chromeCandidates = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"chrome",
}

const (
	// bootTimeout はChrome起動後にデバッグエンドポイントが応答するまでの待機上限。
	bootTimeout = 30 * time.Second
	// closeTimeout はBrowser.close送信の待機上限。
	closeTimeout = 5 * time.Second
)

// ChromeCapability はリモートデバッグポート経由でChromeを制御するCapability実装。
// デバッグポートはセッションごとにOSが割り当てる（port=0起動）。
// 固定ポートでは並行する別会議のワーカーが互いのブラウザへ
// 誤接続し、進行中の会議を乗っ取ってしまうため。
type ChromeCapability struct {
	chromePath string
	profileDir string
	logger     *slog.Logger
}

// NewChromeCapability はChromeCapabilityを生成する。
// chromePathが空の場合はPATHから既知の実行ファイル名を探索する。
func NewChromeCapability(chromePath string, profileDir string, logger *slog.Logger) *ChromeCapability {
	if profileDir == "" {
		profileDir = os.TempDir()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromeCapability{
		chromePath: chromePath,
		profileDir: profileDir,
		logger:     logger,
	}
}

// resolvePath はChrome実行ファイルのパスを解決する。
func (c *ChromeCapability) resolvePath() (string, error) {
	if c.chromePath != "" {
		if _, err := exec.LookPath(c.chromePath); err != nil {
			return "", fmt.Errorf("指定されたChrome実行ファイルが見つかりません: %w", err)
		}
		return c.chromePath, nil
	}
	for _, name := range chromeCandidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", model.NewCapabilityUnavailableError("ブラウザ自動化", "Chrome実行ファイルがPATH上に見つかりません")
}

// Available はChrome実行ファイルの存在を検査する。
func (c *ChromeCapability) Available() error {
	_, err := c.resolvePath()
	return err
}

// Connect はChromeをデバッグポート付きで起動し、指定URLを開いたセッションを返す。
// ユーザーデータディレクトリは起動ごとにユニークにする
// （同一ディレクトリの同時使用はChromeが拒否するため）。
func (c *ChromeCapability) Connect(ctx context.Context, url string) (Session, error) {
	path, err := c.resolvePath()
	if err != nil {
		return nil, err
	}

	userDataDir := filepath.Join(c.profileDir, "meetbot-chrome-"+uuid.New().String())
	if err := os.MkdirAll(userDataDir, 0o755); err != nil {
		return nil, fmt.Errorf("ユーザーデータディレクトリの作成に失敗しました: %w", err)
	}

	// port=0でOSに空きポートを割り当てさせる。実際のポートは
	// Chromeがユーザーデータディレクトリに書き込むDevToolsActivePort
	// ファイルから読み取るため、接続先は必ずこのプロセス自身になる。
	cmd := exec.Command(path,
		"--remote-debugging-port=0",
		"--user-data-dir="+userDataDir,
		"--no-first-run",
		"--no-default-browser-check",
		"--use-fake-ui-for-media-stream",
		"--autoplay-policy=no-user-gesture-required",
	)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("Chromeの起動に失敗しました: %w", err)
	}
	// ゾンビ化防止。終了コードはセッション側で扱わない。
	go func() { _ = cmd.Wait() }()

	stop := func() error {
		if cmd.Process == nil {
			return nil
		}
		if err := cmd.Process.Kill(); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("Chromeプロセスの停止に失敗しました: %w", err)
		}
		_ = os.RemoveAll(userDataDir)
		return nil
	}

	wsURL, debugPort, err := c.waitForDebugger(ctx, userDataDir)
	if err != nil {
		_ = stop()
		return nil, model.NewConnectFailedError(fmt.Sprintf("デバッグエンドポイントへ接続できません: %v", err))
	}

	conn, err := dialDevTools(wsURL, debugPort)
	if err != nil {
		_ = stop()
		return nil, model.NewConnectFailedError(fmt.Sprintf("DevTools websocketの接続に失敗しました: %v", err))
	}

	session := &chromeSession{cdp: newCDPClient(conn), stop: stop}

	if err := session.cdp.navigate(ctx, url); err != nil {
		_ = session.Close()
		return nil, model.NewConnectFailedError(fmt.Sprintf("会議URLへの遷移に失敗しました: %v", err))
	}

	c.logger.Info("ブラウザセッションを確立しました",
		slog.Int("debug_port", debugPort),
		slog.String("user_data_dir", userDataDir),
	)
	return session, nil
}

// debugTarget は/jsonエンドポイントが返すターゲット情報。
type debugTarget struct {
	Type                 string `json:"type"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// waitForDebugger は起動したChromeのデバッグエンドポイントを待ち、
// 最初のページターゲットのwebsocket URLと実際のポートを返す。
// ポートはユーザーデータディレクトリ内のDevToolsActivePortファイル
// （1行目がポート番号）から読み取る。ディレクトリは起動ごとに
// ユニークなため、他のワーカーのChromeへ誤接続することはない。
func (c *ChromeCapability) waitForDebugger(ctx context.Context, userDataDir string) (string, int, error) {
	portFile := filepath.Join(userDataDir, "DevToolsActivePort")
	var wsURL string
	var debugPort int

	err := PollUntil(ctx, bootTimeout, DefaultPollInterval, func(ctx context.Context) (bool, error) {
		port, err := readDevToolsPort(portFile)
		if err != nil {
			// 起動中はファイル未作成が正常。再試行する。
			return false, nil
		}

		endpoint := fmt.Sprintf("http://127.0.0.1:%d/json", port)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return false, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return false, nil
		}
		defer resp.Body.Close()

		var targets []debugTarget
		if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
			return false, nil
		}
		for _, t := range targets {
			if t.Type == "page" && t.WebSocketDebuggerURL != "" {
				wsURL = t.WebSocketDebuggerURL
				debugPort = port
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return "", 0, err
	}
	return wsURL, debugPort, nil
}

// readDevToolsPort はDevToolsActivePortファイルからポート番号を読み取る。
func readDevToolsPort(portFile string) (int, error) {
	data, err := os.ReadFile(portFile)
	if err != nil {
		return 0, err
	}
	lines := strings.SplitN(strings.TrimSpace(string(data)), "\n", 2)
	port, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil || port <= 0 {
		return 0, fmt.Errorf("DevToolsActivePortのポート番号が不正です: %q", lines[0])
	}
	return port, nil
}

// dialDevTools はDevTools websocketへ接続する。
func dialDevTools(wsURL string, port int) (*websocket.Conn, error) {
	origin := fmt.Sprintf("http://127.0.0.1:%d", port)
	conn, err := websocket.Dial(wsURL, "", origin)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
