package meeting

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/meetbot/internal/browser"
	"github.com/hitoshi/meetbot/internal/capture"
	"github.com/hitoshi/meetbot/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// mockSession はテスト用のbrowser.Session実装。
type mockSession struct {
	clickFunc    func(ctx context.Context, text string) (bool, error)
	typeFunc     func(ctx context.Context, placeholder, text string) (bool, error)
	locationFunc func(ctx context.Context) (string, error)

	mu     sync.Mutex
	closed bool
}

func (m *mockSession) ClickButtonByText(ctx context.Context, text string) (bool, error) {
	if m.clickFunc != nil {
		return m.clickFunc(ctx, text)
	}
	return true, nil
}

func (m *mockSession) TypeIntoPlaceholder(ctx context.Context, placeholder, text string) (bool, error) {
	if m.typeFunc != nil {
		return m.typeFunc(ctx, placeholder, text)
	}
	return true, nil
}

func (m *mockSession) CurrentLocation(ctx context.Context) (string, error) {
	if m.locationFunc != nil {
		return m.locationFunc(ctx)
	}
	return "https://meet.google.com/ended", nil
}

func (m *mockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockSession) wasClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// mockBrowser はテスト用のbrowser.Capability実装。
type mockBrowser struct {
	availableFunc func() error
	connectFunc   func(ctx context.Context, url string) (browser.Session, error)
}

func (m *mockBrowser) Available() error {
	if m.availableFunc != nil {
		return m.availableFunc()
	}
	return nil
}

func (m *mockBrowser) Connect(ctx context.Context, url string) (browser.Session, error) {
	if m.connectFunc != nil {
		return m.connectFunc(ctx, url)
	}
	return &mockSession{}, nil
}

// mockReporter はステータス報告を記録するStatusReporter実装。
type mockReporter struct {
	mu      sync.Mutex
	reports []model.EventStatus
	err     error
}

func (m *mockReporter) Report(ctx context.Context, eventID string, status model.EventStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.reports = append(m.reports, status)
	return nil
}

func (m *mockReporter) reported() []model.EventStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.EventStatus(nil), m.reports...)
}

// mockCapture はテスト用のcapture.Capability実装。
type mockCapture struct {
	availableErr error
	startFunc    func(ctx context.Context, outPath string) (capture.Recording, error)

	mu      sync.Mutex
	started []string
}

func (m *mockCapture) Available() error {
	return m.availableErr
}

func (m *mockCapture) Start(ctx context.Context, outPath string) (capture.Recording, error) {
	m.mu.Lock()
	m.started = append(m.started, outPath)
	m.mu.Unlock()
	if m.startFunc != nil {
		return m.startFunc(ctx, outPath)
	}
	return &mockRecording{path: outPath}, nil
}

type mockRecording struct {
	path    string
	stopErr error

	mu      sync.Mutex
	stopped bool
}

func (m *mockRecording) Stop() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	if m.stopErr != nil {
		return "", m.stopErr
	}
	return m.path, nil
}

func testConfig() RunnerConfig {
	return RunnerConfig{
		PreviewTimeout:      200 * time.Millisecond,
		JoinTimeout:         200 * time.Millisecond,
		MeetingPollInterval: 10 * time.Millisecond,
		MeetingMaxDuration:  time.Second,
		RecordingsDir:       "recordings",
	}
}

func testJob(t *testing.T) *model.MeetingJob {
	t.Helper()
	job, err := model.NewMeetingJob("event-1", "user@example.com", "https://meet.google.com/abc-defg-hij", "")
	if err != nil {
		t.Fatalf("ジョブの生成に失敗: %v", err)
	}
	return job
}

func TestRunner_Run_HappyPath(t *testing.T) {
	session := &mockSession{
		locationFunc: func(ctx context.Context) (string, error) {
			// 会議コードを含まないURLは終了とみなされる
			return "https://meet.google.com/landing", nil
		},
	}
	b := &mockBrowser{
		connectFunc: func(ctx context.Context, url string) (browser.Session, error) {
			return session, nil
		},
	}
	reporter := &mockReporter{}
	cap := &mockCapture{}

	var buf bytes.Buffer
	r := NewRunner(b, cap, nil, reporter, newTestLogger(&buf), testConfig())

	if err := r.Run(context.Background(), testJob(t)); err != nil {
		t.Fatalf("エラーは発生しないはず: %v", err)
	}
	if r.Stage() != StageCompleted {
		t.Errorf("最終段階がcompletedであるべき: got %s", r.Stage())
	}

	want := []model.EventStatus{model.StatusJoined, model.StatusCompleted}
	got := reporter.reported()
	if len(got) != len(want) {
		t.Fatalf("報告回数 = %d, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("報告[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if !session.wasClosed() {
		t.Error("セッションがクローズされるべき")
	}
	cap.mu.Lock()
	defer cap.mu.Unlock()
	if len(cap.started) != 1 {
		t.Errorf("録音が1回開始されるべき: %v", cap.started)
	}
}

func TestRunner_Run_CaptureUnavailableStillCompletes(t *testing.T) {
	session := &mockSession{
		locationFunc: func(ctx context.Context) (string, error) {
			return "https://meet.google.com/landing", nil
		},
	}
	b := &mockBrowser{
		connectFunc: func(ctx context.Context, url string) (browser.Session, error) {
			return session, nil
		},
	}
	reporter := &mockReporter{}
	cap := &mockCapture{availableErr: model.NewCapabilityUnavailableError("音声録音", "ffmpegが見つかりません")}

	var buf bytes.Buffer
	r := NewRunner(b, cap, nil, reporter, newTestLogger(&buf), testConfig())

	if err := r.Run(context.Background(), testJob(t)); err != nil {
		t.Fatalf("録音ケイパビリティ欠如は縮退運転で完了するはず: %v", err)
	}
	if r.Stage() != StageCompleted {
		t.Errorf("最終段階がcompletedであるべき: got %s", r.Stage())
	}
	cap.mu.Lock()
	defer cap.mu.Unlock()
	if len(cap.started) != 0 {
		t.Errorf("録音は開始されないはず: %v", cap.started)
	}
}

func TestRunner_Run_BrowserUnavailableFails(t *testing.T) {
	b := &mockBrowser{
		availableFunc: func() error {
			return model.NewCapabilityUnavailableError("ブラウザ自動化", "Chromeが見つかりません")
		},
	}
	reporter := &mockReporter{}

	var buf bytes.Buffer
	r := NewRunner(b, nil, nil, reporter, newTestLogger(&buf), testConfig())

	err := r.Run(context.Background(), testJob(t))
	if err == nil {
		t.Fatal("必須ケイパビリティ欠如はエラーになるべき")
	}
	if r.Stage() != StageFailed {
		t.Errorf("最終段階がfailedであるべき: got %s", r.Stage())
	}
	got := reporter.reported()
	if len(got) != 1 || got[0] != model.StatusFailed {
		t.Errorf("failedが報告されるべき: %v", got)
	}
}

func TestRunner_Run_ConnectFailureFails(t *testing.T) {
	b := &mockBrowser{
		connectFunc: func(ctx context.Context, url string) (browser.Session, error) {
			return nil, model.NewConnectFailedError("接続拒否")
		},
	}
	reporter := &mockReporter{}

	var buf bytes.Buffer
	r := NewRunner(b, nil, nil, reporter, newTestLogger(&buf), testConfig())

	err := r.Run(context.Background(), testJob(t))
	if err == nil {
		t.Fatal("接続失敗はエラーになるべき")
	}
	var oerr *model.OrchestrationError
	if !errors.As(err, &oerr) || oerr.Code != model.ErrCodeConnectFailed {
		t.Errorf("接続失敗エラーが返るべき: %v", err)
	}
	got := reporter.reported()
	if len(got) != 1 || got[0] != model.StatusFailed {
		t.Errorf("failedが報告されるべき: %v", got)
	}
}

func TestRunner_Run_PreviewTimeoutFails(t *testing.T) {
	session := &mockSession{
		// 名前入力欄が描画されないままタイムアウトする
		clickFunc: func(ctx context.Context, text string) (bool, error) {
			return false, nil
		},
		typeFunc: func(ctx context.Context, placeholder, text string) (bool, error) {
			return false, nil
		},
	}
	b := &mockBrowser{
		connectFunc: func(ctx context.Context, url string) (browser.Session, error) {
			return session, nil
		},
	}
	reporter := &mockReporter{}

	var buf bytes.Buffer
	config := testConfig()
	config.PreviewTimeout = 50 * time.Millisecond
	r := NewRunner(b, nil, nil, reporter, newTestLogger(&buf), config)

	err := r.Run(context.Background(), testJob(t))
	if err == nil {
		t.Fatal("プレビュータイムアウトはエラーになるべき")
	}
	var oerr *model.OrchestrationError
	if !errors.As(err, &oerr) || oerr.Code != model.ErrCodePreviewTimeout {
		t.Errorf("プレビュータイムアウトエラーが返るべき: %v", err)
	}
	if r.Stage() != StageFailed {
		t.Errorf("最終段階がfailedであるべき: got %s", r.Stage())
	}
}

func TestRunner_Run_JoinTimeoutFails(t *testing.T) {
	session := &mockSession{
		// プレビューは通るが参加ボタンが押せない
		clickFunc: func(ctx context.Context, text string) (bool, error) {
			return text == dismissMediaButtonText, nil
		},
	}
	b := &mockBrowser{
		connectFunc: func(ctx context.Context, url string) (browser.Session, error) {
			return session, nil
		},
	}
	reporter := &mockReporter{}

	var buf bytes.Buffer
	config := testConfig()
	config.JoinTimeout = 50 * time.Millisecond
	r := NewRunner(b, nil, nil, reporter, newTestLogger(&buf), config)

	err := r.Run(context.Background(), testJob(t))
	if err == nil {
		t.Fatal("参加タイムアウトはエラーになるべき")
	}
	var oerr *model.OrchestrationError
	if !errors.As(err, &oerr) || oerr.Code != model.ErrCodeJoinTimeout {
		t.Errorf("参加タイムアウトエラーが返るべき: %v", err)
	}
}

func TestRunner_Run_AskToJoinCountsAsJoined(t *testing.T) {
	session := &mockSession{
		clickFunc: func(ctx context.Context, text string) (bool, error) {
			switch text {
			case joinButtonText:
				return false, nil
			case askToJoinButtonText:
				return true, nil
			default:
				return true, nil
			}
		},
		locationFunc: func(ctx context.Context) (string, error) {
			return "https://meet.google.com/landing", nil
		},
	}
	b := &mockBrowser{
		connectFunc: func(ctx context.Context, url string) (browser.Session, error) {
			return session, nil
		},
	}
	reporter := &mockReporter{}

	var buf bytes.Buffer
	r := NewRunner(b, nil, nil, reporter, newTestLogger(&buf), testConfig())

	if err := r.Run(context.Background(), testJob(t)); err != nil {
		t.Fatalf("Ask to joinでも参加成立するはず: %v", err)
	}
	if r.Stage() != StageCompleted {
		t.Errorf("最終段階がcompletedであるべき: got %s", r.Stage())
	}
}

func TestRunner_Run_MaxDurationEndsMeeting(t *testing.T) {
	session := &mockSession{
		locationFunc: func(ctx context.Context) (string, error) {
			// 会議URLに居続ける
			return "https://meet.google.com/abc-defg-hij", nil
		},
	}
	b := &mockBrowser{
		connectFunc: func(ctx context.Context, url string) (browser.Session, error) {
			return session, nil
		},
	}
	reporter := &mockReporter{}

	var buf bytes.Buffer
	config := testConfig()
	config.MeetingMaxDuration = 30 * time.Millisecond
	r := NewRunner(b, nil, nil, reporter, newTestLogger(&buf), config)

	if err := r.Run(context.Background(), testJob(t)); err != nil {
		t.Fatalf("上限到達は正常終了するはず: %v", err)
	}
	if r.Stage() != StageCompleted {
		t.Errorf("最終段階がcompletedであるべき: got %s", r.Stage())
	}
}

func TestRunner_Run_StandaloneJobSkipsReporting(t *testing.T) {
	session := &mockSession{
		locationFunc: func(ctx context.Context) (string, error) {
			return "https://meet.google.com/landing", nil
		},
	}
	b := &mockBrowser{
		connectFunc: func(ctx context.Context, url string) (browser.Session, error) {
			return session, nil
		},
	}
	reporter := &mockReporter{}

	job, err := model.NewMeetingJob("", "", "https://meet.google.com/abc-defg-hij", "Observer")
	if err != nil {
		t.Fatalf("ジョブの生成に失敗: %v", err)
	}

	var buf bytes.Buffer
	r := NewRunner(b, nil, nil, reporter, newTestLogger(&buf), testConfig())

	if err := r.Run(context.Background(), job); err != nil {
		t.Fatalf("エラーは発生しないはず: %v", err)
	}
	if got := reporter.reported(); len(got) != 0 {
		t.Errorf("スタンドアロンモードでは報告しないはず: %v", got)
	}
}

func TestRunner_Run_PostProcessFailureStillCompletes(t *testing.T) {
	session := &mockSession{
		locationFunc: func(ctx context.Context) (string, error) {
			return "https://meet.google.com/landing", nil
		},
	}
	b := &mockBrowser{
		connectFunc: func(ctx context.Context, url string) (browser.Session, error) {
			return session, nil
		},
	}
	reporter := &mockReporter{}
	cap := &mockCapture{
		startFunc: func(ctx context.Context, outPath string) (capture.Recording, error) {
			return &mockRecording{stopErr: fmt.Errorf("録音ファイルが空です")}, nil
		},
	}

	var buf bytes.Buffer
	r := NewRunner(b, cap, nil, reporter, newTestLogger(&buf), testConfig())

	if err := r.Run(context.Background(), testJob(t)); err != nil {
		t.Fatalf("後処理の失敗は完了を妨げないはず: %v", err)
	}
	if r.Stage() != StageCompleted {
		t.Errorf("最終段階がcompletedであるべき: got %s", r.Stage())
	}
}

func TestMeetingEnded(t *testing.T) {
	link := "https://meet.google.com/abc-defg-hij"
	tests := []struct {
		currentURL string
		want       bool
	}{
		{"https://meet.google.com/abc-defg-hij", false},
		{"https://meet.google.com/abc-defg-hij?hs=122", false},
		{"https://meet.google.com/landing", true},
		{"https://workspace.google.com/products/meet/", true},
	}
	for _, tt := range tests {
		if got := meetingEnded(tt.currentURL, link); got != tt.want {
			t.Errorf("meetingEnded(%s) = %v, want %v", tt.currentURL, got, tt.want)
		}
	}
}

func TestRepoStatusReporter_MissingEventIsNotError(t *testing.T) {
	repo := &mockEventStatusRepo{updated: false}
	var buf bytes.Buffer
	reporter := NewRepoStatusReporter(repo, newTestLogger(&buf))

	if err := reporter.Report(context.Background(), "gone", model.StatusCompleted); err != nil {
		t.Errorf("対象行の欠落はエラーにならないはず: %v", err)
	}
}
