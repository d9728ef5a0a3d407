package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Scheduler
	PollInterval          time.Duration
	TriggerWindow         time.Duration
	MaxConcurrentMeetings int
	LaunchGrace           time.Duration
	WorkerBin             string

	// Sweep
	SweepInterval   time.Duration
	ClaimStaleAfter time.Duration

	// Worker
	BotName             string
	PreviewTimeout      time.Duration
	JoinTimeout         time.Duration
	MeetingPollInterval time.Duration
	MeetingMaxDuration  time.Duration

	// Browser
	ChromePath        string
	BrowserProfileDir string

	// Capture
	RecordingsDir string

	// AI API
	STTAPIURL       string
	SummarizeAPIURL string

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.PollInterval = getEnvDuration("POLL_INTERVAL", 30*time.Second)
	cfg.TriggerWindow = getEnvDuration("TRIGGER_WINDOW", 2*time.Minute)
	cfg.MaxConcurrentMeetings = getEnvInt("MAX_CONCURRENT_MEETINGS", 10)
	cfg.LaunchGrace = getEnvDuration("LAUNCH_GRACE", 2*time.Second)
	cfg.WorkerBin = getEnvString("WORKER_BIN", "")

	cfg.SweepInterval = getEnvDuration("SWEEP_INTERVAL", 10*time.Minute)
	cfg.ClaimStaleAfter = getEnvDuration("CLAIM_STALE_AFTER", 4*time.Hour)

	cfg.BotName = getEnvString("BOT_NAME", "Dialogon Assistant")
	cfg.PreviewTimeout = getEnvDuration("PREVIEW_TIMEOUT", 3*time.Minute)
	cfg.JoinTimeout = getEnvDuration("JOIN_TIMEOUT", 5*time.Minute)
	cfg.MeetingPollInterval = getEnvDuration("MEETING_POLL_INTERVAL", 60*time.Second)
	cfg.MeetingMaxDuration = getEnvDuration("MEETING_MAX_DURATION", 2*time.Hour)

	cfg.ChromePath = getEnvString("CHROME_PATH", "")
	cfg.BrowserProfileDir = getEnvString("BROWSER_PROFILE_DIR", os.TempDir())

	cfg.RecordingsDir = getEnvString("RECORDINGS_DIR", "recordings")

	cfg.STTAPIURL = getEnvString("STT_API_URL", "")
	cfg.SummarizeAPIURL = getEnvString("SUMMARIZE_API_URL", "")

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
