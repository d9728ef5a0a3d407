package model

import (
	"testing"
	"time"
)

func TestEventStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status EventStatus
		want   bool
	}{
		{StatusScheduled, false},
		{StatusJoined, false},
		{StatusCompleted, true},
		{StatusFailed, true},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.want {
			t.Errorf("IsTerminal(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestParseEventStatus_ValidValues(t *testing.T) {
	for _, s := range []string{"scheduled", "joined", "completed", "failed"} {
		status, err := ParseEventStatus(s)
		if err != nil {
			t.Errorf("ParseEventStatus(%q) がエラーを返した: %v", s, err)
		}
		if string(status) != s {
			t.Errorf("ParseEventStatus(%q) = %q", s, status)
		}
	}
}

func TestParseEventStatus_InvalidValue(t *testing.T) {
	if _, err := ParseEventStatus("pending"); err == nil {
		t.Error("未知のステータス値でエラーが返らなかった")
	}
}

func TestEvent_HasRequiredFields(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  bool
	}{
		{"全フィールドあり", Event{Date: "2025-03-19", Time: "06:01", MeetingLink: "https://meet.example/abc"}, true},
		{"日付なし", Event{Time: "06:01", MeetingLink: "https://meet.example/abc"}, false},
		{"時刻なし", Event{Date: "2025-03-19", MeetingLink: "https://meet.example/abc"}, false},
		{"リンクなし", Event{Date: "2025-03-19", Time: "06:01"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.event.HasRequiredFields(); got != tt.want {
				t.Errorf("HasRequiredFields() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvent_StartAt(t *testing.T) {
	event := Event{Date: "2025-03-19", Time: "06:01"}

	start, err := event.StartAt(time.UTC)
	if err != nil {
		t.Fatalf("StartAt がエラーを返した: %v", err)
	}

	want := time.Date(2025, 3, 19, 6, 1, 0, 0, time.UTC)
	if !start.Equal(want) {
		t.Errorf("StartAt = %v, want %v", start, want)
	}
}

func TestEvent_StartAt_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		event Event
	}{
		{"不正な日付", Event{Date: "19-03-2025", Time: "06:01"}},
		{"不正な時刻", Event{Date: "2025-03-19", Time: "6時"}},
		{"空文字列", Event{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.event.StartAt(time.UTC); err == nil {
				t.Error("不正な日時フォーマットでエラーが返らなかった")
			}
		})
	}
}

func TestNewMeetingJob_RequiresLink(t *testing.T) {
	if _, err := NewMeetingJob("", "", "", ""); err == nil {
		t.Error("会議リンクなしでエラーが返らなかった")
	}
}

func TestNewMeetingJob_DefaultDisplayName(t *testing.T) {
	job, err := NewMeetingJob("ev-1", "user@example.com", "https://meet.example/abc", "")
	if err != nil {
		t.Fatalf("NewMeetingJob がエラーを返した: %v", err)
	}
	if job.DisplayName != DefaultDisplayName {
		t.Errorf("DisplayName = %q, want %q", job.DisplayName, DefaultDisplayName)
	}
	if job.Standalone() {
		t.Error("EventIDがあるジョブがStandalone扱いになった")
	}
}

func TestMeetingJob_Standalone(t *testing.T) {
	job, err := NewMeetingJob("", "", "https://meet.example/abc", "Bot")
	if err != nil {
		t.Fatalf("NewMeetingJob がエラーを返した: %v", err)
	}
	if !job.Standalone() {
		t.Error("EventIDなしのジョブがStandaloneと判定されなかった")
	}
}
