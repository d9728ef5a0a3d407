package model

import (
	"fmt"
	"time"
)

// DefaultDisplayName は表示名が未指定のときに使用するボット名。
const DefaultDisplayName = "Dialogon Assistant"

// MeetingJob はワーカープロセス1つが処理する会議参加ジョブを表す。
// スケジューラがイベントをクレームした時点で生成され、
// ワーカープロセスの終了とともに破棄されるインメモリの値。
// EventIDとUserEmailが空の場合、ワーカーはステータス報告なしの
// スタンドアロンモードで動作する。
type MeetingJob struct {
	EventID     string
	UserEmail   string
	MeetingLink string
	DisplayName string
	StartedAt   time.Time
}

// NewMeetingJob はMeetingJobを生成する。
// 会議リンクは必須。表示名が空の場合はDefaultDisplayNameを使用する。
func NewMeetingJob(eventID, userEmail, meetingLink, displayName string) (*MeetingJob, error) {
	if meetingLink == "" {
		return nil, fmt.Errorf("会議リンクは必須です")
	}
	if displayName == "" {
		displayName = DefaultDisplayName
	}
	return &MeetingJob{
		EventID:     eventID,
		UserEmail:   userEmail,
		MeetingLink: meetingLink,
		DisplayName: displayName,
		StartedAt:   time.Now(),
	}, nil
}

// Standalone はステータス報告先イベントを持たないジョブかどうかを返す。
func (j *MeetingJob) Standalone() bool {
	return j.EventID == ""
}
