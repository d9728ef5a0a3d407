// Package meeting は会議参加ワーカーのライフサイクルを実装する。
// ブラウザ接続からプレビュー操作・参加・在席監視・後処理までを
// 段階的な状態遷移として進行させる。
package meeting

import "fmt"

// Stage はワーカーのライフサイクル段階を表す。
type Stage string

const (
	StageInit           Stage = "init"
	StageConnecting     Stage = "connecting"
	StagePreviewing     Stage = "previewing"
	StageJoining        Stage = "joining"
	StageInMeeting      Stage = "in_meeting"
	StagePostProcessing Stage = "post_processing"
	StageCompleted      Stage = "completed"
	StageFailed         Stage = "failed"
)

// IsTerminal は終端段階かどうかを返す。
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed
}

// allowedTransitions は段階間の許可された遷移。
// どの非終端段階からもfailedへは遷移できる。
// failedからの復帰はない（再試行はプロセスの再起動で行う）。
var allowedTransitions = map[Stage]map[Stage]struct{}{
	StageInit: {
		StageConnecting: {},
		StageFailed:     {},
	},
	StageConnecting: {
		StagePreviewing: {},
		StageFailed:     {},
	},
	StagePreviewing: {
		StageJoining: {},
		StageFailed:  {},
	},
	StageJoining: {
		StageInMeeting: {},
		StageFailed:    {},
	},
	StageInMeeting: {
		StagePostProcessing: {},
		StageFailed:         {},
	},
	StagePostProcessing: {
		StageCompleted: {},
		StageFailed:    {},
	},
	StageCompleted: {},
	StageFailed:    {},
}

// ValidateStage は既知の段階かどうかを検証する。
func ValidateStage(stage Stage) error {
	if _, ok := allowedTransitions[stage]; !ok {
		return fmt.Errorf("不正な段階です: %q", stage)
	}
	return nil
}

// ValidateTransition は段階遷移が許可されているか検証する。
func ValidateTransition(from, to Stage) error {
	if err := ValidateStage(from); err != nil {
		return err
	}
	if err := ValidateStage(to); err != nil {
		return err
	}
	if _, ok := allowedTransitions[from][to]; !ok {
		return fmt.Errorf("不正な段階遷移です: %s -> %s", from, to)
	}
	return nil
}
