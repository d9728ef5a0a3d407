package meeting

import "testing"

func TestStage_IsTerminal(t *testing.T) {
	tests := []struct {
		stage Stage
		want  bool
	}{
		{StageInit, false},
		{StageConnecting, false},
		{StagePreviewing, false},
		{StageJoining, false},
		{StageInMeeting, false},
		{StagePostProcessing, false},
		{StageCompleted, true},
		{StageFailed, true},
	}
	for _, tt := range tests {
		if got := tt.stage.IsTerminal(); got != tt.want {
			t.Errorf("IsTerminal(%s) = %v, want %v", tt.stage, got, tt.want)
		}
	}
}

func TestValidateTransition_HappyPath(t *testing.T) {
	path := []Stage{
		StageInit, StageConnecting, StagePreviewing,
		StageJoining, StageInMeeting, StagePostProcessing, StageCompleted,
	}
	for i := 1; i < len(path); i++ {
		if err := ValidateTransition(path[i-1], path[i]); err != nil {
			t.Errorf("遷移 %s -> %s は許可されるべき: %v", path[i-1], path[i], err)
		}
	}
}

func TestValidateTransition_AnyNonTerminalCanFail(t *testing.T) {
	for _, from := range []Stage{
		StageInit, StageConnecting, StagePreviewing,
		StageJoining, StageInMeeting, StagePostProcessing,
	} {
		if err := ValidateTransition(from, StageFailed); err != nil {
			t.Errorf("遷移 %s -> failed は許可されるべき: %v", from, err)
		}
	}
}

func TestValidateTransition_RejectsSkipsAndReversals(t *testing.T) {
	tests := []struct {
		from, to Stage
	}{
		{StageInit, StageInMeeting},
		{StagePreviewing, StageInMeeting},
		{StageInMeeting, StagePreviewing},
		{StageCompleted, StageInit},
		{StageFailed, StageConnecting},
		{StageCompleted, StageFailed},
	}
	for _, tt := range tests {
		if err := ValidateTransition(tt.from, tt.to); err == nil {
			t.Errorf("遷移 %s -> %s は拒否されるべき", tt.from, tt.to)
		}
	}
}

func TestValidateStage_UnknownStage(t *testing.T) {
	if err := ValidateStage(Stage("unknown")); err == nil {
		t.Error("未知の段階は拒否されるべき")
	}
}
