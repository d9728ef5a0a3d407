package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandScheduler はスケジューラモードで起動することを示す。
	// 実行予定イベントのポーリングとワーカープロセスの起動を行う。
	CommandScheduler Command = "scheduler"
	// CommandJoin は会議参加ワーカーモードで起動することを示す。
	// 1つの会議に参加し、終了とともにプロセスも終了する。
	CommandJoin Command = "join"
	// CommandSweep は放置クレームの掃除を1回実行することを示す。
	CommandSweep Command = "sweep"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandSchedulerを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandScheduler
	}

	switch args[0] {
	case "scheduler":
		return CommandScheduler
	case "join":
		return CommandJoin
	case "sweep":
		return CommandSweep
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandScheduler
	}
}
