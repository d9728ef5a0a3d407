//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// configureWorkerProcess はワーカーを独立したプロセスグループで起動する。
// スケジューラへのシグナル（Ctrl+C等）が進行中の会議に伝播しないようにする。
func configureWorkerProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
