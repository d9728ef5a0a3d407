//go:build windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// configureWorkerProcess はワーカーを独立したプロセスグループで起動する。
func configureWorkerProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}
