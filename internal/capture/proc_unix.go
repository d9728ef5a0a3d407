//go:build !windows

package capture

import (
	"os/exec"
	"syscall"
)

// interruptProcess はffmpegへSIGINTを送る。
// ffmpegはSIGINTでwavヘッダを確定させてから終了する。
func interruptProcess(cmd *exec.Cmd) error {
	return cmd.Process.Signal(syscall.SIGINT)
}
