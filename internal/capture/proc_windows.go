//go:build windows

package capture

import "os/exec"

// interruptProcess はffmpegの停止を要求する。
// WindowsはSIGINT相当を他プロセスへ送れないためKillで代替する。
func interruptProcess(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}
