//go:build windows

package process

import (
	"os"
	"os/exec"
	"strconv"
	"syscall"
)

const createNoWindow = 0x08000000

func setProcGroupAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: createNoWindow,
	}
}

// interruptGroup asks the process tree to close without forcing it.
func interruptGroup(p *os.Process) error {
	cmd := exec.Command("taskkill", "/PID", strconv.Itoa(p.Pid), "/T")
	setProcGroupAttr(cmd)
	return cmd.Run()
}

func killGroup(p *os.Process) error {
	cmd := exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(p.Pid))
	setProcGroupAttr(cmd)
	taskErr := cmd.Run()
	if err := p.Kill(); err != nil && taskErr != nil {
		return taskErr
	}
	return nil
}
