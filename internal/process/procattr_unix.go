//go:build !windows

package process

import (
	"os"
	"os/exec"
	"syscall"
)

// setProcGroupAttr puts the child in its own process group so the tool and
// anything it spawns (ffmpeg) can be signalled together.
func setProcGroupAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

func interruptGroup(p *os.Process) error {
	return syscall.Kill(-p.Pid, syscall.SIGINT)
}

func killGroup(p *os.Process) error {
	if err := syscall.Kill(-p.Pid, syscall.SIGKILL); err != nil {
		return p.Kill()
	}
	return nil
}
