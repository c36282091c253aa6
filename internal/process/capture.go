package process

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/rs/zerolog/log"
)

const captureWaitDelay = 2 * time.Second

type CaptureResult struct {
	Code     int
	Stdout   string
	Stderr   string
	TimedOut bool
}

func (r CaptureResult) OK() bool {
	return r.Code == 0 && !r.TimedOut
}

// RunCapture runs a short-lived command and collects its output. When the
// timeout elapses the whole process group is killed and Code is -1 with
// whatever output arrived so far. A command that cannot be started yields
// Code 1 with the error text as Stderr.
func RunCapture(ctx context.Context, name string, args []string, env []string, timeout time.Duration) CaptureResult {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = env
	setProcGroupAttr(cmd)
	cmd.Cancel = func() error {
		return killGroup(cmd.Process)
	}
	cmd.WaitDelay = captureWaitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		log.Debug().Str("op", "process/capture").Err(err).Msgf("cannot start %s", name)
		return CaptureResult{Code: 1, Stderr: err.Error()}
	}
	err := cmd.Wait()
	res := CaptureResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if ctx.Err() != nil {
		res.Code = -1
		res.TimedOut = errors.Is(ctx.Err(), context.DeadlineExceeded)
		log.Debug().Str("op", "process/capture").Bool("timedOut", res.TimedOut).Msgf("%s did not finish", name)
		return res
	}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.Code = 0
	case errors.As(err, &exitErr):
		res.Code = exitErr.ExitCode()
	default:
		res.Code = 1
		if res.Stderr == "" {
			res.Stderr = err.Error()
		}
	}
	return res
}
